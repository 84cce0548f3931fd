package callsign

import (
	"reflect"
	"testing"
)

func TestExtractAirline(t *testing.T) {
	cases := map[string][]string{
		"BEL472 climb flight level 160":  {"BEL472"},
		"BEL 472 climb":                  {"BEL472"},
		"contact DLH9T on 118 decimal":   {"DLH9T"},
		"RYR1234 and AFR82 cleared":      {"RYR1234", "AFR82"},
		"no callsign in this sentence a": nil,
	}
	for in, want := range cases {
		got := Extract(in)
		if !reflect.DeepEqual(got, want) && !(len(got) == 0 && len(want) == 0) {
			t.Errorf("Extract(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestExtractRegistration(t *testing.T) {
	cases := map[string][]string{
		"OOABC":                {"OO-ABC"},
		"oo-abc":               {"OO-ABC"},
		"PH-XYZ downwind":      {"PH-XYZ"},
		"station DKLM request": {"D-KLM"},
		"LXABC and OE-DEF":     {"LX-ABC", "OE-DEF"},
	}
	for in, want := range cases {
		got := Extract(in)
		if !reflect.DeepEqual(got, want) {
			t.Errorf("Extract(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestExtractDeduplicates(t *testing.T) {
	got := Extract("BEL472 contact BEL472 again")
	want := []string{"BEL472"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Extract = %v, want %v", got, want)
	}
}

func TestExtractMergesFamiliesInOrder(t *testing.T) {
	got := Extract("OOABC traffic BEL472 one o'clock")
	want := []string{"OO-ABC", "BEL472"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Extract = %v, want %v", got, want)
	}
}

func TestExtractEmpty(t *testing.T) {
	if got := Extract(""); len(got) != 0 {
		t.Fatalf("expected no callsigns, got %v", got)
	}
}
