package phrase

import (
	"strings"
	"testing"
)

func TestNormalizeFlightLevel(t *testing.T) {
	got := Normalize("climb flight level 160")
	if !strings.Contains(got, "flight level 1 6 0") {
		t.Fatalf("expected spaced flight level, got %q", got)
	}
}

func TestNormalizeRunway(t *testing.T) {
	got := Normalize("cleared to land runway 26")
	if !strings.Contains(got, "runway 2 6") {
		t.Fatalf("expected spaced runway, got %q", got)
	}
}

func TestNormalizePreservesCase(t *testing.T) {
	got := Normalize("Climb Flight Level 160 now")
	if !strings.Contains(got, "Flight Level 1 6 0") {
		t.Fatalf("expected surrounding case preserved, got %q", got)
	}
}

func TestNormalizeExactDigitRuns(t *testing.T) {
	// Four digits after "flight level" and three after "runway" are left alone.
	if got := Normalize("flight level 1600"); got != "flight level 1600" {
		t.Fatalf("four-digit run rewritten: %q", got)
	}
	if got := Normalize("runway 260"); got != "runway 260" {
		t.Fatalf("three-digit runway rewritten: %q", got)
	}
}

func TestNormalizeLexicalCorrections(t *testing.T) {
	cases := map[string]string{
		"descend tree thousand":    "descend three thousand",
		"fife miles out":           "five miles out",
		"won two three":            "one two three",
		"climb to altitude 3000":   "climb two altitude 3000",
		"descend for altitude now": "descend four altitude now",
	}
	for in, want := range cases {
		if got := Normalize(in); got != want {
			t.Errorf("Normalize(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestNormalizeWholeWordOnly(t *testing.T) {
	// "tree" inside "street" must not be rewritten.
	if got := Normalize("street level"); got != "street level" {
		t.Fatalf("partial-word match rewritten: %q", got)
	}
}

func TestNormalizeNinerUntouched(t *testing.T) {
	got := Normalize("descend flight level niner zero niner")
	if !strings.Contains(got, "niner zero niner") {
		t.Fatalf("niner must never be rewritten, got %q", got)
	}
}

func TestNormalizeEmpty(t *testing.T) {
	if got := Normalize("   \t\n"); got != "" {
		t.Fatalf("expected empty output, got %q", got)
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	inputs := []string{
		"climb flight level 160 contact tower",
		"runway 26 cleared to land",
		"tree fife won niner",
		"  padded   input  ",
		"",
		"BEL472 climb Flight Level 310 runway 07",
	}
	for _, in := range inputs {
		once := Normalize(in)
		twice := Normalize(once)
		if once != twice {
			t.Errorf("not idempotent for %q: %q != %q", in, once, twice)
		}
	}
}
