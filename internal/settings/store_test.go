package settings

import (
	"io"
	"log/slog"
	"testing"

	"github.com/atcscribe/atcscribe-core/internal/config"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	s, err := Open(config.SettingsConfig{InMemory: true}, log)
	if err != nil {
		t.Fatalf("open settings store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestMissingKeysFallBack(t *testing.T) {
	s := newStore(t)

	dark, err := s.Bool(KeyDarkMode, false)
	if err != nil {
		t.Fatalf("bool: %v", err)
	}
	if dark {
		t.Fatal("expected default false for missing key")
	}

	channel, err := s.String(KeyLastChannel, "Brussels Tower 118.600")
	if err != nil {
		t.Fatalf("string: %v", err)
	}
	if channel != "Brussels Tower 118.600" {
		t.Fatalf("expected default channel, got %q", channel)
	}
}

func TestRoundTrip(t *testing.T) {
	s := newStore(t)

	if err := s.SetBool(KeyDarkMode, true); err != nil {
		t.Fatalf("set bool: %v", err)
	}
	dark, err := s.Bool(KeyDarkMode, false)
	if err != nil {
		t.Fatalf("bool: %v", err)
	}
	if !dark {
		t.Fatal("expected stored value true")
	}

	if err := s.SetString(KeyLastChannel, "Antwerp Tower 121.855"); err != nil {
		t.Fatalf("set string: %v", err)
	}
	channel, err := s.String(KeyLastChannel, "")
	if err != nil {
		t.Fatalf("string: %v", err)
	}
	if channel != "Antwerp Tower 121.855" {
		t.Fatalf("unexpected channel: %q", channel)
	}
}

func TestDeleteIdempotent(t *testing.T) {
	s := newStore(t)

	if err := s.SetString(KeyLastChannel, "x"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := s.Delete(KeyLastChannel); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := s.Delete(KeyLastChannel); err != nil {
		t.Fatalf("second delete must not error: %v", err)
	}
	got, err := s.String(KeyLastChannel, "fallback")
	if err != nil {
		t.Fatalf("string: %v", err)
	}
	if got != "fallback" {
		t.Fatalf("expected fallback after delete, got %q", got)
	}
}
