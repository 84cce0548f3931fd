package model

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"

	"github.com/atcscribe/atcscribe-core/internal/config"
	"github.com/atcscribe/atcscribe-core/internal/fault"
	"github.com/atcscribe/atcscribe-core/internal/protocol"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newManager(t *testing.T, progress ProgressFunc) *Manager {
	t.Helper()
	cfg := config.ModelsConfig{Dir: t.TempDir()}
	return NewManager(cfg, newLogger(), progress)
}

func TestDownloadAtomicSuccess(t *testing.T) {
	payload := []byte("opaque model bytes")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(payload)
	}))
	defer srv.Close()

	var mu sync.Mutex
	var updates []protocol.DownloadProgress
	m := newManager(t, func(p protocol.DownloadProgress) {
		mu.Lock()
		updates = append(updates, p)
		mu.Unlock()
	})
	m.catalog = []Info{{Name: "tiny", URL: srv.URL, Size: int64(len(payload))}}

	if err := m.Download(context.Background(), "tiny"); err != nil {
		t.Fatalf("download: %v", err)
	}

	data, err := os.ReadFile(m.Path("tiny"))
	if err != nil {
		t.Fatalf("read downloaded model: %v", err)
	}
	if string(data) != string(payload) {
		t.Fatalf("payload mismatch")
	}
	if _, err := os.Stat(m.Path("tiny") + ".partial"); !os.IsNotExist(err) {
		t.Fatal("temporary file left behind")
	}
	if len(updates) == 0 {
		t.Fatal("expected progress updates")
	}
	last := updates[len(updates)-1]
	if last.BytesDone != int64(len(payload)) {
		t.Fatalf("final progress %d, want %d", last.BytesDone, len(payload))
	}
	if last.BytesTotal != int64(len(payload)) {
		t.Fatalf("final progress total %d, want %d", last.BytesTotal, len(payload))
	}
	for _, p := range updates {
		if p.BytesTotal != int64(len(payload)) {
			t.Fatalf("inconsistent total in progress stream: %+v", updates)
		}
	}
	if !m.IsDownloaded("tiny") {
		t.Fatal("IsDownloaded should report true")
	}
}

func TestDownloadCleansUpOnFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer srv.Close()

	m := newManager(t, nil)
	m.catalog = []Info{{Name: "tiny", URL: srv.URL}}

	err := m.Download(context.Background(), "tiny")
	if !errors.Is(err, fault.ErrTransient) {
		t.Fatalf("expected ErrTransient, got %v", err)
	}
	if _, statErr := os.Stat(m.Path("tiny") + ".partial"); !os.IsNotExist(statErr) {
		t.Fatal("temporary file left behind after failure")
	}
	if m.IsDownloaded("tiny") {
		t.Fatal("final path must not exist after failure")
	}
}

func TestDownloadSizeMismatchRemovesTemp(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("short"))
	}))
	defer srv.Close()

	m := newManager(t, nil)
	m.catalog = []Info{{Name: "tiny", URL: srv.URL, Size: 999}}

	err := m.Download(context.Background(), "tiny")
	if !errors.Is(err, fault.ErrTransient) {
		t.Fatalf("expected ErrTransient, got %v", err)
	}
	if _, statErr := os.Stat(m.Path("tiny") + ".partial"); !os.IsNotExist(statErr) {
		t.Fatal("temporary file left behind after size mismatch")
	}
}

func TestDownloadRejectsConcurrentSameModel(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(entered)
		<-release
		w.Write([]byte("data"))
	}))
	defer srv.Close()

	m := newManager(t, nil)
	m.catalog = []Info{{Name: "tiny", URL: srv.URL, Size: 4}}

	done := make(chan error, 1)
	go func() { done <- m.Download(context.Background(), "tiny") }()
	<-entered

	if err := m.Download(context.Background(), "tiny"); !errors.Is(err, fault.ErrBusy) {
		t.Fatalf("expected ErrBusy for concurrent download, got %v", err)
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("first download failed: %v", err)
	}
}

func TestDownloadTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	cfg := config.ModelsConfig{Dir: t.TempDir(), DownloadTimeoutMS: 50}
	m := NewManager(cfg, newLogger(), nil)
	m.catalog = []Info{{Name: "tiny", URL: srv.URL, Size: 4}}

	err := m.Download(context.Background(), "tiny")
	if !errors.Is(err, fault.ErrTransient) {
		t.Fatalf("expected ErrTransient after timeout, got %v", err)
	}
	if _, statErr := os.Stat(m.Path("tiny") + ".partial"); !os.IsNotExist(statErr) {
		t.Fatal("temporary file left behind after timeout")
	}
}

func TestDownloadUnknownModel(t *testing.T) {
	m := newManager(t, nil)
	if err := m.Download(context.Background(), "no-such-model"); !errors.Is(err, fault.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestResolve(t *testing.T) {
	m := newManager(t, nil)
	m.catalog = []Info{{Name: "tiny", URL: "http://unused"}}

	if _, err := m.Resolve("tiny"); !errors.Is(err, fault.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for undownloaded model, got %v", err)
	}

	if err := os.WriteFile(m.Path("tiny"), []byte("x"), 0o644); err != nil {
		t.Fatalf("seed model file: %v", err)
	}
	path, err := m.Resolve("tiny")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if path != m.Path("tiny") {
		t.Fatalf("unexpected path %q", path)
	}

	// A selector that is an existing file path is used as-is.
	custom := m.Path("tiny")
	path, err = m.Resolve(custom)
	if err != nil || path != custom {
		t.Fatalf("custom path resolve: %q, %v", path, err)
	}
}
