// Package model manages the on-disk recognizer model directory: a small
// named catalog, atomic downloads, and selector resolution.
package model

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/atcscribe/atcscribe-core/internal/config"
	"github.com/atcscribe/atcscribe-core/internal/fault"
	"github.com/atcscribe/atcscribe-core/internal/protocol"
)

// Info describes one model the runtime knows how to fetch. Size is the
// expected byte size, zero when unknown.
type Info struct {
	Name string
	URL  string
	Size int64
}

// DefaultModel is used when the config names no model.
const DefaultModel = "whisper-small-atc"

// Catalog lists the models the runtime can acquire. Model files are
// opaque blobs; only name, source and size matter here.
var Catalog = []Info{
	{Name: "whisper-small-atc", URL: "https://models.atcscribe.dev/whisper-small-atc.bin", Size: 487614201},
	{Name: "whisper-medium-atc", URL: "https://models.atcscribe.dev/whisper-medium-atc.bin", Size: 1533774781},
	{Name: "whisper-tiny", URL: "https://models.atcscribe.dev/whisper-tiny.bin", Size: 77691713},
}

// Lookup finds a catalog entry by name.
func Lookup(name string) (Info, bool) {
	for _, info := range Catalog {
		if info.Name == name {
			return info, true
		}
	}
	return Info{}, false
}

// ProgressFunc observes download progress.
type ProgressFunc func(protocol.DownloadProgress)

// Manager owns the model directory. Downloads are single-writer per model
// name: a second download of an in-flight model fails fast with ErrBusy.
type Manager struct {
	cfg      config.ModelsConfig
	log      *slog.Logger
	client   *http.Client
	progress ProgressFunc

	// catalog defaults to the package Catalog; tests point it at a local server.
	catalog []Info

	mu       sync.Mutex
	inflight map[string]struct{}
}

func NewManager(cfg config.ModelsConfig, log *slog.Logger, progress ProgressFunc) *Manager {
	if progress == nil {
		progress = func(protocol.DownloadProgress) {}
	}
	return &Manager{
		cfg:      cfg,
		log:      log.With(slog.String("component", "model-manager")),
		client:   http.DefaultClient,
		progress: progress,
		catalog:  Catalog,
		inflight: make(map[string]struct{}),
	}
}

func (m *Manager) lookup(name string) (Info, bool) {
	for _, info := range m.catalog {
		if info.Name == name {
			return info, true
		}
	}
	return Info{}, false
}

// Path returns where a catalog model lives on disk.
func (m *Manager) Path(name string) string {
	return filepath.Join(m.cfg.Dir, name+".bin")
}

// IsDownloaded reports whether the named model is present on disk.
func (m *Manager) IsDownloaded(name string) bool {
	_, err := os.Stat(m.Path(name))
	return err == nil
}

// Resolve maps a model selector to a file path. A selector that points at
// an existing file is used as-is (the "custom model" path); otherwise it
// must be a downloaded catalog model. An empty selector means the default
// model.
func (m *Manager) Resolve(selector string) (string, error) {
	if selector == "" {
		selector = DefaultModel
	}
	if info, err := os.Stat(selector); err == nil && !info.IsDir() {
		return selector, nil
	}
	if _, ok := m.lookup(selector); !ok {
		return "", fmt.Errorf("unknown model %q: %w", selector, fault.ErrNotFound)
	}
	path := m.Path(selector)
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("model %q not downloaded: %w", selector, fault.ErrNotFound)
	}
	return path, nil
}

// Download fetches a catalog model into the model directory. The stream
// goes to a temporary sibling which only replaces the final path after
// full, verified completion; the temporary file is removed on every
// failure path.
func (m *Manager) Download(ctx context.Context, name string) (err error) {
	info, ok := m.lookup(name)
	if !ok {
		return fmt.Errorf("unknown model %q: %w", name, fault.ErrNotFound)
	}

	m.mu.Lock()
	if _, busy := m.inflight[name]; busy {
		m.mu.Unlock()
		return fmt.Errorf("model %q download already in flight: %w", name, fault.ErrBusy)
	}
	m.inflight[name] = struct{}{}
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		delete(m.inflight, name)
		m.mu.Unlock()
	}()

	if err := os.MkdirAll(m.cfg.Dir, 0o755); err != nil {
		return fmt.Errorf("create model dir: %w", err)
	}

	if ms := m.cfg.DownloadTimeoutMS; ms > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(ms)*time.Millisecond)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, info.URL, nil)
	if err != nil {
		return fmt.Errorf("build model request: %w", err)
	}
	resp, err := m.client.Do(req)
	if err != nil {
		return fmt.Errorf("fetch model %q: %w: %v", name, fault.ErrTransient, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("fetch model %q: status %s: %w", name, resp.Status, fault.ErrTransient)
	}

	total := resp.ContentLength
	if total <= 0 {
		total = info.Size
	}

	final := m.Path(name)
	tmpPath := final + ".partial"
	tmp, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("create temp model file: %w", err)
	}
	defer func() {
		tmp.Close()
		if err != nil {
			os.Remove(tmpPath)
		}
	}()

	written, err := m.copyWithProgress(ctx, tmp, resp.Body, name, total)
	if err != nil {
		return fmt.Errorf("stream model %q: %w: %v", name, fault.ErrTransient, err)
	}
	if info.Size > 0 && written != info.Size {
		err = fmt.Errorf("model %q size mismatch: got %d, want %d: %w", name, written, info.Size, fault.ErrTransient)
		return err
	}
	if err = tmp.Sync(); err != nil {
		return fmt.Errorf("sync model file: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("close model file: %w", err)
	}
	if err = os.Rename(tmpPath, final); err != nil {
		return fmt.Errorf("activate model file: %w", err)
	}

	m.log.Info("model downloaded", slog.String("model", name), slog.Int64("bytes", written))
	if total <= 0 {
		total = written
	}
	m.progress(protocol.DownloadProgress{Model: name, BytesDone: written, BytesTotal: total})
	return nil
}

func (m *Manager) copyWithProgress(ctx context.Context, dst io.Writer, src io.Reader, name string, total int64) (int64, error) {
	buf := make([]byte, 128*1024)
	var done int64
	for {
		if err := ctx.Err(); err != nil {
			return done, err
		}
		n, readErr := src.Read(buf)
		if n > 0 {
			if _, writeErr := dst.Write(buf[:n]); writeErr != nil {
				return done, writeErr
			}
			done += int64(n)
			m.progress(protocol.DownloadProgress{Model: name, BytesDone: done, BytesTotal: total})
		}
		if readErr == io.EOF {
			return done, nil
		}
		if readErr != nil {
			return done, readErr
		}
	}
}

// Delete removes a downloaded model. Absent models are not an error.
func (m *Manager) Delete(name string) error {
	err := os.Remove(m.Path(name))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
