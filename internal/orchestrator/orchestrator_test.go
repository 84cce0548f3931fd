package orchestrator

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/atcscribe/atcscribe-core/internal/config"
	"github.com/atcscribe/atcscribe-core/internal/device"
	"github.com/atcscribe/atcscribe-core/internal/engine"
	"github.com/atcscribe/atcscribe-core/internal/history"
	"github.com/atcscribe/atcscribe-core/internal/model"
	"github.com/atcscribe/atcscribe-core/internal/settings"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	dir := t.TempDir()

	modelPath := filepath.Join(dir, "model.bin")
	if err := os.WriteFile(modelPath, []byte("weights"), 0o644); err != nil {
		t.Fatalf("write model file: %v", err)
	}

	cfg := config.Default()
	cfg.Engine.Mode = "mock"
	cfg.Engine.Model = modelPath
	cfg.Models.Dir = filepath.Join(dir, "models")
	cfg.History.Path = filepath.Join(dir, "history.db")
	cfg.Settings.InMemory = true
	cfg.Device.Enabled = false
	return cfg
}

func newOrchestrator(t *testing.T, cfg config.Config) *Orchestrator {
	t.Helper()
	ctx := context.Background()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	store, err := history.Open(ctx, cfg.History, log)
	if err != nil {
		t.Fatalf("open history: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	prefs, err := settings.Open(cfg.Settings, log)
	if err != nil {
		t.Fatalf("open settings: %v", err)
	}
	t.Cleanup(func() { prefs.Close() })

	models := model.NewManager(cfg.Models, log, nil)
	o, err := New(ctx, cfg, nil, store, prefs, models, device.NewSimulatedDirectory(nil), log)
	if err != nil {
		t.Fatalf("new orchestrator: %v", err)
	}
	t.Cleanup(o.Close)
	return o
}

func TestStartInitializesEngine(t *testing.T) {
	cfg := testConfig(t)
	o := newOrchestrator(t, cfg)

	if err := o.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if got := o.Engine.State(); got != engine.StateReady {
		t.Fatalf("expected ready engine, got %s", got)
	}
}

func TestFinalizedTranscriptionsLandInHistory(t *testing.T) {
	cfg := testConfig(t)
	o := newOrchestrator(t, cfg)
	ctx := context.Background()

	if err := o.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	o.SetChannel("121.800")

	first, err := o.Engine.Transcribe(ctx, make([]byte, 320))
	if err != nil {
		t.Fatalf("transcribe: %v", err)
	}
	second, err := o.Engine.Transcribe(ctx, make([]byte, 640))
	if err != nil {
		t.Fatalf("transcribe: %v", err)
	}

	records, err := o.store.GetAll(ctx)
	if err != nil {
		t.Fatalf("get all: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 persisted records, got %d", len(records))
	}
	ids := map[string]bool{records[0].ID: true, records[1].ID: true}
	if !ids[first.ID] || !ids[second.ID] {
		t.Fatalf("persisted ids %v do not match transcriptions %s/%s", ids, first.ID, second.ID)
	}
	for _, r := range records {
		if r.Frequency != "121.800" {
			t.Fatalf("expected channel label on record, got %q", r.Frequency)
		}
	}
}

func TestChannelLabelSurvivesRestart(t *testing.T) {
	cfg := testConfig(t)
	cfg.Settings.InMemory = false
	cfg.Settings.Dir = t.TempDir()
	ctx := context.Background()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	store, err := history.Open(ctx, cfg.History, log)
	if err != nil {
		t.Fatalf("open history: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	models := model.NewManager(cfg.Models, log, nil)

	run := func(fn func(o *Orchestrator)) {
		prefs, err := settings.Open(cfg.Settings, log)
		if err != nil {
			t.Fatalf("open settings: %v", err)
		}
		defer prefs.Close()

		o, err := New(ctx, cfg, nil, store, prefs, models, device.NewSimulatedDirectory(nil), log)
		if err != nil {
			t.Fatalf("new orchestrator: %v", err)
		}
		defer o.Close()
		if err := o.Start(ctx); err != nil {
			t.Fatalf("start: %v", err)
		}
		fn(o)
	}

	run(func(o *Orchestrator) {
		o.SetChannel("118.250")
	})

	// A fresh process picks the label back up from the settings store.
	run(func(o *Orchestrator) {
		tr, err := o.Engine.Transcribe(ctx, make([]byte, 320))
		if err != nil {
			t.Fatalf("transcribe: %v", err)
		}
		if tr.Frequency != "118.250" {
			t.Fatalf("expected restored channel label, got %q", tr.Frequency)
		}
	})
}
