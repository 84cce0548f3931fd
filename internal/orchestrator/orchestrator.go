// Package orchestrator composes the engine and device sessions with the
// history store: record, transcribe, persist, notify.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/atcscribe/atcscribe-core/internal/bus"
	"github.com/atcscribe/atcscribe-core/internal/config"
	"github.com/atcscribe/atcscribe-core/internal/device"
	"github.com/atcscribe/atcscribe-core/internal/engine"
	"github.com/atcscribe/atcscribe-core/internal/history"
	"github.com/atcscribe/atcscribe-core/internal/model"
	"github.com/atcscribe/atcscribe-core/internal/protocol"
	"github.com/atcscribe/atcscribe-core/internal/recognizer"
	"github.com/atcscribe/atcscribe-core/internal/settings"
)

// Orchestrator owns the session lifecycles and the persistence hand-off.
// Finalized transcriptions are persisted synchronously from the engine's
// finalization path, which keeps store order equal to finalization order.
type Orchestrator struct {
	cfg      config.Config
	log      *slog.Logger
	bus      *bus.Client
	store    *history.Store
	settings *settings.Store
	models   *model.Manager

	Engine *engine.Session
	Device *device.Session
}

func New(ctx context.Context, cfg config.Config, busClient *bus.Client, store *history.Store, prefs *settings.Store, models *model.Manager, dir device.Directory, log *slog.Logger) (*Orchestrator, error) {
	var rec recognizer.Recognizer
	switch cfg.Engine.Mode {
	case "exec":
		var err error
		rec, err = recognizer.NewExec(cfg.Engine)
		if err != nil {
			return nil, fmt.Errorf("build exec recognizer: %w", err)
		}
	default:
		rec = recognizer.NewMock()
	}

	o := &Orchestrator{
		cfg:      cfg,
		log:      log.With(slog.String("component", "orchestrator")),
		bus:      busClient,
		store:    store,
		settings: prefs,
		models:   models,
		Engine:   engine.NewSession(ctx, cfg.Engine, busClient, rec, models, log),
		Device:   device.NewSession(ctx, cfg.Device, dir, busClient, log),
	}
	o.Engine.OnFinal = o.persist
	return o, nil
}

// Start brings both sessions up. An engine initialization failure leaves
// the engine in its error state for a later retry; it does not abort the
// device session.
func (o *Orchestrator) Start(ctx context.Context) error {
	if label, err := o.settings.String(settings.KeyLastChannel, ""); err == nil && label != "" {
		o.Engine.SetChannel(label)
	}

	var firstErr error
	if err := o.Engine.Initialize(ctx, o.cfg.Engine.Model); err != nil {
		o.log.Error("engine initialization failed", slog.String("error", err.Error()))
		firstErr = err
	}
	if o.cfg.Device.Enabled {
		if err := o.Device.Initialize(ctx); err != nil {
			o.log.Error("device initialization failed", slog.String("error", err.Error()))
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// SetChannel updates the active frequency label and remembers it across
// restarts.
func (o *Orchestrator) SetChannel(label string) {
	o.Engine.SetChannel(label)
	if err := o.settings.SetString(settings.KeyLastChannel, label); err != nil {
		o.log.Warn("failed to persist channel label", slog.String("error", err.Error()))
	}
}

func (o *Orchestrator) persist(tr protocol.Transcription) {
	if err := o.store.Save(context.Background(), tr); err != nil {
		o.log.Error("failed to persist transcription",
			slog.String("id", tr.ID), slog.String("error", err.Error()))
		return
	}
	o.bus.PublishJSON(protocol.SubjectHistorySaved, tr)
}

// Close tears the sessions down.
func (o *Orchestrator) Close() {
	o.Engine.Close()
	o.Device.Close()
}
