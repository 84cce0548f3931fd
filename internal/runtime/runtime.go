// Package runtime wires the daemon together: telemetry, the message bus,
// the stores, the sessions and the HTTP surface.
package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/atcscribe/atcscribe-core/internal/bus"
	"github.com/atcscribe/atcscribe-core/internal/config"
	"github.com/atcscribe/atcscribe-core/internal/device"
	"github.com/atcscribe/atcscribe-core/internal/history"
	"github.com/atcscribe/atcscribe-core/internal/model"
	"github.com/atcscribe/atcscribe-core/internal/natsserver"
	"github.com/atcscribe/atcscribe-core/internal/orchestrator"
	"github.com/atcscribe/atcscribe-core/internal/protocol"
	"github.com/atcscribe/atcscribe-core/internal/settings"
)

type Runtime struct {
	cfg    config.Config
	logger *slog.Logger

	httpServer *http.Server
	ready      atomic.Bool
	wg         sync.WaitGroup
}

func New(cfg config.Config, logger *slog.Logger) *Runtime {
	return &Runtime{
		cfg:    cfg,
		logger: logger,
	}
}

// Start brings the daemon up and blocks until ctx is cancelled, then
// tears everything down in reverse dependency order.
func (r *Runtime) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	tel, err := initTelemetry(r.cfg, r.logger)
	if err != nil {
		return fmt.Errorf("failed to setup telemetry: %w", err)
	}

	var embedded *natsserver.EmbeddedServer
	if r.cfg.Bus.Embedded {
		embedded, err = natsserver.Start(r.cfg.Bus, r.logger)
		if err != nil {
			return fmt.Errorf("failed to start embedded bus: %w", err)
		}
	}

	// The daemon stays useful without a bus: publishes become no-ops and
	// the websocket feed goes quiet.
	busClient, err := bus.Connect(ctx, r.cfg.Bus, r.logger)
	if err != nil {
		r.logger.Warn("bus unavailable, events disabled", slog.String("error", err.Error()))
		busClient = nil
	}

	store, err := history.Open(ctx, r.cfg.History, r.logger)
	if err != nil {
		return fmt.Errorf("failed to open history store: %w", err)
	}
	prefs, err := settings.Open(r.cfg.Settings, r.logger)
	if err != nil {
		return fmt.Errorf("failed to open settings store: %w", err)
	}

	models := model.NewManager(r.cfg.Models, r.logger, func(p protocol.DownloadProgress) {
		busClient.PublishJSON(protocol.SubjectDownloadProgress, p)
	})

	orch, err := orchestrator.New(ctx, r.cfg, busClient, store, prefs, models, device.NewSimulatedDirectory(nil), r.logger)
	if err != nil {
		return fmt.Errorf("failed to build orchestrator: %w", err)
	}
	if err := orch.Start(ctx); err != nil {
		// The engine session sits in its error state and can be retried;
		// the daemon keeps serving.
		r.logger.Warn("startup degraded", slog.String("error", err.Error()))
	}

	feed := NewFeed(r.logger)
	if err := feed.Attach(busClient); err != nil {
		r.logger.Warn("feed attach failed", slog.String("error", err.Error()))
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", r.handleHealth)
	mux.HandleFunc("/readyz", r.handleReady)
	mux.Handle("/ws/transcripts", feed)

	// Metrics are scraped from a dedicated listener when one is
	// configured, falling back to the main server otherwise.
	var metricsServer *http.Server
	if tel.handler != nil {
		if bind := r.cfg.Telemetry.PrometheusBind; bind != "" {
			metricsMux := http.NewServeMux()
			metricsMux.Handle("/metrics", tel.handler)
			metricsServer = &http.Server{
				Addr:              bind,
				Handler:           metricsMux,
				ReadHeaderTimeout: 5 * time.Second,
			}
			r.wg.Add(1)
			go func() {
				defer r.wg.Done()
				if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					r.logger.Error("metrics server failed", slog.String("error", err.Error()))
				}
			}()
		} else {
			mux.Handle("/metrics", tel.handler)
		}
	}

	addr := fmt.Sprintf("%s:%d", r.cfg.HTTP.Bind, r.cfg.HTTP.Port)
	r.httpServer = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := r.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			r.logger.Error("http server failed", slog.String("error", err.Error()))
		}
	}()

	r.ready.Store(true)
	r.logger.Info("runtime started", slog.String("addr", addr))

	<-ctx.Done()
	r.logger.Info("runtime stopping")
	r.ready.Store(false)

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := r.httpServer.Shutdown(shutdownCtx); err != nil {
		r.logger.Error("http shutdown error", slog.String("error", err.Error()))
	}
	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			r.logger.Error("metrics shutdown error", slog.String("error", err.Error()))
		}
	}
	r.wg.Wait()

	feed.Close()
	orch.Close()
	if busClient != nil {
		busClient.Close()
	}
	if embedded != nil {
		embedded.Shutdown()
	}
	if err := prefs.Close(); err != nil {
		r.logger.Error("settings close error", slog.String("error", err.Error()))
	}
	if err := store.Close(); err != nil {
		r.logger.Error("history close error", slog.String("error", err.Error()))
	}
	if err := tel.shutdown(shutdownCtx); err != nil {
		r.logger.Error("telemetry shutdown error", slog.String("error", err.Error()))
	}

	return nil
}

func (r *Runtime) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (r *Runtime) handleReady(w http.ResponseWriter, _ *http.Request) {
	if r.ready.Load() {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
		return
	}
	w.WriteHeader(http.StatusServiceUnavailable)
	_, _ = w.Write([]byte("not ready"))
}
