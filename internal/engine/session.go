// Package engine implements the transcription engine session: one state
// machine wrapping a recognizer backend, producing normalized
// transcriptions with extracted callsigns.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/atcscribe/atcscribe-core/internal/bus"
	"github.com/atcscribe/atcscribe-core/internal/callsign"
	"github.com/atcscribe/atcscribe-core/internal/config"
	"github.com/atcscribe/atcscribe-core/internal/fault"
	"github.com/atcscribe/atcscribe-core/internal/model"
	"github.com/atcscribe/atcscribe-core/internal/phrase"
	"github.com/atcscribe/atcscribe-core/internal/protocol"
	"github.com/atcscribe/atcscribe-core/internal/recognizer"
)

// State is the engine session lifecycle state.
type State string

const (
	StateUninitialized State = "uninitialized"
	StateInitializing  State = "initializing"
	StateReady         State = "ready"
	StateListening     State = "listening"
	StateTranscribing  State = "transcribing"
	StateError         State = "error"
)

// Session serializes all recognition work for one engine instance. At
// most one utterance is in flight at a time; concurrent requests fail
// fast instead of queueing.
type Session struct {
	cfg    config.EngineConfig
	log    *slog.Logger
	bus    *bus.Client
	rec    recognizer.Recognizer
	models *model.Manager

	// OnFinal, when set, receives every finalized transcription after it
	// is broadcast. The orchestrator uses it to persist records in
	// finalization order. Set before Initialize; not guarded.
	OnFinal func(protocol.Transcription)

	mu            sync.Mutex
	state         State
	modelSelector string
	modelPath     string
	channel       string
	lastErr       error

	listenSub    *nats.Subscription
	buffer       []byte
	lastPartial  time.Time
	inflight     bool
	pendingFinal bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	clock  func() time.Time

	transcriptions metric.Int64Counter
	failures       metric.Int64Counter
}

func NewSession(parent context.Context, cfg config.EngineConfig, busClient *bus.Client, rec recognizer.Recognizer, models *model.Manager, log *slog.Logger) *Session {
	ctx, cancel := context.WithCancel(parent)
	s := &Session{
		cfg:    cfg,
		log:    log.With(slog.String("component", "engine-session")),
		bus:    busClient,
		rec:    rec,
		models: models,
		state:  StateUninitialized,
		ctx:    ctx,
		cancel: cancel,
		clock:  time.Now,
	}
	meter := otel.Meter("github.com/atcscribe/atcscribe-core/engine")
	if counter, err := meter.Int64Counter("engine.transcriptions"); err == nil {
		s.transcriptions = counter
	}
	if counter, err := meter.Int64Counter("engine.failures"); err == nil {
		s.failures = counter
	}
	return s
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// SetChannel attaches a frequency label to all subsequently produced
// transcriptions. Already-produced records are unaffected.
func (s *Session) SetChannel(label string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.channel = label
}

// Initialize loads and activates the model named by selector. It is a
// no-op while initialization is already in progress, retryable after a
// failure, and invalid once the session is past initialization.
func (s *Session) Initialize(ctx context.Context, selector string) error {
	s.mu.Lock()
	switch s.state {
	case StateInitializing:
		s.mu.Unlock()
		return nil
	case StateUninitialized, StateError:
	default:
		s.mu.Unlock()
		return fmt.Errorf("initialize in state %s: %w", s.state, fault.ErrNotReady)
	}
	s.setStateLocked(StateInitializing, nil)
	s.mu.Unlock()

	path, err := s.models.Resolve(selector)
	if err == nil {
		err = s.rec.Initialize(ctx, path)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.setStateLocked(StateError, err)
		return fmt.Errorf("initialize engine: %w", err)
	}
	s.modelSelector = selector
	s.modelPath = path
	s.setStateLocked(StateReady, nil)
	s.log.Info("engine initialized", slog.String("model", path))
	return nil
}

// Transcribe runs one utterance of PCM audio through the recognizer and
// the normalization pipeline. A nil record with nil error means the
// recognizer produced no usable text. Recognition failures leave the
// session in ready: one bad utterance never requires reinitialization.
func (s *Session) Transcribe(ctx context.Context, pcm []byte) (*protocol.Transcription, error) {
	s.mu.Lock()
	switch s.state {
	case StateReady:
	case StateTranscribing:
		s.mu.Unlock()
		return nil, fmt.Errorf("transcription in flight: %w", fault.ErrBusy)
	default:
		s.mu.Unlock()
		return nil, fmt.Errorf("transcribe in state %s: %w", s.state, fault.ErrNotReady)
	}
	s.setStateLocked(StateTranscribing, nil)
	channel := s.channel
	s.mu.Unlock()

	result, err := s.rec.Transcribe(ctx, pcm, s.cfg.SampleRate, s.cfg.Channels)

	s.mu.Lock()
	s.setStateLocked(StateReady, nil)
	s.mu.Unlock()

	if err != nil {
		s.countFailure(ctx)
		return nil, fmt.Errorf("transcribe utterance: %w", err)
	}

	record := s.finalize(result, channel)
	if record == nil {
		return nil, nil
	}
	return record, nil
}

// TranscribeFile runs Transcribe over the contents of a file-backed
// utterance.
func (s *Session) TranscribeFile(ctx context.Context, path string) (*protocol.Transcription, error) {
	pcm, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("audio file %s: %w", path, fault.ErrNotFound)
		}
		return nil, fmt.Errorf("read audio file: %w", err)
	}
	return s.Transcribe(ctx, pcm)
}

// finalize pushes recognizer output through normalize and extract and
// broadcasts the resulting record. Returns nil when the normalized text
// is empty (no utterance produced).
func (s *Session) finalize(result recognizer.Result, channel string) *protocol.Transcription {
	text := phrase.Normalize(result.Text)
	if text == "" {
		return nil
	}

	confidence := result.Confidence
	if confidence <= 0 {
		confidence = s.cfg.NominalConf
	}
	if confidence > 1 {
		confidence = 1
	}

	record := protocol.Transcription{
		ID:                uuid.NewString(),
		Text:              text,
		Timestamp:         s.clock().UTC(),
		Confidence:        confidence,
		DetectedCallsigns: callsign.Extract(text),
		Frequency:         channel,
		IsPartial:         false,
	}

	s.bus.PublishJSON(protocol.SubjectTranscriptFinal, record)
	if s.OnFinal != nil {
		s.OnFinal(record)
	}
	if s.transcriptions != nil {
		s.transcriptions.Add(s.ctx, 1)
	}
	return &record
}

func (s *Session) countFailure(ctx context.Context) {
	if s.failures != nil {
		s.failures.Add(ctx, 1)
	}
}

// setStateLocked records a transition and notifies observers. Callers
// hold s.mu, which keeps notifications in transition order.
func (s *Session) setStateLocked(state State, cause error) {
	s.state = state
	s.lastErr = cause
	change := protocol.EngineStateChange{
		State:     string(state),
		Model:     s.modelSelector,
		Timestamp: s.clock().UTC(),
	}
	if cause != nil {
		change.Error = cause.Error()
	}
	s.bus.PublishJSON(protocol.SubjectEngineState, change)
}

// Close stops listening if needed and releases the session.
func (s *Session) Close() {
	_ = s.StopListening()
	s.cancel()
	s.wg.Wait()
}
