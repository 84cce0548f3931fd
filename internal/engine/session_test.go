package engine

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/atcscribe/atcscribe-core/internal/config"
	"github.com/atcscribe/atcscribe-core/internal/fault"
	"github.com/atcscribe/atcscribe-core/internal/model"
	"github.com/atcscribe/atcscribe-core/internal/protocol"
	"github.com/atcscribe/atcscribe-core/internal/recognizer"
)

type fakeRecognizer struct {
	mu         sync.Mutex
	initCalls  int
	initErr    error
	initBlock  chan struct{}
	result     recognizer.Result
	err        error
	transBlock chan struct{}
	started    chan struct{}
	gotPCM     [][]byte
}

func (f *fakeRecognizer) Initialize(_ context.Context, _ string) error {
	f.mu.Lock()
	f.initCalls++
	block := f.initBlock
	err := f.initErr
	f.mu.Unlock()
	if block != nil {
		<-block
	}
	return err
}

func (f *fakeRecognizer) Transcribe(_ context.Context, pcm []byte, _, _ int) (recognizer.Result, error) {
	f.mu.Lock()
	f.gotPCM = append(f.gotPCM, append([]byte(nil), pcm...))
	started := f.started
	block := f.transBlock
	result := f.result
	err := f.err
	f.mu.Unlock()
	if started != nil {
		started <- struct{}{}
	}
	if block != nil {
		<-block
	}
	return result, err
}

func (f *fakeRecognizer) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.initCalls
}

func testConfig() config.EngineConfig {
	cfg := config.Default().Engine
	cfg.PublishInterim = false
	return cfg
}

func newSession(t *testing.T, rec recognizer.Recognizer) (*Session, string) {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	models := model.NewManager(config.ModelsConfig{Dir: t.TempDir()}, log, nil)

	modelPath := filepath.Join(t.TempDir(), "model.bin")
	if err := os.WriteFile(modelPath, []byte("blob"), 0o644); err != nil {
		t.Fatalf("seed model file: %v", err)
	}

	s := NewSession(context.Background(), testConfig(), nil, rec, models, log)
	t.Cleanup(s.Close)
	return s, modelPath
}

func TestTranscribeBeforeInitialize(t *testing.T) {
	s, _ := newSession(t, &fakeRecognizer{})

	_, err := s.Transcribe(context.Background(), []byte{1, 2})
	if !errors.Is(err, fault.ErrNotReady) {
		t.Fatalf("expected ErrNotReady, got %v", err)
	}
	if s.State() != StateUninitialized {
		t.Fatalf("state changed by rejected call: %s", s.State())
	}
}

func TestInitializeSuccessAndFailure(t *testing.T) {
	rec := &fakeRecognizer{}
	s, modelPath := newSession(t, rec)
	ctx := context.Background()

	// Unknown selector fails and leaves the session retryable.
	err := s.Initialize(ctx, "no-such-model")
	if !errors.Is(err, fault.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if s.State() != StateError {
		t.Fatalf("expected error state, got %s", s.State())
	}

	if err := s.Initialize(ctx, modelPath); err != nil {
		t.Fatalf("retry initialize: %v", err)
	}
	if s.State() != StateReady {
		t.Fatalf("expected ready, got %s", s.State())
	}

	// Initialize from ready requires teardown first.
	if err := s.Initialize(ctx, modelPath); !errors.Is(err, fault.ErrNotReady) {
		t.Fatalf("expected ErrNotReady from ready, got %v", err)
	}
}

func TestInitializeConcurrentlyRunsOnce(t *testing.T) {
	rec := &fakeRecognizer{initBlock: make(chan struct{})}
	s, modelPath := newSession(t, rec)
	ctx := context.Background()

	done := make(chan error, 1)
	go func() { done <- s.Initialize(ctx, modelPath) }()

	waitForState(t, s, StateInitializing)

	// Second call while initializing is a no-op, not a second load.
	if err := s.Initialize(ctx, modelPath); err != nil {
		t.Fatalf("concurrent initialize: %v", err)
	}

	close(rec.initBlock)
	if err := <-done; err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if s.State() != StateReady {
		t.Fatalf("expected ready, got %s", s.State())
	}
	if rec.calls() != 1 {
		t.Fatalf("expected exactly one recognizer initialize, got %d", rec.calls())
	}
}

func TestTranscribeProducesNormalizedRecord(t *testing.T) {
	rec := &fakeRecognizer{result: recognizer.Result{
		Text:       "climb flight level 160 BEL472",
		Confidence: 0.87,
	}}
	s, modelPath := newSession(t, rec)
	ctx := context.Background()

	if err := s.Initialize(ctx, modelPath); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	s.SetChannel("Brussels Tower 118.600")

	var broadcast []protocol.Transcription
	s.OnFinal = func(tr protocol.Transcription) { broadcast = append(broadcast, tr) }

	record, err := s.Transcribe(ctx, []byte{1, 2, 3, 4})
	if err != nil {
		t.Fatalf("transcribe: %v", err)
	}
	if record == nil {
		t.Fatal("expected a record")
	}
	if record.Text != "climb flight level 1 6 0 BEL472" {
		t.Fatalf("unexpected text: %q", record.Text)
	}
	if len(record.DetectedCallsigns) != 1 || record.DetectedCallsigns[0] != "BEL472" {
		t.Fatalf("unexpected callsigns: %v", record.DetectedCallsigns)
	}
	if record.Frequency != "Brussels Tower 118.600" {
		t.Fatalf("unexpected frequency: %q", record.Frequency)
	}
	if record.IsPartial {
		t.Fatal("final record marked partial")
	}
	if record.Confidence != 0.87 {
		t.Fatalf("unexpected confidence: %f", record.Confidence)
	}
	if record.ID == "" {
		t.Fatal("record needs an id")
	}
	if len(broadcast) != 1 || broadcast[0].ID != record.ID {
		t.Fatalf("OnFinal not invoked with the record: %+v", broadcast)
	}
	if s.State() != StateReady {
		t.Fatalf("expected ready after transcribe, got %s", s.State())
	}
}

func TestTranscribeNominalConfidence(t *testing.T) {
	rec := &fakeRecognizer{result: recognizer.Result{Text: "roger", Confidence: -1}}
	s, modelPath := newSession(t, rec)
	ctx := context.Background()

	if err := s.Initialize(ctx, modelPath); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	record, err := s.Transcribe(ctx, []byte{1, 2})
	if err != nil {
		t.Fatalf("transcribe: %v", err)
	}
	if record.Confidence != 1.0 {
		t.Fatalf("expected nominal confidence, got %f", record.Confidence)
	}
}

func TestTranscribeEmptyTextIsNoUtterance(t *testing.T) {
	rec := &fakeRecognizer{result: recognizer.Result{Text: "   "}}
	s, modelPath := newSession(t, rec)
	ctx := context.Background()

	if err := s.Initialize(ctx, modelPath); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	record, err := s.Transcribe(ctx, []byte{1, 2})
	if err != nil {
		t.Fatalf("empty text must not be an error: %v", err)
	}
	if record != nil {
		t.Fatalf("expected no record, got %+v", record)
	}
}

func TestTranscribeFailureKeepsSessionUsable(t *testing.T) {
	rec := &fakeRecognizer{err: errors.New("inference exploded")}
	s, modelPath := newSession(t, rec)
	ctx := context.Background()

	if err := s.Initialize(ctx, modelPath); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if _, err := s.Transcribe(ctx, []byte{1, 2}); err == nil {
		t.Fatal("expected transcription error")
	}
	if s.State() != StateReady {
		t.Fatalf("one bad utterance degraded the session to %s", s.State())
	}

	rec.mu.Lock()
	rec.err = nil
	rec.result = recognizer.Result{Text: "wilco", Confidence: 0.5}
	rec.mu.Unlock()
	if _, err := s.Transcribe(ctx, []byte{1, 2}); err != nil {
		t.Fatalf("session unusable after one failure: %v", err)
	}
}

func TestTranscribeWhileBusy(t *testing.T) {
	rec := &fakeRecognizer{
		result:     recognizer.Result{Text: "standby"},
		transBlock: make(chan struct{}),
		started:    make(chan struct{}, 1),
	}
	s, modelPath := newSession(t, rec)
	ctx := context.Background()

	if err := s.Initialize(ctx, modelPath); err != nil {
		t.Fatalf("initialize: %v", err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = s.Transcribe(ctx, []byte{1, 2})
	}()
	<-rec.started

	if _, err := s.Transcribe(ctx, []byte{3, 4}); !errors.Is(err, fault.ErrBusy) {
		t.Fatalf("expected ErrBusy, got %v", err)
	}

	close(rec.transBlock)
	<-done
}

func TestListeningLifecycle(t *testing.T) {
	rec := &fakeRecognizer{result: recognizer.Result{Text: "cleared to land runway 26 OOABC", Confidence: 0.9}}
	s, modelPath := newSession(t, rec)
	ctx := context.Background()

	if err := s.StartListening(); !errors.Is(err, fault.ErrNotReady) {
		t.Fatalf("expected ErrNotReady before initialize, got %v", err)
	}

	if err := s.Initialize(ctx, modelPath); err != nil {
		t.Fatalf("initialize: %v", err)
	}

	finals := make(chan protocol.Transcription, 4)
	s.OnFinal = func(tr protocol.Transcription) { finals <- tr }

	if err := s.StartListening(); err != nil {
		t.Fatalf("start listening: %v", err)
	}
	if s.State() != StateListening {
		t.Fatalf("expected listening, got %s", s.State())
	}

	s.HandleFrame(protocol.AudioFrame{Sequence: 0, PCM: []byte{1, 2}})
	s.HandleFrame(protocol.AudioFrame{Sequence: 1, PCM: []byte{3, 4}, Final: true})

	select {
	case record := <-finals:
		if record.Text != "cleared to land runway 2 6 OOABC" {
			t.Fatalf("unexpected final text: %q", record.Text)
		}
		if len(record.DetectedCallsigns) != 1 || record.DetectedCallsigns[0] != "OO-ABC" {
			t.Fatalf("unexpected callsigns: %v", record.DetectedCallsigns)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no final record produced")
	}

	// Auto-restart keeps the session listening for the next utterance.
	waitForState(t, s, StateListening)

	s.HandleFrame(protocol.AudioFrame{Sequence: 2, PCM: []byte{5, 6}, Final: true})
	select {
	case <-finals:
	case <-time.After(2 * time.Second):
		t.Fatal("listening did not restart after finalized utterance")
	}

	if err := s.StopListening(); err != nil {
		t.Fatalf("stop listening: %v", err)
	}
	if s.State() != StateReady {
		t.Fatalf("expected ready after stop, got %s", s.State())
	}
	// Stop is a no-op when not listening.
	if err := s.StopListening(); err != nil {
		t.Fatalf("second stop: %v", err)
	}

	// Frames after stop are dropped.
	s.HandleFrame(protocol.AudioFrame{Sequence: 3, PCM: []byte{7, 8}, Final: true})
	select {
	case tr := <-finals:
		t.Fatalf("frame processed after stop: %+v", tr)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestListeningFinalQueuedDuringInFlightFinal(t *testing.T) {
	rec := &fakeRecognizer{
		result:     recognizer.Result{Text: "break break", Confidence: 0.9},
		transBlock: make(chan struct{}),
		started:    make(chan struct{}, 2),
	}
	s, modelPath := newSession(t, rec)
	ctx := context.Background()

	if err := s.Initialize(ctx, modelPath); err != nil {
		t.Fatalf("initialize: %v", err)
	}

	finals := make(chan protocol.Transcription, 4)
	s.OnFinal = func(tr protocol.Transcription) { finals <- tr }

	if err := s.StartListening(); err != nil {
		t.Fatalf("start listening: %v", err)
	}

	// First utterance finalizes and its inference blocks.
	s.HandleFrame(protocol.AudioFrame{Sequence: 0, PCM: []byte{1, 2}, Final: true})
	<-rec.started

	// Second utterance finalizes while the first is still in flight.
	s.HandleFrame(protocol.AudioFrame{Sequence: 1, PCM: []byte{3, 4}, Final: true})

	close(rec.transBlock)

	for i := 0; i < 2; i++ {
		select {
		case <-finals:
		case <-time.After(2 * time.Second):
			t.Fatalf("only %d of 2 finalized utterances produced a transcription", i)
		}
	}

	rec.mu.Lock()
	pcms := rec.gotPCM
	rec.mu.Unlock()
	if len(pcms) != 2 {
		t.Fatalf("expected 2 inference runs, got %d", len(pcms))
	}
	if string(pcms[0]) != string([]byte{1, 2}) || string(pcms[1]) != string([]byte{3, 4}) {
		t.Fatalf("utterance buffers mixed up: %v", pcms)
	}
}

func waitForState(t *testing.T, s *Session, want State) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if s.State() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("state %s not reached, still %s", want, s.State())
}
