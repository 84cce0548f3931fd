package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/atcscribe/atcscribe-core/internal/fault"
	"github.com/atcscribe/atcscribe-core/internal/protocol"
)

const inferenceTimeout = 45 * time.Second

// StartListening enters continuous capture: audio frames from the bus
// accumulate into an utterance buffer, interim hypotheses are broadcast
// on a cadence, and each finalized utterance yields one transcription
// before the session re-enters listening.
func (s *Session) StartListening() error {
	s.mu.Lock()
	if s.state != StateReady {
		state := s.state
		s.mu.Unlock()
		return fmt.Errorf("start listening in state %s: %w", state, fault.ErrNotReady)
	}
	s.buffer = nil
	s.lastPartial = time.Time{}
	s.inflight = false
	s.pendingFinal = false
	s.setStateLocked(StateListening, nil)
	s.mu.Unlock()

	if s.bus != nil {
		sub, err := s.bus.Conn().Subscribe(protocol.SubjectAudioFrame, func(msg *nats.Msg) {
			var frame protocol.AudioFrame
			if err := json.Unmarshal(msg.Data, &frame); err != nil {
				s.log.Warn("failed to decode audio frame", slog.String("error", err.Error()))
				return
			}
			s.HandleFrame(frame)
		})
		if err != nil {
			s.mu.Lock()
			s.setStateLocked(StateReady, nil)
			s.mu.Unlock()
			return fmt.Errorf("subscribe audio frames: %w", err)
		}
		s.mu.Lock()
		s.listenSub = sub
		s.mu.Unlock()
	}
	return nil
}

// StopListening returns the session to ready. It is a no-op outside
// listening and safe to call mid-utterance; teardown failures are logged,
// not propagated, since the end state is the same either way.
func (s *Session) StopListening() error {
	s.mu.Lock()
	if s.state != StateListening {
		s.mu.Unlock()
		return nil
	}
	sub := s.listenSub
	s.listenSub = nil
	s.setStateLocked(StateReady, nil)
	s.mu.Unlock()

	if sub != nil {
		if err := sub.Drain(); err != nil {
			s.log.Warn("failed to drain audio subscription", slog.String("error", err.Error()))
		}
	}
	return nil
}

// HandleFrame feeds one audio frame into the listening buffer. Frames
// arriving outside listening are dropped.
func (s *Session) HandleFrame(frame protocol.AudioFrame) {
	s.mu.Lock()
	if s.state != StateListening {
		s.mu.Unlock()
		return
	}
	s.buffer = append(s.buffer, frame.PCM...)
	s.mu.Unlock()

	if s.cfg.PublishInterim && !frame.Final && s.shouldSchedulePartial() {
		s.schedule(false)
	}
	if frame.Final {
		s.schedule(true)
	}
}

func (s *Session) shouldSchedulePartial() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateListening || s.inflight {
		return false
	}
	if s.lastPartial.IsZero() {
		s.lastPartial = s.clock()
		return true
	}
	interval := time.Duration(s.cfg.PartialEveryMS) * time.Millisecond
	if interval <= 0 {
		return false
	}
	if s.clock().Sub(s.lastPartial) >= interval {
		s.lastPartial = s.clock()
		return true
	}
	return false
}

// schedule runs one inference over the current buffer. Only one inference
// is in flight at a time; a final request arriving during any in-flight
// run is remembered and replayed when that run completes, so a partial
// hypothesis always precedes its utterance's final record and no
// finalized utterance is dropped. A final run consumes the buffer at
// schedule time, so frames of the next utterance accumulate while the
// previous one is still in inference.
func (s *Session) schedule(final bool) {
	s.mu.Lock()
	if s.state != StateListening {
		s.mu.Unlock()
		return
	}
	if s.inflight {
		if final {
			s.pendingFinal = true
		}
		s.mu.Unlock()
		return
	}
	if len(s.buffer) == 0 {
		s.mu.Unlock()
		return
	}
	pcm := append([]byte(nil), s.buffer...)
	if final {
		s.buffer = nil
	}
	channel := s.channel
	s.inflight = true
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(s.ctx, inferenceTimeout)
		defer cancel()

		result, err := s.rec.Transcribe(ctx, pcm, s.cfg.SampleRate, s.cfg.Channels)
		switch {
		case err != nil:
			s.log.Warn("listening transcription failed", slog.String("error", err.Error()))
			s.countFailure(ctx)
		case final:
			if s.finalize(result, channel) != nil {
				// Auto-restart: finalizing while listening transitions
				// straight back into listening.
				s.mu.Lock()
				if s.state == StateListening {
					s.setStateLocked(StateListening, nil)
				}
				s.mu.Unlock()
			}
		default:
			if result.Text != "" {
				s.bus.PublishJSON(protocol.SubjectTranscriptPartial, protocol.PartialText{
					Text:      result.Text,
					Timestamp: s.clock().UTC(),
				})
			}
		}

		s.mu.Lock()
		s.inflight = false
		pending := s.pendingFinal
		s.pendingFinal = false
		if !final {
			s.lastPartial = s.clock()
		}
		s.mu.Unlock()

		if pending {
			s.schedule(true)
		}
	}()
}
