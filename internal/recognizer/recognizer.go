// Package recognizer abstracts the speech-to-text backends consumed by
// the engine session. Model files are opaque named blobs; backends that
// cannot report per-utterance confidence return a negative value and the
// session substitutes its nominal confidence.
package recognizer

import (
	"context"
)

// Result captures recognizer output for one utterance.
type Result struct {
	Text       string
	Confidence float64
}

// Recognizer is the opaque STT capability.
type Recognizer interface {
	// Initialize loads or activates the model at modelPath. It must be
	// safe to call repeatedly and after a failure.
	Initialize(ctx context.Context, modelPath string) error

	// Transcribe runs inference over one utterance of PCM audio.
	Transcribe(ctx context.Context, pcm []byte, sampleRate int, channels int) (Result, error)
}
