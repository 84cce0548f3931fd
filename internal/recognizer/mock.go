package recognizer

import (
	"context"
	"fmt"
)

type mockRecognizer struct{}

// NewMock returns a recognizer that produces a deterministic transcript
// derived from the buffer length. Used in development and tests.
func NewMock() Recognizer {
	return &mockRecognizer{}
}

func (m *mockRecognizer) Initialize(context.Context, string) error {
	return nil
}

func (m *mockRecognizer) Transcribe(_ context.Context, pcm []byte, _ int, _ int) (Result, error) {
	if len(pcm) == 0 {
		return Result{}, nil
	}
	return Result{
		Text:       fmt.Sprintf("[transcript length=%d]", len(pcm)),
		Confidence: -1,
	}, nil
}
