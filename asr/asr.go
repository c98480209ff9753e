// Package asr is the boundary to the external speech recognition engine.
package asr

import (
	"context"
	"errors"
	"time"
)

// ErrTranscriptionFailed wraps any terminal transcription failure.
var ErrTranscriptionFailed = errors.New("transcription failed")

// Request is a finalized audio buffer plus decoding hints.
type Request struct {
	// Samples is mono PCM in [-1, 1].
	Samples    []float32
	SampleRate int
	// Language is an ISO hint; empty means auto-detect.
	Language string
	// Prompt is a vocabulary hint for the decoder.
	Prompt string
}

// Segment is one recognized span with its quality signal.
type Segment struct {
	Text       string
	Start      time.Duration
	End        time.Duration
	Confidence float64
}

// Result is the engine's answer.
type Result struct {
	Text     string
	Language string
	Segments []Segment
}

// Transcriber converts a finite audio buffer to text.
type Transcriber interface {
	Transcribe(ctx context.Context, req Request) (*Result, error)
}
