// Package stt defines the Provider interface for speech-to-text backends.
//
// Unlike a live-captioning system, colloquy transcribes one complete utterance
// at a time — the client's VAD has already bounded the segment — so the
// interface is a single blocking call rather than a streaming session.
//
// Implementations must be safe for concurrent use; the server runs one
// conversation pipeline per connection against a shared provider instance.
package stt

import (
	"context"

	"github.com/MrWong99/colloquy/pkg/audio"
)

// Provider is the abstraction over any speech-to-text backend.
type Provider interface {
	// Transcribe converts a decoded utterance clip to text. language is an
	// ISO-639-1 hint (e.g., "en"); an empty string lets the backend
	// auto-detect, if supported.
	//
	// An empty or whitespace-only result is a valid outcome — it means the
	// backend heard no usable speech — and must be returned with a nil error.
	// Timeouts are the implementation's responsibility; the pipeline does not
	// impose its own deadline beyond ctx.
	Transcribe(ctx context.Context, clip audio.Clip, language string) (string, error)
}
