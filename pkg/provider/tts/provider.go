// Package tts defines the Provider interface for Text-to-Speech backends.
//
// A TTS provider wraps a speech synthesis service (e.g., OpenAI TTS or a
// local Piper instance) and returns the full reply as a single Speech value.
// Replies are short conversational turns, so whole-utterance synthesis keeps
// the interface simple and lets the caller pick the wire codec.
//
// Implementations must be safe for concurrent use.
package tts

import (
	"context"

	"github.com/MrWong99/colloquy/pkg/audio"
)

// Speech is the result of a synthesis request. Data is encoded per Codec;
// for audio.CodecPCM it holds raw 16-bit little-endian samples described by
// SampleRate and Channels.
type Speech struct {
	Data       []byte
	Codec      audio.Codec
	SampleRate int
	Channels   int
}

// Clip decodes the speech into raw PCM. For already-raw speech this is a
// cheap wrap; for encoded codecs it runs the matching decoder.
func (s Speech) Clip() (audio.Clip, error) {
	if s.Codec == audio.CodecPCM {
		return audio.Clip{PCM: s.Data, SampleRate: s.SampleRate, Channels: s.Channels}, nil
	}
	return audio.Decode(s.Data)
}

// Provider is the abstraction over any TTS backend.
type Provider interface {
	// Synthesize converts text into speech audio. Implementations must
	// respect ctx cancellation and return an error for empty text.
	Synthesize(ctx context.Context, text string) (Speech, error)
}
