// Package audio provides the PCM data model and the self-describing wire
// containers used between the colloquy client and server.
//
// The pipeline works with two shapes of audio:
//
//   - [Clip]: fully decoded little-endian signed 16-bit PCM, the only form
//     the VAD, the playback sink, and the capability providers consume.
//   - an encoded container ([]byte): a standalone byte payload suitable for
//     transmission as a single transport message. Three codecs are supported:
//     WAV (uncompressed, client→server utterances), MP3 and framed Opus
//     (compressed, server→client replies).
//
// Containers carry their own format description, so [Decode] can dispatch on
// the payload alone. Malformed payloads are rejected with a [*FormatError]
// rather than decoded on a best-effort basis.
package audio

import (
	"fmt"
	"time"
)

// BitDepth is the only sample width the pipeline carries. All Clip PCM is
// little-endian signed 16-bit.
const BitDepth = 16

// Codec identifies the encoding of a wire container.
type Codec string

const (
	// CodecWAV is an uncompressed RIFF/WAVE container holding 16-bit PCM.
	CodecWAV Codec = "wav"

	// CodecMP3 is an MPEG audio stream (decode only; replies synthesised as
	// MP3 pass through the server unmodified).
	CodecMP3 Codec = "mp3"

	// CodecOpus is the framed Opus container produced by [EncodeOpus].
	CodecOpus Codec = "opus"

	// CodecPCM is raw headerless PCM. It is never sent on the wire; it tags
	// provider output that still needs containerisation.
	CodecPCM Codec = "pcm"
)

// IsValid reports whether c is a codec the wire protocol accepts.
func (c Codec) IsValid() bool {
	switch c {
	case CodecWAV, CodecMP3, CodecOpus:
		return true
	}
	return false
}

// Clip is a fully decoded segment of PCM audio: little-endian signed 16-bit
// samples, interleaved when Channels > 1.
type Clip struct {
	PCM        []byte
	SampleRate int
	Channels   int
}

// Samples returns the number of samples per channel in the clip.
func (c Clip) Samples() int {
	if c.Channels <= 0 {
		return 0
	}
	return len(c.PCM) / 2 / c.Channels
}

// Duration returns the playback duration of the clip.
func (c Clip) Duration() time.Duration {
	if c.SampleRate <= 0 {
		return 0
	}
	return time.Duration(c.Samples()) * time.Second / time.Duration(c.SampleRate)
}

// FormatError reports a malformed or unsupported audio container. Decode
// functions return it instead of attempting best-effort recovery.
type FormatError struct {
	// Codec is the codec that rejected the payload, or empty when the payload
	// could not be attributed to any known codec.
	Codec Codec

	// Reason describes what was wrong with the payload.
	Reason string
}

// Error implements the error interface.
func (e *FormatError) Error() string {
	if e.Codec == "" {
		return "audio: " + e.Reason
	}
	return fmt.Sprintf("audio: %s: %s", e.Codec, e.Reason)
}

// formatErrorf builds a *FormatError with a formatted reason.
func formatErrorf(codec Codec, format string, args ...any) *FormatError {
	return &FormatError{Codec: codec, Reason: fmt.Sprintf(format, args...)}
}
