// Package vad implements amplitude-based voice activity detection and
// utterance segmentation.
//
// The Segmenter is a pure state machine: it is fed fixed-size PCM frames by a
// single producer (the capture loop) and emits a complete utterance buffer
// once a speech segment is followed by a sufficient silence gap. It performs
// no I/O and reads time through an injectable clock, so it is fully testable
// with synthetic frame sequences.
//
// A Segmenter must not be shared between goroutines; the capture loop owns it.
package vad

import (
	"time"
)

// Defaults tuned against a 16 kHz mono capture stream.
const (
	// DefaultThreshold is the peak-magnitude level below which a frame is
	// classified as silence, on the 16-bit sample scale.
	DefaultThreshold = 1500

	// DefaultSilenceDuration is the trailing silence gap that ends an
	// utterance.
	DefaultSilenceDuration = 800 * time.Millisecond
)

// EventType enumerates segmentation results for a single observed frame.
type EventType int

const (
	// EventNone indicates the frame changed nothing observable: silence while
	// idle, or silence inside the grace period of an active recording.
	EventNone EventType = iota

	// EventSpeechStart indicates the frame opened a new speech segment.
	EventSpeechStart

	// EventSpeechContinue indicates ongoing speech within an open segment.
	EventSpeechContinue

	// EventUtteranceReady indicates the silence gap elapsed and a complete
	// utterance is available in the event.
	EventUtteranceReady
)

// Event is the result of observing one frame.
type Event struct {
	Type EventType

	// Utterance holds the complete PCM buffer of the finished segment.
	// Set only when Type is EventUtteranceReady; ownership transfers to the
	// caller and the segmenter's internal buffer is reset.
	Utterance []byte
}

// Segmenter classifies PCM frames as speech or silence and accumulates speech
// frames into utterances.
type Segmenter struct {
	threshold int16
	silence   time.Duration
	now       func() time.Time

	recording bool
	buf       []byte
	lastSound time.Time
}

// Config holds the tunable parameters of a Segmenter. Zero values select the
// package defaults.
type Config struct {
	// Threshold is the peak-magnitude silence cutoff on the 16-bit scale.
	Threshold int16

	// SilenceDuration is the trailing gap that closes an utterance.
	SilenceDuration time.Duration
}

// Option is a functional option for configuring a Segmenter.
type Option func(*Segmenter)

// WithClock overrides the time source. Tests use this to drive the silence
// gap deterministically.
func WithClock(now func() time.Time) Option {
	return func(s *Segmenter) { s.now = now }
}

// New creates a Segmenter with the given configuration.
func New(cfg Config, opts ...Option) *Segmenter {
	s := &Segmenter{
		threshold: cfg.Threshold,
		silence:   cfg.SilenceDuration,
		now:       time.Now,
	}
	if s.threshold <= 0 {
		s.threshold = DefaultThreshold
	}
	if s.silence <= 0 {
		s.silence = DefaultSilenceDuration
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Observe classifies one frame of little-endian 16-bit mono PCM and advances
// the segmentation state machine.
//
//   - A non-silent frame opens a segment (EventSpeechStart) or extends the
//     current one (EventSpeechContinue); the frame is appended to the buffer.
//   - A silent frame while idle is dropped (EventNone).
//   - A silent frame inside an open segment is a no-op until the configured
//     silence gap has elapsed since the last sound; then the buffered segment
//     is emitted as EventUtteranceReady and the segmenter returns to idle.
//
// Silent frames are never appended to the utterance buffer.
func (s *Segmenter) Observe(frame []byte) Event {
	if s.isSilent(frame) {
		if s.recording && len(s.buf) > 0 && s.now().Sub(s.lastSound) > s.silence {
			return Event{Type: EventUtteranceReady, Utterance: s.take()}
		}
		return Event{Type: EventNone}
	}

	ev := Event{Type: EventSpeechContinue}
	if !s.recording {
		s.recording = true
		ev.Type = EventSpeechStart
	}
	s.buf = append(s.buf, frame...)
	s.lastSound = s.now()
	return ev
}

// Flush returns any partially accumulated utterance and resets the segmenter
// to idle. It returns nil when no segment is open. Callers that stop the
// capture stream mid-segment use this to recover (or deliberately discard)
// the trailing audio; the segmenter never emits at stream end on its own.
func (s *Segmenter) Flush() []byte {
	if !s.recording || len(s.buf) == 0 {
		s.recording = false
		s.buf = nil
		return nil
	}
	return s.take()
}

// Recording reports whether a speech segment is currently open.
func (s *Segmenter) Recording() bool { return s.recording }

// take hands the buffer to the caller and resets segmentation state.
func (s *Segmenter) take() []byte {
	utterance := s.buf
	s.buf = nil
	s.recording = false
	return utterance
}

// isSilent reports whether the frame's peak sample magnitude is below the
// threshold. A malformed frame (odd length, empty) counts as silent so a bad
// read cannot corrupt an open segment.
func (s *Segmenter) isSilent(frame []byte) bool {
	peak := 0
	for i := 0; i+1 < len(frame); i += 2 {
		v := int(int16(frame[i]) | int16(frame[i+1])<<8)
		if v < 0 {
			v = -v
		}
		if v > peak {
			peak = v
		}
	}
	return peak < int(s.threshold)
}
