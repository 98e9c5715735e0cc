// Package pipeline implements the server-side conversation turn: decode an
// utterance container, transcribe it, generate a reply, synthesize speech,
// and encode the reply container.
//
// A Pipeline is bound to one session and owns that session's dialogue
// history. It processes one utterance at a time; the transport layer is
// responsible for serialising calls per connection.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/MrWong99/colloquy/internal/observe"
	"github.com/MrWong99/colloquy/pkg/audio"
	"github.com/MrWong99/colloquy/pkg/provider/llm"
	"github.com/MrWong99/colloquy/pkg/provider/stt"
	"github.com/MrWong99/colloquy/pkg/provider/tts"
)

// Defaults mirroring the assistant's long-standing conversational tuning.
const (
	// DefaultSystemPrompt frames the assistant for short spoken replies.
	DefaultSystemPrompt = "You are a helpful voice assistant. Keep your responses concise and conversational, as they will be spoken aloud."

	// DefaultTemperature is the reply sampling temperature.
	DefaultTemperature = 0.7

	// DefaultMaxTokens caps reply length so synthesized speech stays short.
	DefaultMaxTokens = 150

	// DefaultLanguage is the transcription language hint.
	DefaultLanguage = "en"
)

// Config tunes a Pipeline. The zero value is completed with the defaults
// above by New.
type Config struct {
	// SystemPrompt is prepended to every completion request.
	SystemPrompt string

	// Language is the BCP-47 transcription language hint (e.g., "en").
	Language string

	// Temperature is the reply sampling temperature.
	Temperature float64

	// MaxTokens caps the reply length.
	MaxTokens int

	// MaxHistoryTurns caps the number of dialogue messages included in each
	// completion request.
	MaxHistoryTurns int

	// ReplyCodec selects the wire encoding of reply containers:
	// audio.CodecMP3, audio.CodecOpus, or audio.CodecWAV.
	ReplyCodec audio.Codec
}

// Option is a functional option for configuring a Pipeline.
type Option func(*Pipeline)

// WithMetrics overrides the metrics instance. Defaults to
// observe.DefaultMetrics().
func WithMetrics(m *observe.Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// WithLogger overrides the logger. Defaults to slog.Default().
func WithLogger(log *slog.Logger) Option {
	return func(p *Pipeline) { p.log = log }
}

// Pipeline orchestrates one session's STT → LLM → TTS turn processing.
type Pipeline struct {
	stt stt.Provider
	llm llm.Provider
	tts tts.Provider

	cfg     Config
	history *History
	metrics *observe.Metrics
	log     *slog.Logger
}

// New creates a Pipeline with a fresh, empty dialogue history.
func New(sttP stt.Provider, llmP llm.Provider, ttsP tts.Provider, cfg Config, opts ...Option) (*Pipeline, error) {
	if sttP == nil || llmP == nil || ttsP == nil {
		return nil, fmt.Errorf("pipeline: stt, llm, and tts providers must all be non-nil")
	}
	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = DefaultSystemPrompt
	}
	if cfg.Language == "" {
		cfg.Language = DefaultLanguage
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = DefaultTemperature
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
	if cfg.ReplyCodec == "" {
		cfg.ReplyCodec = audio.CodecMP3
	}
	switch cfg.ReplyCodec {
	case audio.CodecMP3, audio.CodecOpus, audio.CodecWAV:
	default:
		return nil, fmt.Errorf("pipeline: unsupported reply codec %q", cfg.ReplyCodec)
	}

	p := &Pipeline{
		stt:     sttP,
		llm:     llmP,
		tts:     ttsP,
		cfg:     cfg,
		history: NewHistory(cfg.MaxHistoryTurns),
	}
	for _, o := range opts {
		o(p)
	}
	if p.metrics == nil {
		p.metrics = observe.DefaultMetrics()
	}
	if p.log == nil {
		p.log = slog.Default()
	}
	return p, nil
}

// History exposes the session's dialogue history, primarily for tests.
func (p *Pipeline) History() *History { return p.history }

// Handle processes one utterance container and returns the encoded reply
// container. A nil, nil return means the utterance produced no reply (empty
// transcript or empty generation); the caller must not send anything to the
// client in that case.
//
// History mutation follows turn progress: the user turn is recorded once
// transcription yields text, the assistant turn once the reply is generated.
// A failure in a later stage does not roll back earlier turns.
func (p *Pipeline) Handle(ctx context.Context, payload []byte) ([]byte, error) {
	start := time.Now()

	clip, err := audio.Decode(payload)
	if err != nil {
		p.metrics.RecordUtterance(ctx, "error")
		return nil, fmt.Errorf("pipeline: decode utterance: %w", err)
	}

	sttStart := time.Now()
	text, err := p.stt.Transcribe(ctx, clip, p.cfg.Language)
	p.metrics.STTDuration.Record(ctx, time.Since(sttStart).Seconds())
	if err != nil {
		p.metrics.RecordProviderError(ctx, "stt", "transcribe")
		p.metrics.RecordUtterance(ctx, "error")
		return nil, fmt.Errorf("pipeline: transcribe: %w", err)
	}

	text = strings.TrimSpace(text)
	if text == "" {
		p.log.Debug("utterance produced empty transcript, skipping")
		p.metrics.RecordUtterance(ctx, "empty")
		return nil, nil
	}
	p.log.Info("transcribed utterance", "text", text, "duration", clip.Duration())

	p.history.Append(llm.RoleUser, text)

	llmStart := time.Now()
	reply, err := p.llm.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: p.cfg.SystemPrompt,
		Messages:     p.history.Window(),
		Temperature:  p.cfg.Temperature,
		MaxTokens:    p.cfg.MaxTokens,
	})
	p.metrics.LLMDuration.Record(ctx, time.Since(llmStart).Seconds())
	if err != nil {
		p.metrics.RecordProviderError(ctx, "llm", "complete")
		p.metrics.RecordUtterance(ctx, "error")
		return nil, fmt.Errorf("pipeline: generate reply: %w", err)
	}
	reply = strings.TrimSpace(reply)
	if reply == "" {
		p.log.Warn("generation produced empty reply, skipping", "text", text)
		p.metrics.RecordUtterance(ctx, "empty")
		return nil, nil
	}
	p.log.Info("generated reply", "text", reply)

	p.history.Append(llm.RoleAssistant, reply)

	ttsStart := time.Now()
	speech, err := p.tts.Synthesize(ctx, reply)
	p.metrics.TTSDuration.Record(ctx, time.Since(ttsStart).Seconds())
	if err != nil {
		p.metrics.RecordProviderError(ctx, "tts", "synthesize")
		p.metrics.RecordUtterance(ctx, "error")
		return nil, fmt.Errorf("pipeline: synthesize reply: %w", err)
	}

	container, err := p.encodeReply(speech)
	if err != nil {
		p.metrics.RecordUtterance(ctx, "error")
		return nil, fmt.Errorf("pipeline: encode reply: %w", err)
	}

	p.metrics.ReplyBytes.Add(ctx, int64(len(container)))
	p.metrics.TurnDuration.Record(ctx, time.Since(start).Seconds())
	p.metrics.RecordUtterance(ctx, "ok")
	return container, nil
}

// encodeReply wraps synthesized speech into the configured reply container.
// MP3 replies must already arrive MP3-encoded from the TTS backend because
// no MP3 encoder is available; config validation enforces that pairing.
func (p *Pipeline) encodeReply(speech tts.Speech) ([]byte, error) {
	switch p.cfg.ReplyCodec {
	case audio.CodecMP3:
		if speech.Codec != audio.CodecMP3 {
			return nil, fmt.Errorf("reply codec mp3 requires mp3 speech, got %q", speech.Codec)
		}
		return speech.Data, nil

	case audio.CodecOpus:
		clip, err := speech.Clip()
		if err != nil {
			return nil, err
		}
		return audio.EncodeOpus(clip)

	case audio.CodecWAV:
		clip, err := speech.Clip()
		if err != nil {
			return nil, err
		}
		return audio.EncodeWAV(clip)

	default:
		return nil, fmt.Errorf("unsupported reply codec %q", p.cfg.ReplyCodec)
	}
}
