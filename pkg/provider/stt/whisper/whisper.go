// Package whisper implements stt.Provider using the whisper.cpp CGO
// bindings, eliminating HTTP overhead entirely. The whisper.cpp static
// library (libwhisper.a) and headers (whisper.h) must be available at link
// time via LIBRARY_PATH and C_INCLUDE_PATH environment variables.
package whisper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"github.com/MrWong99/colloquy/pkg/audio"
	"github.com/MrWong99/colloquy/pkg/provider/stt"
)

// Compile-time assertion that Provider satisfies stt.Provider.
var _ stt.Provider = (*Provider)(nil)

// modelSampleRate is the sample rate whisper models are trained on. Clips at
// any other rate are resampled before inference.
const modelSampleRate = 16000

// Provider implements stt.Provider using a locally loaded whisper.cpp model.
// The model is loaded once at startup and shared across all sessions; each
// Transcribe call runs on a fresh context because whisper contexts are not
// thread-safe.
type Provider struct {
	model whisperlib.Model
}

// New creates a Provider that loads the whisper.cpp model from the given
// file path. The caller must call Close when the provider is no longer
// needed.
func New(modelPath string) (*Provider, error) {
	if modelPath == "" {
		return nil, errors.New("whisper: modelPath must not be empty")
	}
	model, err := whisperlib.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("whisper: load model %q: %w", modelPath, err)
	}
	return &Provider{model: model}, nil
}

// Close releases the whisper model.
func (p *Provider) Close() error {
	if p.model != nil {
		return p.model.Close()
	}
	return nil
}

// Transcribe implements stt.Provider. The clip is downmixed to mono,
// resampled to 16 kHz if needed, and run through a fresh whisper context.
func (p *Provider) Transcribe(ctx context.Context, clip audio.Clip, language string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("whisper: context already cancelled: %w", err)
	}

	pcm := clip.PCM
	if clip.Channels == 2 {
		pcm = audio.StereoToMono(pcm)
	}
	if clip.SampleRate != modelSampleRate {
		pcm = audio.ResampleMono16(pcm, clip.SampleRate, modelSampleRate)
	}
	samples := audio.PCMToFloat32(pcm)

	wctx, err := p.model.NewContext()
	if err != nil {
		return "", fmt.Errorf("whisper: create context: %w", err)
	}

	if language != "" {
		if err := wctx.SetLanguage(language); err != nil {
			slog.Warn("whisper: failed to set language, using default", "language", language, "error", err)
		}
	}

	if err := wctx.Process(samples, nil, nil, nil); err != nil {
		return "", fmt.Errorf("whisper: process audio: %w", err)
	}

	var parts []string
	for {
		segment, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("whisper: read segment: %w", err)
		}
		if text := strings.TrimSpace(segment.Text); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, " "), nil
}
