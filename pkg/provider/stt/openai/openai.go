// Package openai implements stt.Provider using the OpenAI audio transcription
// API (whisper models).
package openai

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/MrWong99/colloquy/pkg/audio"
	"github.com/MrWong99/colloquy/pkg/provider/stt"
)

// Compile-time assertion that Provider satisfies stt.Provider.
var _ stt.Provider = (*Provider)(nil)

const (
	defaultModel = "whisper-1"

	// defaultPrompt biases recognition towards conversational speech; it
	// mirrors the bias prompt the assistant has always shipped with.
	defaultPrompt = "This is a natural conversation with an AI assistant. The speech may include technical terms and questions."

	// defaultTemperature keeps transcription near-deterministic.
	defaultTemperature = 0.2
)

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithModel sets the transcription model (e.g., "whisper-1").
func WithModel(model string) Option {
	return func(p *Provider) { p.model = model }
}

// WithPrompt overrides the recognition bias prompt. An empty string disables it.
func WithPrompt(prompt string) Option {
	return func(p *Provider) { p.prompt = prompt }
}

// WithTemperature sets the transcription sampling temperature.
func WithTemperature(t float64) Option {
	return func(p *Provider) { p.temperature = t }
}

// WithBaseURL overrides the API endpoint. Primarily used in tests to point at
// a local mock server.
func WithBaseURL(url string) Option {
	return func(p *Provider) { p.baseURL = url }
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) { p.timeout = d }
}

// Provider implements stt.Provider backed by the OpenAI transcription API.
type Provider struct {
	client      oai.Client
	model       string
	prompt      string
	temperature float64
	baseURL     string
	timeout     time.Duration
}

// New creates a new OpenAI transcription Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai stt: apiKey must not be empty")
	}
	p := &Provider{
		model:       defaultModel,
		prompt:      defaultPrompt,
		temperature: defaultTemperature,
	}
	for _, o := range opts {
		o(p)
	}

	reqOpts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if p.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(p.baseURL))
	}
	if p.timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{Timeout: p.timeout}))
	}
	p.client = oai.NewClient(reqOpts...)
	return p, nil
}

// Transcribe implements stt.Provider. The clip is wrapped into a WAV container
// and uploaded as a single multipart request.
func (p *Provider) Transcribe(ctx context.Context, clip audio.Clip, language string) (string, error) {
	wav, err := audio.EncodeWAV(clip)
	if err != nil {
		return "", fmt.Errorf("openai stt: wrap utterance: %w", err)
	}

	params := oai.AudioTranscriptionNewParams{
		Model: oai.AudioModel(p.model),
		File:  oai.File(bytes.NewReader(wav), "utterance.wav", "audio/wav"),
	}
	if language != "" {
		params.Language = oai.String(language)
	}
	if p.prompt != "" {
		params.Prompt = oai.String(p.prompt)
	}
	if p.temperature > 0 {
		params.Temperature = oai.Float(p.temperature)
	}

	resp, err := p.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("openai stt: transcribe: %w", err)
	}
	return resp.Text, nil
}
