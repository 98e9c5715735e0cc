// Package openai implements tts.Provider using the OpenAI speech synthesis
// API (tts-1 family models).
package openai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/MrWong99/colloquy/pkg/audio"
	"github.com/MrWong99/colloquy/pkg/provider/tts"
)

// Compile-time assertion that Provider satisfies tts.Provider.
var _ tts.Provider = (*Provider)(nil)

const (
	defaultModel = "tts-1-hd"
	defaultVoice = "nova"

	// pcmSampleRate is the fixed sample rate OpenAI uses for raw PCM output.
	pcmSampleRate = 24000

	// maxResponseBytes bounds the synthesized audio read from the API.
	maxResponseBytes = 32 << 20
)

// Format selects the wire encoding of the synthesized audio.
type Format string

// Supported response formats.
const (
	FormatMP3 Format = "mp3"
	FormatWAV Format = "wav"
	FormatPCM Format = "pcm"
)

// codec maps a response format to the container codec of the returned data.
func (f Format) codec() audio.Codec {
	switch f {
	case FormatMP3:
		return audio.CodecMP3
	case FormatWAV:
		return audio.CodecWAV
	default:
		return audio.CodecPCM
	}
}

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithModel sets the synthesis model (e.g., "tts-1", "tts-1-hd").
func WithModel(model string) Option {
	return func(p *Provider) { p.model = model }
}

// WithVoice sets the voice name (e.g., "nova", "alloy", "shimmer").
func WithVoice(voice string) Option {
	return func(p *Provider) { p.voice = voice }
}

// WithFormat sets the response format. Defaults to FormatMP3.
func WithFormat(f Format) Option {
	return func(p *Provider) { p.format = f }
}

// WithSpeed sets the speaking speed multiplier (0.25 to 4.0).
func WithSpeed(speed float64) Option {
	return func(p *Provider) { p.speed = speed }
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

// Provider implements tts.Provider backed by the OpenAI speech API.
type Provider struct {
	client  oai.Client
	model   string
	voice   string
	format  Format
	speed   float64
	baseURL string
	timeout time.Duration
}

// New creates a new OpenAI speech Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("openai tts: apiKey must not be empty")
	}
	p := &Provider{
		model:  defaultModel,
		voice:  defaultVoice,
		format: FormatMP3,
	}
	for _, o := range opts {
		o(p)
	}
	switch p.format {
	case FormatMP3, FormatWAV, FormatPCM:
	default:
		return nil, fmt.Errorf("openai tts: unsupported format %q", p.format)
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

// Synthesize implements tts.Provider.
func (p *Provider) Synthesize(ctx context.Context, text string) (tts.Speech, error) {
	if text == "" {
		return tts.Speech{}, errors.New("openai tts: text must not be empty")
	}

	params := oai.AudioSpeechNewParams{
		Model:          oai.SpeechModel(p.model),
		Voice:          oai.AudioSpeechNewParamsVoice(p.voice),
		Input:          text,
		ResponseFormat: oai.AudioSpeechNewParamsResponseFormat(p.format),
	}
	if p.speed > 0 {
		params.Speed = oai.Float(p.speed)
	}

	resp, err := p.client.Audio.Speech.New(ctx, params)
	if err != nil {
		return tts.Speech{}, fmt.Errorf("openai tts: synthesize: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return tts.Speech{}, fmt.Errorf("openai tts: read response: %w", err)
	}

	speech := tts.Speech{Data: data, Codec: p.format.codec()}
	if p.format == FormatPCM {
		speech.SampleRate = pcmSampleRate
		speech.Channels = 1
	}
	return speech, nil
}
