package resilience

import (
	"context"

	"github.com/MrWong99/colloquy/pkg/audio"
	"github.com/MrWong99/colloquy/pkg/provider/llm"
	"github.com/MrWong99/colloquy/pkg/provider/stt"
	"github.com/MrWong99/colloquy/pkg/provider/tts"
)

// STTFallback is an stt.Provider that fails over across a chain of
// backends.
type STTFallback struct {
	chain *Chain[stt.Provider]
}

var _ stt.Provider = (*STTFallback)(nil)

// NewSTTFallback builds a fallback transcriber with the given primary.
func NewSTTFallback(name string, primary stt.Provider, cfg BreakerConfig) *STTFallback {
	return &STTFallback{chain: NewChain(name, primary, cfg)}
}

// Add appends a fallback transcriber.
func (f *STTFallback) Add(name string, p stt.Provider) {
	f.chain.Add(name, p)
}

// Transcribe tries each backend in order until one produces a result.
func (f *STTFallback) Transcribe(ctx context.Context, clip audio.Clip, language string) (string, error) {
	return Call(f.chain, func(p stt.Provider) (string, error) {
		return p.Transcribe(ctx, clip, language)
	})
}

// LLMFallback is an llm.Provider that fails over across a chain of
// backends.
type LLMFallback struct {
	chain *Chain[llm.Provider]
}

var _ llm.Provider = (*LLMFallback)(nil)

// NewLLMFallback builds a fallback completer with the given primary.
func NewLLMFallback(name string, primary llm.Provider, cfg BreakerConfig) *LLMFallback {
	return &LLMFallback{chain: NewChain(name, primary, cfg)}
}

// Add appends a fallback completer.
func (f *LLMFallback) Add(name string, p llm.Provider) {
	f.chain.Add(name, p)
}

// Complete tries each backend in order until one produces a reply.
func (f *LLMFallback) Complete(ctx context.Context, req llm.CompletionRequest) (string, error) {
	return Call(f.chain, func(p llm.Provider) (string, error) {
		return p.Complete(ctx, req)
	})
}

// TTSFallback is a tts.Provider that fails over across a chain of
// backends.
type TTSFallback struct {
	chain *Chain[tts.Provider]
}

var _ tts.Provider = (*TTSFallback)(nil)

// NewTTSFallback builds a fallback synthesizer with the given primary.
func NewTTSFallback(name string, primary tts.Provider, cfg BreakerConfig) *TTSFallback {
	return &TTSFallback{chain: NewChain(name, primary, cfg)}
}

// Add appends a fallback synthesizer.
func (f *TTSFallback) Add(name string, p tts.Provider) {
	f.chain.Add(name, p)
}

// Synthesize tries each backend in order until one produces speech.
func (f *TTSFallback) Synthesize(ctx context.Context, text string) (tts.Speech, error) {
	return Call(f.chain, func(p tts.Provider) (tts.Speech, error) {
		return p.Synthesize(ctx, text)
	})
}
