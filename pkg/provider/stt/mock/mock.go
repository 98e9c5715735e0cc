// Package mock provides a test double for the stt.Provider interface.
//
// Use Provider in unit tests to feed controlled transcripts without a live
// speech backend. All fields are safe to set before calling any method;
// mutating them during a concurrent call is the caller's responsibility.
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/colloquy/pkg/audio"
	"github.com/MrWong99/colloquy/pkg/provider/stt"
)

// Compile-time assertion that Provider satisfies stt.Provider.
var _ stt.Provider = (*Provider)(nil)

// TranscribeCall records a single invocation of Transcribe.
type TranscribeCall struct {
	// Clip is the audio clip passed to Transcribe.
	Clip audio.Clip
	// Language is the language hint passed to Transcribe.
	Language string
}

// Provider is a mock implementation of stt.Provider.
// Zero values for response fields cause Transcribe to return an empty
// transcript and a nil error. Set Err to inject an error.
type Provider struct {
	mu sync.Mutex

	// Texts is the sequence of transcripts returned by successive Transcribe
	// calls. Once exhausted, the last element is repeated; if nil, the empty
	// string is returned.
	Texts []string

	// Err, if non-nil, is returned as the error from every Transcribe call.
	Err error

	// Calls records every invocation of Transcribe in order.
	Calls []TranscribeCall

	next int
}

// Transcribe implements stt.Provider.
func (p *Provider) Transcribe(_ context.Context, clip audio.Clip, language string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.Calls = append(p.Calls, TranscribeCall{Clip: clip, Language: language})
	if p.Err != nil {
		return "", p.Err
	}
	if len(p.Texts) == 0 {
		return "", nil
	}
	text := p.Texts[min(p.next, len(p.Texts)-1)]
	p.next++
	return text, nil
}
