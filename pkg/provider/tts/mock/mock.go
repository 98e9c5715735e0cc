// Package mock provides a test double for the tts.Provider interface.
//
// Use Provider in unit tests to feed controlled speech without a live
// synthesis backend. All fields are safe to set before calling any method;
// mutating them during a concurrent call is the caller's responsibility.
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/colloquy/pkg/provider/tts"
)

// Compile-time assertion that Provider satisfies tts.Provider.
var _ tts.Provider = (*Provider)(nil)

// Provider is a mock implementation of tts.Provider.
// The zero value returns an empty Speech and a nil error for every call.
// Set Err to inject an error.
type Provider struct {
	mu sync.Mutex

	// Speech is returned by every Synthesize call.
	Speech tts.Speech

	// Err, if non-nil, is returned as the error from every Synthesize call.
	Err error

	// Texts records the text passed to every Synthesize call in order.
	Texts []string
}

// Synthesize implements tts.Provider.
func (p *Provider) Synthesize(_ context.Context, text string) (tts.Speech, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.Texts = append(p.Texts, text)
	if p.Err != nil {
		return tts.Speech{}, p.Err
	}
	return p.Speech, nil
}
