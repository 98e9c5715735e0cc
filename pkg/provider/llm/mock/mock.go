// Package mock provides a test double for the llm.Provider interface.
//
// Use Provider in unit tests to verify that the pipeline sends correct
// CompletionRequests and to feed controlled replies without a live LLM
// backend. All fields are safe to set before calling any method; mutating
// them during a concurrent call is the caller's responsibility.
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/colloquy/pkg/provider/llm"
)

// Compile-time assertion that Provider satisfies llm.Provider.
var _ llm.Provider = (*Provider)(nil)

// CompleteCall records a single invocation of Complete.
type CompleteCall struct {
	// Req is the CompletionRequest passed to Complete.
	Req llm.CompletionRequest
}

// Provider is a mock implementation of llm.Provider.
// Zero values for response fields cause Complete to return an empty reply and
// a nil error. Set Err to inject an error.
type Provider struct {
	mu sync.Mutex

	// Replies is the sequence of replies returned by successive Complete
	// calls. Once exhausted, the last element is repeated; if nil, the empty
	// string is returned.
	Replies []string

	// Err, if non-nil, is returned as the error from every Complete call.
	Err error

	// Calls records every invocation of Complete in order.
	Calls []CompleteCall

	next int
}

// Complete implements llm.Provider.
func (p *Provider) Complete(_ context.Context, req llm.CompletionRequest) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.Calls = append(p.Calls, CompleteCall{Req: req})
	if p.Err != nil {
		return "", p.Err
	}
	if len(p.Replies) == 0 {
		return "", nil
	}
	reply := p.Replies[min(p.next, len(p.Replies)-1)]
	p.next++
	return reply, nil
}
