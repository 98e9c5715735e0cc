package resilience

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// ErrNoBackends is returned when every backend in a chain failed or
// was skipped by its breaker.
var ErrNoBackends = errors.New("resilience: all backends failed")

type backend[T any] struct {
	name     string
	provider T
	breaker  *Breaker
}

// Chain tries a primary backend first and falls back to alternates in
// the order they were added. Each backend gets its own circuit
// breaker so a dead primary is skipped quickly on later calls.
type Chain[T any] struct {
	breakerCfg BreakerConfig

	mu       sync.RWMutex
	backends []backend[T]
}

// NewChain builds a chain with the given primary backend. breakerCfg
// is used as the template for every backend's breaker; its Name is
// replaced per backend.
func NewChain[T any](name string, primary T, breakerCfg BreakerConfig) *Chain[T] {
	c := &Chain[T]{breakerCfg: breakerCfg}
	c.Add(name, primary)
	return c
}

// Add appends a fallback backend to the end of the chain.
func (c *Chain[T]) Add(name string, provider T) {
	cfg := c.breakerCfg
	cfg.Name = name
	c.mu.Lock()
	defer c.mu.Unlock()
	c.backends = append(c.backends, backend[T]{
		name:     name,
		provider: provider,
		breaker:  NewBreaker(cfg),
	})
}

// Names lists the backends in call order.
func (c *Chain[T]) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, len(c.backends))
	for i, b := range c.backends {
		names[i] = b.name
	}
	return names
}

// call runs fn against each backend in order until one succeeds.
// Methods cannot have extra type parameters, so the result-carrying
// variant lives in the package-level Call function.
func (c *Chain[T]) call(fn func(name string, provider T) error) error {
	c.mu.RLock()
	backends := make([]backend[T], len(c.backends))
	copy(backends, c.backends)
	c.mu.RUnlock()

	var errs []error
	for i, b := range backends {
		err := b.breaker.Do(func() error {
			return fn(b.name, b.provider)
		})
		if err == nil {
			if i > 0 {
				slog.Info("fallback backend served request",
					"backend", b.name, "attempt", i+1)
			}
			return nil
		}
		slog.Warn("backend failed, trying next",
			"backend", b.name, "error", err)
		errs = append(errs, fmt.Errorf("%s: %w", b.name, err))
	}
	return fmt.Errorf("%w: %w", ErrNoBackends, errors.Join(errs...))
}

// Call runs fn against each backend in the chain until one returns a
// result without error.
func Call[T, R any](c *Chain[T], fn func(provider T) (R, error)) (R, error) {
	var result R
	err := c.call(func(_ string, provider T) error {
		r, err := fn(provider)
		if err != nil {
			return err
		}
		result = r
		return nil
	})
	return result, err
}
