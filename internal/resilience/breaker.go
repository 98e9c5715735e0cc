// Package resilience provides a circuit breaker and provider failover
// so a single flaky backend does not take down the whole pipeline.
package resilience

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ErrBreakerOpen is returned when a call is rejected without being
// attempted because the breaker has tripped.
var ErrBreakerOpen = errors.New("resilience: circuit breaker is open")

// BreakerState describes the current mode of a Breaker.
type BreakerState int

const (
	// StateClosed lets calls through and counts failures.
	StateClosed BreakerState = iota
	// StateOpen rejects calls until the cooldown expires.
	StateOpen
	// StateHalfOpen lets a limited number of probe calls through.
	StateHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

const (
	defaultMaxFailures = 5
	defaultCooldown    = 30 * time.Second
	defaultProbeQuota  = 3
)

// BreakerConfig tunes a Breaker. Zero values are replaced with defaults.
type BreakerConfig struct {
	// Name identifies the breaker in log output.
	Name string
	// MaxFailures is the number of consecutive failures that trips
	// the breaker. Defaults to 5.
	MaxFailures int
	// Cooldown is how long the breaker stays open before probing.
	// Defaults to 30s.
	Cooldown time.Duration
	// ProbeQuota is how many successful probes in half-open state
	// close the breaker again. Defaults to 3.
	ProbeQuota int
}

// Breaker is a three-state circuit breaker. The zero value is not
// usable; construct with NewBreaker.
type Breaker struct {
	cfg BreakerConfig
	now func() time.Time

	mu       sync.Mutex
	state    BreakerState
	failures int
	probes   int
	openedAt time.Time
}

// NewBreaker returns a closed breaker with the given configuration.
func NewBreaker(cfg BreakerConfig) *Breaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = defaultMaxFailures
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = defaultCooldown
	}
	if cfg.ProbeQuota <= 0 {
		cfg.ProbeQuota = defaultProbeQuota
	}
	return &Breaker{cfg: cfg, now: time.Now}
}

// Do runs fn if the breaker allows it and records the outcome.
// When the breaker is open, fn is not called and ErrBreakerOpen is
// returned immediately.
func (b *Breaker) Do(fn func() error) error {
	if err := b.admit(); err != nil {
		return err
	}
	err := fn()
	b.record(err)
	return err
}

// State reports the breaker's current state, accounting for cooldown
// expiry.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refresh()
	return b.state
}

// Reset forces the breaker back to closed and clears all counters.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = StateClosed
	b.failures = 0
	b.probes = 0
}

func (b *Breaker) admit() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refresh()
	if b.state == StateOpen {
		return fmt.Errorf("%w: %s", ErrBreakerOpen, b.cfg.Name)
	}
	return nil
}

// refresh transitions open -> half-open once the cooldown has passed.
// Caller must hold b.mu.
func (b *Breaker) refresh() {
	if b.state == StateOpen && b.now().Sub(b.openedAt) >= b.cfg.Cooldown {
		b.state = StateHalfOpen
		b.probes = 0
		slog.Info("circuit breaker half-open", "breaker", b.cfg.Name)
	}
}

func (b *Breaker) record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err != nil {
		b.failures++
		if b.state == StateHalfOpen || b.failures >= b.cfg.MaxFailures {
			b.trip()
		}
		return
	}
	switch b.state {
	case StateHalfOpen:
		b.probes++
		if b.probes >= b.cfg.ProbeQuota {
			b.state = StateClosed
			b.failures = 0
			slog.Info("circuit breaker closed", "breaker", b.cfg.Name)
		}
	case StateClosed:
		b.failures = 0
	}
}

// trip moves the breaker to open. Caller must hold b.mu.
func (b *Breaker) trip() {
	b.state = StateOpen
	b.openedAt = b.now()
	b.probes = 0
	slog.Warn("circuit breaker open",
		"breaker", b.cfg.Name,
		"failures", b.failures,
		"cooldown", b.cfg.Cooldown)
}
