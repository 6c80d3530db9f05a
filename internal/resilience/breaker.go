// Package resilience provides the failover path between the primary and
// fallback text-generation backends.
//
// A Breaker tracks consecutive failures per backend; FallbackProvider
// composes an ordered list of llm.Provider backends and routes each request
// to the first one whose breaker admits it.
package resilience

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrBreakerOpen is returned when a backend's breaker is open and its cooldown
// has not elapsed.
var ErrBreakerOpen = errors.New("resilience: breaker open")

// BreakerConfig tunes a Breaker. Zero value fields get defaults.
type BreakerConfig struct {
	Name string // label for log messages

	// MaxFailures is the number of consecutive failures before the breaker
	// opens. Default: 3.
	MaxFailures int

	// Cooldown is how long the breaker rejects calls after opening before
	// admitting a probe. Default: 30s.
	Cooldown time.Duration
}

// Breaker admits or rejects calls based on recent failures. After MaxFailures
// consecutive failures it rejects calls for Cooldown, then admits a single
// probe; the probe's outcome either closes or re-opens it. Safe for
// concurrent use.
type Breaker struct {
	name        string
	maxFailures int
	cooldown    time.Duration

	mu       sync.Mutex
	failures int
	openedAt time.Time
	probing  bool
}

// NewBreaker creates a Breaker from cfg, applying defaults.
func NewBreaker(cfg BreakerConfig) *Breaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 3
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 30 * time.Second
	}
	return &Breaker{
		name:        cfg.Name,
		maxFailures: cfg.MaxFailures,
		cooldown:    cfg.Cooldown,
	}
}

// Do runs fn if the breaker admits the call, otherwise returns ErrBreakerOpen.
func (b *Breaker) Do(fn func() error) error {
	b.mu.Lock()
	if b.open() {
		if time.Since(b.openedAt) < b.cooldown || b.probing {
			b.mu.Unlock()
			return ErrBreakerOpen
		}
		// Cooldown elapsed: admit exactly one probe call.
		b.probing = true
		slog.Debug("breaker admitting probe", "backend", b.name)
	}
	b.mu.Unlock()

	err := fn()

	b.mu.Lock()
	defer b.mu.Unlock()
	b.probing = false
	if err != nil {
		b.failures++
		if b.open() {
			b.openedAt = time.Now()
			slog.Warn("breaker opened", "backend", b.name, "failures", b.failures)
		}
		return err
	}
	if b.failures > 0 {
		slog.Info("breaker closed", "backend", b.name)
	}
	b.failures = 0
	return nil
}

// Open reports whether the breaker currently rejects calls.
func (b *Breaker) Open() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.open() && time.Since(b.openedAt) < b.cooldown
}

func (b *Breaker) open() bool { return b.failures >= b.maxFailures }

// Reset forces the breaker closed.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = 0
	b.probing = false
}
