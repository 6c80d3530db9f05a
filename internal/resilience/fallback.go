package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/legalsathi/sathi/pkg/provider/llm"
)

// ErrAllBackendsFailed is returned when every backend fails or is rejected by
// its breaker.
var ErrAllBackendsFailed = errors.New("resilience: all backends failed")

var _ llm.Provider = (*FallbackProvider)(nil)

// backend pairs a provider with its breaker.
type backend struct {
	name     string
	provider llm.Provider
	breaker  *Breaker
}

// FallbackProvider implements llm.Provider over an ordered list of backends.
// Each request goes to the first backend whose breaker admits it; on failure
// the next backend is tried. Requests a backend cannot serve at all (for
// example inline document data on a text-only backend) do not count against
// its breaker.
type FallbackProvider struct {
	backends []backend
	cfg      BreakerConfig
}

// NewFallbackProvider creates a FallbackProvider with primary as the
// preferred backend.
func NewFallbackProvider(name string, primary llm.Provider, cfg BreakerConfig) *FallbackProvider {
	f := &FallbackProvider{cfg: cfg}
	f.add(name, primary)
	return f
}

// AddFallback registers an additional backend, tried after all earlier ones.
func (f *FallbackProvider) AddFallback(name string, p llm.Provider) {
	f.add(name, p)
}

func (f *FallbackProvider) add(name string, p llm.Provider) {
	cfg := f.cfg
	cfg.Name = name
	f.backends = append(f.backends, backend{
		name:     name,
		provider: p,
		breaker:  NewBreaker(cfg),
	})
}

// Complete implements llm.Provider.
func (f *FallbackProvider) Complete(ctx context.Context, req llm.Request) (*llm.Response, error) {
	var lastErr error
	for i := range f.backends {
		b := &f.backends[i]

		var resp *llm.Response
		err := b.breaker.Do(func() error {
			var callErr error
			resp, callErr = b.provider.Complete(ctx, req)
			if errors.Is(callErr, llm.ErrUnsupportedContent) {
				// The backend is healthy, it just cannot serve this request.
				lastErr = callErr
				resp = nil
				return nil
			}
			return callErr
		})
		if err == nil && resp != nil {
			return resp, nil
		}
		if err != nil {
			lastErr = err
			if errors.Is(err, ErrBreakerOpen) {
				slog.Debug("skipping backend, breaker open", "backend", b.name)
			} else {
				slog.Warn("backend failed, trying next", "backend", b.name, "error", err)
			}
		}
	}
	return nil, fmt.Errorf("%w: %v", ErrAllBackendsFailed, lastErr)
}
