package resilience

import (
	"context"
	"fmt"

	"github.com/MrWong99/leadscore/pkg/provider/llm"
)

// BreakerProvider implements [llm.Provider] by forwarding every call to a
// single backend through a [CircuitBreaker]. While the breaker is open,
// Complete returns an error wrapping [ErrCircuitOpen] without contacting the
// backend.
type BreakerProvider struct {
	name    string
	inner   llm.Provider
	breaker *CircuitBreaker
}

// Compile-time interface assertion.
var _ llm.Provider = (*BreakerProvider)(nil)

// NewBreakerProvider wraps inner with a breaker configured from cfg. The
// breaker name defaults to name when cfg.Name is empty.
func NewBreakerProvider(name string, inner llm.Provider, cfg CircuitBreakerConfig) *BreakerProvider {
	if cfg.Name == "" {
		cfg.Name = name
	}
	return &BreakerProvider{
		name:    name,
		inner:   inner,
		breaker: NewCircuitBreaker(cfg),
	}
}

// Complete forwards req to the wrapped provider unless the breaker is open.
// The call is made at most once.
func (p *BreakerProvider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	var resp *llm.CompletionResponse
	err := p.breaker.Execute(func() error {
		var err error
		resp, err = p.inner.Complete(ctx, req)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("resilience: provider %q: %w", p.name, err)
	}
	return resp, nil
}

// Capabilities delegates to the wrapped provider. Static metadata does not
// pass through the breaker.
func (p *BreakerProvider) Capabilities() llm.ModelCapabilities {
	return p.inner.Capabilities()
}

// Breaker exposes the underlying breaker for readiness checks.
func (p *BreakerProvider) Breaker() *CircuitBreaker {
	return p.breaker
}
