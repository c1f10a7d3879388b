package testkit

import (
	"context"
	"sync"

	"reelgen/internal/provider"
)

// Gateway is a scriptable provider.Gateway. Unset funcs fall back to
// accept-everything defaults: submits return a handle derived from the
// request id and polls report a still-pending job.
type Gateway struct {
	mu          sync.Mutex
	SubmitFn    func(ctx context.Context, spec provider.SubmitSpec) (string, error)
	PollFn      func(ctx context.Context, handle string) (provider.Status, error)
	submitCalls int
	pollCalls   int
}

func (g *Gateway) Submit(ctx context.Context, spec provider.SubmitSpec) (string, error) {
	g.mu.Lock()
	g.submitCalls++
	fn := g.SubmitFn
	g.mu.Unlock()
	if fn != nil {
		return fn(ctx, spec)
	}
	return "handle-" + spec.RequestID, nil
}

func (g *Gateway) PollStatus(ctx context.Context, handle string) (provider.Status, error) {
	g.mu.Lock()
	g.pollCalls++
	fn := g.PollFn
	g.mu.Unlock()
	if fn != nil {
		return fn(ctx, handle)
	}
	return provider.Status{Kind: provider.StatusPending}, nil
}

func (g *Gateway) SubmitCalls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.submitCalls
}

func (g *Gateway) PollCalls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.pollCalls
}

var _ provider.Gateway = (*Gateway)(nil)
