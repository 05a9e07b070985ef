package provider

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Pacer serializes AI calls: at most one request is in flight and the next
// request starts at least delay after the previous one returned. The first
// call never waits.
type Pacer struct {
	mu    sync.Mutex
	limit rate.Limit
	// limiter is a burst 1 bucket re-armed empty when a call returns, so its
	// single token is only available again delay after that call ended.
	limiter *rate.Limiter
}

// NewPacer returns a pacer pausing delay between calls. A non-positive
// delay only serializes.
func NewPacer(delay time.Duration) *Pacer {
	limit := rate.Inf
	if delay > 0 {
		limit = rate.Every(delay)
	}
	return &Pacer{limit: limit, limiter: rate.NewLimiter(limit, 1)}
}

// Do waits out the pause and runs fn while holding the in-flight slot.
func Do[T any](ctx context.Context, p *Pacer, fn func(context.Context) (T, error)) (T, error) {
	if p == nil {
		return fn(ctx)
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.limiter.Wait(ctx); err != nil {
		var zero T
		return zero, err
	}
	defer p.rearm()
	return fn(ctx)
}

func (p *Pacer) rearm() {
	now := time.Now()
	p.limiter = rate.NewLimiter(p.limit, 1)
	p.limiter.AllowN(now, 1)
}
