// Package ratelimit bounds outbound reranking traffic for one client
// instance: a concurrency ceiling, a requests-per-minute ceiling, and a
// cooldown window fed by 429 responses.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// Gate is shared by every search call issued through the same client, so
// aggregate outbound load respects the configured limits. Callers above the
// concurrency bound block until a slot frees; callers above the rate ceiling
// are delayed. Both waits honor the caller's context deadline.
type Gate struct {
	sem     *semaphore.Weighted
	limiter *rate.Limiter

	mu        sync.Mutex
	coolUntil time.Time
}

// NewGate builds a gate allowing maxConcurrent simultaneous calls and
// requestsPerMinute outbound requests. requestsPerMinute <= 0 disables the
// rate ceiling.
func NewGate(maxConcurrent, requestsPerMinute int) *Gate {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	limit := rate.Inf
	burst := 1
	if requestsPerMinute > 0 {
		limit = rate.Every(time.Minute / time.Duration(requestsPerMinute))
		burst = maxConcurrent
	}
	return &Gate{
		sem:     semaphore.NewWeighted(int64(maxConcurrent)),
		limiter: rate.NewLimiter(limit, burst),
	}
}

// Acquire blocks until a concurrency slot, any active cooldown, and a rate
// token have all been obtained, or ctx expires. On success the caller must
// Release the slot.
func (g *Gate) Acquire(ctx context.Context) error {
	if err := g.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	if err := g.waitCooldown(ctx); err != nil {
		g.sem.Release(1)
		return err
	}
	if err := g.limiter.Wait(ctx); err != nil {
		g.sem.Release(1)
		return err
	}
	return nil
}

// Release frees a concurrency slot obtained by Acquire.
func (g *Gate) Release() {
	g.sem.Release(1)
}

// Penalize opens a cooldown window during which no acquirer proceeds.
// Called when the reranking service answers 429; d comes from Retry-After
// when given. Overlapping penalties keep the furthest deadline.
func (g *Gate) Penalize(d time.Duration) {
	if d <= 0 {
		return
	}
	until := time.Now().Add(d)
	g.mu.Lock()
	if until.After(g.coolUntil) {
		g.coolUntil = until
	}
	g.mu.Unlock()
}

func (g *Gate) waitCooldown(ctx context.Context) error {
	g.mu.Lock()
	wait := time.Until(g.coolUntil)
	g.mu.Unlock()
	if wait <= 0 {
		return nil
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
