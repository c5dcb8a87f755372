package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// SiteLimiter enforces a minimum delay between consecutive fetches against
// the same external site. This is deliberate self-throttling against third
// parties, not a hard concurrency limiter. Concurrent user batches share
// one limiter instance per process.
type SiteLimiter struct {
	mu       sync.Mutex
	lastCall map[string]time.Time
	minDelay time.Duration
	override map[string]time.Duration // per-site overrides
}

// NewSiteLimiter creates a limiter enforcing minDelay between consecutive
// fetches to the same site. overrides may be nil.
func NewSiteLimiter(minDelay time.Duration, overrides map[string]time.Duration) *SiteLimiter {
	return &SiteLimiter{
		lastCall: make(map[string]time.Time),
		minDelay: minDelay,
		override: overrides,
	}
}

func (l *SiteLimiter) delayFor(site string) time.Duration {
	if d, ok := l.override[site]; ok {
		return d
	}
	return l.minDelay
}

// Wait blocks until enough time has passed since the last fetch to the given
// site. Returns an error if the context is cancelled while waiting.
func (l *SiteLimiter) Wait(ctx context.Context, site string) error {
	l.mu.Lock()
	last, ok := l.lastCall[site]
	now := time.Now()

	if !ok {
		// First fetch for this site, no wait needed.
		l.lastCall[site] = now
		l.mu.Unlock()
		return nil
	}

	minDelay := l.delayFor(site)
	elapsed := now.Sub(last)
	if elapsed >= minDelay {
		l.lastCall[site] = now
		l.mu.Unlock()
		return nil
	}

	remaining := minDelay - elapsed
	l.mu.Unlock()

	select {
	case <-ctx.Done():
		return fmt.Errorf("rate limiter wait for %s: %w", site, ctx.Err())
	case <-time.After(remaining):
	}

	l.mu.Lock()
	l.lastCall[site] = time.Now()
	l.mu.Unlock()

	return nil
}
