package ratelimit

import (
	"context"
	"testing"
	"time"
)

func TestWait_SameSite_EnforcesMinDelay(t *testing.T) {
	limiter := NewSiteLimiter(100*time.Millisecond, nil)
	ctx := context.Background()

	// First call should return immediately.
	if err := limiter.Wait(ctx, "indeed"); err != nil {
		t.Fatalf("first wait: %v", err)
	}

	start := time.Now()
	if err := limiter.Wait(ctx, "indeed"); err != nil {
		t.Fatalf("second wait: %v", err)
	}
	elapsed := time.Since(start)

	// Should have waited at least ~100ms (allow 80ms for timer jitter).
	if elapsed < 80*time.Millisecond {
		t.Errorf("expected >= 80ms wait, got %v", elapsed)
	}
}

func TestWait_DifferentSites_NoCrossBlocking(t *testing.T) {
	limiter := NewSiteLimiter(200*time.Millisecond, nil)
	ctx := context.Background()

	if err := limiter.Wait(ctx, "indeed"); err != nil {
		t.Fatalf("indeed wait: %v", err)
	}

	// Immediately call for ziprecruiter. It should NOT block.
	start := time.Now()
	if err := limiter.Wait(ctx, "ziprecruiter"); err != nil {
		t.Fatalf("ziprecruiter wait: %v", err)
	}
	elapsed := time.Since(start)

	if elapsed > 50*time.Millisecond {
		t.Errorf("expected ziprecruiter wait to be near-instant, got %v", elapsed)
	}
}

func TestWait_PerSiteOverride(t *testing.T) {
	limiter := NewSiteLimiter(5*time.Second, map[string]time.Duration{
		"indeed": 50 * time.Millisecond,
	})
	ctx := context.Background()

	if err := limiter.Wait(ctx, "indeed"); err != nil {
		t.Fatalf("first wait: %v", err)
	}

	start := time.Now()
	if err := limiter.Wait(ctx, "indeed"); err != nil {
		t.Fatalf("second wait: %v", err)
	}
	elapsed := time.Since(start)

	if elapsed > time.Second {
		t.Errorf("override not applied: waited %v", elapsed)
	}
}

func TestWait_ContextCancellation(t *testing.T) {
	limiter := NewSiteLimiter(5*time.Second, nil) // long delay
	ctx := context.Background()

	// First call to seed the last-call time.
	if err := limiter.Wait(ctx, "indeed"); err != nil {
		t.Fatalf("first wait: %v", err)
	}

	// Cancel the context before the wait completes.
	ctx, cancel := context.WithCancel(context.Background())
	cancel() // cancel immediately

	if err := limiter.Wait(ctx, "indeed"); err == nil {
		t.Fatal("expected error from cancelled context, got nil")
	}
}
