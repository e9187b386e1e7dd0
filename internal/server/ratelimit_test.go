package server

import (
	"testing"
	"time"
)

func TestTokenBucketRefills(t *testing.T) {
	bucket := newTokenBucket(100, 2)
	if !bucket.Allow() || !bucket.Allow() {
		t.Fatal("expected burst to be available")
	}
	if bucket.Allow() {
		t.Fatal("expected bucket to be drained")
	}
	time.Sleep(30 * time.Millisecond)
	if !bucket.Allow() {
		t.Fatal("expected refill after waiting")
	}
}

func TestRateLimiterDisabledByDefault(t *testing.T) {
	rl := newRateLimiter(RateLimitConfig{})
	if !rl.AllowRequest() {
		t.Fatal("no global limit configured, requests must pass")
	}
	if rl.ThrottlesLogins() {
		t.Fatal("no login limit configured")
	}
	allowed, _, err := rl.AllowLogin("203.0.113.5")
	if err != nil || !allowed {
		t.Fatalf("expected pass-through, allowed=%v err=%v", allowed, err)
	}
}

func TestRateLimiterPerIPLoginBuckets(t *testing.T) {
	rl := newRateLimiter(RateLimitConfig{LoginLimit: 1, LoginWindow: time.Minute})

	allowed, _, err := rl.AllowLogin("203.0.113.5")
	if err != nil || !allowed {
		t.Fatalf("first attempt should pass, allowed=%v err=%v", allowed, err)
	}
	allowed, retryAfter, err := rl.AllowLogin("203.0.113.5")
	if err != nil {
		t.Fatalf("AllowLogin error: %v", err)
	}
	if allowed {
		t.Fatal("second attempt from the same IP should be throttled")
	}
	if retryAfter != time.Minute {
		t.Fatalf("expected a one-window retry hint, got %v", retryAfter)
	}

	// A different IP holds its own bucket.
	allowed, _, err = rl.AllowLogin("198.51.100.9")
	if err != nil || !allowed {
		t.Fatalf("other IP should pass, allowed=%v err=%v", allowed, err)
	}
}

func TestRateLimiterCleansStaleBuckets(t *testing.T) {
	rl := newRateLimiter(RateLimitConfig{LoginLimit: 1, LoginWindow: time.Minute})
	if _, _, err := rl.AllowLogin("203.0.113.5"); err != nil {
		t.Fatalf("AllowLogin error: %v", err)
	}

	rl.mu.Lock()
	rl.attempts["203.0.113.5"].lastSeen = time.Now().Add(-time.Hour)
	rl.pruneLocked()
	_, exists := rl.attempts["203.0.113.5"]
	rl.mu.Unlock()
	if exists {
		t.Fatal("stale bucket should be evicted")
	}
}
