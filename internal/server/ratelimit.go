package server

import (
	"fmt"
	"sync"
	"time"
)

// RateLimitConfig tunes the two throttles the server applies: a global
// token bucket over all requests, and a per-client ceiling on login
// attempts. A zero value disables both.
type RateLimitConfig struct {
	GlobalRPS     float64
	GlobalBurst   int
	LoginLimit    int
	LoginWindow   time.Duration
	RedisAddr     string
	RedisPassword string
	RedisTimeout  time.Duration
}

func (c RateLimitConfig) withDefaults() RateLimitConfig {
	if c.GlobalRPS > 0 && c.GlobalBurst <= 0 {
		c.GlobalBurst = int(c.GlobalRPS)
		if c.GlobalBurst < 1 {
			c.GlobalBurst = 1
		}
	}
	if c.LoginWindow <= 0 {
		c.LoginWindow = time.Minute
	}
	if c.RedisTimeout <= 0 {
		c.RedisTimeout = 2 * time.Second
	}
	return c
}

// tokenStore counts login attempts per key. The Redis implementation lets
// the ceiling hold across replicas; without one, attempts are tracked
// in-process.
type tokenStore interface {
	Allow(key string, limit int, window time.Duration) (bool, time.Duration, error)
}

type rateLimiter struct {
	global      *tokenBucket
	loginLimit  int
	loginWindow time.Duration
	store       tokenStore

	mu       sync.Mutex
	attempts map[string]*loginEntry
}

type loginEntry struct {
	bucket   *tokenBucket
	lastSeen time.Time
}

func newRateLimiter(cfg RateLimitConfig) *rateLimiter {
	cfg = cfg.withDefaults()
	rl := &rateLimiter{
		loginLimit:  cfg.LoginLimit,
		loginWindow: cfg.LoginWindow,
		attempts:    make(map[string]*loginEntry),
	}
	if cfg.GlobalRPS > 0 {
		rl.global = newTokenBucket(cfg.GlobalRPS, cfg.GlobalBurst)
	}
	if cfg.RedisAddr != "" && cfg.LoginLimit > 0 {
		rl.store = newRedisStore(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisTimeout)
	}
	return rl
}

func (r *rateLimiter) AllowRequest() bool {
	if r == nil || r.global == nil {
		return true
	}
	return r.global.Allow()
}

func (r *rateLimiter) ThrottlesLogins() bool {
	return r != nil && r.loginLimit > 0
}

// AllowLogin reports whether another login attempt from the client is
// permitted, with a retry hint when it is not.
func (r *rateLimiter) AllowLogin(clientKey string) (bool, time.Duration, error) {
	if !r.ThrottlesLogins() {
		return true, 0, nil
	}
	if r.store != nil {
		return r.store.Allow(fmt.Sprintf("inkwell:login:%s", clientKey), r.loginLimit, r.loginWindow)
	}
	if clientKey == "" {
		clientKey = "unknown"
	}

	r.mu.Lock()
	entry, ok := r.attempts[clientKey]
	if !ok {
		rate := float64(r.loginLimit) / r.loginWindow.Seconds()
		entry = &loginEntry{bucket: newTokenBucket(rate, r.loginLimit)}
		r.attempts[clientKey] = entry
	}
	entry.lastSeen = time.Now()
	r.pruneLocked()
	r.mu.Unlock()

	if entry.bucket.Allow() {
		return true, 0, nil
	}
	// One token refills every window/limit; that is the soonest a retry
	// can succeed.
	return false, r.loginWindow / time.Duration(r.loginLimit), nil
}

// pruneLocked evicts entries idle for more than two windows. Callers hold mu.
func (r *rateLimiter) pruneLocked() {
	cutoff := time.Now().Add(-2 * r.loginWindow)
	for key, entry := range r.attempts {
		if entry.lastSeen.Before(cutoff) {
			delete(r.attempts, key)
		}
	}
}

type tokenBucket struct {
	mu        sync.Mutex
	rate      float64
	capacity  float64
	tokens    float64
	lastCheck time.Time
}

func newTokenBucket(rate float64, burst int) *tokenBucket {
	if rate <= 0 {
		rate = 1
	}
	if burst <= 0 {
		burst = 1
	}
	return &tokenBucket{
		rate:      rate,
		capacity:  float64(burst),
		tokens:    float64(burst),
		lastCheck: time.Now(),
	}
}

func (tb *tokenBucket) Allow() bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	now := time.Now()
	tb.tokens += now.Sub(tb.lastCheck).Seconds() * tb.rate
	tb.lastCheck = now
	if tb.tokens > tb.capacity {
		tb.tokens = tb.capacity
	}
	if tb.tokens < 1 {
		return false
	}
	tb.tokens--
	return true
}
