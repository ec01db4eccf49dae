package ratelimit

import (
	"context"
	"math"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// DefaultIdleTimeout is how long a key may go unused before Sweep drops it
const DefaultIdleTimeout = 10 * time.Minute

// Limiter defines the interface for keyed rate limiting
type Limiter interface {
	// Allow reports whether a request for key may proceed now
	Allow(key string) bool
	// Wait blocks until a request for key may proceed or ctx ends
	Wait(ctx context.Context, key string) error
	// Reset forgets every key
	Reset()
}

type entry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// KeyedLimiter keeps an independent token bucket per key, typically the
// client IP
type KeyedLimiter struct {
	mu      sync.Mutex
	limit   rate.Limit
	burst   int
	idle    time.Duration
	entries map[string]*entry
	now     func() time.Time
}

// NewKeyedLimiter allows perMinute requests per key with the given burst.
// perMinute <= 0 disables limiting.
func NewKeyedLimiter(perMinute, burst int) *KeyedLimiter {
	limit := rate.Inf
	if perMinute > 0 {
		limit = rate.Every(time.Minute / time.Duration(perMinute))
	}
	if burst <= 0 {
		burst = 1
	}

	return &KeyedLimiter{
		limit:   limit,
		burst:   burst,
		idle:    DefaultIdleTimeout,
		entries: make(map[string]*entry),
		now:     time.Now,
	}
}

// Allow consumes a token for key if one is available
func (kl *KeyedLimiter) Allow(key string) bool {
	return kl.get(key).AllowN(kl.now(), 1)
}

// Wait blocks until key has a token available
func (kl *KeyedLimiter) Wait(ctx context.Context, key string) error {
	return kl.get(key).Wait(ctx)
}

// RetryAfter returns how long until key has a token again
func (kl *KeyedLimiter) RetryAfter(key string) time.Duration {
	if kl.limit == rate.Inf {
		return 0
	}
	tokens := kl.get(key).TokensAt(kl.now())
	if tokens >= 1 {
		return 0
	}
	seconds := (1 - tokens) / float64(kl.limit)
	return time.Duration(math.Ceil(seconds * float64(time.Second)))
}

// Reset forgets every key
func (kl *KeyedLimiter) Reset() {
	kl.mu.Lock()
	defer kl.mu.Unlock()

	kl.entries = make(map[string]*entry)
}

// Len returns the number of tracked keys
func (kl *KeyedLimiter) Len() int {
	kl.mu.Lock()
	defer kl.mu.Unlock()

	return len(kl.entries)
}

// Sweep drops keys idle since before now minus the idle timeout and returns
// how many were removed
func (kl *KeyedLimiter) Sweep(now time.Time) int {
	kl.mu.Lock()
	defer kl.mu.Unlock()

	cutoff := now.Add(-kl.idle)
	removed := 0
	for key, e := range kl.entries {
		if e.lastSeen.Before(cutoff) {
			delete(kl.entries, key)
			removed++
		}
	}
	return removed
}

// Run sweeps idle keys every interval until ctx is done
func (kl *KeyedLimiter) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			kl.Sweep(now)
		}
	}
}

func (kl *KeyedLimiter) get(key string) *rate.Limiter {
	kl.mu.Lock()
	defer kl.mu.Unlock()

	now := kl.now()
	if e, ok := kl.entries[key]; ok {
		e.lastSeen = now
		return e.limiter
	}

	limiter := rate.NewLimiter(kl.limit, kl.burst)
	kl.entries[key] = &entry{limiter: limiter, lastSeen: now}
	return limiter
}
