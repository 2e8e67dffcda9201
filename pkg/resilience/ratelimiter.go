package resilience

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// LimiterOpts configures the per-key token buckets.
type LimiterOpts struct {
	// Rate is the number of tokens added per second.
	Rate float64
	// Burst is the maximum number of tokens (bucket capacity).
	Burst int
	// IdleTTL drops buckets not used for this long. Zero keeps them forever.
	IdleTTL time.Duration
}

type bucket struct {
	lim  *rate.Limiter
	seen time.Time
}

// KeyedLimiter keeps one token bucket per key, so a noisy key cannot starve
// the others.
type KeyedLimiter struct {
	mu      sync.Mutex
	opts    LimiterOpts
	buckets map[string]*bucket
	lastGC  time.Time
	now     func() time.Time
}

// NewKeyedLimiter creates a keyed limiter.
func NewKeyedLimiter(opts LimiterOpts) *KeyedLimiter {
	if opts.Burst <= 0 {
		opts.Burst = 1
	}
	return &KeyedLimiter{
		opts:    opts,
		buckets: make(map[string]*bucket),
		now:     time.Now,
	}
}

// Allow reports whether one event for key may happen now.
func (k *KeyedLimiter) Allow(key string) bool {
	k.mu.Lock()
	defer k.mu.Unlock()

	now := k.now()
	k.gc(now)
	b, ok := k.buckets[key]
	if !ok {
		b = &bucket{lim: rate.NewLimiter(rate.Limit(k.opts.Rate), k.opts.Burst)}
		k.buckets[key] = b
	}
	b.seen = now
	return b.lim.AllowN(now, 1)
}

// Len returns the number of live buckets.
func (k *KeyedLimiter) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.buckets)
}

// gc drops idle buckets at most once per IdleTTL. Must hold mu.
func (k *KeyedLimiter) gc(now time.Time) {
	if k.opts.IdleTTL <= 0 || now.Sub(k.lastGC) < k.opts.IdleTTL {
		return
	}
	for key, b := range k.buckets {
		if now.Sub(b.seen) >= k.opts.IdleTTL {
			delete(k.buckets, key)
		}
	}
	k.lastGC = now
}
