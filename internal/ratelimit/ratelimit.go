// Package ratelimit provides a keyed token-bucket limiter for outbound
// clients. Each key gets its own bucket; idle buckets are evicted.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	janitorInterval = 5 * time.Minute
	idleTTL         = 15 * time.Minute
)

// entry pairs a limiter with its last use for eviction.
type entry struct {
	limiter  *rate.Limiter
	lastUsed time.Time
}

// KeyedRateLimiter hands out an independent token bucket per key.
type KeyedRateLimiter struct {
	limit rate.Limit
	burst int

	mu      sync.Mutex
	entries map[string]*entry

	done     chan struct{}
	stopOnce sync.Once
}

// New creates a keyed limiter allowing rps requests per second with the
// given burst per key.
func New(rps float64, burst int) *KeyedRateLimiter {
	k := &KeyedRateLimiter{
		limit:   rate.Limit(rps),
		burst:   burst,
		entries: make(map[string]*entry),
		done:    make(chan struct{}),
	}
	go k.janitor()
	return k
}

// Allow reports whether a request for the key may proceed right now.
func (k *KeyedRateLimiter) Allow(key string) bool {
	return k.bucket(key).Allow()
}

// Wait blocks until the key's bucket has a token or the context ends.
func (k *KeyedRateLimiter) Wait(ctx context.Context, key string) error {
	return k.bucket(key).Wait(ctx)
}

// Stop ends the eviction goroutine.
func (k *KeyedRateLimiter) Stop() {
	k.stopOnce.Do(func() { close(k.done) })
}

func (k *KeyedRateLimiter) bucket(key string) *rate.Limiter {
	k.mu.Lock()
	defer k.mu.Unlock()

	e, ok := k.entries[key]
	if !ok {
		e = &entry{limiter: rate.NewLimiter(k.limit, k.burst)}
		k.entries[key] = e
	}
	e.lastUsed = time.Now()
	return e.limiter
}

// janitor drops buckets not used within idleTTL so the map cannot grow
// without bound when keys are caller-controlled.
func (k *KeyedRateLimiter) janitor() {
	ticker := time.NewTicker(janitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-k.done:
			return
		case now := <-ticker.C:
			k.mu.Lock()
			for key, e := range k.entries {
				if now.Sub(e.lastUsed) > idleTTL {
					delete(k.entries, key)
				}
			}
			k.mu.Unlock()
		}
	}
}
