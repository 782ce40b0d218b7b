package ratelimit

import (
	"sync"

	"golang.org/x/time/rate"
)

// Keyed holds one token bucket per key, e.g. per realtime client.
type Keyed struct {
	mu    sync.Mutex
	m     map[string]*rate.Limiter
	limit rate.Limit
	burst int
}

// NewKeyed refills perSecond tokens per second up to burst.
func NewKeyed(perSecond float64, burst int) *Keyed {
	if burst < 1 {
		burst = 1
	}
	return &Keyed{
		m:     make(map[string]*rate.Limiter),
		limit: rate.Limit(perSecond),
		burst: burst,
	}
}

// Allow returns true if one token can be consumed for key.
func (k *Keyed) Allow(key string) bool {
	k.mu.Lock()
	l, ok := k.m[key]
	if !ok {
		l = rate.NewLimiter(k.limit, k.burst)
		k.m[key] = l
	}
	k.mu.Unlock()
	return l.Allow()
}

// Forget drops the bucket for key.
func (k *Keyed) Forget(key string) {
	k.mu.Lock()
	delete(k.m, key)
	k.mu.Unlock()
}

// Len is the number of tracked keys.
func (k *Keyed) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.m)
}
