package metrics

import (
	"sync"
	"time"

	"TokenPulse/internal/domain/models"
	"TokenPulse/internal/domain/repository"

	"github.com/shopspring/decimal"
)

const (
	defaultMaxSamples = 1000
	defaultWindow     = time.Minute
)

// Cache lookups under these scopes count towards the hit rate. Per-feed
// lookups are exported but not counted here.
var trackedScopes = map[string]struct{}{
	"aggregated": {},
	"search":     {},
}

// Option customises a Collector.
type Option func(*Collector)

// WithClock replaces the clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Collector) { c.now = now }
}

// WithMaxSamples bounds every sample buffer.
func WithMaxSamples(n int) Option {
	return func(c *Collector) {
		if n > 0 {
			c.maxSamples = n
		}
	}
}

// Collector keeps rolling request statistics in memory and forwards every
// observation to an export sink.
type Collector struct {
	mu         sync.Mutex
	sink       repository.Metrics
	now        func() time.Time
	maxSamples int
	window     time.Duration

	totalRequests int
	cacheHits     int
	cacheMisses   int
	latencies     []time.Duration
	requestTimes  []time.Time
	sources       map[string][]time.Duration
	activeClients int
}

func NewCollector(sink repository.Metrics, opts ...Option) *Collector {
	c := &Collector{
		sink:       sink,
		now:        time.Now,
		maxSamples: defaultMaxSamples,
		window:     defaultWindow,
		sources:    make(map[string][]time.Duration),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Collector) ObserveSourceLatency(source string, d time.Duration, ok bool) {
	c.mu.Lock()
	c.sources[source] = trim(append(c.sources[source], d), c.maxSamples)
	c.mu.Unlock()
	c.sink.ObserveSourceLatency(source, d, ok)
}

func (c *Collector) RecordCacheLookup(scope string, hit bool) {
	if _, ok := trackedScopes[scope]; ok {
		c.mu.Lock()
		if hit {
			c.cacheHits++
		} else {
			c.cacheMisses++
		}
		c.mu.Unlock()
	}
	c.sink.RecordCacheLookup(scope, hit)
}

func (c *Collector) ObserveRequest(d time.Duration) {
	now := c.now()
	c.mu.Lock()
	c.totalRequests++
	c.latencies = trim(append(c.latencies, d), c.maxSamples)
	c.requestTimes = trim(append(c.requestTimes, now), c.maxSamples)
	c.mu.Unlock()
	c.sink.ObserveRequest(d)
}

func (c *Collector) RecordMessageSent(kind string) { c.sink.RecordMessageSent(kind) }

func (c *Collector) RecordError(kind string) { c.sink.RecordError(kind) }

func (c *Collector) SetActiveClients(n int) {
	c.mu.Lock()
	c.activeClients = n
	c.mu.Unlock()
	c.sink.SetActiveClients(n)
}

// ActiveClients is the last reported realtime connection count.
func (c *Collector) ActiveClients() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.activeClients
}

// Snapshot returns the rolling aggregates. Latencies are milliseconds.
func (c *Collector) Snapshot() models.MetricsSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	cutoff := c.now().Add(-c.window)
	lastMinute := 0
	for _, t := range c.requestTimes {
		if t.After(cutoff) {
			lastMinute++
		}
	}

	sources := make(map[string]float64, len(c.sources))
	for name, samples := range c.sources {
		sources[name] = meanMillis(samples)
	}

	hitRate := 0.0
	if lookups := c.cacheHits + c.cacheMisses; lookups > 0 {
		hitRate = round2(float64(c.cacheHits) / float64(lookups) * 100)
	}

	return models.MetricsSnapshot{
		TotalRequests:      c.totalRequests,
		CacheHits:          c.cacheHits,
		CacheMisses:        c.cacheMisses,
		CacheHitRate:       hitRate,
		AvgLatency:         meanMillis(c.latencies),
		SourceLatencies:    sources,
		RequestsLastMinute: lastMinute,
	}
}

func trim[T any](s []T, max int) []T {
	if len(s) <= max {
		return s
	}
	return append(s[:0:0], s[len(s)-max:]...)
}

func meanMillis(samples []time.Duration) float64 {
	if len(samples) == 0 {
		return 0
	}
	var total time.Duration
	for _, d := range samples {
		total += d
	}
	avg := float64(total) / float64(len(samples)) / float64(time.Millisecond)
	return round2(avg)
}

func round2(v float64) float64 {
	f, _ := decimal.NewFromFloat(v).Round(2).Float64()
	return f
}

var _ repository.Metrics = (*Collector)(nil)
