package repository

import (
	"context"
	"time"

	"TokenPulse/internal/domain/models"
)

// PriceSource is one upstream feed. Fetch never fails for a single bad
// address; it returns fewer snapshots instead.
type PriceSource interface {
	Source() models.Source
	Fetch(ctx context.Context, addresses []string) ([]models.PriceSnapshot, error)
	Search(ctx context.Context, query string) ([]models.PriceSnapshot, error)
}

// PriceOracle reports bare prices keyed by the id the oracle answered with.
type PriceOracle interface {
	Source() models.Source
	Prices(ctx context.Context, ids []string) (map[string]float64, error)
}

// Cache is the degrade-gracefully cache contract: failures read as a miss
// and writes become no-ops.
type Cache interface {
	Get(ctx context.Context, key string, dest interface{}) bool
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration)
	Delete(ctx context.Context, key string)
	Increment(ctx context.Context, key string, ttl time.Duration) int64
	Keys(ctx context.Context, pattern string) []string
}

// UpdatePublisher fans poll results out to other processes.
type UpdatePublisher interface {
	Publish(ctx context.Context, ev models.UpdateEvent) error
	Close() error
}

// Metrics is the export sink for operational counters.
type Metrics interface {
	ObserveSourceLatency(source string, d time.Duration, ok bool)
	RecordCacheLookup(scope string, hit bool)
	ObserveRequest(d time.Duration)
	RecordMessageSent(kind string)
	RecordError(kind string)
	SetActiveClients(n int)
}
