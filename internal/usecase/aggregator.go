package usecase

import (
	"context"
	"strings"
	"time"

	"TokenPulse/internal/domain/models"
	domrepo "TokenPulse/internal/domain/repository"
	domsvc "TokenPulse/internal/domain/service"
	pkgcache "TokenPulse/pkg/cache"
	applogger "TokenPulse/pkg/logger"
	"TokenPulse/pkg/util"
)

const (
	aggregatedScope = "aggregated"
	searchScope     = "search"
)

// AggregatedKey is the cache key of the aggregate for an address set. It
// does not depend on order, case or duplicates.
func AggregatedKey(addresses []string) string {
	return pkgcache.GenerateKey(aggregatedScope, pkgcache.HashKey(strings.Join(util.NormalizedSet(addresses), ",")))
}

// SearchKey is the cache key of a search result.
func SearchKey(query string) string {
	return pkgcache.GenerateKey(searchScope, strings.ToLower(strings.TrimSpace(query)))
}

// AggregatorOption customises a TokenAggregator.
type AggregatorOption func(*TokenAggregator)

// WithTTL sets how long merged results stay cached.
func WithTTL(ttl time.Duration) AggregatorOption {
	return func(a *TokenAggregator) { a.ttl = ttl }
}

// WithSpreadPenalty sets the confidence points lost per unit of relative
// price spread.
func WithSpreadPenalty(p float64) AggregatorOption {
	return func(a *TokenAggregator) {
		if p > 0 {
			a.penalty = p
		}
	}
}

// WithOracle adds a price-only feed used to corroborate prices.
func WithOracle(o domrepo.PriceOracle) AggregatorOption {
	return func(a *TokenAggregator) { a.oracle = o }
}

// WithAggregatorClock replaces the clock used for latency accounting.
func WithAggregatorClock(now func() time.Time) AggregatorOption {
	return func(a *TokenAggregator) { a.now = now }
}

// TokenAggregator fans out to every feed, merges the answers and caches the
// merged view per address set.
type TokenAggregator struct {
	sources []domrepo.PriceSource
	oracle  domrepo.PriceOracle
	cache   domrepo.Cache
	metrics domrepo.Metrics
	log     *applogger.Logger
	ttl     time.Duration
	penalty float64
	now     func() time.Time
}

func NewTokenAggregator(sources []domrepo.PriceSource, cache domrepo.Cache, m domrepo.Metrics, l *applogger.Logger, opts ...AggregatorOption) *TokenAggregator {
	a := &TokenAggregator{
		sources: sources,
		cache:   cache,
		metrics: m,
		log:     l,
		ttl:     30 * time.Second,
		penalty: DefaultSpreadPenalty,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

type feedResult struct {
	snapshots []models.PriceSnapshot
	prices    map[string]float64
}

// Aggregate returns the merged view of addresses. It never fails: a total
// outage yields an empty slice, which is not cached.
func (a *TokenAggregator) Aggregate(ctx context.Context, addresses []string) []models.AggregatedToken {
	start := a.now()
	defer func() { a.metrics.ObserveRequest(a.now().Sub(start)) }()

	requested := util.UniqueOriginal(addresses)
	if len(requested) == 0 {
		return []models.AggregatedToken{}
	}
	key := AggregatedKey(requested)

	var cached []models.AggregatedToken
	if a.cache.Get(ctx, key, &cached) {
		if len(cached) > 0 {
			a.metrics.RecordCacheLookup(aggregatedScope, true)
			a.log.Debug("aggregate.cache_hit", applogger.Int("tokens", len(cached)))
			return cached
		}
		a.log.Warn("aggregate.empty_cache_entry", applogger.String("key", key))
		a.cache.Delete(ctx, key)
	}
	a.metrics.RecordCacheLookup(aggregatedScope, false)

	// Feed calls outlive the caller; whatever they return is cached for the
	// next consumer.
	fetchCtx := context.WithoutCancel(ctx)

	tasks := make([]task[feedResult], 0, len(a.sources)+1)
	for _, src := range a.sources {
		src := src // per-iteration copy; go.mod targets Go 1.21 loop semantics
		tasks = append(tasks, task[feedResult]{
			name: src.Source().String(),
			run: func(ctx context.Context) (feedResult, error) {
				snaps, err := src.Fetch(ctx, requested)
				return feedResult{snapshots: snaps}, err
			},
		})
	}
	if a.oracle != nil {
		tasks = append(tasks, task[feedResult]{
			name: a.oracle.Source().String(),
			run: func(ctx context.Context) (feedResult, error) {
				prices, err := a.oracle.Prices(ctx, requested)
				return feedResult{prices: prices}, err
			},
		})
	}

	var (
		snaps  []models.PriceSnapshot
		oracle map[string]float64
	)
	for _, r := range settleAll(fetchCtx, tasks) {
		if r.err != nil {
			a.log.Warn("aggregate.source_failed", applogger.String("source", r.name), applogger.Error(r.err))
			a.metrics.RecordError(r.name + "_aggregate")
			continue
		}
		a.log.Debug("aggregate.source_done",
			applogger.String("source", r.name),
			applogger.Int("snapshots", len(r.value.snapshots)),
			applogger.Int("prices", len(r.value.prices)),
		)
		snaps = append(snaps, r.value.snapshots...)
		if r.value.prices != nil {
			oracle = r.value.prices
		}
	}

	if len(snaps) == 0 {
		a.log.Warn("aggregate.no_data", applogger.Strings("addresses", requested))
		return []models.AggregatedToken{}
	}

	merged := Merge(MergeInput{
		Snapshots:     snaps,
		Oracle:        oracle,
		Requested:     requested,
		SpreadPenalty: a.penalty,
	})
	if len(merged) == 0 {
		return merged
	}
	a.cache.Set(fetchCtx, key, merged, a.ttl)
	a.log.Info("aggregate.merged",
		applogger.Int("addresses", len(requested)),
		applogger.Int("snapshots", len(snaps)),
		applogger.Int("tokens", len(merged)),
		applogger.Duration("latency_ms", a.now().Sub(start)),
	)
	return merged
}

// Search runs the free-text query against every feed and merges the hits.
func (a *TokenAggregator) Search(ctx context.Context, query string) []models.AggregatedToken {
	query = strings.TrimSpace(query)
	if query == "" {
		return []models.AggregatedToken{}
	}
	key := SearchKey(query)

	var cached []models.AggregatedToken
	if a.cache.Get(ctx, key, &cached) && len(cached) > 0 {
		a.metrics.RecordCacheLookup(searchScope, true)
		return cached
	}
	a.metrics.RecordCacheLookup(searchScope, false)

	tasks := make([]task[[]models.PriceSnapshot], 0, len(a.sources))
	for _, src := range a.sources {
		src := src // per-iteration copy; go.mod targets Go 1.21 loop semantics
		tasks = append(tasks, task[[]models.PriceSnapshot]{
			name: src.Source().String(),
			run: func(ctx context.Context) ([]models.PriceSnapshot, error) {
				return src.Search(ctx, query)
			},
		})
	}

	fetchCtx := context.WithoutCancel(ctx)
	var snaps []models.PriceSnapshot
	for _, r := range settleAll(fetchCtx, tasks) {
		if r.err != nil {
			a.log.Warn("search.source_failed", applogger.String("source", r.name), applogger.Error(r.err))
			a.metrics.RecordError(r.name + "_search")
			continue
		}
		snaps = append(snaps, r.value...)
	}

	merged := Merge(MergeInput{Snapshots: snaps, SpreadPenalty: a.penalty})
	if len(merged) > 0 {
		a.cache.Set(fetchCtx, key, merged, a.ttl)
	}
	return merged
}

var _ domsvc.Aggregator = (*TokenAggregator)(nil)
