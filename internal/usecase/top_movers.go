package usecase

import (
	"context"
	"sort"

	"TokenPulse/internal/domain/models"
	domrepo "TokenPulse/internal/domain/repository"
	domsvc "TokenPulse/internal/domain/service"
	pkgcache "TokenPulse/pkg/cache"
	applogger "TokenPulse/pkg/logger"
	"TokenPulse/pkg/util"
)

// DefaultLeaderboardSize is the length of each leaderboard list.
const DefaultLeaderboardSize = 10

// TopMovers ranks every aggregate currently held in the cache.
type TopMovers struct {
	cache domrepo.Cache
	log   *applogger.Logger
}

func NewTopMovers(cache domrepo.Cache, l *applogger.Logger) *TopMovers {
	return &TopMovers{cache: cache, log: l}
}

// Top ranks cached tokens by metric, descending. Figures are scaled from
// their 24h values to interval.
func (tm *TopMovers) Top(ctx context.Context, metric models.RankMetric, limit int, interval models.Interval) models.TopResult {
	if limit < 1 || limit > 100 {
		limit = DefaultLeaderboardSize
	}
	if !models.IsValidInterval(interval) {
		interval = models.Interval24h
	}
	if metric == "" {
		metric = models.MetricVolume24h
	}

	ranked := rank(tm.cached(ctx), metric, limit, interval)
	return models.TopResult{
		Metric:   metric,
		Interval: interval,
		Count:    len(ranked),
		Tokens:   ranked,
	}
}

// Leaderboard returns the top movers by volume and by price change. ok is
// false when nothing is cached yet.
func (tm *TopMovers) Leaderboard(ctx context.Context, size int) (models.Leaderboard, bool) {
	if size < 1 {
		size = DefaultLeaderboardSize
	}
	tokens := tm.cached(ctx)
	if len(tokens) == 0 {
		return models.Leaderboard{}, false
	}
	return models.Leaderboard{
		TopByVolume: rank(tokens, models.MetricVolume24h, size, models.Interval24h),
		TopByChange: rank(tokens, models.MetricPriceChangePercent24h, size, models.Interval24h),
	}, true
}

// cached flattens every cached aggregate, keeping the freshest record per
// address. The result is ordered by address.
func (tm *TopMovers) cached(ctx context.Context) []models.AggregatedToken {
	keys := tm.cache.Keys(ctx, pkgcache.BuildPattern(aggregatedScope+":"))
	byAddr := make(map[string]models.AggregatedToken)
	for _, k := range keys {
		var group []models.AggregatedToken
		if !tm.cache.Get(ctx, k, &group) {
			continue
		}
		for _, t := range group {
			addr := util.NormalizeAddress(t.Token.Address)
			if prev, ok := byAddr[addr]; !ok || t.LastUpdated > prev.LastUpdated {
				byAddr[addr] = t
			}
		}
	}

	addrs := make([]string, 0, len(byAddr))
	for a := range byAddr {
		addrs = append(addrs, a)
	}
	sort.Strings(addrs)

	out := make([]models.AggregatedToken, 0, len(addrs))
	for _, a := range addrs {
		out = append(out, byAddr[a])
	}
	tm.log.Debug("leaderboard.scan", applogger.Int("keys", len(keys)), applogger.Int("tokens", len(out)))
	return out
}

func rank(tokens []models.AggregatedToken, metric models.RankMetric, limit int, interval models.Interval) []models.RankedToken {
	sorted := make([]models.AggregatedToken, len(tokens))
	copy(sorted, tokens)
	sort.SliceStable(sorted, func(i, j int) bool {
		return metricValue(sorted[i], metric) > metricValue(sorted[j], metric)
	})
	if len(sorted) > limit {
		sorted = sorted[:limit]
	}

	out := make([]models.RankedToken, 0, len(sorted))
	for i, t := range sorted {
		price := t.PriceData.Price
		if price == 0 {
			price = t.AveragePrice
		}
		out = append(out, models.RankedToken{
			Rank:                  i + 1,
			Token:                 models.Token{Address: t.Token.Address, Symbol: t.Token.Symbol, Name: t.Token.Name},
			Price:                 price,
			Volume24h:             volume(t) * interval.VolumeScale(),
			PriceChange24h:        models.Deref(t.PriceData.PriceChange24h) * interval.ChangeScale(),
			PriceChangePercent24h: models.Deref(t.PriceData.PriceChangePercent24h) * interval.ChangeScale(),
			Liquidity:             liquidity(t),
			MarketCap:             models.Deref(t.PriceData.MarketCap),
			Sources:               t.Sources,
			Chains:                t.Chains,
			LastUpdated:           t.LastUpdated,
		})
	}
	return out
}

func metricValue(t models.AggregatedToken, metric models.RankMetric) float64 {
	switch metric {
	case models.MetricPriceChangePercent24h:
		return models.Deref(t.PriceData.PriceChangePercent24h)
	case models.MetricMarketCap:
		if v := models.Deref(t.PriceData.MarketCap); v != 0 {
			return v
		}
		return t.TotalLiquidity
	case models.MetricLiquidity:
		return liquidity(t)
	default:
		return volume(t)
	}
}

func volume(t models.AggregatedToken) float64 {
	if t.TotalVolume24h != 0 {
		return t.TotalVolume24h
	}
	return models.Deref(t.PriceData.Volume24h)
}

func liquidity(t models.AggregatedToken) float64 {
	if t.TotalLiquidity != 0 {
		return t.TotalLiquidity
	}
	return models.Deref(t.PriceData.Liquidity)
}

var _ domsvc.Ranker = (*TopMovers)(nil)
