package service

import (
	"context"

	"TokenPulse/internal/domain/models"
)

// Aggregator reconciles feeds into one view per token.
type Aggregator interface {
	Aggregate(ctx context.Context, addresses []string) []models.AggregatedToken
	Search(ctx context.Context, query string) []models.AggregatedToken
}

// Ranker ranks every aggregate currently held in the cache.
type Ranker interface {
	Top(ctx context.Context, metric models.RankMetric, limit int, interval models.Interval) models.TopResult
	Leaderboard(ctx context.Context, size int) (models.Leaderboard, bool)
}

// MetricsReader exposes the rolling request statistics.
type MetricsReader interface {
	Snapshot() models.MetricsSnapshot
}
