package models

import "strings"

// RankedToken is a flattened row of a ranking.
type RankedToken struct {
	Rank                  int      `json:"rank"`
	Token                 Token    `json:"token"`
	Price                 float64  `json:"price"`
	Volume24h             float64  `json:"volume24h"`
	PriceChange24h        float64  `json:"priceChange24h"`
	PriceChangePercent24h float64  `json:"priceChangePercent24h"`
	Liquidity             float64  `json:"liquidity"`
	MarketCap             float64  `json:"marketCap"`
	Sources               []Source `json:"sources"`
	Chains                []string `json:"chains"`
	LastUpdated           int64    `json:"lastUpdated"`
}

// Leaderboard is broadcast to every realtime client periodically.
type Leaderboard struct {
	TopByVolume []RankedToken `json:"topByVolume"`
	TopByChange []RankedToken `json:"topByChange"`
}

// RankMetric selects the figure tokens are ranked by.
type RankMetric string

const (
	MetricVolume24h             RankMetric = "volume24h"
	MetricPriceChangePercent24h RankMetric = "priceChangePercent24h"
	MetricMarketCap             RankMetric = "marketCap"
	MetricLiquidity             RankMetric = "liquidity"
)

// Interval is the reporting window for ranked figures.
type Interval string

const (
	Interval1h  Interval = "1h"
	Interval24h Interval = "24h"
	Interval7d  Interval = "7d"
)

// IsValidInterval returns true if iv is a supported interval.
func IsValidInterval(iv Interval) bool {
	switch iv {
	case Interval1h, Interval24h, Interval7d:
		return true
	default:
		return false
	}
}

// NormalizeInterval converts raw input to a valid interval, defaulting to 24h.
func NormalizeInterval(s string) Interval {
	iv := Interval(strings.ToLower(strings.TrimSpace(s)))
	if IsValidInterval(iv) {
		return iv
	}
	return Interval24h
}

// VolumeScale is the factor applied to 24h volume for the interval.
func (iv Interval) VolumeScale() float64 {
	switch iv {
	case Interval1h:
		return 1.0 / 24
	case Interval7d:
		return 7
	default:
		return 1
	}
}

// ChangeScale is the factor applied to 24h price change for the interval.
// Hourly change is approximated as 1/24 of the daily move, weekly as 7x.
func (iv Interval) ChangeScale() float64 {
	return iv.VolumeScale()
}

// TopResult is the response of a ranked query.
type TopResult struct {
	Metric   RankMetric    `json:"metric"`
	Interval Interval      `json:"interval"`
	Count    int           `json:"count"`
	Tokens   []RankedToken `json:"tokens"`
}
