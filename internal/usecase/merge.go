package usecase

import (
	"sort"
	"strings"

	"TokenPulse/internal/domain/models"
	"TokenPulse/pkg/util"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/shopspring/decimal"
)

// DefaultSpreadPenalty scales the relative price spread into confidence
// points: a 1% spread costs 10 points.
const DefaultSpreadPenalty = 1000.0

// MergeInput is everything a merge round consumes.
type MergeInput struct {
	Snapshots []models.PriceSnapshot
	// Oracle prices keyed by the id the oracle answered with (symbol or address).
	Oracle map[string]float64
	// Requested addresses, used to resolve oracle ids no snapshot matches.
	Requested     []string
	SpreadPenalty float64
}

// Merge reconciles snapshots into one aggregate per token address. The
// result is sorted by normalized address and depends only on the input.
func Merge(in MergeInput) []models.AggregatedToken {
	if len(in.Snapshots) == 0 {
		return []models.AggregatedToken{}
	}
	penalty := in.SpreadPenalty
	if penalty <= 0 {
		penalty = DefaultSpreadPenalty
	}

	groups := make(map[string][]models.PriceSnapshot)
	for _, s := range in.Snapshots {
		key := util.NormalizeAddress(s.Token.Address)
		if key == "" {
			continue
		}
		groups[key] = append(groups[key], s)
	}
	oracle := resolveOracle(in.Snapshots, in.Oracle, in.Requested)

	keys := make([]string, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]models.AggregatedToken, 0, len(keys))
	for _, k := range keys {
		if agg, ok := mergeGroup(groups[k], oracle[k], penalty); ok {
			out = append(out, agg)
		}
	}
	return out
}

// resolveOracle maps oracle ids onto group keys: the first snapshot whose
// symbol or address equals the id wins, then a requested address.
func resolveOracle(snaps []models.PriceSnapshot, prices map[string]float64, requested []string) map[string]float64 {
	out := make(map[string]float64, len(prices))
	if len(prices) == 0 {
		return out
	}
	ids := make([]string, 0, len(prices))
	for id := range prices {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		price := prices[id]
		if price <= 0 {
			continue
		}
		if key, ok := matchSnapshot(snaps, id); ok {
			out[key] = price
			continue
		}
		for _, addr := range requested {
			if strings.EqualFold(strings.TrimSpace(addr), id) {
				out[util.NormalizeAddress(addr)] = price
				break
			}
		}
	}
	return out
}

func matchSnapshot(snaps []models.PriceSnapshot, id string) (string, bool) {
	for _, s := range snaps {
		if s.Token.Symbol == id || strings.EqualFold(s.Token.Address, id) {
			return util.NormalizeAddress(s.Token.Address), true
		}
	}
	return "", false
}

func mergeGroup(items []models.PriceSnapshot, oraclePrice float64, penalty float64) (models.AggregatedToken, bool) {
	prices := make([]float64, 0, len(items)+1)
	priced := mapset.NewThreadUnsafeSet[models.Source]()
	for _, s := range items {
		if s.PriceData.Price > 0 {
			prices = append(prices, s.PriceData.Price)
			priced.Add(s.Source)
		}
	}
	if oraclePrice > 0 {
		prices = append(prices, oraclePrice)
		priced.Add(models.SourceJupiter)
	}
	if len(prices) == 0 {
		return models.AggregatedToken{}, false
	}

	best, low, sum := prices[0], prices[0], 0.0
	for _, p := range prices {
		if p > best {
			best = p
		}
		if p < low {
			low = p
		}
		sum += p
	}
	avg := sum / float64(len(prices))

	var totalVolume, totalLiquidity float64
	var lastUpdated int64
	sources := mapset.NewThreadUnsafeSet[models.Source]()
	chains := mapset.NewThreadUnsafeSet[string]()
	pairs := mapset.NewThreadUnsafeSet[string]()
	for _, s := range items {
		totalVolume += models.Deref(s.PriceData.Volume24h)
		totalLiquidity += models.Deref(s.PriceData.Liquidity)
		if s.PriceData.Timestamp > lastUpdated {
			lastUpdated = s.PriceData.Timestamp
		}
		sources.Add(s.Source)
		if s.Chain != "" {
			chains.Add(s.Chain)
		}
		if s.PairAddress != "" {
			pairs.Add(s.PairAddress)
		}
	}
	if oraclePrice > 0 {
		sources.Add(models.SourceJupiter)
	}

	dex := latestFrom(items, models.SourceDexScreener)
	gecko := latestFrom(items, models.SourceGeckoTerminal)
	latest := latestFrom(items, 0)
	chain := []*models.PriceSnapshot{dex, gecko, latest}

	pd := models.PriceData{
		Price:                 avg,
		Volume24h:             pick(chain, func(p models.PriceData) *float64 { return p.Volume24h }),
		Liquidity:             pick(chain, func(p models.PriceData) *float64 { return p.Liquidity }),
		MarketCap:             pick(chain, func(p models.PriceData) *float64 { return p.MarketCap }),
		PriceChange24h:        pick(chain, func(p models.PriceData) *float64 { return p.PriceChange24h }),
		PriceChangePercent24h: pick(chain, func(p models.PriceData) *float64 { return p.PriceChangePercent24h }),
		Timestamp:             lastUpdated,
	}
	if pd.Volume24h == nil {
		pd.Volume24h = models.Float(totalVolume)
	}
	if pd.Liquidity == nil {
		pd.Liquidity = models.Float(totalLiquidity)
	}

	token := latest.Token
	if gecko != nil {
		token = gecko.Token
	}
	if dex != nil {
		token = dex.Token
	}

	return models.AggregatedToken{
		Token:           token,
		PriceData:       pd,
		Sources:         sortedSources(sources),
		Chains:          sortedStrings(chains),
		PairAddresses:   sortedStrings(pairs),
		BestPrice:       best,
		AveragePrice:    avg,
		TotalVolume24h:  totalVolume,
		TotalLiquidity:  totalLiquidity,
		ConfidenceScore: groupConfidence(priced.Cardinality(), best, low, avg, penalty),
		LastUpdated:     lastUpdated,
	}, true
}

// groupConfidence scores agreement between feeds. Pairs reported by a
// single feed do not disagree with each other, so one priced source is 100.
func groupConfidence(pricedSources int, best, low, avg, penalty float64) float64 {
	if pricedSources < 2 {
		return 100
	}
	return Confidence(best, low, avg, penalty)
}

// Confidence is 100 minus the relative spread times penalty, clamped to
// [0, 100] and rounded to one decimal.
func Confidence(best, low, avg, penalty float64) float64 {
	if avg <= 0 || best == low {
		return 100
	}
	spread := (best - low) / avg
	score := decimal.NewFromInt(100).Sub(decimal.NewFromFloat(spread).Mul(decimal.NewFromFloat(penalty)))
	switch {
	case score.IsNegative():
		return 0
	case score.GreaterThan(decimal.NewFromInt(100)):
		return 100
	}
	f, _ := score.Round(1).Float64()
	return f
}

// latestFrom returns the snapshot of src with the latest timestamp, the
// first one on ties. A zero src matches any source.
func latestFrom(items []models.PriceSnapshot, src models.Source) *models.PriceSnapshot {
	var out *models.PriceSnapshot
	for i := range items {
		s := &items[i]
		if src != 0 && s.Source != src {
			continue
		}
		if out == nil || s.PriceData.Timestamp > out.PriceData.Timestamp {
			out = s
		}
	}
	return out
}

func pick(chain []*models.PriceSnapshot, field func(models.PriceData) *float64) *float64 {
	for _, s := range chain {
		if s == nil {
			continue
		}
		if v := field(s.PriceData); v != nil {
			return models.Float(*v)
		}
	}
	return nil
}

func sortedSources(set mapset.Set[models.Source]) []models.Source {
	out := set.ToSlice()
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func sortedStrings(set mapset.Set[string]) []string {
	out := set.ToSlice()
	sort.Strings(out)
	return out
}
