package usecase

import (
	"testing"

	"TokenPulse/internal/domain/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func snap(src models.Source, addr string, price float64, ts int64) models.PriceSnapshot {
	return models.PriceSnapshot{
		Token:     models.Token{Address: addr, Symbol: "TKA", Name: src.String() + " name"},
		PriceData: models.PriceData{Price: price, Timestamp: ts},
		Source:    src,
	}
}

func exampleSnapshots() []models.PriceSnapshot {
	dex := snap(models.SourceDexScreener, "MintA", 1.50, 1000)
	dex.PriceData.Volume24h = models.Float(1_000_000)
	dex.Chain = "solana"
	dex.PairAddress = "PairA"
	gecko := snap(models.SourceGeckoTerminal, "minta", 1.60, 2000)
	gecko.PriceData.Volume24h = models.Float(500_000)
	gecko.PriceData.MarketCap = models.Float(42)
	gecko.Chain = "solana"
	return []models.PriceSnapshot{dex, gecko}
}

func TestMerge_TwoSourceExample(t *testing.T) {
	out := Merge(MergeInput{Snapshots: exampleSnapshots(), SpreadPenalty: 100})
	require.Len(t, out, 1)

	agg := out[0]
	assert.InDelta(t, 1.55, agg.AveragePrice, 1e-9)
	assert.Equal(t, 1.60, agg.BestPrice)
	assert.Equal(t, 1_500_000.0, agg.TotalVolume24h)
	assert.Equal(t, []models.Source{models.SourceDexScreener, models.SourceGeckoTerminal}, agg.Sources)
	assert.Equal(t, 93.5, agg.ConfidenceScore)

	assert.Equal(t, "dexscreener name", agg.Token.Name)
	assert.Equal(t, 1_000_000.0, models.Deref(agg.PriceData.Volume24h))
	assert.Equal(t, 42.0, models.Deref(agg.PriceData.MarketCap))
	assert.InDelta(t, 1.55, agg.PriceData.Price, 1e-9)
	assert.Equal(t, []string{"solana"}, agg.Chains)
	assert.Equal(t, []string{"PairA"}, agg.PairAddresses)
	assert.Equal(t, int64(2000), agg.LastUpdated)
}

func TestMerge_DefaultPenalty(t *testing.T) {
	out := Merge(MergeInput{Snapshots: exampleSnapshots()})
	require.Len(t, out, 1)
	assert.Equal(t, 35.5, out[0].ConfidenceScore)
}

func TestConfidence_DecreasesWithSpread(t *testing.T) {
	score := func(p1, p2 float64) float64 {
		out := Merge(MergeInput{Snapshots: []models.PriceSnapshot{
			snap(models.SourceDexScreener, "A", p1, 1),
			snap(models.SourceGeckoTerminal, "A", p2, 1),
		}})
		require.Len(t, out, 1)
		return out[0].ConfidenceScore
	}

	assert.Equal(t, 100.0, score(1.00, 1.00))
	prev := 100.0
	for _, p2 := range []float64{1.01, 1.02, 1.05, 1.10} {
		s := score(1.00, p2)
		assert.Less(t, s, prev, "p2=%v", p2)
		assert.GreaterOrEqual(t, s, 0.0)
		prev = s
	}
	assert.Equal(t, 0.0, score(1.0, 2.0))
}

func TestMerge_SingleSourceIsFullConfidence(t *testing.T) {
	out := Merge(MergeInput{Snapshots: []models.PriceSnapshot{snap(models.SourceGeckoTerminal, "A", 3, 1)}})
	require.Len(t, out, 1)
	assert.Equal(t, 100.0, out[0].ConfidenceScore)
}

func TestMerge_PairsFromOneFeedKeepFullConfidence(t *testing.T) {
	pairA := snap(models.SourceDexScreener, "A", 1.00, 1)
	pairA.PairAddress = "PoolA"
	pairB := snap(models.SourceDexScreener, "A", 1.10, 2)
	pairB.PairAddress = "PoolB"

	out := Merge(MergeInput{Snapshots: []models.PriceSnapshot{pairA, pairB}})
	require.Len(t, out, 1)
	assert.Equal(t, []models.Source{models.SourceDexScreener}, out[0].Sources)
	assert.Equal(t, 100.0, out[0].ConfidenceScore)
	assert.Equal(t, 1.10, out[0].BestPrice)
	assert.Equal(t, []string{"PoolA", "PoolB"}, out[0].PairAddresses)

	withGecko := Merge(MergeInput{Snapshots: []models.PriceSnapshot{
		pairA, pairB, snap(models.SourceGeckoTerminal, "A", 1.05, 3),
	}})
	require.Len(t, withGecko, 1)
	assert.Less(t, withGecko[0].ConfidenceScore, 100.0)
}

func TestMerge_Idempotent(t *testing.T) {
	in := MergeInput{Snapshots: exampleSnapshots()}
	assert.Equal(t, Merge(in), Merge(in))
}

func TestMerge_OrderIndependent(t *testing.T) {
	snaps := exampleSnapshots()
	other := snap(models.SourceDexScreener, "MintB", 2, 5)
	forward := Merge(MergeInput{Snapshots: []models.PriceSnapshot{snaps[0], other, snaps[1]}})
	backward := Merge(MergeInput{Snapshots: []models.PriceSnapshot{snaps[1], snaps[0], other}})
	assert.Equal(t, forward, backward)
	require.Len(t, forward, 2)
	assert.Equal(t, "MintA", forward[0].Token.Address)
}

func TestMerge_DropsGroupsWithoutPrice(t *testing.T) {
	out := Merge(MergeInput{Snapshots: []models.PriceSnapshot{
		snap(models.SourceDexScreener, "A", 0, 1),
		snap(models.SourceDexScreener, "B", 1, 1),
	}})
	require.Len(t, out, 1)
	assert.Equal(t, "B", out[0].Token.Address)
}

func TestMerge_EmptyInput(t *testing.T) {
	out := Merge(MergeInput{})
	assert.NotNil(t, out)
	assert.Empty(t, out)
}

func TestMerge_LatestSnapshotWinsWithinSource(t *testing.T) {
	old := snap(models.SourceDexScreener, "A", 1, 100)
	old.PriceData.PriceChangePercent24h = models.Float(-5)
	fresh := snap(models.SourceDexScreener, "A", 1, 200)
	fresh.Token.Symbol = "NEW"
	fresh.PriceData.PriceChangePercent24h = models.Float(7)

	out := Merge(MergeInput{Snapshots: []models.PriceSnapshot{old, fresh}})
	require.Len(t, out, 1)
	assert.Equal(t, "NEW", out[0].Token.Symbol)
	assert.Equal(t, 7.0, models.Deref(out[0].PriceData.PriceChangePercent24h))
}

func TestMerge_FallsBackToTotals(t *testing.T) {
	out := Merge(MergeInput{Snapshots: []models.PriceSnapshot{snap(models.SourceGeckoTerminal, "A", 1, 1)}})
	require.Len(t, out, 1)
	require.NotNil(t, out[0].PriceData.Volume24h)
	assert.Zero(t, *out[0].PriceData.Volume24h)
	assert.Nil(t, out[0].PriceData.MarketCap)
}

func TestMerge_OracleCorroboration(t *testing.T) {
	bySymbol := Merge(MergeInput{
		Snapshots: []models.PriceSnapshot{snap(models.SourceDexScreener, "MintA", 1.0, 1)},
		Oracle:    map[string]float64{"TKA": 1.0},
	})
	require.Len(t, bySymbol, 1)
	assert.Equal(t, []models.Source{models.SourceDexScreener, models.SourceJupiter}, bySymbol[0].Sources)
	assert.Equal(t, 100.0, bySymbol[0].ConfidenceScore)

	other := snap(models.SourceDexScreener, "MintB", 1.0, 1)
	other.Token.Symbol = "OTHER"
	byAddress := Merge(MergeInput{
		Snapshots: []models.PriceSnapshot{other},
		Oracle:    map[string]float64{"MINTB": 1.1, "Unknown": 5},
		Requested: []string{"MintB"},
	})
	require.Len(t, byAddress, 1)
	assert.Equal(t, 1.1, byAddress[0].BestPrice)
	assert.Contains(t, byAddress[0].Sources, models.SourceJupiter)
	assert.Less(t, byAddress[0].ConfidenceScore, 100.0)
}
