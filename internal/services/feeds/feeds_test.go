package feeds

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"TokenPulse/internal/domain/models"
	storecache "TokenPulse/internal/service/cache"
	pkgcache "TokenPulse/pkg/cache"
	applogger "TokenPulse/pkg/logger"
	pkgmetrics "TokenPulse/pkg/metrics"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sleepRecorder struct {
	mu    sync.Mutex
	waits []time.Duration
}

func (s *sleepRecorder) sleep(_ context.Context, d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.waits = append(s.waits, d)
	return nil
}

type fixture struct {
	srv   *httptest.Server
	hits  atomic.Int32
	sleep *sleepRecorder
	cache *storecache.Store
	now   time.Time
}

func newFixture(t *testing.T, handler http.HandlerFunc) *fixture {
	t.Helper()
	f := &fixture{sleep: &sleepRecorder{}, now: time.UnixMilli(1_700_000_000_000)}
	f.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.hits.Add(1)
		handler(w, r)
	}))
	t.Cleanup(f.srv.Close)

	mem := pkgcache.NewMemoryCache()
	t.Cleanup(func() { _ = mem.Close() })
	f.cache = storecache.NewStore(mem, applogger.NewNop(), time.Second)
	return f
}

func (f *fixture) base(src models.Source, budget int) *Base {
	return NewBase(src, Config{
		BaseURL:            f.srv.URL,
		Timeout:            2 * time.Second,
		RateLimitPerMinute: budget,
		CacheTTL:           time.Minute,
	}, f.cache, pkgmetrics.Nop{}, applogger.NewNop(),
		WithSleep(f.sleep.sleep),
		WithClock(func() time.Time { return f.now }),
	)
}

const dexBody = `{"pairs":[
 {"chainId":"solana","pairAddress":"PairA","baseToken":{"address":"MintA","name":"Token A","symbol":"TKA"},
  "priceUsd":"1.50","volume":{"h24":1000000},"priceChange":{"h24":50},"liquidity":{"usd":250000},"fdv":9000000},
 {"chainId":"solana","pairAddress":"PairB","baseToken":{"address":"MintA","name":"Token A","symbol":"TKA"},
  "priceUsd":"1.52","volume":{"h24":10},"marketCap":8000000}
]}`

func TestDexScreener_TransformsPairs(t *testing.T) {
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/tokens/MintA", r.URL.Path)
		_, _ = w.Write([]byte(dexBody))
	})
	dex := NewDexScreener(f.base(models.SourceDexScreener, 60))

	snaps, err := dex.Fetch(context.Background(), []string{"MintA"})
	require.NoError(t, err)
	require.Len(t, snaps, 2)

	first := snaps[0]
	assert.Equal(t, models.SourceDexScreener, first.Source)
	assert.Equal(t, "solana", first.Chain)
	assert.Equal(t, "PairA", first.PairAddress)
	assert.Equal(t, 1.5, first.PriceData.Price)
	assert.Equal(t, 1_000_000.0, models.Deref(first.PriceData.Volume24h))
	assert.Equal(t, 250_000.0, models.Deref(first.PriceData.Liquidity))
	assert.Equal(t, 9_000_000.0, models.Deref(first.PriceData.MarketCap))
	assert.Equal(t, 50.0, models.Deref(first.PriceData.PriceChangePercent24h))
	assert.InDelta(t, 0.5, models.Deref(first.PriceData.PriceChange24h), 1e-9)
	assert.Equal(t, f.now.UnixMilli(), first.PriceData.Timestamp)

	assert.Equal(t, 8_000_000.0, models.Deref(snaps[1].PriceData.MarketCap))
	assert.Nil(t, snaps[1].PriceData.Liquidity)
}

func TestBase_SendsBrowserHeaders(t *testing.T) {
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, browserUserAgent, r.Header.Get("User-Agent"))
		assert.Equal(t, acceptLanguage, r.Header.Get("Accept-Language"))
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		_, _ = w.Write([]byte(dexBody))
	})
	dex := NewDexScreener(f.base(models.SourceDexScreener, 60))

	snaps, err := dex.Fetch(context.Background(), []string{"MintA"})
	require.NoError(t, err)
	assert.Len(t, snaps, 2)
	assert.Equal(t, int32(1), f.hits.Load())
}

func TestDexScreener_RetriesTransientThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(dexBody))
	})
	dex := NewDexScreener(f.base(models.SourceDexScreener, 60))

	snaps, err := dex.Fetch(context.Background(), []string{"MintA"})
	require.NoError(t, err)
	assert.Len(t, snaps, 2)
	assert.Equal(t, int32(3), f.hits.Load())
	assert.Equal(t, []time.Duration{300 * time.Millisecond, 600 * time.Millisecond}, f.sleep.waits)
}

func TestDexScreener_ForbiddenSkipsWithoutRetry(t *testing.T) {
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/tokens/Blocked" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		_, _ = w.Write([]byte(dexBody))
	})
	dex := NewDexScreener(f.base(models.SourceDexScreener, 60))

	snaps, err := dex.Fetch(context.Background(), []string{"Blocked", "MintA"})
	require.NoError(t, err)
	assert.Len(t, snaps, 2)
	assert.Equal(t, int32(2), f.hits.Load())
	assert.Empty(t, f.sleep.waits)
}

func TestDexScreener_RateLimitedGivesUpAfterThreeAttempts(t *testing.T) {
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})
	dex := NewDexScreener(f.base(models.SourceDexScreener, 60))

	snaps, err := dex.Fetch(context.Background(), []string{"MintA"})
	require.NoError(t, err)
	assert.Empty(t, snaps)
	assert.Equal(t, int32(3), f.hits.Load())
	assert.Len(t, f.sleep.waits, 2)
}

func TestDexScreener_CacheHitSkipsNetwork(t *testing.T) {
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(dexBody))
	})
	dex := NewDexScreener(f.base(models.SourceDexScreener, 60))
	ctx := context.Background()

	_, err := dex.Fetch(ctx, []string{"MintA"})
	require.NoError(t, err)
	snaps, err := dex.Fetch(ctx, []string{"minta"})
	require.NoError(t, err)

	assert.Len(t, snaps, 2)
	assert.Equal(t, int32(1), f.hits.Load())
}

func TestBase_BudgetBoundary(t *testing.T) {
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(dexBody))
	})
	dex := NewDexScreener(f.base(models.SourceDexScreener, 2))

	snaps, err := dex.Fetch(context.Background(), []string{"A", "B", "C"})
	require.NoError(t, err)
	assert.Len(t, snaps, 4)
	assert.Equal(t, int32(2), f.hits.Load())
}

func TestBase_RetriesDrawNoExtraBudget(t *testing.T) {
	var calls atomic.Int32
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/tokens/A", r.URL.Path)
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(dexBody))
	})
	dex := NewDexScreener(f.base(models.SourceDexScreener, 1))

	snaps, err := dex.Fetch(context.Background(), []string{"A", "B"})
	require.NoError(t, err)
	assert.Len(t, snaps, 2)
	assert.Equal(t, int32(2), f.hits.Load())
}

func TestBase_BudgetResetsAfterWindow(t *testing.T) {
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(dexBody))
	})
	b := f.base(models.SourceDexScreener, 1)

	assert.True(t, b.TakeBudget())
	assert.False(t, b.TakeBudget())
	f.now = f.now.Add(time.Minute)
	assert.True(t, b.TakeBudget())
}

func TestBase_SearchExhaustedBudget(t *testing.T) {
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(dexBody))
	})
	dex := NewDexScreener(f.base(models.SourceDexScreener, 0))

	_, err := dex.Search(context.Background(), "tka")
	assert.ErrorIs(t, err, ErrBudgetExhausted)
	assert.Zero(t, f.hits.Load())
}

func TestIsRetryable(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {})
	b := f.base(models.SourceDexScreener, 60)

	f.srv.Close()
	err := b.GetJSON(ctx, "/x", nil, nil)
	require.Error(t, err)
	assert.True(t, IsRetryable(ctx, err))

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	assert.False(t, IsRetryable(cancelled, err))
}

const geckoToken = `{"data":{"id":"solana_MintG","type":"token","attributes":{
 "address":"MintG","name":"Gecko Token","symbol":"GKO","decimals":6,
 "price_usd":"0.0123","volume_usd":{"h24":"4200.5"},"total_reserve_in_usd":"1000",
 "fdv_usd":"50000","market_cap_usd":null,"price_change_percentage":{"h24":"-3.5"}}}}`

func TestGeckoTerminal_TransformsToken(t *testing.T) {
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/networks/solana/tokens/MintG", r.URL.Path)
		_, _ = w.Write([]byte(geckoToken))
	})
	gt := NewGeckoTerminal(f.base(models.SourceGeckoTerminal, 60), "solana")

	snaps, err := gt.Fetch(context.Background(), []string{"MintG"})
	require.NoError(t, err)
	require.Len(t, snaps, 1)

	s := snaps[0]
	assert.Equal(t, "GKO", s.Token.Symbol)
	require.NotNil(t, s.Token.Decimals)
	assert.Equal(t, 6, *s.Token.Decimals)
	assert.Equal(t, 0.0123, s.PriceData.Price)
	assert.Equal(t, 4200.5, models.Deref(s.PriceData.Volume24h))
	assert.Equal(t, 1000.0, models.Deref(s.PriceData.Liquidity))
	assert.Equal(t, 50000.0, models.Deref(s.PriceData.MarketCap))
	assert.Equal(t, -3.5, models.Deref(s.PriceData.PriceChangePercent24h))
	assert.Equal(t, "solana", s.Chain)
}

func TestGeckoTerminal_NotFoundIsSkipped(t *testing.T) {
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	gt := NewGeckoTerminal(f.base(models.SourceGeckoTerminal, 60), "solana")

	snaps, err := gt.Fetch(context.Background(), []string{"Nope"})
	require.NoError(t, err)
	assert.Empty(t, snaps)
	assert.Equal(t, int32(1), f.hits.Load())
}

func TestGeckoTerminal_SearchPools(t *testing.T) {
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/search/pools", r.URL.Path)
		assert.Equal(t, "bonk", r.URL.Query().Get("query"))
		_, _ = w.Write([]byte(`{"data":[{"attributes":{"name":"BONK / SOL","address":"Pool1",
		 "base_token_price_usd":"0.00002","volume_usd":{"h24":"123"},"reserve_in_usd":"456"},
		 "relationships":{"base_token":{"data":{"id":"solana_DezX"}},"network":{"data":{"id":"solana"}}}}]}`))
	})
	gt := NewGeckoTerminal(f.base(models.SourceGeckoTerminal, 60), "solana")

	snaps, err := gt.Search(context.Background(), "bonk")
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	assert.Equal(t, "DezX", snaps[0].Token.Address)
	assert.Equal(t, "BONK", snaps[0].Token.Symbol)
	assert.Equal(t, "Pool1", snaps[0].PairAddress)
	assert.Equal(t, 456.0, models.Deref(snaps[0].PriceData.Liquidity))

	_, err = gt.Search(context.Background(), "BONK")
	require.NoError(t, err)
	assert.Equal(t, int32(1), f.hits.Load())
}

func TestJupiter_PricesAndCache(t *testing.T) {
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "SOL,MintA", r.URL.Query().Get("ids"))
		_, _ = w.Write([]byte(`{"data":{"SOL":{"id":"SOL","mintSymbol":"SOL","price":151.2},
		 "MintA":{"id":"MintA","price":"1.55"},"Dead":{"id":"Dead","price":0}}}`))
	})
	jup := NewJupiter(f.base(models.SourceJupiter, 60))
	ctx := context.Background()

	prices, err := jup.Prices(ctx, []string{"SOL", "MintA"})
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"SOL": 151.2, "MintA": 1.55}, prices)

	again, err := jup.Prices(ctx, []string{"SOL", "MintA"})
	require.NoError(t, err)
	assert.Equal(t, prices, again)
	assert.Equal(t, int32(1), f.hits.Load())
}

func TestJupiter_ErrorSurfaces(t *testing.T) {
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	})
	jup := NewJupiter(f.base(models.SourceJupiter, 60))

	_, err := jup.Prices(context.Background(), []string{"SOL"})
	assert.Error(t, err)
}
