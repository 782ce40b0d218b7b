package cache

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

type sample struct {
	Name  string  `json:"name"`
	Price float64 `json:"price"`
}

func newTestMemory(clock *fakeClock, opts ...MemoryOption) *MemoryCache {
	opts = append([]MemoryOption{WithMemoryClock(clock.Now), WithMemoryCleanup(time.Hour)}, opts...)
	return NewMemoryCache(opts...)
}

func TestMemoryCache_TypedRoundTrip(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	mc := newTestMemory(clock)
	defer mc.Close()
	ctx := context.Background()

	in := []sample{{Name: "BONK", Price: 0.00002}}
	require.NoError(t, mc.Set(ctx, "k", in, time.Minute))

	var out []sample
	require.NoError(t, mc.Get(ctx, "k", &out))
	assert.Equal(t, in, out)
}

func TestMemoryCache_Expiry(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	mc := newTestMemory(clock)
	defer mc.Close()
	ctx := context.Background()

	require.NoError(t, mc.Set(ctx, "k", "v", 30*time.Second))
	clock.Advance(29 * time.Second)

	var s string
	require.NoError(t, mc.Get(ctx, "k", &s))
	assert.Equal(t, "v", s)

	clock.Advance(time.Second)
	assert.ErrorIs(t, mc.Get(ctx, "k", &s), ErrCacheMiss)
}

func TestMemoryCache_IncrementExpiresFromFirstHit(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	mc := newTestMemory(clock)
	defer mc.Close()
	ctx := context.Background()

	for i := int64(1); i <= 3; i++ {
		n, err := mc.Increment(ctx, "rate_limit:1.2.3.4", time.Minute)
		require.NoError(t, err)
		assert.Equal(t, i, n)
		clock.Advance(10 * time.Second)
	}

	// the window is not extended by later hits
	clock.Advance(30 * time.Second)
	n, err := mc.Increment(ctx, "rate_limit:1.2.3.4", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestMemoryCache_KeysPattern(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	mc := newTestMemory(clock)
	defer mc.Close()
	ctx := context.Background()

	require.NoError(t, mc.Set(ctx, "aggregated:a", 1, time.Minute))
	require.NoError(t, mc.Set(ctx, "aggregated:b", 2, time.Second))
	require.NoError(t, mc.Set(ctx, "dexscreener:x", 3, time.Minute))

	keys, err := mc.Keys(ctx, "aggregated:*")
	require.NoError(t, err)
	sort.Strings(keys)
	assert.Equal(t, []string{"aggregated:a", "aggregated:b"}, keys)

	clock.Advance(2 * time.Second)
	keys, err = mc.Keys(ctx, "aggregated:*")
	require.NoError(t, err)
	assert.Equal(t, []string{"aggregated:a"}, keys)
}

func TestMemoryCache_EvictsLeastRecentlyUsed(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	mc := newTestMemory(clock, WithMemoryMaxSize(2))
	defer mc.Close()
	ctx := context.Background()

	require.NoError(t, mc.Set(ctx, "a", 1, 0))
	clock.Advance(time.Millisecond)
	require.NoError(t, mc.Set(ctx, "b", 2, 0))
	clock.Advance(time.Millisecond)

	var v int
	require.NoError(t, mc.Get(ctx, "a", &v))
	clock.Advance(time.Millisecond)
	require.NoError(t, mc.Set(ctx, "c", 3, 0))

	assert.ErrorIs(t, mc.Get(ctx, "b", &v), ErrCacheMiss)
	require.NoError(t, mc.Get(ctx, "a", &v))
	assert.Equal(t, 1, v)
}

func TestLayeredCache_ReadsThroughToRemote(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	remote := newTestMemory(clock)
	lc := NewLayeredCache(remote)
	defer lc.Close()
	ctx := context.Background()

	require.NoError(t, remote.Set(ctx, "k", sample{Name: "WIF", Price: 2.5}, time.Minute))

	var out sample
	require.NoError(t, lc.Get(ctx, "k", &out))
	assert.Equal(t, "WIF", out.Name)

	require.NoError(t, lc.Delete(ctx, "k"))
	assert.ErrorIs(t, lc.Get(ctx, "k", &out), ErrCacheMiss)
}

func TestHashKey_Stable(t *testing.T) {
	assert.Equal(t, HashKey("a,b"), HashKey("a,b"))
	assert.NotEqual(t, HashKey("a,b"), HashKey("b,a"))
	assert.Len(t, HashKey("x"), 32)
}
