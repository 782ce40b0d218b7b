package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_MatchesServiceDefaults(t *testing.T) {
	c := Default()
	require.NoError(t, c.Validate())

	assert.Equal(t, 30*time.Second, c.Cache.TTL)
	assert.Equal(t, "meme_coin", c.Cache.KeyPrefix)
	assert.Equal(t, 60, c.Sources.DexScreener.RateLimitPerMinute)
	assert.Equal(t, 15*time.Second, c.Sources.Jupiter.CacheTTL)
	assert.Equal(t, "solana", c.Sources.GeckoTerminal.Network)
	assert.Equal(t, 3, c.Retry.MaxAttempts)
	assert.Equal(t, 300*time.Millisecond, c.Retry.Backoff)
	assert.Equal(t, 30*time.Second, c.WebSocket.HeartbeatInterval)
	assert.Equal(t, 1000, c.WebSocket.MaxConnections)
	assert.Equal(t, 1000.0, c.Merge.SpreadPenalty)
}

func TestParse_OverridesDefaults(t *testing.T) {
	c, err := Parse([]byte(`
environment: test
cache:
  mode: memory
  ttl: 5s
sources:
  geckoterminal:
    enabled: false
merge:
  spread_penalty: 100
`))
	require.NoError(t, err)
	assert.Equal(t, "memory", c.Cache.Mode)
	assert.Equal(t, 5*time.Second, c.Cache.TTL)
	assert.False(t, c.Sources.GeckoTerminal.Enabled)
	assert.True(t, c.Sources.DexScreener.Enabled)
	assert.Equal(t, 100.0, c.Merge.SpreadPenalty)
}

func TestParse_RejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"cache mode":     "cache:\n  mode: disk\n",
		"publisher":      "publisher:\n  type: nats\n",
		"kafka brokers":  "publisher:\n  type: kafka\n",
		"retry attempts": "retry:\n  max_attempts: 0\n",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestApplyEnv(t *testing.T) {
	c := Default()
	env := map[string]string{
		"CACHE_TTL":     "45",
		"REDIS_ADDR":    "redis:6380",
		"KAFKA_BROKERS": "a:9092,b:9092",
		"PORT":          "8080",
	}
	c.applyEnv(func(k string) string { return env[k] })

	assert.Equal(t, 45*time.Second, c.Cache.TTL)
	assert.Equal(t, "redis:6380", c.Redis.Addr)
	assert.Equal(t, []string{"a:9092", "b:9092"}, c.Publisher.Kafka.Brokers)
	assert.Equal(t, 8080, c.Server.Port)
}

func TestPollInterval_FollowsCacheTTL(t *testing.T) {
	c, err := Parse([]byte("cache:\n  mode: memory\n  ttl: 5s\n"))
	require.NoError(t, err)
	assert.Zero(t, c.WebSocket.PollInterval)
	assert.Equal(t, 5*time.Second, c.PollInterval())

	c.applyEnv(func(k string) string {
		if k == "CACHE_TTL" {
			return "12"
		}
		return ""
	})
	assert.Equal(t, 12*time.Second, c.PollInterval())

	c, err = Parse([]byte("cache:\n  ttl: 5s\nwebsocket:\n  poll_interval: 2s\n"))
	require.NoError(t, err)
	assert.Equal(t, 2*time.Second, c.PollInterval())

	_, err = Parse([]byte("websocket:\n  poll_interval: -1s\n"))
	assert.Error(t, err)
}
