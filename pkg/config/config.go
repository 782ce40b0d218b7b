package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string          `yaml:"environment" default:"development"`
	Server      ServerConfig    `yaml:"server"`
	Log         LogConfig       `yaml:"log"`
	Metrics     MetricsConfig   `yaml:"metrics"`
	Cache       CacheConfig     `yaml:"cache"`
	Redis       RedisConfig     `yaml:"redis"`
	RateLimit   RateLimitConfig `yaml:"rate_limit"`
	Retry       RetryConfig     `yaml:"retry"`
	Sources     SourcesConfig   `yaml:"sources"`
	Merge       MergeConfig     `yaml:"merge"`
	WebSocket   WebSocketConfig `yaml:"websocket"`
	Publisher   PublisherConfig `yaml:"publisher"`
}

type ServerConfig struct {
	Port            int           `yaml:"port" default:"3000"`
	ReadTimeout     time.Duration `yaml:"read_timeout" default:"15s"`
	WriteTimeout    time.Duration `yaml:"write_timeout" default:"15s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"10s"`
	CORSOrigins     []string      `yaml:"cors_origins"`
}

type LogConfig struct {
	Level  string `yaml:"level" default:"info"`
	Format string `yaml:"format" default:"json"`
	Output string `yaml:"output" default:"stdout"`
}

type MetricsConfig struct {
	Enabled    bool   `yaml:"enabled" default:"true"`
	Path       string `yaml:"path" default:"/metrics"`
	SampleSize int    `yaml:"sample_size" default:"1000"`
}

type CacheConfig struct {
	// Mode is memory, redis or layered.
	Mode      string        `yaml:"mode" default:"redis"`
	TTL       time.Duration `yaml:"ttl" default:"30s"`
	KeyPrefix string        `yaml:"key_prefix" default:"meme_coin"`
	MaxItems  int           `yaml:"max_items" default:"10000"`
}

type RedisConfig struct {
	Addr        string        `yaml:"addr" default:"localhost:6379"`
	Password    string        `yaml:"password"`
	DB          int           `yaml:"db"`
	PoolSize    int           `yaml:"pool_size" default:"10"`
	PingTimeout time.Duration `yaml:"ping_timeout" default:"3s"`
}

type RateLimitConfig struct {
	Enabled     bool          `yaml:"enabled" default:"true"`
	Window      time.Duration `yaml:"window" default:"1m"`
	MaxRequests int           `yaml:"max_requests" default:"100"`
}

type RetryConfig struct {
	MaxAttempts int           `yaml:"max_attempts" default:"3"`
	Backoff     time.Duration `yaml:"backoff" default:"300ms"`
}

type SourceConfig struct {
	Enabled            bool          `yaml:"enabled" default:"true"`
	BaseURL            string        `yaml:"base_url"`
	Timeout            time.Duration `yaml:"timeout" default:"10s"`
	RateLimitPerMinute int           `yaml:"rate_limit_per_minute" default:"60"`
	// CacheTTL overrides cache.ttl for this source when set.
	CacheTTL time.Duration `yaml:"cache_ttl"`
	Network  string        `yaml:"network"`
}

type SourcesConfig struct {
	DexScreener   SourceConfig `yaml:"dexscreener"`
	GeckoTerminal SourceConfig `yaml:"geckoterminal"`
	Jupiter       SourceConfig `yaml:"jupiter"`
}

type MergeConfig struct {
	// SpreadPenalty converts the relative price spread into confidence points.
	SpreadPenalty float64 `yaml:"spread_penalty" default:"1000"`
}

type WebSocketConfig struct {
	Path                string        `yaml:"path" default:"/ws"`
	// PollInterval overrides the poll cadence; unset follows cache.ttl.
	PollInterval        time.Duration `yaml:"poll_interval"`
	HeartbeatInterval   time.Duration `yaml:"heartbeat_interval" default:"30s"`
	LeaderboardInterval time.Duration `yaml:"leaderboard_interval" default:"60s"`
	MaxConnections      int           `yaml:"max_connections" default:"1000"`
	SendBuffer          int           `yaml:"send_buffer" default:"64"`
	MaxMessageRate      float64       `yaml:"max_message_rate" default:"10"`
	MaxMessageBurst     int           `yaml:"max_message_burst" default:"20"`
	MaxAddresses        int           `yaml:"max_addresses" default:"50"`
	WriteTimeout        time.Duration `yaml:"write_timeout" default:"10s"`
}

type PublisherConfig struct {
	// Type is none, redis or kafka.
	Type    string      `yaml:"type" default:"none"`
	Channel string      `yaml:"channel" default:"meme_coin:updates"`
	Kafka   KafkaConfig `yaml:"kafka"`
}

type KafkaConfig struct {
	Brokers      []string      `yaml:"brokers"`
	Topic        string        `yaml:"topic" default:"token-updates"`
	RequiredAcks int           `yaml:"required_acks" default:"1"`
	Compression  string        `yaml:"compression" default:"snappy"`
	MaxAttempts  int           `yaml:"max_attempts" default:"3"`
	BatchSize    int           `yaml:"batch_size" default:"100"`
	Linger       time.Duration `yaml:"linger" default:"50ms"`
	WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
	Async        bool          `yaml:"async"`
}

// Default returns a configuration populated from struct defaults only.
func Default() *Config {
	var c Config
	if err := setDefaults(&c); err != nil {
		panic(err)
	}
	return &c
}

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b)
}

// Parse decodes YAML on top of the defaults and validates the result.
func Parse(b []byte) (*Config, error) {
	var c Config
	if err := setDefaults(&c); err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &c, nil
}

// LoadWithEnv loads config from YAML and overrides with environment variables.
// A missing file is not an error; defaults and environment still apply.
func LoadWithEnv(path string) (*Config, error) {
	var (
		c   *Config
		err error
	)
	if _, statErr := os.Stat(path); statErr == nil {
		c, err = Load(path)
		if err != nil {
			return nil, err
		}
	} else {
		c = Default()
	}

	c.applyEnv(os.Getenv)

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

func (c *Config) applyEnv(getenv func(string) string) {
	if v := getenv("ENVIRONMENT"); v != "" {
		c.Environment = v
	}
	if v := getenv("PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Server.Port = n
		}
	}
	if v := getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := getenv("CACHE_MODE"); v != "" {
		c.Cache.Mode = v
	}
	if v := getenv("CACHE_TTL"); v != "" {
		if d, ok := parseSeconds(v); ok {
			c.Cache.TTL = d
		}
	}
	if v := getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
	}
	if v := getenv("REDIS_PASSWORD"); v != "" {
		c.Redis.Password = v
	}
	if v := getenv("DEXSCREENER_BASE_URL"); v != "" {
		c.Sources.DexScreener.BaseURL = v
	}
	if v := getenv("GECKOTERMINAL_BASE_URL"); v != "" {
		c.Sources.GeckoTerminal.BaseURL = v
	}
	if v := getenv("JUPITER_BASE_URL"); v != "" {
		c.Sources.Jupiter.BaseURL = v
	}
	if v := getenv("PUBLISHER"); v != "" {
		c.Publisher.Type = v
	}
	if v := getenv("KAFKA_BROKERS"); v != "" {
		c.Publisher.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := getenv("KAFKA_TOPIC"); v != "" {
		c.Publisher.Kafka.Topic = v
	}
}

// PollInterval is the realtime poll cadence: websocket.poll_interval when
// set, otherwise the cache TTL so every poll sees fresh data.
func (c *Config) PollInterval() time.Duration {
	if c.WebSocket.PollInterval > 0 {
		return c.WebSocket.PollInterval
	}
	return c.Cache.TTL
}

// parseSeconds accepts either a Go duration or a bare number of seconds.
func parseSeconds(v string) (time.Duration, bool) {
	if d, err := time.ParseDuration(v); err == nil {
		return d, true
	}
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second, true
	}
	return 0, false
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Environment == "" {
		return fmt.Errorf("environment is required")
	}
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be positive, got %d", c.Server.Port)
	}
	switch c.Cache.Mode {
	case "memory", "redis", "layered":
	default:
		return fmt.Errorf("cache.mode must be 'memory', 'redis' or 'layered', got '%s'", c.Cache.Mode)
	}
	if c.Cache.TTL <= 0 {
		return fmt.Errorf("cache.ttl must be positive")
	}
	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("retry.max_attempts must be at least 1")
	}
	for name, s := range map[string]SourceConfig{
		"dexscreener":   c.Sources.DexScreener,
		"geckoterminal": c.Sources.GeckoTerminal,
		"jupiter":       c.Sources.Jupiter,
	} {
		if s.Enabled && s.RateLimitPerMinute <= 0 {
			return fmt.Errorf("sources.%s.rate_limit_per_minute must be positive", name)
		}
	}
	if c.Merge.SpreadPenalty < 0 {
		return fmt.Errorf("merge.spread_penalty cannot be negative")
	}
	if c.WebSocket.HeartbeatInterval <= 0 {
		return fmt.Errorf("websocket.heartbeat_interval must be positive")
	}
	if c.WebSocket.PollInterval < 0 {
		return fmt.Errorf("websocket.poll_interval cannot be negative")
	}
	if c.WebSocket.MaxConnections <= 0 {
		return fmt.Errorf("websocket.max_connections must be positive")
	}
	switch c.Publisher.Type {
	case "none", "redis":
	case "kafka":
		if len(c.Publisher.Kafka.Brokers) == 0 {
			return fmt.Errorf("publisher.kafka.brokers cannot be empty")
		}
	default:
		return fmt.Errorf("publisher.type must be 'none', 'redis' or 'kafka', got '%s'", c.Publisher.Type)
	}
	return nil
}

func setDefaults(c *Config) error {
	if err := defaults.Set(c); err != nil {
		return fmt.Errorf("config defaults: %w", err)
	}
	if c.Sources.DexScreener.BaseURL == "" {
		c.Sources.DexScreener.BaseURL = "https://api.dexscreener.com/latest/dex"
	}
	if c.Sources.GeckoTerminal.BaseURL == "" {
		c.Sources.GeckoTerminal.BaseURL = "https://api.geckoterminal.com/api/v2"
	}
	if c.Sources.GeckoTerminal.Network == "" {
		c.Sources.GeckoTerminal.Network = "solana"
	}
	if c.Sources.Jupiter.BaseURL == "" {
		c.Sources.Jupiter.BaseURL = "https://price.jup.ag/v4"
	}
	if c.Sources.Jupiter.CacheTTL == 0 {
		c.Sources.Jupiter.CacheTTL = 15 * time.Second
	}
	return nil
}
