package di

import (
	"context"
	"fmt"
	"time"

	"TokenPulse/internal/domain/models"
	domrepo "TokenPulse/internal/domain/repository"
	"TokenPulse/internal/handler/api"
	"TokenPulse/internal/handler/ws"
	"TokenPulse/internal/middleware"
	internalrepo "TokenPulse/internal/repository"
	icache "TokenPulse/internal/service/cache"
	svcmetrics "TokenPulse/internal/service/metrics"
	"TokenPulse/internal/service/realtime"
	"TokenPulse/internal/services/feeds"
	"TokenPulse/internal/usecase"
	pkgcache "TokenPulse/pkg/cache"
	"TokenPulse/pkg/config"
	xhttp "TokenPulse/pkg/http"
	httpmw "TokenPulse/pkg/http/middleware"
	pkgkafka "TokenPulse/pkg/kafka"
	applogger "TokenPulse/pkg/logger"
	pkgmetrics "TokenPulse/pkg/metrics"
	"TokenPulse/pkg/server"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const cacheOpTimeout = 2 * time.Second

// ProvideLogger creates the application logger from cfg.Log.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	l, err := applogger.New(&applogger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return l.With(applogger.String("env", cfg.Environment)), nil
}

// ProvideRegistry creates the Prometheus registry served on the metrics path.
func ProvideRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return reg
}

// ProvideCollector creates the rolling metrics window. Observations are
// mirrored to Prometheus when metrics are enabled.
func ProvideCollector(cfg *config.Config, reg *prometheus.Registry) *svcmetrics.Collector {
	var sink domrepo.Metrics = pkgmetrics.Nop{}
	if cfg.Metrics.Enabled {
		sink = pkgmetrics.New(reg)
	}
	return svcmetrics.NewCollector(sink, svcmetrics.WithMaxSamples(cfg.Metrics.SampleSize))
}

// ProvideRedisCache creates the Redis client when the cache mode or the
// publisher needs one, and nil otherwise. An unreachable server is logged,
// not fatal: cache reads then degrade to misses.
func ProvideRedisCache(cfg *config.Config, l *applogger.Logger) *pkgcache.RedisCache {
	if cfg.Cache.Mode == "memory" && cfg.Publisher.Type != "redis" {
		return nil
	}
	rc := pkgcache.NewRedisCache(
		pkgcache.WithRedisAddr(cfg.Redis.Addr),
		pkgcache.WithRedisPassword(cfg.Redis.Password),
		pkgcache.WithRedisDB(cfg.Redis.DB),
		pkgcache.WithRedisPool(cfg.Redis.PoolSize, 2, 30*time.Second),
		pkgcache.WithRedisPrefix(cfg.Cache.KeyPrefix),
	)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Redis.PingTimeout)
	defer cancel()
	if err := rc.Ping(ctx); err != nil {
		l.Warn("redis.unreachable", applogger.String("addr", cfg.Redis.Addr), applogger.Error(err))
	} else {
		l.Info("redis.connected", applogger.String("addr", cfg.Redis.Addr))
	}
	return rc
}

// ProvideCacheBackend selects the cache backend by cfg.Cache.Mode.
func ProvideCacheBackend(cfg *config.Config, redis *pkgcache.RedisCache) pkgcache.Service {
	switch cfg.Cache.Mode {
	case "redis":
		return redis
	case "layered":
		return pkgcache.NewLayeredCache(redis,
			pkgcache.WithLayeredMemorySize(cfg.Cache.MaxItems),
			pkgcache.WithLayeredMemoryTTL(cfg.Cache.TTL),
		)
	default:
		return pkgcache.NewMemoryCache(pkgcache.WithMemoryMaxSize(cfg.Cache.MaxItems))
	}
}

// ProvideStore wraps the backend in the degrade-gracefully contract.
func ProvideStore(backend pkgcache.Service, l *applogger.Logger) *icache.Store {
	return icache.NewStore(backend, l, cacheOpTimeout)
}

func feedConfig(cfg *config.Config, s config.SourceConfig) feeds.Config {
	ttl := s.CacheTTL
	if ttl <= 0 {
		ttl = cfg.Cache.TTL
	}
	return feeds.Config{
		BaseURL:            s.BaseURL,
		Timeout:            s.Timeout,
		RateLimitPerMinute: s.RateLimitPerMinute,
		CacheTTL:           ttl,
		MaxAttempts:        cfg.Retry.MaxAttempts,
		Backoff:            cfg.Retry.Backoff,
	}
}

// ProvideSources builds the enabled token feeds in fan-out order.
func ProvideSources(cfg *config.Config, store *icache.Store, m *svcmetrics.Collector, l *applogger.Logger) []domrepo.PriceSource {
	var sources []domrepo.PriceSource
	if s := cfg.Sources.DexScreener; s.Enabled {
		base := feeds.NewBase(models.SourceDexScreener, feedConfig(cfg, s), store, m, l)
		sources = append(sources, feeds.NewDexScreener(base))
	}
	if s := cfg.Sources.GeckoTerminal; s.Enabled {
		base := feeds.NewBase(models.SourceGeckoTerminal, feedConfig(cfg, s), store, m, l)
		sources = append(sources, feeds.NewGeckoTerminal(base, s.Network))
	}
	if len(sources) == 0 {
		l.Warn("feeds.none_enabled")
	}
	return sources
}

// ProvideAggregator creates the merge engine, with the price oracle when
// Jupiter is enabled.
func ProvideAggregator(
	cfg *config.Config,
	sources []domrepo.PriceSource,
	store *icache.Store,
	m *svcmetrics.Collector,
	l *applogger.Logger,
) *usecase.TokenAggregator {
	opts := []usecase.AggregatorOption{
		usecase.WithTTL(cfg.Cache.TTL),
		usecase.WithSpreadPenalty(cfg.Merge.SpreadPenalty),
	}
	if s := cfg.Sources.Jupiter; s.Enabled {
		base := feeds.NewBase(models.SourceJupiter, feedConfig(cfg, s), store, m, l)
		opts = append(opts, usecase.WithOracle(feeds.NewJupiter(base)))
	}
	return usecase.NewTokenAggregator(sources, store, m, l, opts...)
}

// ProvideTopMovers creates the ranking service over cached aggregates.
func ProvideTopMovers(store *icache.Store, l *applogger.Logger) *usecase.TopMovers {
	return usecase.NewTopMovers(store, l)
}

// ProvideMessagePipeline creates the inbound websocket message gate.
func ProvideMessagePipeline(cfg *config.Config, m *svcmetrics.Collector) *middleware.MessagePipeline {
	return middleware.NewMessagePipeline(m,
		middleware.WithRate(cfg.WebSocket.MaxMessageRate, cfg.WebSocket.MaxMessageBurst),
		middleware.WithMaxAddresses(cfg.WebSocket.MaxAddresses),
	)
}

// ProvidePublisher selects where poll results are fanned out to.
func ProvidePublisher(cfg *config.Config, redis *pkgcache.RedisCache, reg *prometheus.Registry, l *applogger.Logger) (domrepo.UpdatePublisher, error) {
	switch cfg.Publisher.Type {
	case "redis":
		l.Info("publisher.redis", applogger.String("channel", cfg.Publisher.Channel))
		return internalrepo.NewRedisPublisher(redis, cfg.Publisher.Channel), nil
	case "kafka":
		k := cfg.Publisher.Kafka
		opts := []pkgkafka.ProducerOption{
			pkgkafka.WithBrokers(k.Brokers),
			pkgkafka.WithTopic(k.Topic),
			pkgkafka.WithCompression(k.Compression),
			pkgkafka.WithRequiredAcks(k.RequiredAcks),
			pkgkafka.WithMaxAttempts(k.MaxAttempts),
			pkgkafka.WithBatching(k.BatchSize, k.Linger),
			pkgkafka.WithWriteTimeout(k.WriteTimeout),
			pkgkafka.WithAsync(k.Async),
		}
		if cfg.Metrics.Enabled {
			opts = append(opts, pkgkafka.WithRegisterer(reg))
		}
		producer, err := pkgkafka.NewProducer(opts...)
		if err != nil {
			return nil, fmt.Errorf("kafka producer: %w", err)
		}
		l.Info("publisher.kafka", applogger.Strings("brokers", k.Brokers), applogger.String("topic", k.Topic))
		return internalrepo.NewKafkaPublisher(producer), nil
	default:
		return internalrepo.NoopPublisher{}, nil
	}
}

// ProvideBroadcaster creates the realtime client registry.
func ProvideBroadcaster(
	cfg *config.Config,
	agg *usecase.TokenAggregator,
	ranker *usecase.TopMovers,
	pipe *middleware.MessagePipeline,
	pub domrepo.UpdatePublisher,
	m *svcmetrics.Collector,
	l *applogger.Logger,
) *realtime.Broadcaster {
	wc := cfg.WebSocket
	return realtime.NewBroadcaster(agg, ranker, pipe, pub, m, l, realtime.Config{
		PollInterval:        cfg.PollInterval(),
		HeartbeatInterval:   wc.HeartbeatInterval,
		LeaderboardInterval: wc.LeaderboardInterval,
		LeaderboardSize:     usecase.DefaultLeaderboardSize,
		MaxConnections:      wc.MaxConnections,
		SendBuffer:          wc.SendBuffer,
		WriteTimeout:        wc.WriteTimeout,
	})
}

// ProvideTokenHandler creates the REST handler, rate limited per client IP
// when enabled.
func ProvideTokenHandler(
	cfg *config.Config,
	info api.ServiceInfo,
	agg *usecase.TokenAggregator,
	ranker *usecase.TopMovers,
	m *svcmetrics.Collector,
	b *realtime.Broadcaster,
	backend pkgcache.Service,
	l *applogger.Logger,
) *api.TokenHandler {
	var limiter echo.MiddlewareFunc
	if cfg.RateLimit.Enabled {
		limiter = httpmw.RateLimit(backend, httpmw.RateLimitConfig{
			Window:      cfg.RateLimit.Window,
			MaxRequests: cfg.RateLimit.MaxRequests,
		}, l)
	}
	return api.NewTokenHandler(l, agg, ranker, m, b, info, limiter)
}

// ProvideWSHandler creates the websocket upgrade endpoint.
func ProvideWSHandler(cfg *config.Config, b *realtime.Broadcaster, l *applogger.Logger) *ws.Handler {
	return ws.NewHandler(l, b, cfg.WebSocket.Path, cfg.Server.CORSOrigins)
}

// ProvideHTTPServer creates the Echo server with both handlers.
func ProvideHTTPServer(
	cfg *config.Config,
	th *api.TokenHandler,
	wh *ws.Handler,
	reg *prometheus.Registry,
	l *applogger.Logger,
) *xhttp.Server {
	opts := []xhttp.ServerOption{
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
	}
	if len(cfg.Server.CORSOrigins) > 0 {
		opts = append(opts, xhttp.WithCORSOrigins(cfg.Server.CORSOrigins))
	}
	if cfg.Metrics.Enabled {
		opts = append(opts, xhttp.WithMetrics(cfg.Metrics.Path, reg, reg))
	}
	return xhttp.NewServer(l, []xhttp.Handler{th, wh}, opts...)
}

// ProvideApp assembles the process lifecycle.
func ProvideApp(
	cfg *config.Config,
	l *applogger.Logger,
	srv *xhttp.Server,
	b *realtime.Broadcaster,
	pub domrepo.UpdatePublisher,
	backend pkgcache.Service,
) *server.App {
	return server.New(cfg, l, srv, b, pub, backend)
}
