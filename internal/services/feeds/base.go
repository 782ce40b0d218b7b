package feeds

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"TokenPulse/internal/domain/models"
	"TokenPulse/internal/domain/repository"
	"TokenPulse/internal/service/ratelimit"
	xhttp "TokenPulse/pkg/http"
	applogger "TokenPulse/pkg/logger"

	"github.com/shopspring/decimal"
)

// ErrBudgetExhausted is returned by single-shot calls when the per-minute
// request budget of a feed is spent.
var ErrBudgetExhausted = errors.New("feeds: request budget exhausted")

// Config describes one upstream feed.
type Config struct {
	BaseURL            string
	Timeout            time.Duration
	RateLimitPerMinute int
	CacheTTL           time.Duration
	MaxAttempts        int
	Backoff            time.Duration
}

// Public feeds answer bare programmatic clients with 403.
const (
	browserUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	acceptLanguage   = "en-US,en;q=0.9"
)

// BaseOption customises a Base.
type BaseOption func(*Base)

// WithSleep replaces the backoff sleeper, for tests.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) BaseOption {
	return func(b *Base) { b.sleep = fn }
}

// WithClock replaces the clock used for budgets and snapshot timestamps.
func WithClock(now func() time.Time) BaseOption {
	return func(b *Base) { b.now = now }
}

// Base is the shared plumbing of every feed client: budget, retries,
// cache-aside and per-call metrics.
type Base struct {
	source   models.Source
	baseURL  string
	client   *xhttp.Client
	cache    repository.Cache
	metrics  repository.Metrics
	log      *applogger.Logger
	budget   *ratelimit.Window
	ttl      time.Duration
	attempts int
	backoff  time.Duration
	sleep    func(ctx context.Context, d time.Duration) error
	now      func() time.Time
}

// NewBase builds the plumbing for src from cfg.
func NewBase(src models.Source, cfg Config, cache repository.Cache, m repository.Metrics, l *applogger.Logger, opts ...BaseOption) *Base {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 3
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = 300 * time.Millisecond
	}
	client := xhttp.NewClient(
		xhttp.WithTimeout(cfg.Timeout),
		xhttp.WithHeader("User-Agent", browserUserAgent),
		xhttp.WithHeader("Accept-Language", acceptLanguage),
	)
	b := &Base{
		source:   src,
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		client:   client,
		cache:    cache,
		metrics:  m,
		log:      l.With(applogger.String("source", src.String())),
		ttl:      cfg.CacheTTL,
		attempts: cfg.MaxAttempts,
		backoff:  cfg.Backoff,
		sleep:    sleepCtx,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	b.budget = ratelimit.NewWindow(cfg.RateLimitPerMinute, time.Minute).WithClock(b.now)
	return b
}

// Source returns the feed tag.
func (b *Base) Source() models.Source {
	return b.source
}

// NowMillis is the snapshot timestamp for data fetched now.
func (b *Base) NowMillis() int64 {
	return b.now().UnixMilli()
}

// CacheKey scopes key under the feed tag.
func (b *Base) CacheKey(parts ...string) string {
	return b.source.String() + ":" + strings.Join(parts, ":")
}

// GetJSON performs one GET against path under the base URL.
func (b *Base) GetJSON(ctx context.Context, path string, query url.Values, dest interface{}) error {
	start := b.now()
	err := b.client.SendAndParse(ctx, &xhttp.RequestOptions{
		Method:      xhttp.MethodGet,
		URL:         b.baseURL + path,
		QueryParams: query,
	}, dest)
	b.metrics.ObserveSourceLatency(b.source.String(), b.now().Sub(start), err == nil)
	if err != nil {
		return fmt.Errorf("get %s: %w", path, err)
	}
	return nil
}

// GetJSONWithRetry retries transient failures with linear backoff
// (attempt x backoff). Permanent failures return immediately.
func (b *Base) GetJSONWithRetry(ctx context.Context, path string, query url.Values, dest interface{}) error {
	var err error
	for attempt := 1; attempt <= b.attempts; attempt++ {
		err = b.GetJSON(ctx, path, query, dest)
		if err == nil {
			return nil
		}
		if !IsRetryable(ctx, err) || attempt == b.attempts {
			return err
		}
		b.log.Warn("feed.retrying",
			applogger.String("path", path),
			applogger.Int("attempt", attempt),
			applogger.Int("status", xhttp.StatusCode(err)),
		)
		if serr := b.sleep(ctx, time.Duration(attempt)*b.backoff); serr != nil {
			return serr
		}
	}
	return err
}

// IsRetryable reports whether err is worth another attempt: 429, 503 and
// transport failures are; any other status or a decode error is not.
func IsRetryable(ctx context.Context, err error) bool {
	if err == nil || ctx.Err() != nil {
		return false
	}
	switch xhttp.StatusCode(err) {
	case http.StatusTooManyRequests, http.StatusServiceUnavailable:
		return true
	case 0:
		var uerr *url.Error
		return errors.As(err, &uerr)
	default:
		return false
	}
}

// TakeBudget consumes one request from the per-minute budget.
func (b *Base) TakeBudget() bool {
	return b.budget.Allow()
}

// FetchFunc fetches the snapshots for one address over the network.
type FetchFunc func(ctx context.Context, address string) ([]models.PriceSnapshot, error)

// Collect runs fetch for every address with cache-aside and the request
// budget: one unit per uncached address, retries included. Failures skip
// the address. Once the budget is spent, remaining
// addresses are served from cache only.
func (b *Base) Collect(ctx context.Context, addresses []string, fetch FetchFunc) []models.PriceSnapshot {
	var (
		out       []models.PriceSnapshot
		exhausted bool
	)
	for i, addr := range addresses {
		key := b.CacheKey(strings.ToLower(addr))

		var cached []models.PriceSnapshot
		hit := b.cache.Get(ctx, key, &cached)
		b.metrics.RecordCacheLookup(b.source.String(), hit)
		if hit {
			out = append(out, cached...)
			continue
		}

		if exhausted {
			continue
		}
		if !b.TakeBudget() {
			exhausted = true
			b.log.Warn("feed.budget_exhausted", applogger.Int("remaining", len(addresses)-i))
			continue
		}

		snaps, err := fetch(ctx, addr)
		if err != nil {
			b.logFetchError(addr, err)
			continue
		}
		if len(snaps) == 0 {
			b.log.Debug("feed.no_data", applogger.String("address", addr))
			continue
		}
		b.cache.Set(ctx, key, snaps, b.ttl)
		out = append(out, snaps...)
	}
	return out
}

// CachedSearch wraps a search call with cache-aside under the feed scope.
// An uncached search consumes one unit of budget; its retries do not.
func (b *Base) CachedSearch(ctx context.Context, query string, search func(ctx context.Context) ([]models.PriceSnapshot, error)) ([]models.PriceSnapshot, error) {
	key := b.CacheKey("search", strings.ToLower(strings.TrimSpace(query)))

	var cached []models.PriceSnapshot
	if b.cache.Get(ctx, key, &cached) {
		b.metrics.RecordCacheLookup(b.source.String(), true)
		return cached, nil
	}
	b.metrics.RecordCacheLookup(b.source.String(), false)

	if !b.TakeBudget() {
		return nil, ErrBudgetExhausted
	}
	snaps, err := search(ctx)
	if err != nil {
		return nil, err
	}
	if len(snaps) > 0 {
		b.cache.Set(ctx, key, snaps, b.ttl)
	}
	return snaps, nil
}

func (b *Base) logFetchError(addr string, err error) {
	code := xhttp.StatusCode(err)
	fields := []applogger.Field{
		applogger.String("address", addr),
		applogger.Int("status", code),
		applogger.Error(err),
	}
	switch code {
	case http.StatusNotFound:
		b.log.Debug("feed.not_found", fields...)
	case http.StatusForbidden:
		b.log.Error("feed.forbidden", fields...)
	default:
		b.log.Error("feed.fetch_failed", fields...)
	}
	b.metrics.RecordError(b.source.String() + "_fetch")
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// parseUSD parses a decimal string as reported by the feeds. Empty or
// malformed input yields ok=false.
func parseUSD(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, false
	}
	f, _ := d.Float64()
	return f, true
}

// optUSD is parseUSD as an optional figure.
func optUSD(s string) *float64 {
	if v, ok := parseUSD(s); ok {
		return models.Float(v)
	}
	return nil
}
