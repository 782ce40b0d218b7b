package middleware

import (
	"context"
	"net/http"
	"strconv"
	"time"

	applogger "TokenPulse/pkg/logger"

	"github.com/labstack/echo/v4"
)

// Counter is the subset of a cache used for fixed-window counting.
type Counter interface {
	Increment(ctx context.Context, key string, window time.Duration) (int64, error)
}

// RateLimitConfig configures RateLimit.
type RateLimitConfig struct {
	Window      time.Duration
	MaxRequests int
	KeyPrefix   string
	Now         func() time.Time
}

// RateLimit enforces a fixed window per client IP using a shared counter.
// When the counter is unavailable requests are allowed through.
func RateLimit(counter Counter, cfg RateLimitConfig, l *applogger.Logger) echo.MiddlewareFunc {
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "rate_limit"
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	limit := strconv.Itoa(cfg.MaxRequests)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ip := c.RealIP()
			n, err := counter.Increment(c.Request().Context(), cfg.KeyPrefix+":"+ip, cfg.Window)
			if err != nil {
				l.Warn("ratelimit.counter_unavailable", applogger.String("ip", ip), applogger.Error(err))
				return next(c)
			}

			remaining := int64(cfg.MaxRequests) - n
			if remaining < 0 {
				remaining = 0
			}
			h := c.Response().Header()
			h.Set("X-RateLimit-Limit", limit)
			h.Set("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))
			h.Set("X-RateLimit-Reset", strconv.FormatInt(cfg.Now().Add(cfg.Window).Unix(), 10))

			if n > int64(cfg.MaxRequests) {
				return c.JSON(http.StatusTooManyRequests, map[string]interface{}{
					"status":     http.StatusTooManyRequests,
					"message":    "Too many requests, please try again later.",
					"retryAfter": int(cfg.Window.Seconds()),
				})
			}
			return next(c)
		}
	}
}
