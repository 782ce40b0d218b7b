package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"TokenPulse/pkg/cache"
	applogger "TokenPulse/pkg/logger"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingCounter struct{}

func (failingCounter) Increment(context.Context, string, time.Duration) (int64, error) {
	return 0, errors.New("connection refused")
}

func serve(e *echo.Echo, ip string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/api/tokens", nil)
	req.Header.Set(echo.HeaderXRealIP, ip)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func newLimited(counter Counter, max int) *echo.Echo {
	e := echo.New()
	e.Use(RateLimit(counter, RateLimitConfig{Window: time.Minute, MaxRequests: max}, applogger.NewNop()))
	e.GET("/api/tokens", func(c echo.Context) error { return c.NoContent(http.StatusOK) })
	return e
}

func TestRateLimit_BlocksAfterLimitPerIP(t *testing.T) {
	mc := cache.NewMemoryCache()
	defer mc.Close()
	e := newLimited(mc, 2)

	for i := 0; i < 2; i++ {
		rec := serve(e, "10.0.0.1")
		require.Equal(t, http.StatusOK, rec.Code)
	}
	rec := serve(e, "10.0.0.1")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "2", rec.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, rec.Header().Get("X-RateLimit-Reset"))

	// other clients have their own window
	assert.Equal(t, http.StatusOK, serve(e, "10.0.0.2").Code)
}

func TestRateLimit_AllowsWhenCounterFails(t *testing.T) {
	e := newLimited(failingCounter{}, 1)
	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusOK, serve(e, "10.0.0.1").Code)
	}
}
