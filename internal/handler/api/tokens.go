package api

import (
	"time"

	"TokenPulse/internal/domain/models"
	domsvc "TokenPulse/internal/domain/service"
	xhttp "TokenPulse/pkg/http"
	xlogger "TokenPulse/pkg/logger"

	"github.com/labstack/echo/v4"
)

// ClientCounter reports connected realtime clients.
type ClientCounter interface {
	ClientCount() int
}

// ServiceInfo identifies the running process on /api/status.
type ServiceInfo struct {
	Name    string
	Version string
	Started time.Time
}

// TokenHandler serves the token, search, ranking and status endpoints.
type TokenHandler struct {
	logger  *xlogger.Logger
	agg     domsvc.Aggregator
	ranker  domsvc.Ranker
	metrics domsvc.MetricsReader
	clients ClientCounter
	info    ServiceInfo
	limiter echo.MiddlewareFunc
	now     func() time.Time
}

// NewTokenHandler wires the handler. limiter guards the whole /api group
// and may be nil.
func NewTokenHandler(
	logger *xlogger.Logger,
	agg domsvc.Aggregator,
	ranker domsvc.Ranker,
	metrics domsvc.MetricsReader,
	clients ClientCounter,
	info ServiceInfo,
	limiter echo.MiddlewareFunc,
) *TokenHandler {
	if info.Started.IsZero() {
		info.Started = time.Now()
	}
	return &TokenHandler{
		logger:  logger,
		agg:     agg,
		ranker:  ranker,
		metrics: metrics,
		clients: clients,
		info:    info,
		limiter: limiter,
		now:     time.Now,
	}
}

func (h *TokenHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api")
	if h.limiter != nil {
		g.Use(h.limiter)
	}
	g.GET("/tokens", h.Tokens)
	g.GET("/search", h.Search)
	g.GET("/top", h.Top)
	g.GET("/metrics", h.Metrics)
	g.GET("/status", h.Status)
	g.GET("/health", h.Health)
}

// Tokens returns the merged view of the requested addresses. An outage is
// an empty list, not an error.
func (h *TokenHandler) Tokens(c echo.Context) error {
	req := &models.TokensRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	data := h.agg.Aggregate(c.Request().Context(), xhttp.SplitCSV(req.Addresses))
	c.Response().Header().Set(echo.HeaderCacheControl, "public, max-age=10")
	return xhttp.SuccessResponse(c, data)
}

func (h *TokenHandler) Search(c echo.Context) error {
	req := &models.SearchRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	return xhttp.SuccessResponse(c, h.agg.Search(c.Request().Context(), req.Query))
}

func (h *TokenHandler) Top(c echo.Context) error {
	req := &models.TopRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	res := h.ranker.Top(c.Request().Context(), models.RankMetric(req.Metric), req.Limit, models.NormalizeInterval(req.Interval))
	return xhttp.SuccessResponse(c, res)
}

func (h *TokenHandler) Metrics(c echo.Context) error {
	return xhttp.SuccessResponse(c, h.metrics.Snapshot())
}

type statusResponse struct {
	Service       string            `json:"service"`
	Version       string            `json:"version"`
	Status        string            `json:"status"`
	Uptime        string            `json:"uptime"`
	UptimeSeconds int64             `json:"uptime_seconds"`
	Cache         statusCache       `json:"cache"`
	Performance   statusPerformance `json:"performance"`
	WebSocket     statusWebSocket   `json:"websocket"`
	Timestamp     int64             `json:"timestamp"`
}

type statusCache struct {
	Hits          int     `json:"hits"`
	Misses        int     `json:"misses"`
	HitRate       float64 `json:"hit_rate"`
	TotalRequests int     `json:"total_requests"`
}

type statusPerformance struct {
	AvgLatencyMs       float64            `json:"avg_latency_ms"`
	RequestsLastMinute int                `json:"requests_last_minute"`
	SourceLatencies    map[string]float64 `json:"source_latencies"`
}

type statusWebSocket struct {
	ActiveConnections int `json:"active_connections"`
}

func (h *TokenHandler) Status(c echo.Context) error {
	now := h.now()
	uptime := now.Sub(h.info.Started).Truncate(time.Second)
	snap := h.metrics.Snapshot()

	active := 0
	if h.clients != nil {
		active = h.clients.ClientCount()
	}

	return xhttp.SuccessResponse(c, statusResponse{
		Service:       h.info.Name,
		Version:       h.info.Version,
		Status:        "running",
		Uptime:        uptime.String(),
		UptimeSeconds: int64(uptime.Seconds()),
		Cache: statusCache{
			Hits:          snap.CacheHits,
			Misses:        snap.CacheMisses,
			HitRate:       snap.CacheHitRate,
			TotalRequests: snap.TotalRequests,
		},
		Performance: statusPerformance{
			AvgLatencyMs:       snap.AvgLatency,
			RequestsLastMinute: snap.RequestsLastMinute,
			SourceLatencies:    snap.SourceLatencies,
		},
		WebSocket: statusWebSocket{ActiveConnections: active},
		Timestamp: now.UnixMilli(),
	})
}

func (h *TokenHandler) Health(c echo.Context) error {
	return xhttp.SuccessResponse(c, map[string]interface{}{
		"status":    "ok",
		"timestamp": h.now().UnixMilli(),
	})
}
