package server

import (
	"context"
	"testing"
	"time"

	"TokenPulse/internal/domain/models"
	"TokenPulse/internal/middleware"
	"TokenPulse/internal/repository"
	"TokenPulse/internal/service/realtime"
	pkgcache "TokenPulse/pkg/cache"
	"TokenPulse/pkg/config"
	xhttp "TokenPulse/pkg/http"
	applogger "TokenPulse/pkg/logger"
	pkgmetrics "TokenPulse/pkg/metrics"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type noAggregator struct{}

func (noAggregator) Aggregate(context.Context, []string) []models.AggregatedToken { return nil }
func (noAggregator) Search(context.Context, string) []models.AggregatedToken      { return nil }

type noRanker struct{}

func (noRanker) Top(context.Context, models.RankMetric, int, models.Interval) models.TopResult {
	return models.TopResult{}
}

func (noRanker) Leaderboard(context.Context, int) (models.Leaderboard, bool) {
	return models.Leaderboard{}, false
}

type closedConn struct{ closed bool }

func (c *closedConn) ReadMessage() (int, []byte, error)  { return 0, nil, websocket.ErrCloseSent }
func (c *closedConn) WriteMessage(int, []byte) error      { return nil }
func (c *closedConn) SetWriteDeadline(time.Time) error    { return nil }
func (c *closedConn) Close() error                        { c.closed = true; return nil }

func TestApp_ShutdownRefusesLateClients(t *testing.T) {
	cfg := config.Default()
	cfg.Server.Port = 0
	l := applogger.NewNop()
	m := pkgmetrics.Nop{}

	b := realtime.NewBroadcaster(noAggregator{}, noRanker{}, middleware.NewMessagePipeline(m),
		repository.NoopPublisher{}, m, l, realtime.Config{})
	srv := xhttp.NewServer(l, nil, xhttp.WithPort(0))
	app := New(cfg, l, srv, b, repository.NoopPublisher{}, pkgcache.NewMemoryCache())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.RunContext(ctx) }()
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("app did not shut down")
	}

	late := &closedConn{}
	assert.ErrorIs(t, b.Serve(late), realtime.ErrStopped)
	assert.True(t, late.closed)
}
