package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"TokenPulse/internal/domain/models"
	"TokenPulse/internal/middleware"
	"TokenPulse/internal/repository"
	"TokenPulse/internal/service/realtime"
	xhttp "TokenPulse/pkg/http"
	xlogger "TokenPulse/pkg/logger"
	pkgmetrics "TokenPulse/pkg/metrics"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type echoAggregator struct{}

func (echoAggregator) Aggregate(_ context.Context, addresses []string) []models.AggregatedToken {
	out := make([]models.AggregatedToken, 0, len(addresses))
	for _, a := range addresses {
		out = append(out, models.AggregatedToken{Token: models.Token{Address: a, Symbol: "TKN"}, AveragePrice: 2})
	}
	return out
}

func (echoAggregator) Search(context.Context, string) []models.AggregatedToken { return nil }

type emptyRanker struct{}

func (emptyRanker) Top(context.Context, models.RankMetric, int, models.Interval) models.TopResult {
	return models.TopResult{}
}

func (emptyRanker) Leaderboard(context.Context, int) (models.Leaderboard, bool) {
	return models.Leaderboard{}, false
}

type frame struct {
	Type           string          `json:"type"`
	ClientID       string          `json:"clientId"`
	TokenAddresses []string        `json:"tokenAddresses"`
	Data           json.RawMessage `json:"data"`
	Message        string          `json:"message"`
}

func newServer(t *testing.T, maxConns int) (*httptest.Server, *realtime.Broadcaster) {
	t.Helper()
	l := xlogger.NewNop()
	m := pkgmetrics.Nop{}
	b := realtime.NewBroadcaster(echoAggregator{}, emptyRanker{}, middleware.NewMessagePipeline(m),
		repository.NoopPublisher{}, m, l, realtime.Config{
			PollInterval:        time.Hour,
			HeartbeatInterval:   time.Hour,
			LeaderboardInterval: time.Hour,
			MaxConnections:      maxConns,
		})
	b.Start(context.Background())
	t.Cleanup(b.Stop)

	srv := xhttp.NewServer(l, []xhttp.Handler{NewHandler(l, b, "/ws", []string{"*"})})
	ts := httptest.NewServer(srv.Echo())
	t.Cleanup(ts.Close)
	return ts, b
}

func dial(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	_ = resp.Body.Close()
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func read(t *testing.T, conn *websocket.Conn) frame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var f frame
	require.NoError(t, conn.ReadJSON(&f))
	return f
}

func TestUpgrade_SubscribeReceivesSnapshot(t *testing.T) {
	ts, b := newServer(t, 0)
	conn := dial(t, ts)

	hello := read(t, conn)
	assert.Equal(t, models.MsgConnected, hello.Type)
	assert.True(t, strings.HasPrefix(hello.ClientID, "client_"))
	assert.Eventually(t, func() bool { return b.ClientCount() == 1 }, time.Second, 10*time.Millisecond)

	require.NoError(t, conn.WriteJSON(map[string]interface{}{
		"type":           "subscribe",
		"tokenAddresses": []string{"MintA"},
	}))
	sub := read(t, conn)
	assert.Equal(t, models.MsgSubscribed, sub.Type)
	assert.Equal(t, []string{"MintA"}, sub.TokenAddresses)

	upd := read(t, conn)
	require.Equal(t, models.MsgUpdate, upd.Type)
	var data []models.AggregatedToken
	require.NoError(t, json.Unmarshal(upd.Data, &data))
	require.Len(t, data, 1)
	assert.Equal(t, "MintA", data[0].Token.Address)

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "ping"}))
	assert.Equal(t, models.MsgPong, read(t, conn).Type)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{broken")))
	assert.Equal(t, models.MsgError, read(t, conn).Type)
}

func TestUpgrade_DisconnectUnregisters(t *testing.T) {
	ts, b := newServer(t, 0)
	conn := dial(t, ts)
	read(t, conn)

	require.NoError(t, conn.Close())
	assert.Eventually(t, func() bool { return b.ClientCount() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestUpgrade_RejectsWhenFull(t *testing.T) {
	ts, b := newServer(t, 1)
	conn := dial(t, ts)
	read(t, conn)
	require.Eventually(t, b.Full, time.Second, 10*time.Millisecond)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestOriginChecker(t *testing.T) {
	check := originChecker([]string{"https://app.example.com/"})

	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	assert.True(t, check(req))

	req.Header.Set("Origin", "https://APP.example.com")
	assert.True(t, check(req))

	req.Header.Set("Origin", "https://evil.example.com")
	assert.False(t, check(req))

	assert.True(t, originChecker(nil)(req))
}
