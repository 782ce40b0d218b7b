package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"time"

	"TokenPulse/internal/domain/models"
	domrepo "TokenPulse/internal/domain/repository"
	domsvc "TokenPulse/internal/domain/service"
	"TokenPulse/internal/middleware"
	applogger "TokenPulse/pkg/logger"
	"TokenPulse/pkg/util"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

var (
	// ErrTooManyClients is returned when the connection cap is reached.
	ErrTooManyClients = errors.New("realtime: too many clients")
	// ErrStopped is returned for connections arriving after Stop.
	ErrStopped = errors.New("realtime: broadcaster stopped")
)

// Config holds the broadcaster cadences and limits.
type Config struct {
	PollInterval        time.Duration
	HeartbeatInterval   time.Duration
	LeaderboardInterval time.Duration
	LeaderboardSize     int
	MaxConnections      int
	SendBuffer          int
	WriteTimeout        time.Duration
}

func (c *Config) setDefaults() {
	if c.PollInterval <= 0 {
		c.PollInterval = 30 * time.Second
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = 30 * time.Second
	}
	if c.LeaderboardInterval <= 0 {
		c.LeaderboardInterval = time.Minute
	}
	if c.LeaderboardSize <= 0 {
		c.LeaderboardSize = 10
	}
	if c.SendBuffer <= 0 {
		c.SendBuffer = 64
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 10 * time.Second
	}
}

// Option customises a Broadcaster.
type Option func(*Broadcaster)

// WithClock replaces the clock used for heartbeats and message timestamps.
func WithClock(now func() time.Time) Option {
	return func(b *Broadcaster) { b.now = now }
}

// WithIDGenerator replaces the client id generator.
func WithIDGenerator(fn func() string) Option {
	return func(b *Broadcaster) { b.newID = fn }
}

// Broadcaster owns the realtime client registry. One poll per interval
// serves every client; each client only receives the tokens it asked for.
type Broadcaster struct {
	agg       domsvc.Aggregator
	ranker    domsvc.Ranker
	pipeline  *middleware.MessagePipeline
	publisher domrepo.UpdatePublisher
	metrics   domrepo.Metrics
	log       *applogger.Logger
	cfg       Config
	now       func() time.Time
	newID     func() string

	mu      sync.RWMutex
	clients map[string]*client
	stopped bool

	runCtx context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewBroadcaster(
	agg domsvc.Aggregator,
	ranker domsvc.Ranker,
	pipeline *middleware.MessagePipeline,
	publisher domrepo.UpdatePublisher,
	m domrepo.Metrics,
	l *applogger.Logger,
	cfg Config,
	opts ...Option,
) *Broadcaster {
	cfg.setDefaults()
	b := &Broadcaster{
		agg:       agg,
		ranker:    ranker,
		pipeline:  pipeline,
		publisher: publisher,
		metrics:   m,
		log:       l,
		cfg:       cfg,
		now:       time.Now,
		newID:     func() string { return "client_" + uuid.NewString() },
		clients:   make(map[string]*client),
		runCtx:    context.Background(),
		cancel:    func() {},
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Start launches the poll, heartbeat and leaderboard loops.
func (b *Broadcaster) Start(ctx context.Context) {
	b.runCtx, b.cancel = context.WithCancel(ctx)
	b.loop(b.cfg.PollInterval, b.poll)
	b.loop(b.cfg.HeartbeatInterval, func(context.Context) { b.sweep(b.now()) })
	b.loop(b.cfg.LeaderboardInterval, b.broadcastLeaderboard)
	b.log.Info("ws.started",
		applogger.Duration("poll_ms", b.cfg.PollInterval),
		applogger.Duration("heartbeat_ms", b.cfg.HeartbeatInterval),
		applogger.Int("max_connections", b.cfg.MaxConnections),
	)
}

func (b *Broadcaster) loop(every time.Duration, fn func(context.Context)) {
	ctx := b.runCtx
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		ticker := time.NewTicker(every)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				fn(ctx)
			}
		}
	}()
}

// Stop halts the loops and disconnects every client.
func (b *Broadcaster) Stop() {
	b.cancel()
	b.wg.Wait()

	b.mu.Lock()
	b.stopped = true
	clients := make([]*client, 0, len(b.clients))
	for _, c := range b.clients {
		clients = append(clients, c)
	}
	b.clients = make(map[string]*client)
	b.mu.Unlock()

	for _, c := range clients {
		c.close()
	}
	b.metrics.SetActiveClients(0)
	b.log.Info("ws.stopped", applogger.Int("disconnected", len(clients)))
}

// ClientCount is the number of registered connections.
func (b *Broadcaster) ClientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

// Full reports whether a new connection would be refused.
func (b *Broadcaster) Full() bool {
	return b.cfg.MaxConnections > 0 && b.ClientCount() >= b.cfg.MaxConnections
}

// Serve registers conn and pumps its messages until it disconnects.
func (b *Broadcaster) Serve(conn Conn) error {
	c, err := b.register(conn)
	if err != nil {
		_ = conn.Close()
		return err
	}
	defer b.disconnect(c, "closed")

	go b.writePump(c)
	b.send(c, models.ServerMessage{Type: models.MsgConnected, ClientID: c.id})

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			b.log.Debug("ws.read_closed", applogger.String("client_id", c.id), applogger.Error(err))
			return nil
		}
		b.handle(c, raw)
	}
}

func (b *Broadcaster) register(conn Conn) (*client, error) {
	b.mu.Lock()
	if b.stopped {
		b.mu.Unlock()
		return nil, ErrStopped
	}
	if b.cfg.MaxConnections > 0 && len(b.clients) >= b.cfg.MaxConnections {
		b.mu.Unlock()
		b.metrics.RecordError("ws_rejected")
		return nil, ErrTooManyClients
	}
	c := newClient(b.newID(), conn, b.cfg.SendBuffer, b.now())
	b.clients[c.id] = c
	n := len(b.clients)
	b.mu.Unlock()

	b.metrics.SetActiveClients(n)
	b.log.Info("ws.connected", applogger.String("client_id", c.id), applogger.Int("clients", n))
	return c, nil
}

func (b *Broadcaster) disconnect(c *client, reason string) {
	b.mu.Lock()
	_, ok := b.clients[c.id]
	delete(b.clients, c.id)
	n := len(b.clients)
	b.mu.Unlock()

	c.close()
	if !ok {
		return
	}
	b.pipeline.Forget(c.id)
	b.metrics.SetActiveClients(n)
	b.log.Info("ws.disconnected",
		applogger.String("client_id", c.id),
		applogger.String("reason", reason),
		applogger.Int("clients", n),
	)
}

func (b *Broadcaster) writePump(c *client) {
	for {
		select {
		case <-c.done:
			return
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(b.now().Add(b.cfg.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				b.log.Debug("ws.write_failed", applogger.String("client_id", c.id), applogger.Error(err))
				b.disconnect(c, "write failed")
				return
			}
		}
	}
}

func (b *Broadcaster) handle(c *client, raw []byte) {
	msg, err := b.pipeline.Decode(c.id, raw)
	if err != nil {
		b.sendError(c, err.Error())
		return
	}

	switch msg.Type {
	case models.MsgSubscribe:
		current := c.subscribe(msg.TokenAddresses)
		b.log.Info("ws.subscribed", applogger.String("client_id", c.id), applogger.Int("tokens", len(current)))
		b.send(c, models.ServerMessage{Type: models.MsgSubscribed, TokenAddresses: current})
		go b.initialSnapshot(c)
	case models.MsgUnsubscribe:
		current := c.unsubscribe(msg.TokenAddresses)
		b.send(c, models.ServerMessage{Type: models.MsgUnsubscribed, TokenAddresses: current})
	case models.MsgPing:
		c.touch(b.now())
		b.send(c, models.ServerMessage{Type: models.MsgPong})
	}
}

// initialSnapshot pushes the current view of the client's interest set
// without waiting for the next poll.
func (b *Broadcaster) initialSnapshot(c *client) {
	addresses := c.addresses()
	if len(addresses) == 0 {
		return
	}
	data := b.agg.Aggregate(b.runCtx, addresses)
	filtered := filterFor(c, data)
	if len(filtered) == 0 {
		b.log.Debug("ws.initial_snapshot_empty", applogger.String("client_id", c.id))
		return
	}
	b.send(c, models.ServerMessage{Type: models.MsgUpdate, Data: filtered})
}

// poll runs one aggregation for the union of every interest set and fans
// the result out.
func (b *Broadcaster) poll(ctx context.Context) {
	clients := b.snapshot()
	union := mapset.NewThreadUnsafeSet[string]()
	spelling := make(map[string]string)
	for _, c := range clients {
		for norm, orig := range c.interestsCopy() {
			if union.Add(norm) {
				spelling[norm] = orig
			}
		}
	}
	if union.Cardinality() == 0 {
		return
	}

	keys := union.ToSlice()
	sort.Strings(keys)
	addresses := make([]string, 0, len(keys))
	for _, k := range keys {
		addresses = append(addresses, spelling[k])
	}

	data := b.agg.Aggregate(ctx, addresses)
	delivered := 0
	for _, c := range clients {
		filtered := filterFor(c, data)
		if len(filtered) == 0 {
			continue
		}
		if b.send(c, models.ServerMessage{Type: models.MsgUpdate, Data: filtered}) {
			delivered++
		}
	}
	b.log.Debug("ws.poll",
		applogger.Int("addresses", len(addresses)),
		applogger.Int("tokens", len(data)),
		applogger.Int("delivered", delivered),
	)

	ev := models.UpdateEvent{TokenAddresses: addresses, Data: data, Timestamp: b.now().UnixMilli()}
	if err := b.publisher.Publish(ctx, ev); err != nil {
		b.log.Warn("ws.publish_failed", applogger.Error(err))
		b.metrics.RecordError("publish")
	}
}

// sweep disconnects clients whose last heartbeat is older than twice the
// heartbeat interval.
func (b *Broadcaster) sweep(now time.Time) {
	timeout := 2 * b.cfg.HeartbeatInterval
	for _, c := range b.snapshot() {
		if now.Sub(c.seen()) > timeout {
			b.disconnect(c, "heartbeat timeout")
		}
	}
}

func (b *Broadcaster) broadcastLeaderboard(ctx context.Context) {
	clients := b.snapshot()
	if len(clients) == 0 {
		return
	}
	lb, ok := b.ranker.Leaderboard(ctx, b.cfg.LeaderboardSize)
	if !ok {
		return
	}
	for _, c := range clients {
		b.send(c, models.ServerMessage{Type: models.MsgLeaderboardUpdate, Data: lb})
	}
	b.log.Debug("ws.leaderboard", applogger.Int("clients", len(clients)))
}

func (b *Broadcaster) snapshot() []*client {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]*client, 0, len(b.clients))
	for _, c := range b.clients {
		out = append(out, c)
	}
	return out
}

func (b *Broadcaster) sendError(c *client, message string) {
	b.send(c, models.ServerMessage{Type: models.MsgError, Message: message})
}

// send is best-effort: closed clients and full buffers drop the message.
func (b *Broadcaster) send(c *client, msg models.ServerMessage) bool {
	if c.closed() {
		return false
	}
	msg.Timestamp = b.now().UnixMilli()
	raw, err := json.Marshal(msg)
	if err != nil {
		b.log.Error("ws.encode_failed", applogger.String("type", msg.Type), applogger.Error(err))
		return false
	}
	if !c.enqueue(raw) {
		b.metrics.RecordError("ws_send_dropped")
		b.log.Debug("ws.send_dropped", applogger.String("client_id", c.id), applogger.String("type", msg.Type))
		return false
	}
	b.metrics.RecordMessageSent(msg.Type)
	return true
}

func filterFor(c *client, data []models.AggregatedToken) []models.AggregatedToken {
	out := make([]models.AggregatedToken, 0, len(data))
	for _, t := range data {
		if c.wants(util.NormalizeAddress(t.Token.Address)) {
			out = append(out, t)
		}
	}
	return out
}
