package realtime

import (
	"sort"
	"sync"
	"time"

	"TokenPulse/pkg/util"
)

// Conn is the subset of *websocket.Conn the broadcaster drives.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// client is one registered connection and its interest set.
type client struct {
	id   string
	conn Conn
	send chan []byte
	done chan struct{}
	once sync.Once

	mu        sync.Mutex
	interests map[string]string // normalized -> spelling as first subscribed
	lastSeen  time.Time
}

func newClient(id string, conn Conn, buffer int, now time.Time) *client {
	if buffer < 1 {
		buffer = 1
	}
	return &client{
		id:        id,
		conn:      conn,
		send:      make(chan []byte, buffer),
		done:      make(chan struct{}),
		interests: make(map[string]string),
		lastSeen:  now,
	}
}

// enqueue hands msg to the write pump without blocking. It reports false
// when the client is closed or its buffer is full.
func (c *client) enqueue(msg []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

func (c *client) close() {
	c.once.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
}

func (c *client) closed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

func (c *client) subscribe(addresses []string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, a := range addresses {
		n := util.NormalizeAddress(a)
		if _, ok := c.interests[n]; !ok && n != "" {
			c.interests[n] = a
		}
	}
	return c.addressesLocked()
}

func (c *client) unsubscribe(addresses []string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, a := range addresses {
		delete(c.interests, util.NormalizeAddress(a))
	}
	return c.addressesLocked()
}

// addresses returns the interest set in original spelling, ordered by
// normalized address.
func (c *client) addresses() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.addressesLocked()
}

func (c *client) addressesLocked() []string {
	keys := make([]string, 0, len(c.interests))
	for k := range c.interests {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, c.interests[k])
	}
	return out
}

func (c *client) interestsCopy() map[string]string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]string, len(c.interests))
	for k, v := range c.interests {
		out[k] = v
	}
	return out
}

func (c *client) wants(normalized string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.interests[normalized]
	return ok
}

func (c *client) touch(t time.Time) {
	c.mu.Lock()
	c.lastSeen = t
	c.mu.Unlock()
}

func (c *client) seen() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastSeen
}
