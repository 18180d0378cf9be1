package signal

import (
	"encoding/json"
	"errors"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"go.uber.org/atomic"

	"github.com/dkeye/costudy/internal/app"
	"github.com/dkeye/costudy/internal/domain"
)

var ErrBackpressure = errors.New("backpressure")

// Conn wraps one websocket with a buffered outbound channel. Writes go
// through TrySend so a slow consumer can never block the registry. The
// lock covers the send channel against a concurrent Close.
type Conn struct {
	ws     *websocket.Conn
	send   chan []byte
	closed atomic.Bool

	mu       sync.RWMutex
	identity *domain.Identity // resolved once, at first join
}

func newConn(ws *websocket.Conn) *Conn {
	return &Conn{
		ws:   ws,
		send: make(chan []byte, 32),
	}
}

func (c *Conn) TrySend(data []byte) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed.Load() {
		return errors.New("connection closed")
	}
	select {
	case c.send <- data:
		return nil
	default:
		return ErrBackpressure
	}
}

func (c *Conn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed.CompareAndSwap(false, true) {
		return
	}
	close(c.send)
	_ = c.ws.Close()
}

// Identity returns the cached identity for this connection, resolving
// it on first use. Resolution is idempotent per connection.
func (c *Conn) Identity(sessionToken, clientToken string) domain.Identity {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.identity == nil {
		id := app.ResolveIdentity(sessionToken, clientToken)
		c.identity = &id
	}
	return *c.identity
}

// Hub is the connection table and the registry's outbound port.
type Hub struct {
	mu    sync.RWMutex
	conns map[domain.ConnID]*Conn
}

func NewHub() *Hub {
	return &Hub{conns: make(map[domain.ConnID]*Conn)}
}

func (h *Hub) add(id domain.ConnID, c *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.conns[id] = c
}

func (h *Hub) remove(id domain.ConnID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.conns, id)
}

func (h *Hub) get(id domain.ConnID) (*Conn, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	c, ok := h.conns[id]
	return c, ok
}

// Send marshals and queues an event. Unknown ids and full queues are
// dropped; delivery here is best effort.
func (h *Hub) Send(id domain.ConnID, ev app.Event) {
	c, ok := h.get(id)
	if !ok {
		return
	}
	data, err := json.Marshal(ev)
	if err != nil {
		log.Error().Err(err).Str("module", "signal.hub").Str("event", ev.EventType()).Msg("marshal event")
		return
	}
	if err := c.TrySend(data); err != nil {
		log.Warn().Str("module", "signal.hub").Str("conn", string(id)).
			Str("event", ev.EventType()).Msg("frame dropped")
	}
}

// Drop severs a superseded connection. Its read pump ends and reports
// a disconnect the registry has already unbound.
func (h *Hub) Drop(id domain.ConnID) {
	if c, ok := h.get(id); ok {
		c.Close()
	}
}
