// Package realtime implements the EventBus capability (C11): per-tenant
// WebSocket fan-out plus a global admin fan-out for engine, trade, pnl, and
// accuracy events.
package realtime

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/quantforge/hft/models"
	"github.com/rs/zerolog/log"
)

// queueCap bounds how many undelivered messages a single client connection
// may accumulate before the bus starts dropping the oldest ones. A slow or
// stalled client must never apply backpressure to the tenants it has
// nothing to do with.
const queueCap = 64

// Message is the wire shape of every event broadcast to clients.
type Message struct {
	Kind      string      `json:"kind"`
	Tenant    string      `json:"tenant,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// client wraps one connected WebSocket with its own outbound queue, so a
// slow reader only ever drops its own messages.
type client struct {
	conn  *websocket.Conn
	queue chan Message
	done  chan struct{}
}

func newClient(conn *websocket.Conn) *client {
	c := &client{conn: conn, queue: make(chan Message, queueCap), done: make(chan struct{})}
	go c.writeLoop()
	return c
}

func (c *client) writeLoop() {
	for {
		select {
		case msg := <-c.queue:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteJSON(msg); err != nil {
				log.Warn().Err(err).Msg("realtime: write failed, closing client")
				c.conn.Close()
				return
			}
		case <-c.done:
			return
		}
	}
}

// enqueue delivers msg, dropping the oldest queued message on backpressure
// rather than blocking the publisher.
func (c *client) enqueue(msg Message) {
	select {
	case c.queue <- msg:
	default:
		select {
		case <-c.queue:
		default:
		}
		select {
		case c.queue <- msg:
		default:
		}
	}
}

func (c *client) close() {
	close(c.done)
	c.conn.Close()
}

// EventBus fans engine/trade/pnl/accuracy events out to each tenant's own
// connected clients, and every event additionally to the admin channel.
type EventBus struct {
	mu       sync.Mutex
	tenants  map[string]map[*client]struct{}
	admins   map[*client]struct{}
	upgrader websocket.Upgrader
}

// NewEventBus constructs an EventBus ready to accept connections.
func NewEventBus() *EventBus {
	return &EventBus{
		tenants: make(map[string]map[*client]struct{}),
		admins:  make(map[*client]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// HandleTenant upgrades the connection and registers it under tenant.
// Removed automatically on close — the fan-out tables hold no references
// to clients that have disconnected.
func (b *EventBus) HandleTenant(tenant string, w http.ResponseWriter, r *http.Request) {
	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("realtime: upgrade failed")
		return
	}
	c := newClient(conn)

	b.mu.Lock()
	if b.tenants[tenant] == nil {
		b.tenants[tenant] = make(map[*client]struct{})
	}
	b.tenants[tenant][c] = struct{}{}
	b.mu.Unlock()

	go b.readUntilClose(c, func() {
		b.mu.Lock()
		delete(b.tenants[tenant], c)
		b.mu.Unlock()
	})
}

// HandleAdmin upgrades the connection and registers it on the global admin
// fan-out, which receives every tenant's events.
func (b *EventBus) HandleAdmin(w http.ResponseWriter, r *http.Request) {
	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("realtime: admin upgrade failed")
		return
	}
	c := newClient(conn)

	b.mu.Lock()
	b.admins[c] = struct{}{}
	b.mu.Unlock()

	go b.readUntilClose(c, func() {
		b.mu.Lock()
		delete(b.admins, c)
		b.mu.Unlock()
	})
}

func (b *EventBus) readUntilClose(c *client, onClose func()) {
	defer func() {
		onClose()
		c.close()
	}()
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// Publish delivers an event of the given kind to tenant's own clients and
// to every admin client.
func (b *EventBus) Publish(tenant, kind string, payload interface{}) {
	msg := Message{Kind: kind, Tenant: tenant, Timestamp: time.Now(), Payload: payload}

	b.mu.Lock()
	defer b.mu.Unlock()

	for c := range b.tenants[tenant] {
		c.enqueue(msg)
	}
	for c := range b.admins {
		c.enqueue(msg)
	}
}

// PublishOrderUpdate satisfies execution.UpdatePublisher.
func (b *EventBus) PublishOrderUpdate(tenant string, order models.Order) {
	b.Publish(tenant, "order_update", order)
}

// PublishResearchUpdate broadcasts a fresh research result.
func (b *EventBus) PublishResearchUpdate(tenant string, result models.ResearchResult) {
	b.Publish(tenant, "research_update", result)
}

// PublishEngineEvent broadcasts an engine lifecycle or error event.
func (b *EventBus) PublishEngineEvent(tenant, event string, detail interface{}) {
	b.Publish(tenant, "engine_"+event, detail)
}
