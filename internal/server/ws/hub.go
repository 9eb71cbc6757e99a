// Package ws streams committed settlement events to websocket clients.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alanyoungcy/settled/internal/domain"
)

const defaultBackfill = 100

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// Config tunes the hub.
type Config struct {
	StartedAt time.Time
	// Backfill caps how many stream entries a reconnecting client gets.
	Backfill int
}

// Hub relays events from the bus to connected clients.
type Hub struct {
	bus    domain.SignalBus
	logger *slog.Logger
	cfg    Config

	mu      sync.Mutex
	clients map[*client]struct{}
	closed  bool
}

// NewHub creates a hub reading from bus.
func NewHub(bus domain.SignalBus, logger *slog.Logger, cfg Config) *Hub {
	if cfg.StartedAt.IsZero() {
		cfg.StartedAt = time.Now().UTC()
	}
	if cfg.Backfill <= 0 {
		cfg.Backfill = defaultBackfill
	}
	return &Hub{
		bus:     bus,
		logger:  logger.With(slog.String("component", "ws")),
		cfg:     cfg,
		clients: make(map[*client]struct{}),
	}
}

// Run forwards bus events to clients until ctx ends, then disconnects
// everyone.
func (h *Hub) Run(ctx context.Context) error {
	events, err := h.bus.Subscribe(ctx, domain.ChannelEvents)
	if err != nil {
		return err
	}
	defer h.shutdown()

	for {
		select {
		case <-ctx.Done():
			return nil
		case data, ok := <-events:
			if !ok {
				h.logger.WarnContext(ctx, "ws: event subscription closed")
				<-ctx.Done()
				return nil
			}
			h.deliver(routeOf(data), data)
		}
	}
}

func (h *Hub) shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
}

// join adds c; it fails once the hub has shut down.
func (h *Hub) join(c *client) bool {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return false
	}
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	h.logger.Debug("ws: client connected", slog.Int("clients", n))
	return true
}

func (h *Hub) leave(c *client) {
	h.mu.Lock()
	_, ok := h.clients[c]
	if ok {
		delete(h.clients, c)
		close(c.send)
	}
	n := len(h.clients)
	h.mu.Unlock()
	if ok {
		h.logger.Debug("ws: client disconnected", slog.Int("clients", n))
	}
}

func (h *Hub) deliver(channel string, data []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		if c.wants(channel) && !c.push(data) {
			h.logger.Warn("ws: send buffer full, dropping event", slog.String("channel", channel))
		}
	}
}

// Clients reports how many clients are connected.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// routeOf returns the per-market channel of an event payload.
func routeOf(data []byte) string {
	var ev struct {
		MarketID uint64 `json:"market_id"`
	}
	if err := json.Unmarshal(data, &ev); err != nil {
		return ""
	}
	return domain.MarketChannel(ev.MarketID)
}

// HandleWS upgrades the request and registers the client.
// GET /ws?market=ID&since=STREAM_ID
//
// Without market the client receives every event. With since the client
// first receives the stream history after that entry.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	first := domain.ChannelEvents
	if m := q.Get("market"); m != "" {
		id, err := strconv.ParseUint(m, 10, 64)
		if err != nil {
			http.Error(w, "invalid market", http.StatusBadRequest)
			return
		}
		first = domain.MarketChannel(id)
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("ws: upgrade failed", slog.String("error", err.Error()))
		return
	}
	c := newClient(h, conn, first)

	c.greet(time.Since(h.cfg.StartedAt))
	if since := q.Get("since"); since != "" {
		h.backfill(r.Context(), c, since)
	}
	if !h.join(c) {
		conn.Close()
		return
	}
	go c.writeLoop()
	go c.readLoop()
}

// backfill queues stream history after since that matches c's
// subscriptions.
func (h *Hub) backfill(ctx context.Context, c *client, since string) {
	history, err := h.bus.StreamRead(ctx, domain.StreamEvents, since, h.cfg.Backfill)
	if err != nil {
		h.logger.WarnContext(ctx, "ws: backfill failed", slog.String("error", err.Error()))
		return
	}
	for _, m := range history {
		if c.wants(routeOf(m.Payload)) {
			c.push(m.Payload)
		}
	}
}
