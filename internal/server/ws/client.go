package ws

import (
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alanyoungcy/settled/internal/domain"
)

const (
	writeTimeout  = 10 * time.Second
	idleTimeout   = time.Minute
	pingInterval  = 50 * time.Second
	maxFrameBytes = 4 << 10
	queueLen      = 256
)

// subscribeMsg is what a client sends to change its subscriptions.
// Channels are domain.ChannelEvents, domain.MarketChannel(id) or a
// prefix ending in '*'.
type subscribeMsg struct {
	Action   string   `json:"action"` // "subscribe" or "unsubscribe"
	Channels []string `json:"channels"`
}

type client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	mu   sync.RWMutex
	subs map[string]bool
}

func newClient(h *Hub, conn *websocket.Conn, channel string) *client {
	return &client{
		hub:  h,
		conn: conn,
		send: make(chan []byte, queueLen),
		subs: map[string]bool{channel: true},
	}
}

// wants reports whether the client follows events on channel.
func (c *client) wants(channel string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.subs[domain.ChannelEvents] || c.subs[channel] {
		return true
	}
	for sub := range c.subs {
		if prefix, ok := strings.CutSuffix(sub, "*"); ok && strings.HasPrefix(channel, prefix) {
			return true
		}
	}
	return false
}

func (c *client) apply(msg subscribeMsg) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ch := range msg.Channels {
		switch msg.Action {
		case "subscribe":
			c.subs[ch] = true
		case "unsubscribe":
			delete(c.subs, ch)
		}
	}
}

// push queues msg without blocking and reports whether it fit.
func (c *client) push(msg []byte) bool {
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

type hello struct {
	Type    string `json:"type"`
	Payload struct {
		UptimeSeconds int64 `json:"uptime_seconds"`
	} `json:"payload"`
}

func (c *client) greet(uptime time.Duration) {
	h := hello{Type: "hello"}
	h.Payload.UptimeSeconds = int64(uptime.Seconds())
	if msg, err := json.Marshal(h); err == nil {
		c.push(msg)
	}
}

// readLoop applies subscription changes until the peer goes away.
func (c *client) readLoop() {
	defer func() {
		c.hub.leave(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxFrameBytes)
	extend := func(string) error { return c.conn.SetReadDeadline(time.Now().Add(idleTimeout)) }
	_ = extend("")
	c.conn.SetPongHandler(extend)

	for {
		_, frame, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("ws: connection lost", "error", err)
			}
			return
		}
		var msg subscribeMsg
		if json.Unmarshal(frame, &msg) == nil {
			c.apply(msg)
		}
	}
}

// writeLoop drains the send queue and keeps the connection alive.
func (c *client) writeLoop() {
	ping := time.NewTicker(pingInterval)
	defer func() {
		ping.Stop()
		c.conn.Close()
	}()

	for {
		var (
			kind = websocket.PingMessage
			data []byte
		)
		select {
		case msg, open := <-c.send:
			if !open {
				c.conn.WriteControl(websocket.CloseMessage, nil, time.Now().Add(writeTimeout))
				return
			}
			kind, data = websocket.TextMessage, msg
		case <-ping.C:
		}
		c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := c.conn.WriteMessage(kind, data); err != nil {
			return
		}
	}
}
