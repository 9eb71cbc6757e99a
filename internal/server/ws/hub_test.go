package ws

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alanyoungcy/settled/internal/domain"
	"github.com/gorilla/websocket"
)

type fakeBus struct {
	live    chan []byte
	history []domain.StreamMessage
}

func (b *fakeBus) Publish(context.Context, string, []byte) error { return nil }

func (b *fakeBus) Subscribe(context.Context, string) (<-chan []byte, error) {
	return b.live, nil
}

func (b *fakeBus) StreamAppend(context.Context, string, []byte) error { return nil }

func (b *fakeBus) StreamRead(_ context.Context, _ string, _ string, count int) ([]domain.StreamMessage, error) {
	if len(b.history) > count {
		return b.history[:count], nil
	}
	return b.history, nil
}

func eventJSON(t *testing.T, marketID uint64, typ domain.EventType) []byte {
	t.Helper()
	b, err := json.Marshal(domain.Event{ID: "e", Type: typ, MarketID: marketID})
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func readEvent(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatal(err)
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatal(err)
	}
	return out
}

func TestHubBackfillAndLiveRouting(t *testing.T) {
	bus := &fakeBus{
		live: make(chan []byte, 4),
		history: []domain.StreamMessage{
			{ID: "1-0", Payload: eventJSON(t, 2, domain.EventOrderPlaced)},
			{ID: "2-0", Payload: eventJSON(t, 1, domain.EventMarketCreated)},
		},
	}
	hub := NewHub(bus, slog.New(slog.NewTextHandler(io.Discard, nil)), Config{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	srv := httptest.NewServer(httpHandler(hub))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?market=1&since=0"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	if got := readEvent(t, conn); got["type"] != "hello" {
		t.Fatalf("first frame = %v", got)
	}
	if got := readEvent(t, conn); got["type"] != string(domain.EventMarketCreated) {
		t.Fatalf("backfill frame = %v, want only market 1 history", got)
	}

	deadline := time.Now().Add(2 * time.Second)
	for hub.Clients() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("client never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	bus.live <- eventJSON(t, 2, domain.EventOrderCanceled)
	bus.live <- eventJSON(t, 1, domain.EventMarketFinalized)
	if got := readEvent(t, conn); got["type"] != string(domain.EventMarketFinalized) {
		t.Fatalf("live frame = %v, want market 1 event", got)
	}
}

func TestClientWildcard(t *testing.T) {
	c := &client{subs: map[string]bool{"ch:market:1*": true}}
	if !c.wants(domain.MarketChannel(12)) {
		t.Fatal("prefix subscription should match")
	}
	if c.wants(domain.MarketChannel(2)) {
		t.Fatal("unrelated market matched")
	}
	c.apply(subscribeMsg{Action: "subscribe", Channels: []string{domain.ChannelEvents}})
	if !c.wants(domain.MarketChannel(2)) {
		t.Fatal("all-events subscription should match every market")
	}
}

func httpHandler(h *Hub) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws", h.HandleWS)
	return mux
}
