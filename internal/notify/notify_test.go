package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

type recordSender struct {
	name string
	fail bool
	sent []string
}

func (r *recordSender) Send(_ context.Context, title, _ string) error {
	if r.fail {
		return errors.New("boom")
	}
	r.sent = append(r.sent, title)
	return nil
}

func (r *recordSender) Name() string { return r.name }

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestNotifierFiltersEvents(t *testing.T) {
	s := &recordSender{name: "rec"}
	n := NewNotifier([]Sender{s}, []string{"market_finalized", " market_disputed "}, discard())
	ctx := context.Background()

	_ = n.Notify(ctx, "market_resoluted", "resoluted", "")
	_ = n.Notify(ctx, "market_disputed", "disputed", "")
	_ = n.Notify(ctx, "market_finalized", "finalized", "")
	_ = n.NotifyAll(ctx, "startup", "")

	want := []string{"disputed", "finalized", "startup"}
	if strings.Join(s.sent, ",") != strings.Join(want, ",") {
		t.Fatalf("sent %v, want %v", s.sent, want)
	}
}

func TestNotifierKeepsGoingAfterFailure(t *testing.T) {
	bad := &recordSender{name: "bad", fail: true}
	good := &recordSender{name: "good"}
	n := NewNotifier([]Sender{bad, good}, nil, discard())

	err := n.Notify(context.Background(), "market_finalized", "finalized", "")
	if err == nil || !strings.Contains(err.Error(), "bad") {
		t.Fatalf("err = %v, want the failing sender named", err)
	}
	if len(good.sent) != 1 {
		t.Fatal("second sender skipped after the first failed")
	}
}

func TestTelegramSender(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/botTOKEN/sendMessage" {
			http.Error(w, "bad path", http.StatusNotFound)
			return
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
	}))
	defer srv.Close()

	s := NewTelegramSender(srv.URL, "TOKEN", "42")
	if err := s.Send(context.Background(), "Market 1 finalized", "Winning outcome 0."); err != nil {
		t.Fatal(err)
	}
	if got["chat_id"] != "42" || !strings.HasPrefix(got["text"], "*Market 1 finalized*") {
		t.Fatalf("payload = %v", got)
	}
}

func TestDiscordSenderReportsStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	err := NewDiscordSender(srv.URL).Send(context.Background(), "t", "m")
	if err == nil || !strings.Contains(err.Error(), "429") {
		t.Fatalf("err = %v, want status 429", err)
	}
}
