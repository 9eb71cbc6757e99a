package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/alanyoungcy/settled/internal/clock"
	"github.com/alanyoungcy/settled/internal/crypto"
	"github.com/alanyoungcy/settled/internal/ledger"
	"github.com/alanyoungcy/settled/internal/market"
	"github.com/alanyoungcy/settled/internal/server/handler"
	"github.com/alanyoungcy/settled/internal/server/middleware"
	"github.com/alanyoungcy/settled/internal/service"
)

var t0 = time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

type harness struct {
	t     *testing.T
	url   string
	clock *clock.Manual
	admin crypto.AdminAuth
}

func newHarness(t *testing.T) *harness {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	clk := clock.NewManual(t0)
	svc := service.NewSettlement(market.DefaultConfig("judge"), ledger.NewMemory(), clk, logger)
	amounts := handler.NewAmounts(2)
	admin := crypto.AdminAuth{Secret: "test-secret"}

	srv := NewServer(Config{
		TrustHeader: true,
		Admin:       admin,
		AllowMint:   true,
	}, Handlers{
		Health:     handler.NewHealthHandler(nil, logger),
		Markets:    handler.NewMarketHandler(svc, logger),
		Orders:     handler.NewOrderHandler(svc, amounts, logger),
		Resolution: handler.NewResolutionHandler(svc, logger),
		Accounts:   handler.NewAccountHandler(svc, amounts, logger),
	}, nil, logger)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return &harness{t: t, url: ts.URL, clock: clk, admin: admin}
}

// do sends a request as account and decodes the JSON response into out.
func (h *harness) do(method, path, account string, body any, out any) int {
	h.t.Helper()
	var buf []byte
	if body != nil {
		var err error
		if buf, err = json.Marshal(body); err != nil {
			h.t.Fatal(err)
		}
	}
	req, err := http.NewRequest(method, h.url+path, bytes.NewReader(buf))
	if err != nil {
		h.t.Fatal(err)
	}
	if account != "" {
		req.Header.Set(middleware.HeaderAccount, account)
	}
	if account == middleware.AdminCaller {
		ts := time.Now().Unix()
		req.Header.Set(middleware.HeaderAdminTimestamp, strconv.FormatInt(ts, 10))
		req.Header.Set(middleware.HeaderAdminSignature, h.admin.Sign(method, path, string(buf), ts))
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		h.t.Fatal(err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			h.t.Fatalf("%s %s: decode: %v", method, path, err)
		}
	}
	return resp.StatusCode
}

func (h *harness) must(want int, method, path, account string, body any, out any) {
	h.t.Helper()
	if got := h.do(method, path, account, body, out); got != want {
		h.t.Fatalf("%s %s as %q: status %d, want %d", method, path, account, got, want)
	}
}

func TestHTTPMarketLifecycle(t *testing.T) {
	h := newHarness(t)
	for _, acct := range []string{"alice", "bob", "reporter"} {
		amount := int64(5_000)
		if acct == "reporter" {
			amount = 10_000
		}
		h.must(http.StatusOK, "POST", "/api/admin/mint", middleware.AdminCaller,
			map[string]any{"account": acct, "amount": amount}, nil)
	}

	var info market.Info
	h.must(http.StatusCreated, "POST", "/api/markets", "creator", map[string]any{
		"description":     "Will it rain?",
		"outcomes":        2,
		"end_time":        t0.Add(24 * time.Hour),
		"creator_fee_pct": 2,
	}, &info)
	base := fmt.Sprintf("/api/markets/%d", info.ID)

	h.must(http.StatusCreated, "POST", base+"/orders", "alice",
		map[string]any{"outcome": 0, "spend": 5_000, "price": 60}, nil)
	var placed market.PlaceResult
	h.must(http.StatusCreated, "POST", base+"/orders", "bob",
		map[string]any{"outcome": 1, "spend": 5_000, "price": 40}, &placed)
	if placed.Order.SharesFilled != 83 {
		t.Fatalf("bob filled %d shares, want 83", placed.Order.SharesFilled)
	}

	// Too early to resolve, and no anonymous trading.
	if code := h.do("POST", base+"/resolute", "reporter", map[string]any{"outcome": 0, "stake": 10_000}, nil); code != http.StatusConflict {
		t.Fatalf("early resolute status %d, want 409", code)
	}
	if code := h.do("POST", base+"/orders", "", map[string]any{"outcome": 0, "spend": 500, "price": 50}, nil); code != http.StatusForbidden {
		t.Fatalf("anonymous order status %d, want 403", code)
	}

	h.clock.Set(t0.Add(24*time.Hour + time.Minute))
	h.must(http.StatusOK, "POST", base+"/resolute", "reporter", map[string]any{"outcome": 0, "stake": 10_000}, nil)
	if code := h.do("POST", base+"/finalize", "anyone", nil, nil); code != http.StatusConflict {
		t.Fatalf("finalize inside dispute window: %d, want 409", code)
	}
	h.clock.Advance(12 * time.Hour)
	h.must(http.StatusOK, "POST", base+"/finalize", "anyone", nil, nil)

	var claimable struct {
		Payout        int64  `json:"payout"`
		PayoutDisplay string `json:"payout_display"`
	}
	type balance struct {
		Balance int64  `json:"balance"`
		Display string `json:"display"`
	}
	var before, after balance
	h.must(http.StatusOK, "GET", "/api/balances/alice", "", nil, &before)
	h.must(http.StatusOK, "GET", base+"/claimable/alice", "", nil, &claimable)
	h.must(http.StatusOK, "POST", base+"/claim/alice", "bob", nil, nil)
	h.must(http.StatusOK, "GET", "/api/balances/alice", "", nil, &after)

	if after.Balance != 8_071 || after.Display != "80.71" {
		t.Fatalf("alice balance %d (%s), want 8071 (80.71)", after.Balance, after.Display)
	}
	if claimable.Payout != after.Balance-before.Balance {
		t.Fatalf("claimable preview %d, paid %d", claimable.Payout, after.Balance-before.Balance)
	}

	if code := h.do("GET", "/api/markets/999", "", nil, nil); code != http.StatusNotFound {
		t.Fatalf("unknown market status %d, want 404", code)
	}
}

func TestAdminRouteRequiresSignature(t *testing.T) {
	h := newHarness(t)
	code := h.do("POST", "/api/admin/mint", "alice", map[string]any{"account": "alice", "amount": 1}, nil)
	if code != http.StatusUnauthorized {
		t.Fatalf("unsigned mint status %d, want 401", code)
	}
}
