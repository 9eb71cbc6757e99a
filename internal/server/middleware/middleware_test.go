package middleware

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/alanyoungcy/settled/internal/crypto"
	"github.com/alanyoungcy/settled/internal/domain"
)

const testKey = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

// echoCaller writes the caller from the context, or "anonymous".
var echoCaller = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	caller, ok := domain.CallerFrom(r.Context())
	if !ok {
		caller = "anonymous"
	}
	w.Write([]byte(caller + "|" + string(body)))
})

func TestIdentitySignedRequest(t *testing.T) {
	signer, err := crypto.NewSigner(testKey)
	if err != nil {
		t.Fatal(err)
	}
	now := time.Unix(1_700_000_000, 0)
	h := Identity(crypto.RequestVerifier{MaxSkew: time.Minute, Now: func() time.Time { return now }}, false)(echoCaller)

	body := `{"outcome":0,"spend":1000,"price":50}`
	sign := func(path, payload string, ts int64) string {
		sig, err := signer.SignMessage(crypto.RequestMessage(http.MethodPost, path, ts, crypto.BodyHash([]byte(payload))))
		if err != nil {
			t.Fatal(err)
		}
		return sig
	}
	request := func(sig string, ts int64) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/markets/1/orders", strings.NewReader(body))
		req.Header.Set(HeaderAccount, strings.ToLower(signer.Address()))
		req.Header.Set(HeaderTimestamp, strconv.FormatInt(ts, 10))
		req.Header.Set(HeaderSignature, sig)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	rec := request(sign("/api/markets/1/orders", body, now.Unix()), now.Unix())
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body)
	}
	if want := signer.Address() + "|" + body; rec.Body.String() != want {
		t.Fatalf("got %q, want %q", rec.Body, want)
	}

	if rec := request(sign("/api/markets/2/orders", body, now.Unix()), now.Unix()); rec.Code != http.StatusUnauthorized {
		t.Fatalf("signature over another path accepted: %d", rec.Code)
	}
	old := now.Add(-time.Hour).Unix()
	if rec := request(sign("/api/markets/1/orders", body, old), old); rec.Code != http.StatusUnauthorized {
		t.Fatalf("stale request accepted: %d", rec.Code)
	}
}

func TestIdentityAnonymousAndTrusted(t *testing.T) {
	h := Identity(crypto.RequestVerifier{}, false)(echoCaller)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/markets", nil))
	if !strings.HasPrefix(rec.Body.String(), "anonymous|") {
		t.Fatalf("got %q", rec.Body)
	}

	h = Identity(crypto.RequestVerifier{}, true)(echoCaller)
	req := httptest.NewRequest(http.MethodGet, "/api/markets", nil)
	req.Header.Set(HeaderAccount, "alice")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if !strings.HasPrefix(rec.Body.String(), "alice|") {
		t.Fatalf("got %q", rec.Body)
	}
}

func TestAdmin(t *testing.T) {
	auth := crypto.AdminAuth{Secret: "s3cret", MaxSkew: time.Minute}
	now := time.Unix(1_700_000_000, 0)
	h := Admin(auth, func() time.Time { return now })(echoCaller)

	body := `{"account":"alice","amount":500}`
	req := httptest.NewRequest(http.MethodPost, "/api/admin/mint", strings.NewReader(body))
	req.Header.Set(HeaderAdminTimestamp, strconv.FormatInt(now.Unix(), 10))
	req.Header.Set(HeaderAdminSignature, auth.Sign(http.MethodPost, "/api/admin/mint", body, now.Unix()))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Body.String() != AdminCaller+"|"+body {
		t.Fatalf("got %d %q", rec.Code, rec.Body)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/admin/mint", strings.NewReader(body))
	req.Header.Set(HeaderAdminTimestamp, strconv.FormatInt(now.Unix(), 10))
	req.Header.Set(HeaderAdminSignature, "forged")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("forged admin signature: %d", rec.Code)
	}
}

type countingLimiter struct {
	keys []string
	max  int
	err  error
}

func (l *countingLimiter) Allow(_ context.Context, key string, _ int, _ time.Duration) (bool, error) {
	if l.err != nil {
		return false, l.err
	}
	l.keys = append(l.keys, key)
	return len(l.keys) <= l.max, nil
}

func TestRateLimit(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	lim := &countingLimiter{max: 1}
	h := RateLimit(lim, 1, time.Second, logger)(echoCaller)

	req := httptest.NewRequest(http.MethodGet, "/api/markets", nil)
	req = req.WithContext(domain.WithCaller(req.Context(), "alice"))
	for i, want := range []int{http.StatusOK, http.StatusTooManyRequests} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != want {
			t.Fatalf("request %d: status %d, want %d", i, rec.Code, want)
		}
	}
	if lim.keys[0] != "account:alice" {
		t.Fatalf("key = %q", lim.keys[0])
	}

	h = RateLimit(&countingLimiter{err: errors.New("down")}, 1, time.Second, logger)(echoCaller)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/markets", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("limiter error should fail open, got %d", rec.Code)
	}
}

func TestCORS(t *testing.T) {
	h := CORS([]string{"https://app.example"})(echoCaller)

	pre := httptest.NewRequest(http.MethodOptions, "/api/markets", nil)
	pre.Header.Set("Origin", "https://app.example")
	pre.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, pre)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("preflight status = %d", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://app.example" {
		t.Fatalf("allow origin = %q", got)
	}
	if !strings.Contains(rec.Header().Get("Access-Control-Allow-Headers"), HeaderSignature) {
		t.Fatalf("allow headers = %q", rec.Header().Get("Access-Control-Allow-Headers"))
	}

	other := httptest.NewRequest(http.MethodGet, "/api/markets", nil)
	other.Header.Set("Origin", "https://evil.example")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, other)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("unlisted origin allowed: %q", got)
	}
}

func TestLoggingRequestID(t *testing.T) {
	var seen string
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestID(r.Context())
		w.WriteHeader(http.StatusTeapot)
	})
	h := Logging(slog.New(slog.NewTextHandler(io.Discard, nil)))(inner)

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set(HeaderRequestID, "req-1")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if seen != "req-1" || rec.Header().Get(HeaderRequestID) != "req-1" {
		t.Fatalf("request id: ctx=%q header=%q", seen, rec.Header().Get(HeaderRequestID))
	}
	if rec.Code != http.StatusTeapot {
		t.Fatalf("status = %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))
	if seen == "" || seen == "req-1" {
		t.Fatalf("minted id = %q", seen)
	}
}
