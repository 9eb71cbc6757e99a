package middleware

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/alanyoungcy/settled/internal/crypto"
	"github.com/alanyoungcy/settled/internal/domain"
)

// Request headers carrying the caller's identity.
const (
	HeaderAccount   = "X-Settled-Account"
	HeaderTimestamp = "X-Settled-Timestamp"
	HeaderSignature = "X-Settled-Signature"

	HeaderAdminTimestamp = "X-Admin-Timestamp"
	HeaderAdminSignature = "X-Admin-Signature"

	// AdminCaller is the caller recorded for admin requests.
	AdminCaller = "admin"

	maxBody = 1 << 20
)

// Identity returns middleware that attaches the authenticated caller to the
// request context. Requests without identity headers pass through
// anonymously; mutating operations reject them further down.
//
// With trustHeader set the account header is taken at face value, which is
// only suitable for local development. Otherwise the request must carry an
// EIP-191 signature over crypto.RequestMessage.
func Identity(verifier crypto.RequestVerifier, trustHeader bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			account := strings.TrimSpace(r.Header.Get(HeaderAccount))
			if account == "" {
				next.ServeHTTP(w, r)
				return
			}
			if trustHeader {
				next.ServeHTTP(w, r.WithContext(domain.WithCaller(r.Context(), account)))
				return
			}

			ts, err := strconv.ParseInt(r.Header.Get(HeaderTimestamp), 10, 64)
			if err != nil {
				writeUnauthorized(w, "missing or invalid timestamp")
				return
			}
			body, err := readBody(r)
			if err != nil {
				writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
				return
			}
			caller, err := verifier.VerifyRequest(account, r.Method, r.URL.Path, ts, body, r.Header.Get(HeaderSignature))
			if err != nil {
				if errors.Is(err, crypto.ErrStaleRequest) {
					writeUnauthorized(w, "stale request")
					return
				}
				writeUnauthorized(w, "invalid signature")
				return
			}
			next.ServeHTTP(w, r.WithContext(domain.WithCaller(r.Context(), caller)))
		})
	}
}

// Admin returns middleware guarding operator endpoints with an HMAC
// signature. Authenticated requests run as AdminCaller.
func Admin(auth crypto.AdminAuth, now func() time.Time) func(http.Handler) http.Handler {
	if now == nil {
		now = time.Now
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ts, err := strconv.ParseInt(r.Header.Get(HeaderAdminTimestamp), 10, 64)
			if err != nil {
				writeUnauthorized(w, "missing admin timestamp")
				return
			}
			body, err := readBody(r)
			if err != nil {
				writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
				return
			}
			if !auth.Verify(r.Method, r.URL.Path, string(body), ts, r.Header.Get(HeaderAdminSignature), now()) {
				writeUnauthorized(w, "invalid admin signature")
				return
			}
			next.ServeHTTP(w, r.WithContext(domain.WithCaller(r.Context(), AdminCaller)))
		})
	}
}

// readBody consumes the body and puts an identical reader back.
func readBody(r *http.Request) ([]byte, error) {
	if r.Body == nil {
		return nil, nil
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBody+1))
	r.Body.Close()
	if err != nil {
		return nil, err
	}
	if len(body) > maxBody {
		return nil, errors.New("body too large")
	}
	r.Body = io.NopCloser(bytes.NewReader(body))
	return body, nil
}

func writeUnauthorized(w http.ResponseWriter, msg string) {
	writeError(w, http.StatusUnauthorized, msg)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write([]byte(`{"error":"` + msg + `"}`))
}
