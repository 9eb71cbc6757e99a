package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/settled/internal/domain"
)

// writeJSON marshals v as JSON and writes it to the response with the given
// HTTP status code. If marshaling fails, it falls back to a plain-text 500.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write(data)
}

// writeError sends a JSON-formatted error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// statusFor maps a service error onto an HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrInsufficientBalance),
		errors.Is(err, domain.ErrInsufficientShares):
		return http.StatusPaymentRequired
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrMarketNotFound),
		errors.Is(err, domain.ErrOutcomeNotFound),
		errors.Is(err, domain.ErrOrderNotFound),
		errors.Is(err, domain.ErrRoundNotFound),
		errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidMarketParameters),
		errors.Is(err, domain.ErrInvalidPrice),
		errors.Is(err, domain.ErrInvalidAmount),
		errors.Is(err, domain.ErrDustLoss),
		errors.Is(err, domain.ErrSameOutcome):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrMarketClosed),
		errors.Is(err, domain.ErrMarketOpen),
		errors.Is(err, domain.ErrAlreadyResoluted),
		errors.Is(err, domain.ErrNotResoluted),
		errors.Is(err, domain.ErrNotYetFinalizable),
		errors.Is(err, domain.ErrAlreadyFinalized),
		errors.Is(err, domain.ErrNotFinalized),
		errors.Is(err, domain.ErrDisputeWindowClosed),
		errors.Is(err, domain.ErrDisputeCapReached),
		errors.Is(err, domain.ErrStakeLocked),
		errors.Is(err, domain.ErrLockHeld):
		return http.StatusConflict
	case errors.Is(err, domain.ErrRateLimited):
		return http.StatusTooManyRequests
	}
	return http.StatusInternalServerError
}

// writeServiceError reports err to the client. Only unexpected errors are
// logged; their text is not exposed.
func writeServiceError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, op string, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		logger.ErrorContext(r.Context(), "handler: "+op+" failed", slog.String("error", err.Error()))
		writeError(w, status, op+" failed")
		return
	}
	writeError(w, status, err.Error())
}

// decode reads a JSON body into v.
func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

// parseListOpts extracts standard pagination parameters from the query string.
// Defaults: limit=50 (max 500), offset=0.
func parseListOpts(r *http.Request) domain.ListOpts {
	q := r.URL.Query()

	limit := 50
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	limit = min(limit, 500)

	offset := 0
	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}
	return domain.ListOpts{Limit: limit, Offset: offset}
}

func marketID(r *http.Request) (uint64, error) {
	id, err := strconv.ParseUint(r.PathValue("id"), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid market id %q", r.PathValue("id"))
	}
	return id, nil
}

func outcomeParam(r *http.Request) (domain.Outcome, error) {
	n, err := strconv.Atoi(r.PathValue("outcome"))
	if err != nil {
		return 0, fmt.Errorf("invalid outcome %q", r.PathValue("outcome"))
	}
	return domain.Outcome(n), nil
}

// queryInt reads a non-negative integer query parameter, def when absent.
func queryInt(r *http.Request, name string, def int64) (int64, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid %s %q", name, v)
	}
	return n, nil
}

// optionalOutcome converts a JSON outcome that may be omitted; omission
// names the invalid outcome.
func optionalOutcome(o *int) domain.Outcome {
	if o == nil {
		return domain.InvalidOutcome
	}
	return domain.Outcome(*o)
}

// Amounts renders base-unit amounts as decimal token strings.
type Amounts struct {
	decimals int32
}

// NewAmounts creates a formatter for a token with the given decimals.
func NewAmounts(decimals int32) Amounts {
	return Amounts{decimals: decimals}
}

// Format renders amount, e.g. 12345 with two decimals is "123.45".
func (a Amounts) Format(amount int64) string {
	return decimal.New(amount, -a.decimals).StringFixed(a.decimals)
}
