package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/settled/internal/domain"
)

// ResolutionService is what the resolution handler needs from the service
// layer.
type ResolutionService interface {
	Resolute(ctx context.Context, marketID uint64, outcome domain.Outcome, stake int64) (int64, error)
	Dispute(ctx context.Context, marketID uint64, outcome domain.Outcome, stake int64) (int64, error)
	Withdraw(ctx context.Context, marketID uint64, round int, outcome domain.Outcome) (int64, error)
	Finalize(ctx context.Context, marketID uint64, outcome *domain.Outcome) (domain.Outcome, error)
}

// ResolutionHandler serves reporting, dispute and finalization endpoints.
type ResolutionHandler struct {
	res    ResolutionService
	logger *slog.Logger
}

// NewResolutionHandler creates a ResolutionHandler.
func NewResolutionHandler(res ResolutionService, logger *slog.Logger) *ResolutionHandler {
	return &ResolutionHandler{res: res, logger: logger}
}

// stakeRequest omits outcome to stake on the market being invalid.
type stakeRequest struct {
	Outcome *int  `json:"outcome"`
	Stake   int64 `json:"stake"`
}

// Resolute stakes on the outcome in the opening window.
// POST /api/markets/{id}/resolute
func (h *ResolutionHandler) Resolute(w http.ResponseWriter, r *http.Request) {
	h.stake(w, r, "resolute", h.res.Resolute)
}

// Dispute stakes against the leading outcome.
// POST /api/markets/{id}/dispute
func (h *ResolutionHandler) Dispute(w http.ResponseWriter, r *http.Request) {
	h.stake(w, r, "dispute", h.res.Dispute)
}

func (h *ResolutionHandler) stake(w http.ResponseWriter, r *http.Request, op string,
	fn func(context.Context, uint64, domain.Outcome, int64) (int64, error)) {
	id, err := marketID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var req stakeRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	outcome := optionalOutcome(req.Outcome)
	change, err := fn(r.Context(), id, outcome, req.Stake)
	if err != nil {
		writeServiceError(w, r, h.logger, op, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"market_id": id,
		"outcome":   outcome,
		"staked":    req.Stake - change,
		"change":    change,
	})
}

type withdrawRequest struct {
	Round   int  `json:"round"`
	Outcome *int `json:"outcome"`
}

// Withdraw returns the caller's stake on an outcome that did not bond.
// POST /api/markets/{id}/withdraw
func (h *ResolutionHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	id, err := marketID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var req withdrawRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	amount, err := h.res.Withdraw(r.Context(), id, req.Round, optionalOutcome(req.Outcome))
	if err != nil {
		writeServiceError(w, r, h.logger, "withdraw", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"market_id": id, "round": req.Round, "amount": amount})
}

type finalizeRequest struct {
	Outcome *int `json:"outcome"`
}

// Finalize settles the market. A disputed market needs the judge and an
// outcome.
// POST /api/markets/{id}/finalize
func (h *ResolutionHandler) Finalize(w http.ResponseWriter, r *http.Request) {
	id, err := marketID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var req finalizeRequest
	if r.ContentLength != 0 {
		if err := decode(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	var outcome *domain.Outcome
	if req.Outcome != nil {
		o := domain.Outcome(*req.Outcome)
		outcome = &o
	}
	winner, err := h.res.Finalize(r.Context(), id, outcome)
	if err != nil {
		writeServiceError(w, r, h.logger, "finalize", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"market_id": id, "winner": winner})
}
