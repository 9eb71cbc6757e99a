package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/settled/internal/market"
	"github.com/alanyoungcy/settled/internal/service"
)

// AccountService is what the account handler needs from the service layer.
type AccountService interface {
	Positions(ctx context.Context, id uint64, account string) ([]market.Position, error)
	Claimable(ctx context.Context, id uint64, account string) (market.Claim, error)
	Claim(ctx context.Context, marketID uint64, account string) (service.ClaimResult, error)
	Balance(ctx context.Context, account string) (int64, error)
	Mint(ctx context.Context, account string, amount int64) error
}

// AccountHandler serves balances, positions and claims.
type AccountHandler struct {
	accounts AccountService
	amounts  Amounts
	logger   *slog.Logger
}

// NewAccountHandler creates an AccountHandler.
func NewAccountHandler(accounts AccountService, amounts Amounts, logger *slog.Logger) *AccountHandler {
	return &AccountHandler{accounts: accounts, amounts: amounts, logger: logger}
}

// GetPositions returns an account's standing on every outcome.
// GET /api/markets/{id}/accounts/{account}
func (h *AccountHandler) GetPositions(w http.ResponseWriter, r *http.Request) {
	id, err := marketID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	account := r.PathValue("account")
	pos, err := h.accounts.Positions(r.Context(), id, account)
	if err != nil {
		writeServiceError(w, r, h.logger, "get positions", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"market_id": id, "account": account, "positions": pos})
}

type claimView struct {
	market.Claim
	PayoutDisplay string `json:"payout_display"`
}

// GetClaimable previews what a finalized market owes an account.
// GET /api/markets/{id}/claimable/{account}
func (h *AccountHandler) GetClaimable(w http.ResponseWriter, r *http.Request) {
	id, err := marketID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	c, err := h.accounts.Claimable(r.Context(), id, r.PathValue("account"))
	if err != nil {
		writeServiceError(w, r, h.logger, "get claimable", err)
		return
	}
	writeJSON(w, http.StatusOK, claimView{Claim: c, PayoutDisplay: h.amounts.Format(c.Payout)})
}

// Claim pays an account its earnings. Anyone may trigger it.
// POST /api/markets/{id}/claim/{account}
func (h *AccountHandler) Claim(w http.ResponseWriter, r *http.Request) {
	id, err := marketID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	res, err := h.accounts.Claim(r.Context(), id, r.PathValue("account"))
	if err != nil {
		writeServiceError(w, r, h.logger, "claim", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"market_id": res.MarketID,
		"claim":     claimView{Claim: res.Claim, PayoutDisplay: h.amounts.Format(res.Claim.Payout)},
		"receipt":   res.Receipt,
	})
}

// GetBalance returns an account's free ledger balance.
// GET /api/balances/{account}
func (h *AccountHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	account := r.PathValue("account")
	bal, err := h.accounts.Balance(r.Context(), account)
	if err != nil {
		writeServiceError(w, r, h.logger, "get balance", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"account": account,
		"balance": bal,
		"display": h.amounts.Format(bal),
	})
}

type mintRequest struct {
	Account string `json:"account"`
	Amount  int64  `json:"amount"`
}

// Mint credits an account. Only routed when minting is enabled.
// POST /api/admin/mint
func (h *AccountHandler) Mint(w http.ResponseWriter, r *http.Request) {
	var req mintRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Account == "" {
		writeError(w, http.StatusBadRequest, "account is required")
		return
	}
	if err := h.accounts.Mint(r.Context(), req.Account, req.Amount); err != nil {
		writeServiceError(w, r, h.logger, "mint", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"account": req.Account, "minted": req.Amount})
}
