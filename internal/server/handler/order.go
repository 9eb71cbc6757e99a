package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/alanyoungcy/settled/internal/domain"
	"github.com/alanyoungcy/settled/internal/market"
	"github.com/alanyoungcy/settled/internal/orderbook"
)

// OrderService is what the order handler needs from the service layer.
type OrderService interface {
	PlaceOrder(ctx context.Context, marketID uint64, outcome domain.Outcome, spend, price int64, affiliate string) (market.PlaceResult, error)
	CancelOrder(ctx context.Context, marketID uint64, outcome domain.Outcome, id orderbook.OrderID) (int64, error)
	SellShares(ctx context.Context, marketID uint64, outcome domain.Outcome, shares, minPrice int64) (market.SellResult, error)
}

// OrderHandler serves trading endpoints.
type OrderHandler struct {
	orders  OrderService
	amounts Amounts
	logger  *slog.Logger
}

// NewOrderHandler creates an OrderHandler with the given service and logger.
func NewOrderHandler(orders OrderService, amounts Amounts, logger *slog.Logger) *OrderHandler {
	return &OrderHandler{orders: orders, amounts: amounts, logger: logger}
}

type placeOrderRequest struct {
	Outcome   int    `json:"outcome"`
	Spend     int64  `json:"spend"`
	Price     int64  `json:"price"`
	Affiliate string `json:"affiliate,omitempty"`
}

// PlaceOrder buys shares of an outcome.
// POST /api/markets/{id}/orders
func (h *OrderHandler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	id, err := marketID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var req placeOrderRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	res, err := h.orders.PlaceOrder(r.Context(), id, domain.Outcome(req.Outcome), req.Spend, req.Price, req.Affiliate)
	if err != nil {
		writeServiceError(w, r, h.logger, "place order", err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

// CancelOrder cancels one of the caller's open orders.
// DELETE /api/markets/{id}/outcomes/{outcome}/orders/{orderID}
func (h *OrderHandler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	id, err := marketID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	outcome, err := outcomeParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	orderID, err := strconv.ParseUint(r.PathValue("orderID"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid order id")
		return
	}
	refund, err := h.orders.CancelOrder(r.Context(), id, outcome, orderbook.OrderID(orderID))
	if err != nil {
		writeServiceError(w, r, h.logger, "cancel order", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":         "canceled",
		"order_id":       orderID,
		"refund":         refund,
		"refund_display": h.amounts.Format(refund),
	})
}

type sellRequest struct {
	Outcome  int   `json:"outcome"`
	Shares   int64 `json:"shares"`
	MinPrice int64 `json:"min_price"`
}

// SellShares sells held shares into the outcome's bids.
// POST /api/markets/{id}/sell
func (h *OrderHandler) SellShares(w http.ResponseWriter, r *http.Request) {
	id, err := marketID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var req sellRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	res, err := h.orders.SellShares(r.Context(), id, domain.Outcome(req.Outcome), req.Shares, req.MinPrice)
	if err != nil {
		writeServiceError(w, r, h.logger, "sell shares", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
