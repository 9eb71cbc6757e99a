package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/settled/internal/domain"
	"github.com/alanyoungcy/settled/internal/market"
	"github.com/alanyoungcy/settled/internal/orderbook"
	"github.com/alanyoungcy/settled/internal/service"
)

// MarketService is what the market handler needs from the service layer.
type MarketService interface {
	CreateMarket(ctx context.Context, spec domain.MarketSpec) (market.Info, error)
	Market(ctx context.Context, id uint64) (market.Info, error)
	Markets(ctx context.Context, status domain.MarketStatus, opts domain.ListOpts) []market.Info
	Summary(ctx context.Context, id uint64) (domain.MarketSummary, error)
	Report(ctx context.Context, id uint64) (service.SettlementReport, error)
	BestPrices(ctx context.Context, id uint64) ([]int64, error)
	Levels(ctx context.Context, id uint64, outcome domain.Outcome) ([]orderbook.LevelView, error)
	Depth(ctx context.Context, id uint64, outcome domain.Outcome, spend, price int64) (int64, error)
	Liquidity(ctx context.Context, id uint64, outcome domain.Outcome, spend, maxPrice int64) (market.Liquidity, error)
	SellDepth(ctx context.Context, id uint64, outcome domain.Outcome, shares, minPrice int64) (market.SellResult, error)
}

// MarketHandler serves market creation and read-only market endpoints.
type MarketHandler struct {
	markets MarketService
	logger  *slog.Logger
}

// NewMarketHandler creates a MarketHandler with the given service and logger.
func NewMarketHandler(markets MarketService, logger *slog.Logger) *MarketHandler {
	return &MarketHandler{markets: markets, logger: logger}
}

// CreateMarket opens a new market owned by the caller.
// POST /api/markets
func (h *MarketHandler) CreateMarket(w http.ResponseWriter, r *http.Request) {
	var spec domain.MarketSpec
	if err := decode(r, &spec); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	info, err := h.markets.CreateMarket(r.Context(), spec)
	if err != nil {
		writeServiceError(w, r, h.logger, "create market", err)
		return
	}
	writeJSON(w, http.StatusCreated, info)
}

type listMarketsResponse struct {
	Markets []market.Info `json:"markets"`
	Limit   int           `json:"limit"`
	Offset  int           `json:"offset"`
}

// ListMarkets lists markets in id order.
// GET /api/markets?status=trading&limit=50&offset=0
func (h *MarketHandler) ListMarkets(w http.ResponseWriter, r *http.Request) {
	opts := parseListOpts(r)
	status := domain.MarketStatus(r.URL.Query().Get("status"))
	switch status {
	case "", domain.MarketStatusTrading, domain.MarketStatusResoluted, domain.MarketStatusDisputed, domain.MarketStatusFinalized:
	default:
		writeError(w, http.StatusBadRequest, "unknown status "+string(status))
		return
	}
	writeJSON(w, http.StatusOK, listMarketsResponse{
		Markets: h.markets.Markets(r.Context(), status, opts),
		Limit:   opts.Limit,
		Offset:  opts.Offset,
	})
}

// GetMarket returns one market.
// GET /api/markets/{id}
func (h *MarketHandler) GetMarket(w http.ResponseWriter, r *http.Request) {
	id, err := marketID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	info, err := h.markets.Market(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, h.logger, "get market", err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// GetSummary returns the cached headline view of a market.
// GET /api/markets/{id}/summary
func (h *MarketHandler) GetSummary(w http.ResponseWriter, r *http.Request) {
	id, err := marketID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	sum, err := h.markets.Summary(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, h.logger, "get summary", err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

// GetReport returns every account's claim on a finalized market.
// GET /api/markets/{id}/report
func (h *MarketHandler) GetReport(w http.ResponseWriter, r *http.Request) {
	id, err := marketID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	rep, err := h.markets.Report(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, h.logger, "get report", err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

// GetPrices returns the best bid of every outcome.
// GET /api/markets/{id}/prices
func (h *MarketHandler) GetPrices(w http.ResponseWriter, r *http.Request) {
	id, err := marketID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	prices, err := h.markets.BestPrices(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, h.logger, "get prices", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"market_id": id, "best_prices": prices})
}

// GetBook returns one outcome's price levels, best first.
// GET /api/markets/{id}/outcomes/{outcome}/book
func (h *MarketHandler) GetBook(w http.ResponseWriter, r *http.Request) {
	id, outcome, ok := h.marketOutcome(w, r)
	if !ok {
		return
	}
	levels, err := h.markets.Levels(r.Context(), id, outcome)
	if err != nil {
		writeServiceError(w, r, h.logger, "get book", err)
		return
	}
	if levels == nil {
		levels = []orderbook.LevelView{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"market_id": id, "outcome": outcome, "levels": levels})
}

// GetDepth returns the liquidity at one price level available to spend.
// GET /api/markets/{id}/outcomes/{outcome}/depth?spend=&price=
func (h *MarketHandler) GetDepth(w http.ResponseWriter, r *http.Request) {
	id, outcome, ok := h.marketOutcome(w, r)
	if !ok {
		return
	}
	spend, err := queryInt(r, "spend", 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	price, err := queryInt(r, "price", 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	depth, err := h.markets.Depth(r.Context(), id, outcome, spend, price)
	if err != nil {
		writeServiceError(w, r, h.logger, "get depth", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"depth": depth})
}

// GetLiquidity walks levels at or below max_price for spend.
// GET /api/markets/{id}/outcomes/{outcome}/liquidity?spend=&max_price=
func (h *MarketHandler) GetLiquidity(w http.ResponseWriter, r *http.Request) {
	id, outcome, ok := h.marketOutcome(w, r)
	if !ok {
		return
	}
	spend, err := queryInt(r, "spend", 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	maxPrice, err := queryInt(r, "max_price", domain.PriceScale-1)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	liq, err := h.markets.Liquidity(r.Context(), id, outcome, spend, maxPrice)
	if err != nil {
		writeServiceError(w, r, h.logger, "get liquidity", err)
		return
	}
	writeJSON(w, http.StatusOK, liq)
}

// GetSellDepth previews a market sell.
// GET /api/markets/{id}/outcomes/{outcome}/sell-depth?shares=&min_price=
func (h *MarketHandler) GetSellDepth(w http.ResponseWriter, r *http.Request) {
	id, outcome, ok := h.marketOutcome(w, r)
	if !ok {
		return
	}
	shares, err := queryInt(r, "shares", 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	minPrice, err := queryInt(r, "min_price", 1)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	res, err := h.markets.SellDepth(r.Context(), id, outcome, shares, minPrice)
	if err != nil {
		writeServiceError(w, r, h.logger, "get sell depth", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *MarketHandler) marketOutcome(w http.ResponseWriter, r *http.Request) (uint64, domain.Outcome, bool) {
	id, err := marketID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return 0, 0, false
	}
	outcome, err := outcomeParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return 0, 0, false
	}
	return id, outcome, true
}
