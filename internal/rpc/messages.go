package rpc

type PlaceOrderRequest struct {
	MarketID  uint64 `json:"market_id"`
	Outcome   int    `json:"outcome"`
	Spend     int64  `json:"spend"`
	Price     int64  `json:"price"`
	Affiliate string `json:"affiliate,omitempty"`
}

type CancelOrderRequest struct {
	MarketID uint64 `json:"market_id"`
	Outcome  int    `json:"outcome"`
	OrderID  uint64 `json:"order_id"`
}

type CancelOrderResponse struct {
	Refund int64 `json:"refund"`
}

type GetMarketRequest struct {
	MarketID uint64 `json:"market_id"`
}

// GetClaimableRequest and ClaimRequest name the account paid; an empty
// account on Claim means the caller.
type GetClaimableRequest struct {
	MarketID uint64 `json:"market_id"`
	Account  string `json:"account"`
}

type ClaimRequest struct {
	MarketID uint64 `json:"market_id"`
	Account  string `json:"account,omitempty"`
}
