package domain

import "time"

// CommandType names a state-changing operation recorded in the journal.
type CommandType string

const (
	CmdCreateMarket CommandType = "create_market"
	CmdPlaceOrder   CommandType = "place_order"
	CmdCancelOrder  CommandType = "cancel_order"
	CmdSellShares   CommandType = "sell_shares"
	CmdResolute     CommandType = "resolute"
	CmdDispute      CommandType = "dispute"
	CmdWithdraw     CommandType = "withdraw"
	CmdFinalize     CommandType = "finalize"
	CmdClaim        CommandType = "claim"
	CmdMint         CommandType = "mint"
)

// MarketSpec holds the creator-supplied parameters of a new market.
type MarketSpec struct {
	Description     string    `json:"description" structs:"description"`
	Outcomes        int       `json:"outcomes" structs:"outcomes"`
	Tags            []string  `json:"tags,omitempty" structs:"tags"`
	Categories      []string  `json:"categories,omitempty" structs:"categories"`
	EndTime         time.Time `json:"end_time" structs:"end_time,omitnested"`
	CreatorFeePct   int64     `json:"creator_fee_pct" structs:"creator_fee_pct"`
	AffiliateFeePct int64     `json:"affiliate_fee_pct" structs:"affiliate_fee_pct"`
}

// Command is one accepted operation together with the caller and the
// logical time it ran at. Replaying commands in order against an empty
// engine rebuilds the same state.
type Command struct {
	Type      CommandType `json:"type" structs:"type"`
	Caller    string      `json:"caller" structs:"caller"`
	At        time.Time   `json:"at" structs:"at,omitnested"`
	MarketID  uint64      `json:"market_id,string,omitempty" structs:"market_id,omitempty"`
	Outcome   *Outcome    `json:"outcome,omitempty" structs:"outcome,omitempty"`
	Amount    int64       `json:"amount,string,omitempty" structs:"amount,omitempty"`
	Price     int64       `json:"price,string,omitempty" structs:"price,omitempty"`
	OrderID   uint64      `json:"order_id,string,omitempty" structs:"order_id,omitempty"`
	Round     int         `json:"round,omitempty" structs:"round,omitempty"`
	Account   string      `json:"account,omitempty" structs:"account,omitempty"`
	Affiliate string      `json:"affiliate,omitempty" structs:"affiliate,omitempty"`
	Spec      *MarketSpec `json:"spec,omitempty" structs:"spec,omitempty"`
}

// CommandLog appends accepted commands.
type CommandLog interface {
	Append(cmd Command) (uint64, error)
}
