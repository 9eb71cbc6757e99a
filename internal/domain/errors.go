package domain

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrRateLimited   = errors.New("rate limited")
	ErrUnauthorized  = errors.New("unauthorized")
	ErrSigningFailed = errors.New("signing failed")
	ErrLockHeld      = errors.New("lock already held")

	ErrInvalidMarketParameters = errors.New("invalid market parameters")
	ErrInsufficientBalance     = errors.New("insufficient balance")
	ErrMarketNotFound          = errors.New("market not found")
	ErrOutcomeNotFound         = errors.New("outcome not found")
	ErrOrderNotFound           = errors.New("order not found")
	ErrAlreadyResoluted        = errors.New("market already resoluted")
	ErrNotYetFinalizable       = errors.New("market not yet finalizable")
	ErrAlreadyFinalized        = errors.New("market already finalized")
	ErrNotFinalized            = errors.New("market not finalized")

	// ErrDustLoss marks an amount too small to buy a single share at the
	// requested price. Sub-share remainders of larger orders are rounded
	// away silently and never reported.
	ErrDustLoss = errors.New("amount below dust threshold")

	ErrInvalidPrice        = errors.New("invalid price")
	ErrInvalidAmount       = errors.New("invalid amount")
	ErrMarketClosed        = errors.New("market closed for trading")
	ErrMarketOpen          = errors.New("market has not ended")
	ErrNotResoluted        = errors.New("market not resoluted")
	ErrDisputeWindowClosed = errors.New("dispute window closed")
	ErrDisputeCapReached   = errors.New("dispute round cap reached")
	ErrSameOutcome         = errors.New("outcome already leading")
	ErrRoundNotFound       = errors.New("resolution round not found")
	ErrStakeLocked         = errors.New("stake is bonded")
	ErrInsufficientShares  = errors.New("insufficient shares")
)
