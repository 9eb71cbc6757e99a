package rpc

import (
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/alanyoungcy/settled/internal/domain"
)

// toStatus converts a service error into a gRPC status error.
func toStatus(err error) error {
	if err == nil {
		return nil
	}
	var code codes.Code
	switch {
	case errors.Is(err, domain.ErrUnauthorized):
		code = codes.PermissionDenied
	case errors.Is(err, domain.ErrMarketNotFound),
		errors.Is(err, domain.ErrOutcomeNotFound),
		errors.Is(err, domain.ErrOrderNotFound),
		errors.Is(err, domain.ErrRoundNotFound),
		errors.Is(err, domain.ErrNotFound):
		code = codes.NotFound
	case errors.Is(err, domain.ErrInvalidMarketParameters),
		errors.Is(err, domain.ErrInvalidPrice),
		errors.Is(err, domain.ErrInvalidAmount),
		errors.Is(err, domain.ErrDustLoss):
		code = codes.InvalidArgument
	case errors.Is(err, domain.ErrInsufficientBalance),
		errors.Is(err, domain.ErrInsufficientShares),
		errors.Is(err, domain.ErrMarketClosed),
		errors.Is(err, domain.ErrNotFinalized),
		errors.Is(err, domain.ErrAlreadyFinalized),
		errors.Is(err, domain.ErrAlreadyResoluted):
		code = codes.FailedPrecondition
	case errors.Is(err, domain.ErrLockHeld):
		code = codes.Aborted
	default:
		code = codes.Internal
	}
	return status.Error(code, err.Error())
}
