// Package rpc serves a subset of the settlement API over gRPC with a JSON
// codec: settled.v1.Settlement.
package rpc

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/alanyoungcy/settled/internal/crypto"
	"github.com/alanyoungcy/settled/internal/domain"
	"github.com/alanyoungcy/settled/internal/market"
	"github.com/alanyoungcy/settled/internal/orderbook"
	"github.com/alanyoungcy/settled/internal/service"
)

const serviceName = "settled.v1.Settlement"

// Metadata keys carrying the caller's identity.
const (
	MDAccount   = "x-settled-account"
	MDTimestamp = "x-settled-timestamp"
	MDSignature = "x-settled-signature"
)

// Service is what the gRPC server needs from the service layer.
type Service interface {
	PlaceOrder(ctx context.Context, marketID uint64, outcome domain.Outcome, spend, price int64, affiliate string) (market.PlaceResult, error)
	CancelOrder(ctx context.Context, marketID uint64, outcome domain.Outcome, id orderbook.OrderID) (int64, error)
	Market(ctx context.Context, id uint64) (market.Info, error)
	Claimable(ctx context.Context, id uint64, account string) (market.Claim, error)
	Claim(ctx context.Context, marketID uint64, account string) (service.ClaimResult, error)
}

// SettlementServer is the gRPC surface.
type SettlementServer interface {
	PlaceOrder(context.Context, *PlaceOrderRequest) (*market.PlaceResult, error)
	CancelOrder(context.Context, *CancelOrderRequest) (*CancelOrderResponse, error)
	GetMarket(context.Context, *GetMarketRequest) (*market.Info, error)
	GetClaimable(context.Context, *GetClaimableRequest) (*market.Claim, error)
	Claim(context.Context, *ClaimRequest) (*service.ClaimResult, error)
}

// Server adapts Service to gRPC.
type Server struct {
	svc Service
}

// NewServer creates a Server.
func NewServer(svc Service) *Server {
	return &Server{svc: svc}
}

func (s *Server) PlaceOrder(ctx context.Context, req *PlaceOrderRequest) (*market.PlaceResult, error) {
	res, err := s.svc.PlaceOrder(ctx, req.MarketID, domain.Outcome(req.Outcome), req.Spend, req.Price, req.Affiliate)
	if err != nil {
		return nil, toStatus(err)
	}
	return &res, nil
}

func (s *Server) CancelOrder(ctx context.Context, req *CancelOrderRequest) (*CancelOrderResponse, error) {
	refund, err := s.svc.CancelOrder(ctx, req.MarketID, domain.Outcome(req.Outcome), orderbook.OrderID(req.OrderID))
	if err != nil {
		return nil, toStatus(err)
	}
	return &CancelOrderResponse{Refund: refund}, nil
}

func (s *Server) GetMarket(ctx context.Context, req *GetMarketRequest) (*market.Info, error) {
	info, err := s.svc.Market(ctx, req.MarketID)
	if err != nil {
		return nil, toStatus(err)
	}
	return &info, nil
}

func (s *Server) GetClaimable(ctx context.Context, req *GetClaimableRequest) (*market.Claim, error) {
	c, err := s.svc.Claimable(ctx, req.MarketID, req.Account)
	if err != nil {
		return nil, toStatus(err)
	}
	return &c, nil
}

func (s *Server) Claim(ctx context.Context, req *ClaimRequest) (*service.ClaimResult, error) {
	res, err := s.svc.Claim(ctx, req.MarketID, req.Account)
	if err != nil {
		return nil, toStatus(err)
	}
	return &res, nil
}

// unary builds the method descriptor for one call.
func unary[Req, Resp any](name string, call func(SettlementServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(SettlementServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/" + name}
			return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return call(srv.(SettlementServer), ctx, req.(*Req))
			})
		},
	}
}

// ServiceDesc describes settled.v1.Settlement.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*SettlementServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("PlaceOrder", SettlementServer.PlaceOrder),
		unary("CancelOrder", SettlementServer.CancelOrder),
		unary("GetMarket", SettlementServer.GetMarket),
		unary("GetClaimable", SettlementServer.GetClaimable),
		unary("Claim", SettlementServer.Claim),
	},
	Metadata: "settled/v1/settlement",
}

// Register mounts srv on s.
func Register(s *grpc.Server, srv SettlementServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// Identity returns an interceptor that attaches the caller named in the
// request metadata. Unless trustHeader is set, the caller must sign
// crypto.RequestMessage("GRPC", fullMethod, ts, hash of the JSON request).
func Identity(verifier crypto.RequestVerifier, trustHeader bool) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		md, _ := metadata.FromIncomingContext(ctx)
		account := first(md, MDAccount)
		if account == "" {
			return handler(ctx, req)
		}
		if trustHeader {
			return handler(domain.WithCaller(ctx, account), req)
		}
		ts, err := strconv.ParseInt(first(md, MDTimestamp), 10, 64)
		if err != nil {
			return nil, status.Error(codes.Unauthenticated, "missing or invalid timestamp")
		}
		body, err := json.Marshal(req)
		if err != nil {
			return nil, status.Error(codes.Internal, "encode request")
		}
		caller, err := verifier.VerifyRequest(account, "GRPC", info.FullMethod, ts, body, first(md, MDSignature))
		if err != nil {
			return nil, status.Error(codes.Unauthenticated, err.Error())
		}
		return handler(domain.WithCaller(ctx, caller), req)
	}
}

// Logging returns an interceptor logging each call's method, code and
// duration.
func Logging(logger *slog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		caller, _ := domain.CallerFrom(ctx)
		logger.InfoContext(ctx, "rpc request",
			slog.String("method", info.FullMethod),
			slog.String("code", status.Code(err).String()),
			slog.Duration("duration", time.Since(start)),
			slog.String("caller", caller),
		)
		return resp, err
	}
}

func first(md metadata.MD, key string) string {
	if v := md.Get(key); len(v) > 0 {
		return v[0]
	}
	return ""
}
