package rpc

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/alanyoungcy/settled/internal/clock"
	"github.com/alanyoungcy/settled/internal/crypto"
	"github.com/alanyoungcy/settled/internal/domain"
	"github.com/alanyoungcy/settled/internal/ledger"
	"github.com/alanyoungcy/settled/internal/market"
	"github.com/alanyoungcy/settled/internal/service"
)

const testKey = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

var t0 = time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

func setup(t *testing.T, interceptor grpc.UnaryServerInterceptor) (*service.Settlement, *grpc.ClientConn) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := service.NewSettlement(market.DefaultConfig("judge"), ledger.NewMemory(), clock.NewManual(t0), logger)

	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(interceptor, Logging(logger)))
	Register(srv, NewServer(svc))
	go srv.Serve(lis)
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { conn.Close() })
	return svc, conn
}

func as(account string) context.Context {
	return domain.WithCaller(context.Background(), account)
}

func TestTradingOverGRPC(t *testing.T) {
	svc, conn := setup(t, Identity(crypto.RequestVerifier{}, true))
	if err := svc.Mint(as("admin"), "alice", 1_000); err != nil {
		t.Fatal(err)
	}
	info, err := svc.CreateMarket(as("creator"), domain.MarketSpec{Description: "m", Outcomes: 2, EndTime: t0.Add(time.Hour)})
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	alice := NewClient(conn, "alice")

	placed, err := alice.PlaceOrder(ctx, &PlaceOrderRequest{MarketID: info.ID, Outcome: 0, Spend: 500, Price: 50})
	if err != nil {
		t.Fatal(err)
	}
	if !placed.Open || placed.Order.Shares != 10 {
		t.Fatalf("placed = %+v", placed)
	}

	got, err := alice.GetMarket(ctx, &GetMarketRequest{MarketID: info.ID})
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != info.ID || got.Status != domain.MarketStatusTrading {
		t.Fatalf("market = %+v", got)
	}

	res, err := alice.CancelOrder(ctx, &CancelOrderRequest{MarketID: info.ID, Outcome: 0, OrderID: uint64(placed.Order.ID)})
	if err != nil {
		t.Fatal(err)
	}
	if res.Refund != 500 {
		t.Fatalf("refund = %d, want 500", res.Refund)
	}

	_, err = alice.GetClaimable(ctx, &GetClaimableRequest{MarketID: info.ID, Account: "alice"})
	if status.Code(err) != codes.FailedPrecondition {
		t.Fatalf("claimable before finalization: %v", err)
	}
	_, err = alice.GetMarket(ctx, &GetMarketRequest{MarketID: 42})
	if status.Code(err) != codes.NotFound {
		t.Fatalf("unknown market: %v", err)
	}
	_, err = NewClient(conn, "").PlaceOrder(ctx, &PlaceOrderRequest{MarketID: info.ID, Spend: 500, Price: 50})
	if status.Code(err) != codes.PermissionDenied {
		t.Fatalf("anonymous order: %v", err)
	}
}

func TestSignedGRPCIdentity(t *testing.T) {
	svc, conn := setup(t, Identity(crypto.RequestVerifier{MaxSkew: time.Minute}, false))
	signer, err := crypto.NewSigner(testKey)
	if err != nil {
		t.Fatal(err)
	}
	if err := svc.Mint(as("admin"), signer.Address(), 1_000); err != nil {
		t.Fatal(err)
	}
	info, err := svc.CreateMarket(as("creator"), domain.MarketSpec{Description: "m", Outcomes: 2, EndTime: t0.Add(time.Hour)})
	if err != nil {
		t.Fatal(err)
	}

	c := NewClient(conn, signer.Address())
	c.Sign = func(method string, req any) (int64, string, error) {
		body, err := json.Marshal(req)
		if err != nil {
			return 0, "", err
		}
		ts := time.Now().Unix()
		sig, err := signer.SignMessage(crypto.RequestMessage("GRPC", method, ts, crypto.BodyHash(body)))
		return ts, sig, err
	}
	placed, err := c.PlaceOrder(context.Background(), &PlaceOrderRequest{MarketID: info.ID, Spend: 500, Price: 50})
	if err != nil {
		t.Fatal(err)
	}
	if placed.Order.Creator != signer.Address() {
		t.Fatalf("order creator %q, want %q", placed.Order.Creator, signer.Address())
	}

	forged := NewClient(conn, signer.Address())
	forged.Sign = func(string, any) (int64, string, error) { return time.Now().Unix(), "0x00", nil }
	_, err = forged.PlaceOrder(context.Background(), &PlaceOrderRequest{MarketID: info.ID, Spend: 500, Price: 50})
	if status.Code(err) != codes.Unauthenticated {
		t.Fatalf("forged signature: %v", err)
	}
}
