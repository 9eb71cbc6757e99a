package rpc

import (
	"context"
	"strconv"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"

	"github.com/alanyoungcy/settled/internal/market"
	"github.com/alanyoungcy/settled/internal/service"
)

// Client calls settled.v1.Settlement. Account is sent as trusted caller
// metadata; servers that verify signatures need Sign as well.
type Client struct {
	conn    grpc.ClientConnInterface
	account string
	// Sign, when set, returns the signature metadata for a request.
	Sign func(method string, req any) (ts int64, sig string, err error)
}

// NewClient creates a Client calling through conn as account.
func NewClient(conn grpc.ClientConnInterface, account string) *Client {
	return &Client{conn: conn, account: account}
}

func (c *Client) invoke(ctx context.Context, method string, req, resp any) error {
	full := "/" + serviceName + "/" + method
	if c.account != "" {
		pairs := []string{MDAccount, c.account}
		if c.Sign != nil {
			ts, sig, err := c.Sign(full, req)
			if err != nil {
				return err
			}
			pairs = append(pairs, MDTimestamp, strconv.FormatInt(ts, 10), MDSignature, sig)
		}
		ctx = metadata.AppendToOutgoingContext(ctx, pairs...)
	}
	return c.conn.Invoke(ctx, full, req, resp, grpc.CallContentSubtype(codecName))
}

func (c *Client) PlaceOrder(ctx context.Context, req *PlaceOrderRequest) (*market.PlaceResult, error) {
	out := new(market.PlaceResult)
	if err := c.invoke(ctx, "PlaceOrder", req, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) CancelOrder(ctx context.Context, req *CancelOrderRequest) (*CancelOrderResponse, error) {
	out := new(CancelOrderResponse)
	if err := c.invoke(ctx, "CancelOrder", req, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) GetMarket(ctx context.Context, req *GetMarketRequest) (*market.Info, error) {
	out := new(market.Info)
	if err := c.invoke(ctx, "GetMarket", req, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) GetClaimable(ctx context.Context, req *GetClaimableRequest) (*market.Claim, error) {
	out := new(market.Claim)
	if err := c.invoke(ctx, "GetClaimable", req, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Claim(ctx context.Context, req *ClaimRequest) (*service.ClaimResult, error) {
	out := new(service.ClaimResult)
	if err := c.invoke(ctx, "Claim", req, out); err != nil {
		return nil, err
	}
	return out, nil
}
