package rpc

import (
	"context"
	"fmt"
	"time"

	"github.com/cuemby/blockmesh/pkg/block"
	"github.com/cuemby/blockmesh/pkg/repo"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// Client dials a peer's rpc.Server and implements transactor.RepoRPC over
// the wire, so the transactor can treat a remote peer exactly like a local
// *repo.Repo.
type Client struct {
	conn *grpc.ClientConn
}

// Dial connects to a peer at addr. Transport security mirrors the
// teacher's mTLS posture at the infrastructure layer (see pkg/security);
// this package itself stays transport-agnostic and takes insecure
// credentials here, leaving TLS wiring to the caller's dial options.
func Dial(addr string, opts ...grpc.DialOption) (*Client, error) {
	allOpts := append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.ForceCodec(jsonCodec{})),
	}, opts...)
	conn, err := grpc.NewClient(addr, allOpts...)
	if err != nil {
		return nil, fmt.Errorf("rpc: dial %s: %w", addr, err)
	}
	return &Client{conn: conn}, nil
}

// Close releases the underlying connection.
func (c *Client) Close() error { return c.conn.Close() }

func (c *Client) invoke(ctx context.Context, method string, in, out any) error {
	return c.conn.Invoke(ctx, "/"+ServiceName+"/"+method, in, out)
}

func (c *Client) Get(ctx context.Context, ids []block.BlockId, gctx repo.GetContext) (map[block.BlockId]repo.GetResult, error) {
	out := new(GetResponse)
	if err := c.invoke(ctx, "Get", &GetRequest{Ids: ids, Context: gctx}, out); err != nil {
		return nil, err
	}
	return out.Results, nil
}

func (c *Client) Pend(ctx context.Context, req repo.PendRequest) (repo.PendResult, error) {
	out := new(repo.PendResult)
	if err := c.invoke(ctx, "Pend", &req, out); err != nil {
		return repo.PendResult{}, err
	}
	return *out, nil
}

func (c *Client) Cancel(ctx context.Context, trxId block.TrxId, ids []block.BlockId) error {
	out := new(CancelResponse)
	return c.invoke(ctx, "Cancel", &CancelRequest{TrxId: trxId, Ids: ids}, out)
}

func (c *Client) Commit(ctx context.Context, req repo.CommitRequest) (repo.CommitResult, error) {
	out := new(repo.CommitResult)
	if err := c.invoke(ctx, "Commit", &req, out); err != nil {
		return repo.CommitResult{}, err
	}
	return *out, nil
}

// DialTimeout is a convenience wrapper used by callers that want Dial to
// block (fail fast) until the connection is ready or timeout elapses.
func DialTimeout(addr string, timeout time.Duration, opts ...grpc.DialOption) (*Client, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	cl, err := Dial(addr, opts...)
	if err != nil {
		return nil, err
	}
	cl.conn.Connect()
	for {
		state := cl.conn.GetState()
		if state.String() == "READY" {
			return cl, nil
		}
		if !cl.conn.WaitForStateChange(ctx, state) {
			return nil, fmt.Errorf("rpc: dial %s: %w", addr, ctx.Err())
		}
	}
}
