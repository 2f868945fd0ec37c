package grpc

import (
	"context"

	"github.com/oriys/halo/internal/observability"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// Client is a typed client for the dispatch service.
type Client struct {
	conn *grpc.ClientConn
}

// NewClient connects to a dispatch daemon. The connection is plaintext and
// uses the JSON codec for every call.
func NewClient(target string) (*Client, error) {
	conn, err := grpc.NewClient(target,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(codecName)),
	)
	if err != nil {
		return nil, err
	}
	return &Client{conn: conn}, nil
}

// Close tears down the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// Invoke runs a synchronous invocation.
func (c *Client) Invoke(ctx context.Context, req *InvokeRequest) (*InvokeReply, error) {
	req.TraceContext = observability.ExtractTraceContext(ctx)
	out := new(InvokeReply)
	if err := c.conn.Invoke(ctx, methodInvoke, req, out); err != nil {
		return nil, err
	}
	return out, nil
}

// Begin starts an asynchronous invocation.
func (c *Client) Begin(ctx context.Context, req *BeginRequest) (*BeginReply, error) {
	req.TraceContext = observability.ExtractTraceContext(ctx)
	out := new(BeginReply)
	if err := c.conn.Invoke(ctx, methodBegin, req, out); err != nil {
		return nil, err
	}
	return out, nil
}

// Result fetches the state of an asynchronous call.
func (c *Client) Result(ctx context.Context, req *ResultRequest) (*ResultReply, error) {
	out := new(ResultReply)
	if err := c.conn.Invoke(ctx, methodResult, req, out); err != nil {
		return nil, err
	}
	return out, nil
}

// ListOperations lists the operations bound on the daemon.
func (c *Client) ListOperations(ctx context.Context) (*ListOperationsReply, error) {
	out := new(ListOperationsReply)
	if err := c.conn.Invoke(ctx, methodListOperations, new(ListOperationsRequest), out); err != nil {
		return nil, err
	}
	return out, nil
}
