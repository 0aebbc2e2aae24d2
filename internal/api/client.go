package api

import (
	"context"
	"fmt"
	"io"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"strategylab/internal/backtest"
	"strategylab/internal/httpapi"
	"strategylab/internal/sweep"
)

// RPCError is a failed BacktestService call. Kind is the ErrorKindKey
// trailer value, set for classified InvalidArgument errors.
type RPCError struct {
	Code    codes.Code
	Message string
	Kind    string
}

func (e *RPCError) Error() string {
	if e.Kind != "" {
		return fmt.Sprintf("rpc %s (%s): %s", e.Code, e.Kind, e.Message)
	}
	return fmt.Sprintf("rpc %s: %s", e.Code, e.Message)
}

// Client calls a BacktestService.
type Client struct {
	conn *grpc.ClientConn
}

// Dial creates a client targeting addr over an insecure connection. opts
// are appended to the defaults.
func Dial(addr string, opts ...grpc.DialOption) (*Client, error) {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", addr, err)
	}
	return &Client{conn: conn}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// Backtest runs req on the server and returns its report.
func (c *Client) Backtest(ctx context.Context, req *httpapi.BacktestRequest) (*backtest.Report, error) {
	in, err := toStruct(req)
	if err != nil {
		return nil, err
	}
	out := new(structpb.Struct)
	var trailer metadata.MD
	if err := c.conn.Invoke(ctx, backtestMethod, in, out, grpc.Trailer(&trailer)); err != nil {
		return nil, rpcError(err, trailer)
	}
	var rep backtest.Report
	if err := fromStruct(out, &rep, false); err != nil {
		return nil, fmt.Errorf("decoding report: %w", err)
	}
	return &rep, nil
}

// Sweep runs req on the server and calls fn with each outcome as it
// arrives. It blocks until the stream ends, fn fails or ctx is cancelled.
func (c *Client) Sweep(ctx context.Context, req *SweepRequest, fn func(sweep.Outcome) error) error {
	in, err := toStruct(req)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	stream, err := c.conn.NewStream(ctx, &backtestServiceDesc.Streams[0], sweepMethod)
	if err != nil {
		return rpcError(err, nil)
	}
	if err := stream.SendMsg(in); err != nil {
		return rpcError(err, stream.Trailer())
	}
	if err := stream.CloseSend(); err != nil {
		return rpcError(err, stream.Trailer())
	}

	for {
		out := new(structpb.Struct)
		err := stream.RecvMsg(out)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return rpcError(err, stream.Trailer())
		}
		var o sweep.Outcome
		if err := fromStruct(out, &o, false); err != nil {
			return fmt.Errorf("decoding outcome: %w", err)
		}
		if err := fn(o); err != nil {
			return err
		}
	}
}

func rpcError(err error, trailer metadata.MD) error {
	st, ok := status.FromError(err)
	if !ok {
		return err
	}
	e := &RPCError{Code: st.Code(), Message: st.Message()}
	if v := trailer.Get(ErrorKindKey); len(v) > 0 {
		e.Kind = v[0]
	}
	return e
}
