// Package api serves backtests and parameter sweeps over gRPC. Messages are
// google.protobuf.Struct values carrying the same JSON documents the HTTP
// API accepts and returns, so the service needs no generated stubs.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"strategylab/internal/backtest"
	"strategylab/internal/domain"
	"strategylab/internal/engine"
	"strategylab/internal/expr"
	"strategylab/internal/httpapi"
	"strategylab/internal/store"
	"strategylab/internal/sweep"
)

const (
	serviceName    = "strategylab.v1.BacktestService"
	backtestMethod = "/" + serviceName + "/Backtest"
	sweepMethod    = "/" + serviceName + "/Sweep"
)

// ErrorKindKey is the trailer key that carries the classified kind of an
// InvalidArgument error: a compile error kind or "ConfigurationError".
const ErrorKindKey = "x-error-kind"

// BacktestServiceServer is the server API for the BacktestService.
type BacktestServiceServer interface {
	// Backtest runs one strategy and returns its report.
	Backtest(context.Context, *structpb.Struct) (*structpb.Struct, error)
	// Sweep runs a parameter grid and streams each outcome as it finishes.
	Sweep(*structpb.Struct, grpc.ServerStreamingServer[structpb.Struct]) error
}

var backtestServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*BacktestServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Backtest", Handler: backtestHandler},
	},
	Streams: []grpc.StreamDesc{
		{StreamName: "Sweep", Handler: sweepHandler, ServerStreams: true},
	},
	Metadata: "strategylab/v1/backtest.proto",
}

func backtestHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(BacktestServiceServer).Backtest(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: backtestMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(BacktestServiceServer).Backtest(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func sweepHandler(srv any, stream grpc.ServerStream) error {
	in := new(structpb.Struct)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(BacktestServiceServer).Sweep(in, &grpc.GenericServerStream[structpb.Struct, structpb.Struct]{ServerStream: stream})
}

// SweepRequest is the Sweep message: a registry strategy, the parameter
// axes to expand, and the bars and account to run every point over.
// Workers bounds the runs in flight (GOMAXPROCS when zero).
type SweepRequest struct {
	Strategy string               `json:"strategy"`
	Axes     map[string][]float64 `json:"axes"`
	Symbols  []string             `json:"symbols"`
	Market   string               `json:"market,omitempty"`
	Start    string               `json:"start"`
	End      string               `json:"end"`
	Config   engine.Config        `json:"config"`
	Workers  int                  `json:"workers,omitempty"`
}

// Service implements BacktestServiceServer over a Backtester.
type Service struct {
	backtester *backtest.Backtester
	strategies store.StrategyStore
	log        *slog.Logger
}

// NewService creates a Service. strategies resolves strategy_name in
// Backtest requests.
func NewService(bt *backtest.Backtester, strategies store.StrategyStore, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		backtester: bt,
		strategies: strategies,
		log:        log.With("component", "grpc"),
	}
}

// RegisterGRPC registers the service on the given gRPC server instance.
func (s *Service) RegisterGRPC(gs *grpc.Server) {
	gs.RegisterService(&backtestServiceDesc, s)
}

// Backtest decodes an HTTP-style backtest request, runs it and returns the
// report.
func (s *Service) Backtest(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	trailer := func(md metadata.MD) { _ = grpc.SetTrailer(ctx, md) }
	body := httpapi.BacktestRequest{Config: engine.DefaultConfig()}
	if err := fromStruct(in, &body, true); err != nil {
		return nil, s.toStatus(err, trailer)
	}
	spec, req, err := body.Resolve(ctx, s.strategies)
	if err != nil {
		return nil, s.toStatus(err, trailer)
	}
	rep, err := s.backtester.Run(ctx, spec, req)
	if err != nil {
		return nil, s.toStatus(err, trailer)
	}
	out, err := toStruct(rep)
	if err != nil {
		return nil, s.toStatus(err, nil)
	}
	return out, nil
}

// Sweep expands the request grid and sends one sweep.Outcome per point in
// completion order. The stream ends when every point has run or the first
// one fails.
func (s *Service) Sweep(in *structpb.Struct, stream grpc.ServerStreamingServer[structpb.Struct]) error {
	if err := s.sweep(in, stream); err != nil {
		return s.toStatus(err, stream.SetTrailer)
	}
	return nil
}

func (s *Service) sweep(in *structpb.Struct, stream grpc.ServerStreamingServer[structpb.Struct]) error {
	ctx := stream.Context()
	body := SweepRequest{Config: engine.DefaultConfig()}
	if err := fromStruct(in, &body, true); err != nil {
		return err
	}
	start, err := httpapi.ParseDate("start", body.Start, time.Time{})
	if err != nil {
		return err
	}
	end, err := httpapi.ParseDate("end", body.End, time.Now().UTC())
	if err != nil {
		return err
	}
	if err := body.Config.Validate(); err != nil {
		return err
	}
	candidates, err := sweep.Grid(s.backtester.Registry(), body.Strategy, body.Axes)
	if err != nil {
		return err
	}
	bars, err := s.backtester.LoadBars(ctx, backtest.Request{
		Symbols: body.Symbols,
		Market:  body.Market,
		Start:   start,
		End:     end,
	})
	if err != nil {
		return err
	}

	s.log.Info("sweep starting", "strategy", body.Strategy, "points", len(candidates), "bars", len(bars))
	sent := 0
	err = sweep.Stream(ctx, body.Config, bars, candidates, body.Workers, func(o sweep.Outcome) error {
		msg, err := toStruct(o)
		if err != nil {
			return err
		}
		if err := stream.Send(msg); err != nil {
			return err
		}
		sent++
		return nil
	})
	if err != nil {
		return err
	}
	s.log.Info("sweep complete", "strategy", body.Strategy, "sent", sent)
	return nil
}

// toStatus converts err to a gRPC status. Classified errors also set the
// ErrorKindKey trailer through setTrailer when it is non-nil.
func (s *Service) toStatus(err error, setTrailer func(metadata.MD)) error {
	if _, ok := status.FromError(err); ok {
		return err
	}
	var (
		ce  *expr.CompileError
		cfg *domain.ConfigError
		re  *httpapi.RequestError
	)
	kind := ""
	code := codes.Internal
	switch {
	case errors.As(err, &ce):
		code, kind = codes.InvalidArgument, string(ce.Kind)
	case errors.As(err, &cfg):
		code, kind = codes.InvalidArgument, "ConfigurationError"
	case errors.As(err, &re):
		code = codes.InvalidArgument
	case errors.Is(err, store.ErrNotFound):
		code = codes.NotFound
	case errors.Is(err, context.Canceled):
		code = codes.Canceled
	case errors.Is(err, context.DeadlineExceeded):
		code = codes.DeadlineExceeded
	default:
		s.log.Error("rpc failed", "error", err)
	}
	if kind != "" && setTrailer != nil {
		setTrailer(metadata.Pairs(ErrorKindKey, kind))
	}
	return status.Error(code, err.Error())
}

// toStruct encodes v with its JSON marshalling into a Struct.
func toStruct(v any) (*structpb.Struct, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encoding message: %w", err)
	}
	out := new(structpb.Struct)
	if err := protojson.Unmarshal(raw, out); err != nil {
		return nil, fmt.Errorf("encoding message: %w", err)
	}
	return out, nil
}

// fromStruct decodes a Struct into v. strict rejects unknown fields.
func fromStruct(in *structpb.Struct, v any, strict bool) error {
	raw, err := protojson.Marshal(in)
	if err != nil {
		return &httpapi.RequestError{Msg: "invalid message: " + err.Error()}
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	if strict {
		dec.DisallowUnknownFields()
	}
	if err := dec.Decode(v); err != nil {
		return &httpapi.RequestError{Msg: "invalid message: " + err.Error()}
	}
	return nil
}
