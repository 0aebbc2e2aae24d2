package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"strategylab/internal/backtest"
	"strategylab/internal/domain"
	"strategylab/internal/engine"
	"strategylab/internal/expr"
	"strategylab/internal/store"
	"strategylab/internal/strategy"
)

const maxBodyBytes = 1 << 20

// Server serves the strategylab HTTP API.
type Server struct {
	backtester *backtest.Backtester
	bars       store.BarStore
	strategies store.StrategyStore
	runs       store.RunStore
	log        *slog.Logger
}

// NewServer creates a Server. bt must have been built over bars and runs.
func NewServer(bt *backtest.Backtester, bars store.BarStore, strategies store.StrategyStore, runs store.RunStore, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		backtester: bt,
		bars:       bars,
		strategies: strategies,
		runs:       runs,
		log:        log.With("component", "httpapi"),
	}
}

// RegisterRoutes registers all API routes on the given mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/financial-data", s.handleFinancialData)
	mux.HandleFunc("GET /api/symbols", s.handleSymbols)
	mux.HandleFunc("POST /api/backtest", s.handleBacktest)
	mux.HandleFunc("GET /api/runs", s.handleListRuns)
	mux.HandleFunc("GET /api/runs/{id}", s.handleGetRun)
	mux.HandleFunc("GET /api/trades/{run}", s.handleTrades)
	mux.HandleFunc("GET /api/strategies", s.handleListStrategies)
	mux.HandleFunc("GET /api/strategies/{name}", s.handleGetStrategy)
	mux.HandleFunc("PUT /api/strategies/{name}", s.handlePutStrategy)
	mux.HandleFunc("DELETE /api/strategies/{name}", s.handleDeleteStrategy)
	mux.HandleFunc("GET /api/builtins", s.handleBuiltins)
}

// Handler returns an http.Handler with CORS middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)
	return corsMiddleware(mux)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encoding JSON response", "error", err)
	}
}

// writeError maps err to a status code and a classified error body.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	var (
		ce  *expr.CompileError
		cfg *domain.ConfigError
		br  *RequestError
	)
	switch {
	case errors.As(err, &ce):
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error(), Kind: string(ce.Kind)})
	case errors.As(err, &cfg):
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error(), Kind: "ConfigurationError"})
	case errors.As(err, &br):
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error()})
	case errors.Is(err, store.ErrNotFound):
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: err.Error()})
	default:
		s.log.Error("request failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
	}
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return &RequestError{Msg: "invalid JSON body: " + err.Error()}
	}
	return nil
}

// ---------------------------------------------------------------------------
// Bars
// ---------------------------------------------------------------------------

// handleFinancialData returns stored daily bars for one symbol.
// Query: symbol (required), from, to (YYYY-MM-DD), market (default "us").
func (s *Server) handleFinancialData(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	symbol := q.Get("symbol")
	if symbol == "" {
		s.writeError(w, &RequestError{Msg: "symbol is required"})
		return
	}
	from, err := ParseDate("from", q.Get("from"), time.Time{})
	if err != nil {
		s.writeError(w, err)
		return
	}
	to, err := ParseDate("to", q.Get("to"), time.Now().UTC())
	if err != nil {
		s.writeError(w, err)
		return
	}
	if to.Before(from) {
		s.writeError(w, &RequestError{Msg: "to must not be before from"})
		return
	}

	bars, err := s.bars.ReadBars(r.Context(), symbol, marketParam(q.Get("market")), from, to)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if bars == nil {
		bars = []domain.Bar{}
	}
	writeJSON(w, http.StatusOK, bars)
}

func (s *Server) handleSymbols(w http.ResponseWriter, r *http.Request) {
	syms, err := s.bars.ListSymbols(r.Context(), marketParam(r.URL.Query().Get("market")))
	if err != nil {
		s.writeError(w, err)
		return
	}
	if syms == nil {
		syms = []string{}
	}
	writeJSON(w, http.StatusOK, syms)
}

func marketParam(m string) string {
	if m == "" {
		return string(domain.MarketUS)
	}
	return m
}

// ---------------------------------------------------------------------------
// Backtests
// ---------------------------------------------------------------------------

func (s *Server) handleBacktest(w http.ResponseWriter, r *http.Request) {
	body := BacktestRequest{Config: engine.DefaultConfig()}
	if err := decodeBody(r, &body); err != nil {
		s.writeError(w, err)
		return
	}

	spec, req, err := body.Resolve(r.Context(), s.strategies)
	if err != nil {
		s.writeError(w, err)
		return
	}
	rep, err := s.backtester.Run(r.Context(), spec, req)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			s.writeError(w, &RequestError{Msg: "limit must be an integer"})
			return
		}
		limit = n
	}
	runs, err := s.runs.ListRuns(r.Context(), limit)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if runs == nil {
		runs = []store.RunRecord{}
	}
	writeJSON(w, http.StatusOK, runs)
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	run, err := s.runs.GetRun(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (s *Server) handleTrades(w http.ResponseWriter, r *http.Request) {
	trades, err := s.runs.ListTrades(r.Context(), r.PathValue("run"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	if trades == nil {
		trades = []domain.Trade{}
	}
	writeJSON(w, http.StatusOK, trades)
}

// ---------------------------------------------------------------------------
// Saved strategies
// ---------------------------------------------------------------------------

func (s *Server) handleListStrategies(w http.ResponseWriter, r *http.Request) {
	recs, err := s.strategies.ListStrategies(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	if recs == nil {
		recs = []store.StrategyRecord{}
	}
	writeJSON(w, http.StatusOK, recs)
}

func (s *Server) handleGetStrategy(w http.ResponseWriter, r *http.Request) {
	rec, err := s.strategies.GetStrategy(r.Context(), r.PathValue("name"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// handlePutStrategy compiles the body before storing it, so only valid
// specs are ever saved.
func (s *Server) handlePutStrategy(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	var spec strategy.Spec
	if err := decodeBody(r, &spec); err != nil {
		s.writeError(w, err)
		return
	}
	if err := spec.Validate(s.backtester.Registry()); err != nil {
		s.writeError(w, err)
		return
	}
	if spec.Name == "" {
		spec.Name = name
	}
	raw, err := json.Marshal(spec)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if err := s.strategies.SaveStrategy(r.Context(), name, raw); err != nil {
		s.writeError(w, err)
		return
	}
	rec, err := s.strategies.GetStrategy(r.Context(), name)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.log.Info("strategy saved", "name", name)
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleDeleteStrategy(w http.ResponseWriter, r *http.Request) {
	if err := s.strategies.DeleteStrategy(r.Context(), r.PathValue("name")); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleBuiltins(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.backtester.Registry().List())
}
