package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"google.golang.org/grpc"

	"strategylab/internal/api"
	"strategylab/internal/backtest"
	"strategylab/internal/config"
	"strategylab/internal/httpapi"
	"strategylab/internal/store"
	"strategylab/internal/strategy/builtins"
	"strategylab/internal/util"
)

func main() {
	if err := config.LoadDotEnv(); err != nil {
		slog.Warn("ignoring .env", "error", err)
	}

	cfgPath := "config/strategylab.yaml"
	if p := os.Getenv("STRATEGYLAB_CONFIG"); p != "" {
		cfgPath = p
	}
	if _, err := os.Stat(cfgPath); errors.Is(err, os.ErrNotExist) {
		cfgPath = ""
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := util.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
	util.SetDefault(logger)

	bars := store.NewParquetStore(cfg.Storage.DataDir)
	db, err := store.NewSQLiteStore(cfg.Storage.SQLitePath)
	if err != nil {
		log.Fatalf("failed to open sqlite store: %v", err)
	}
	defer db.Close()

	bt := backtest.NewBacktester(bars, builtins.Registry(),
		backtest.WithRunStore(db),
		backtest.WithLogger(logger),
	)
	httpSrv := httpapi.NewServer(bt, bars, db, db, logger)

	srv := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           httpSrv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var gs *grpc.Server
	if cfg.Server.GRPCPort > 0 {
		lis, err := net.Listen("tcp", cfg.Server.GRPCAddr())
		if err != nil {
			log.Fatalf("failed to listen on %s: %v", cfg.Server.GRPCAddr(), err)
		}
		gs = grpc.NewServer()
		api.NewService(bt, db, logger).RegisterGRPC(gs)
		go func() {
			slog.Info("grpc server starting", "addr", lis.Addr().String())
			if err := gs.Serve(lis); err != nil {
				slog.Error("grpc server error", "error", err)
				cancel()
			}
		}()
	}

	go func() {
		<-ctx.Done()
		if gs != nil {
			gs.GracefulStop()
		}
		shutdownCtx, done := context.WithTimeout(context.Background(), 10*time.Second)
		defer done()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown", "error", err)
		}
	}()

	slog.Info("strategylab-server starting", "addr", srv.Addr, "dataDir", cfg.Storage.DataDir)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("server error: %v", err)
	}
	slog.Info("strategylab-server stopped")
}
