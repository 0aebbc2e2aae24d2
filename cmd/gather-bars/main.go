package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"strategylab/internal/config"
	"strategylab/internal/domain"
	"strategylab/internal/gather"
	"strategylab/internal/gather/us"
	"strategylab/internal/store"
	"strategylab/internal/util"
)

func main() {
	logDir := flag.String("log-dir", os.TempDir(), "directory for the daily log file (empty to disable)")
	flag.Parse()

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

	// Dual logger: stdout + daily log file.
	var w io.Writer = os.Stdout
	if *logDir != "" {
		logFileName := fmt.Sprintf("%s/gather-bars-%s.log", *logDir, time.Now().Format("2006-01-02"))
		logFile, err := os.OpenFile(logFileName, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			log.Fatalf("failed to create log file: %v", err)
		}
		defer logFile.Close()
		w = io.MultiWriter(os.Stdout, logFile)
	}
	logger := util.NewLoggerTo(w, cfg.Logging.Level, cfg.Logging.Format)
	slog.SetDefault(logger)

	if cfg.Alpaca.APIKey == "" || cfg.Alpaca.APISecret == "" {
		log.Fatal("alpaca credentials missing: set APCA_API_KEY_ID and APCA_API_SECRET_KEY")
	}

	symbols := cfg.Gather.Symbols
	if cfg.Gather.SymbolsFile != "" {
		if symbols, err = us.LoadCSVSymbols(cfg.Gather.SymbolsFile); err != nil {
			log.Fatalf("failed to load symbols: %v", err)
		}
	}

	source, err := us.NewAlpacaSource(cfg.Alpaca.APIKey, cfg.Alpaca.APISecret, cfg.Alpaca.DataURL, cfg.Alpaca.Feed)
	if err != nil {
		log.Fatalf("failed to create alpaca source: %v", err)
	}

	var cal gather.Calendar
	if cfg.Alpaca.BaseURL != "" {
		cal, err = us.NewAlpacaCalendar(cfg.Alpaca.APIKey, cfg.Alpaca.APISecret, cfg.Alpaca.BaseURL)
	} else {
		cal, err = util.NewTradingCalendar(domain.MarketUS)
	}
	if err != nil {
		log.Fatalf("failed to create calendar: %v", err)
	}

	gatherer := us.NewDailyBarGatherer(source, cal,
		store.NewParquetStore(cfg.Storage.DataDir),
		cfg.Storage.DataDir,
		symbols,
		us.DailyBarOptions{
			StartDate:       cfg.Gather.StartDate,
			BatchSize:       cfg.Gather.BatchSize,
			MaxWorkers:      cfg.Gather.MaxWorkers,
			RateLimitPerMin: cfg.Gather.RateLimitPerMin,
		},
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	slog.Info("starting gather-bars", "gatherer", gatherer.Name(), "dataDir", cfg.Storage.DataDir)
	if err := gatherer.Run(ctx); err != nil {
		log.Fatalf("gather error: %v", err)
	}
}
