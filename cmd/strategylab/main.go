package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"gopkg.in/yaml.v3"

	"strategylab/internal/backtest"
	"strategylab/internal/config"
	"strategylab/internal/domain"
	"strategylab/internal/expr"
	"strategylab/internal/store"
	"strategylab/internal/strategy"
	"strategylab/internal/strategy/builtins"
	"strategylab/internal/sweep"
	"strategylab/internal/util"
)

const version = "0.1.0"

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: strategylab <command> [options]\n\n")
	fmt.Fprintf(os.Stderr, "Commands:\n")
	fmt.Fprintf(os.Stderr, "  backtest   Run a strategy spec over stored bars\n")
	fmt.Fprintf(os.Stderr, "  sweep      Run a builtin strategy over a parameter grid\n")
	fmt.Fprintf(os.Stderr, "  version    Print the CLI version\n")
	fmt.Fprintf(os.Stderr, "\nRun 'strategylab <command> -h' for command options.\n")
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}
	if err := config.LoadDotEnv(); err != nil {
		slog.Warn("ignoring .env", "error", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "backtest":
		err = runBacktest(ctx, os.Args[2:])
	case "sweep":
		err = runSweep(ctx, os.Args[2:])
	case "version":
		fmt.Printf("strategylab %s\n", version)
	case "-h", "--help", "help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", os.Args[1])
		usage()
		os.Exit(1)
	}
	if err != nil {
		if kind, ok := expr.KindOf(err); ok {
			fmt.Fprintf(os.Stderr, "strategy rejected (%s): %v\n", kind, err)
		} else if errors.Is(err, domain.ErrInvalidConfig) {
			fmt.Fprintf(os.Stderr, "configuration rejected: %v\n", err)
		} else {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}
		os.Exit(1)
	}
}

// common holds the flags shared by backtest and sweep.
type common struct {
	cfgPath string
	symbols string
	market  string
	start   string
	end     string
	asJSON  bool
}

func (c *common) register(fs *flag.FlagSet) {
	def := "config/strategylab.yaml"
	if p := os.Getenv("STRATEGYLAB_CONFIG"); p != "" {
		def = p
	}
	fs.StringVar(&c.cfgPath, "config", def, "config file (empty for defaults)")
	fs.StringVar(&c.symbols, "symbols", "", "comma-separated symbols")
	fs.StringVar(&c.market, "market", "us", "market of the bar store")
	fs.StringVar(&c.start, "start", "", "first date, YYYY-MM-DD")
	fs.StringVar(&c.end, "end", "", "last date, YYYY-MM-DD (default today)")
	fs.BoolVar(&c.asJSON, "json", false, "print JSON instead of a table")
}

// load reads the config, builds the logger and turns the flags into a
// Request.
func (c *common) load() (*config.Config, backtest.Request, error) {
	path := c.cfgPath
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		path = ""
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, backtest.Request{}, fmt.Errorf("loading config: %w", err)
	}
	util.SetDefault(util.NewLogger(cfg.Logging.Level, cfg.Logging.Format))

	req := backtest.Request{Market: c.market, Config: cfg.Backtest}
	for _, s := range strings.Split(c.symbols, ",") {
		if s = strings.TrimSpace(s); s != "" {
			req.Symbols = append(req.Symbols, strings.ToUpper(s))
		}
	}
	if c.start != "" {
		if req.Start, err = time.Parse(time.DateOnly, c.start); err != nil {
			return nil, req, fmt.Errorf("-start: %w", err)
		}
	}
	req.End = time.Now().UTC()
	if c.end != "" {
		if req.End, err = time.Parse(time.DateOnly, c.end); err != nil {
			return nil, req, fmt.Errorf("-end: %w", err)
		}
	}
	return cfg, req, nil
}

func runBacktest(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("backtest", flag.ExitOnError)
	var (
		c        common
		specPath = fs.String("spec", "", "strategy spec file (.json or .yaml)")
		builtin  = fs.String("builtin", "", "builtin strategy name instead of -spec")
		params   = fs.String("params", "", "builtin params, e.g. window=20,width=2")
		save     = fs.Bool("save", false, "record the run in the SQLite store")
	)
	c.register(fs)
	fs.Parse(args)

	cfg, req, err := c.load()
	if err != nil {
		return err
	}

	var spec *strategy.Spec
	switch {
	case *specPath != "" && *builtin != "":
		return errors.New("give either -spec or -builtin")
	case *specPath != "":
		if spec, err = readSpec(*specPath); err != nil {
			return err
		}
	case *builtin != "":
		p, err := parseParams(*params)
		if err != nil {
			return err
		}
		spec = &strategy.Spec{Builtin: &strategy.BuiltinSpec{Name: *builtin, Params: p}}
	default:
		return errors.New("-spec or -builtin is required")
	}

	opts := []backtest.Option{backtest.WithLogger(slog.Default())}
	if *save {
		db, err := store.NewSQLiteStore(cfg.Storage.SQLitePath)
		if err != nil {
			return err
		}
		defer db.Close()
		opts = append(opts, backtest.WithRunStore(db))
	}
	bt := backtest.NewBacktester(store.NewParquetStore(cfg.Storage.DataDir), builtins.Registry(), opts...)

	rep, err := bt.Run(ctx, spec, req)
	if err != nil {
		return err
	}
	if c.asJSON {
		return json.NewEncoder(os.Stdout).Encode(rep)
	}
	printReport(os.Stdout, rep)
	return nil
}

func runSweep(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("sweep", flag.ExitOnError)
	var (
		c       common
		name    = fs.String("strategy", "bollinger", "builtin strategy to sweep")
		workers = fs.Int("workers", 0, "concurrent runs (default GOMAXPROCS)")
		axes    = axisFlag{}
	)
	fs.Var(axes, "param", "parameter axis, e.g. window=10,20,30 (repeatable)")
	c.register(fs)
	fs.Parse(args)

	cfg, req, err := c.load()
	if err != nil {
		return err
	}
	reg := builtins.Registry()
	candidates, err := sweep.Grid(reg, *name, axes)
	if err != nil {
		return err
	}
	if err := req.Config.Validate(); err != nil {
		return err
	}
	bars, err := backtest.NewBacktester(store.NewParquetStore(cfg.Storage.DataDir), reg).LoadBars(ctx, req)
	if err != nil {
		return err
	}

	outcomes, err := sweep.Run(ctx, req.Config, bars, candidates, *workers)
	if err != nil {
		return err
	}
	if c.asJSON {
		return json.NewEncoder(os.Stdout).Encode(outcomes)
	}
	printSweep(os.Stdout, outcomes)
	if best, ok := sweep.Best(outcomes); ok {
		fmt.Printf("\nbest: %s\n", best.Label)
	}
	return nil
}

func readSpec(path string) (*strategy.Spec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var spec strategy.Spec
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &spec)
	default:
		err = json.Unmarshal(data, &spec)
	}
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return &spec, nil
}

// parseParams parses "k=v,k=v".
func parseParams(s string) (strategy.Params, error) {
	p := strategy.Params{}
	for _, kv := range strings.Split(s, ",") {
		if kv = strings.TrimSpace(kv); kv == "" {
			continue
		}
		k, v, ok := strings.Cut(kv, "=")
		if !ok {
			return nil, fmt.Errorf("param %q: want key=value", kv)
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, fmt.Errorf("param %q: %w", kv, err)
		}
		p[strings.TrimSpace(k)] = f
	}
	return p, nil
}

// axisFlag collects repeated -param key=v1,v2,... flags.
type axisFlag map[string][]float64

func (a axisFlag) String() string { return fmt.Sprint(map[string][]float64(a)) }

func (a axisFlag) Set(s string) error {
	k, vs, ok := strings.Cut(s, "=")
	if !ok {
		return fmt.Errorf("want key=v1,v2,..., got %q", s)
	}
	for _, v := range strings.Split(vs, ",") {
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return fmt.Errorf("%s: %w", k, err)
		}
		a[k] = append(a[k], f)
	}
	return nil
}
