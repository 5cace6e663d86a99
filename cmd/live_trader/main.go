package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"livetrader/internal/config"
	"livetrader/internal/core"
	"livetrader/internal/exchange"
	"livetrader/internal/infrastructure/health"
	"livetrader/internal/infrastructure/metrics"
	"livetrader/internal/journal"
	"livetrader/internal/monitor"
	"livetrader/internal/strategy"
	"livetrader/internal/trading/live"
	"livetrader/pkg/logging"
	"livetrader/pkg/telemetry"

	"golang.org/x/sync/errgroup"
)

var (
	configFile    = flag.String("config", "configs/live_trader.yaml", "Path to configuration file")
	maxIterations = flag.Int("iterations", 0, "Stop after this many iterations (0 = run until signalled)")
)

func main() {
	flag.Parse()
	if envConfig := os.Getenv("CONFIG_FILE"); envConfig != "" {
		*configFile = envConfig
	}

	cfg, err := config.LoadConfig(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// providers first so the zap bridge picks up the global log provider
	tel, err := telemetry.Setup("live_trader", telemetry.Options{
		StdoutTraces: cfg.System.StdoutTraces,
		StdoutLogs:   cfg.System.StdoutLogs,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize telemetry: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.NewZapLogger(cfg.System.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	code := 0
	if err := run(cfg, logger); err != nil {
		logger.Error("Live trader exited with error", "error", err)
		code = 1
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := tel.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Telemetry shutdown incomplete", "error", err)
	}
	cancel()
	_ = logger.Sync()
	os.Exit(code)
}

func run(cfg *config.Config, logger core.ILogger) error {
	logger.Info("Starting live trader",
		"market", cfg.Trading.Market,
		"exchange", cfg.Exchange.Name,
		"strategy", cfg.Strategy.Name,
		"runtime_id", cfg.Telemetry.RuntimeID)
	logger.Debug("Effective configuration", "config", cfg.String())

	gateway, err := exchange.NewExchange(cfg.Exchange, logger)
	if err != nil {
		return fmt.Errorf("exchange: %w", err)
	}

	strat, err := strategy.NewMomentum(cfg.Strategy.Lookback, cfg.Strategy.Allocation)
	if err != nil {
		return fmt.Errorf("strategy: %w", err)
	}

	store, err := openJournal(cfg.System.JournalPath)
	if err != nil {
		return fmt.Errorf("journal: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Warn("Failed to close journal", "error", err)
		}
	}()

	reporter := newReporter(cfg, strat.Name(), logger)

	loop, err := live.NewLoop(cfg.Trading, gateway, strat,
		live.WithLogger(logger),
		live.WithReporter(reporter),
		live.WithJournal(store),
		live.WithRuntimeID(cfg.Telemetry.RuntimeID),
	)
	if err != nil {
		return err
	}

	hm := health.NewManager(logger)
	hm.Register("trading_loop", loop.Healthy)

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(sigCtx)
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if cfg.System.EnableMetrics {
		srv := metrics.NewServer(cfg.System.MetricsPort, logger,
			metrics.WithHealth(hm),
			metrics.WithStatus(func() interface{} { return loop.Status() }),
		)
		g.Go(func() error {
			return srv.Run(ctx)
		})
	}

	g.Go(func() error {
		// a finished loop takes the metrics server down with it
		defer cancel()
		return loop.Start(ctx, *maxIterations)
	})

	runErr := g.Wait()

	drain := time.Duration(cfg.Telemetry.DrainTimeoutSeconds) * time.Second
	if pending := reporter.Shutdown(drain); pending > 0 {
		logger.Warn("Telemetry events abandoned at shutdown", "pending", pending)
	}

	s := loop.Status()
	logger.Info("Live trader finished",
		"state", s.State,
		"iterations", s.Iteration,
		"trades", s.TradeCount,
		"position", s.Position.Size.String(),
		"unrealized_pnl", s.UnrealizedPnL().StringFixed(2))

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}
	return nil
}

func openJournal(path string) (core.IJournal, error) {
	if path == "" {
		return journal.NewMemoryStore(), nil
	}
	store, err := journal.NewSQLiteStore(path)
	if err != nil {
		return nil, err
	}
	return store, nil
}

func newReporter(cfg *config.Config, strategyName string, logger core.ILogger) core.IReporter {
	t := cfg.Telemetry
	if !t.Enabled {
		return monitor.NopReporter{}
	}
	strategyID := t.StrategyID
	if strategyID == "" {
		strategyID = strategyName
	}
	return monitor.NewReporter(monitor.Config{
		APIBaseURL:  t.APIBaseURL,
		APIKey:      t.APIKey.Value(),
		RuntimeID:   t.RuntimeID,
		StrategyID:  strategyID,
		Environment: t.Environment,
		Metadata:    t.Metadata,
		Workers:     t.Workers,
		QueueSize:   t.QueueSize,
		Timeout:     time.Duration(t.TimeoutSeconds) * time.Second,
	}, logger)
}
