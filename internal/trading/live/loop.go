// Package live drives one strategy against one market: it polls prices,
// enforces stop-loss and take-profit, turns signals into orders and reports
// every step to the telemetry reporter without waiting on it.
package live

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"livetrader/internal/config"
	"livetrader/internal/core"
	"livetrader/internal/monitor"
	"livetrader/internal/risk"
	"livetrader/internal/trading/history"
	"livetrader/internal/trading/order"
	"livetrader/internal/trading/position"
	apperrors "livetrader/pkg/errors"
	"livetrader/pkg/logging"
	"livetrader/pkg/retry"
	"livetrader/pkg/telemetry"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// MinHistory is the number of observations needed before the strategy is consulted
const MinHistory = 2

// unhealthyAfter consecutive failed iterations marks the loop unhealthy
const unhealthyAfter = 5

// orderTimeout bounds the decide and execute steps once a price was fetched
const orderTimeout = 30 * time.Second

// guardSlack absorbs decimal rounding when sizing against the value limit
var guardSlack = decimal.New(1, -9)

var (
	// ErrLoopStopped is returned by Start once the loop was stopped
	ErrLoopStopped = errors.New("trading loop is stopped")
	// ErrLoopStarted is returned by a second Start
	ErrLoopStarted = errors.New("trading loop already started")
)

// Option customizes a Loop
type Option func(*Loop)

// WithLogger sets the logger
func WithLogger(logger core.ILogger) Option {
	return func(l *Loop) { l.logger = logger }
}

// WithReporter sets the telemetry reporter
func WithReporter(r core.IReporter) Option {
	return func(l *Loop) { l.reporter = r }
}

// WithExecutor replaces the default order executor
func WithExecutor(e core.IOrderExecutor) Option {
	return func(l *Loop) { l.executor = e }
}

// WithJournal persists trades and state transitions
func WithJournal(j core.IJournal) Option {
	return func(l *Loop) { l.journal = j }
}

// WithRuntimeID tags journal records and the runtime registration
func WithRuntimeID(id string) Option {
	return func(l *Loop) { l.runtimeID = id }
}

// WithSyncPolicy sets the retry policy of the startup position sync
func WithSyncPolicy(p retry.RetryPolicy) Option {
	return func(l *Loop) { l.syncPolicy = p }
}

// Loop is the live trading orchestrator. Position and price history are
// owned by the goroutine running Start; other goroutines read Status().
type Loop struct {
	cfg       config.TradingConfig
	gateway   core.IExchangeGateway
	strategy  core.IStrategy
	executor  core.IOrderExecutor
	reporter  core.IReporter
	journal   core.IJournal
	logger    core.ILogger
	risk      *risk.Controller
	runtimeID string

	limits      risk.Limits
	capital     decimal.Decimal
	maxFraction decimal.Decimal
	minOrder    decimal.Decimal
	interval    time.Duration
	syncPolicy  retry.RetryPolicy

	// loop goroutine state
	history   *history.PriceHistory
	pos       position.Position
	iteration int64
	trades    int64
	lastPrice decimal.Decimal
	lastErr   error

	mu      sync.Mutex
	state   State
	started bool

	status   atomic.Pointer[Status]
	failures atomic.Int64
	stopCh   chan struct{}
	stopOnce sync.Once

	tracer  trace.Tracer
	metrics *telemetry.MetricsHolder
}

// NewLoop validates cfg and builds a loop in the created state
func NewLoop(cfg config.TradingConfig, gateway core.IExchangeGateway, strategy core.IStrategy, opts ...Option) (*Loop, error) {
	if err := config.ValidateTrading(cfg); err != nil {
		return nil, apperrors.New(apperrors.KindInvalidParameter, "new loop", err)
	}
	if gateway == nil || strategy == nil {
		return nil, apperrors.Newf(apperrors.KindInvalidParameter, "new loop", "gateway and strategy are required")
	}

	l := &Loop{
		cfg:         cfg,
		gateway:     gateway,
		strategy:    strategy,
		risk:        risk.NewController(),
		limits:      risk.Limits{StopLossPct: decimal.NewFromFloat(cfg.StopLossPct), TakeProfitPct: decimal.NewFromFloat(cfg.TakeProfitPct)},
		capital:     decimal.NewFromFloat(cfg.InitialCapital),
		maxFraction: decimal.NewFromFloat(cfg.MaxPositionSize),
		minOrder:    decimal.NewFromFloat(cfg.MinOrderSize),
		interval:    cfg.CheckInterval(),
		syncPolicy:  retry.DefaultPolicy,
		history:     history.New(cfg.HistoryCapacity),
		pos:         position.Flat(cfg.Market),
		state:       StateCreated,
		stopCh:      make(chan struct{}),
		tracer:      telemetry.GetTracer("live-loop"),
		metrics:     telemetry.GetGlobalMetrics(),
	}
	for _, opt := range opts {
		opt(l)
	}

	base := l.logger
	if base == nil {
		base = logging.NewNopLogger()
	}
	l.logger = base.WithFields(map[string]interface{}{
		"component": "live_loop",
		"market":    cfg.Market,
	})
	if l.reporter == nil {
		l.reporter = monitor.NopReporter{}
	}
	if l.executor == nil {
		l.executor = order.NewExecutor(gateway, base, cfg.OrdersPerSecond)
	}

	l.publish()
	return l, nil
}

// Status returns the latest published snapshot
func (l *Loop) Status() Status {
	return *l.status.Load()
}

// Healthy returns an error once the loop stopped or keeps failing
func (l *Loop) Healthy() error {
	s := l.Status()
	if s.State == StateStopped {
		return fmt.Errorf("loop is stopped")
	}
	if n := l.failures.Load(); n >= unhealthyAfter {
		return fmt.Errorf("%d consecutive failed iterations: %s", n, s.LastError)
	}
	return nil
}

// Stop requests a graceful stop at the next iteration boundary. It is
// idempotent; before Start it moves the loop straight to stopped.
func (l *Loop) Stop() {
	l.stopOnce.Do(func() { close(l.stopCh) })
	l.transition(StateStopped, StateCreated)
}

// Start runs iterations until maxIterations (0 = unlimited) are done, Stop
// is called or ctx is cancelled. It blocks and returns a non-nil error only
// for fatal failures.
func (l *Loop) Start(ctx context.Context, maxIterations int) error {
	l.mu.Lock()
	switch {
	case l.state == StateStopped:
		l.mu.Unlock()
		return ErrLoopStopped
	case l.started:
		l.mu.Unlock()
		return ErrLoopStarted
	}
	l.started = true
	l.mu.Unlock()

	l.logger.Info("Starting live trading",
		"strategy", l.strategy.Name(),
		"exchange", l.gateway.GetName(),
		"initial_capital", l.capital.String(),
		"max_position_size", l.maxFraction.String(),
		"check_interval", l.interval,
		"max_iterations", maxIterations)

	l.registerRuntime(ctx)
	if !l.transition(StateWarmup, StateCreated) {
		// Stop won the race
		return ErrLoopStopped
	}

	if err := l.syncPosition(ctx); err != nil {
		l.finish(err)
		return err
	}

	for {
		if l.stopRequested(ctx) {
			break
		}

		err := l.runIteration(ctx)
		if err != nil && l.isFatal(err) {
			l.logger.Error("Fatal error, stopping loop",
				"iteration", l.iteration,
				"kind", apperrors.KindOf(err).String(),
				"error", err)
			l.finish(err)
			return err
		}

		if maxIterations > 0 && l.iteration >= int64(maxIterations) {
			break
		}
		if !l.sleep(ctx) {
			break
		}
	}

	l.finish(nil)
	return nil
}

func (l *Loop) registerRuntime(ctx context.Context) {
	ok := l.reporter.CreateRuntime(ctx, core.RuntimeCreated{
		EventHeader:     core.NewHeader(l.cfg.Market),
		InitialCapital:  l.capital,
		MaxPositionSize: l.maxFraction,
	})
	if !ok {
		l.logger.Info("Telemetry disabled for this run")
	}
}

// syncPosition adopts the exchange position when configured. Only an
// authentication failure aborts; anything else starts flat.
func (l *Loop) syncPosition(ctx context.Context) error {
	if !l.cfg.SyncPositionOnStart {
		return nil
	}

	var positions []*core.ExchangePosition
	err := retry.Do(ctx, l.syncPolicy, apperrors.IsRecoverable, func() error {
		var err error
		positions, err = l.gateway.GetPositions(ctx, l.cfg.Market)
		return err
	})
	if err != nil {
		if apperrors.IsFatal(err) {
			return fmt.Errorf("sync position: %w", err)
		}
		l.logger.Warn("Position sync failed, starting flat", "error", err)
		return nil
	}

	for _, p := range positions {
		if p.Market == l.cfg.Market && !p.Size.IsZero() {
			l.pos = position.FromExchange(l.cfg.Market, p.Size, p.EntryPrice)
			break
		}
	}
	l.logger.Info("Position synced",
		"size", l.pos.Size.String(),
		"entry_price", l.pos.EntryPrice.String())
	l.publish()
	return nil
}

// isFatal decides whether the loop must stop. Configuration-level errors
// count only before the first price was observed.
func (l *Loop) isFatal(err error) bool {
	if apperrors.IsFatal(err) {
		return true
	}
	return l.history.TotalObserved() == 0 && apperrors.IsConfiguration(err)
}

func (l *Loop) runIteration(ctx context.Context) error {
	l.iteration++
	start := time.Now()

	ctx, span := l.tracer.Start(ctx, "iteration", trace.WithAttributes(
		attribute.String("market", l.cfg.Market),
		attribute.Int64("iteration", l.iteration),
	))
	defer span.End()

	err := l.iterate(ctx)

	l.metrics.RecordIteration(ctx, l.cfg.Market, float64(time.Since(start).Microseconds())/1000, err != nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		l.failures.Add(1)
		l.lastErr = err
		l.logger.Error("Iteration failed",
			"iteration", l.iteration,
			"kind", apperrors.KindOf(err).String(),
			"error", err)
	} else {
		l.failures.Store(0)
	}
	l.publish()
	return err
}

// iterate performs one fetch, evaluate, decide, execute, report pass
func (l *Loop) iterate(ctx context.Context) error {
	ticker, err := l.gateway.GetTicker(ctx, l.cfg.Market)
	if err != nil {
		return fmt.Errorf("fetch price: %w", err)
	}
	price := ticker.LastPrice
	if !price.IsPositive() {
		return apperrors.Newf(apperrors.KindAPI, "fetch price", "non-positive price %s", price)
	}
	l.history.Append(price)
	l.lastPrice = price
	l.metrics.SetLastPrice(l.cfg.Market, price.InexactFloat64())

	// past the fetch the iteration runs to completion; a stop only takes
	// effect at the next boundary
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), orderTimeout)
	defer cancel()

	if l.history.Len() < MinHistory {
		l.logger.Debug("Warming up", "observations", l.history.Len(), "price", price.String())
		return nil
	}
	l.transition(StateRunning)

	signal, target, reason, err := l.decide(ctx, price)
	if err != nil {
		return err
	}

	l.report(core.SignalEmitted{
		EventHeader:     core.NewHeader(l.cfg.Market),
		Signal:          signal,
		Price:           price,
		CurrentPosition: l.pos.Size,
		TargetPosition:  target,
		Reason:          reason,
	})

	delta := target.Sub(l.pos.Size)
	if delta.Abs().LessThan(l.minOrder) || delta.IsZero() {
		return nil
	}

	side := core.SideBuy
	if delta.IsNegative() {
		side = core.SideSell
	}
	size := delta.Abs()

	// strategy targets are clamped below the limit already, so this only
	// fires if sizing upstream of the executor goes wrong
	if l.cfg.OrderValueGuard && reason == "" {
		limit := l.capital.Mul(l.maxFraction)
		if exceedsValueLimit(l.pos.Size, delta, price, limit) {
			l.logger.Warn("Order value exceeds limit, order skipped",
				"side", side,
				"size", size.String(),
				"value", openingSize(l.pos.Size, delta).Mul(price).String(),
				"limit", limit.String())
			return nil
		}
	}

	return l.trade(ctx, side, size, price, reason)
}

// decide returns the signal and target size in units. A breached trigger
// overrides the strategy and targets flat.
func (l *Loop) decide(ctx context.Context, price decimal.Decimal) (core.Signal, decimal.Decimal, string, error) {
	if decision := l.risk.Evaluate(l.pos, price, l.limits); decision != risk.TriggerNone {
		l.metrics.RecordRiskTrigger(ctx, l.cfg.Market, decision.String())
		l.logger.Warn("Risk trigger fired, closing position",
			"trigger", decision.String(),
			"size", l.pos.Size.String(),
			"entry_price", l.pos.EntryPrice.String(),
			"price", price.String(),
			"pnl_pct", l.pos.PnLPct(price).StringFixed(4))
		return risk.ClosingSignal(l.pos), decimal.Zero, decision.String(), nil
	}

	current := l.pos.Notional(price).Div(l.capital)
	signal, fraction, err := l.consultStrategy(l.history.Snapshot(), current)
	if err != nil {
		return core.SignalHold, decimal.Zero, "", err
	}
	return signal, fraction.Mul(l.capital).Div(price), "", nil
}

// consultStrategy calls the strategy and clamps its answer to [0, max]
func (l *Loop) consultStrategy(prices []decimal.Decimal, current decimal.Decimal) (signal core.Signal, fraction decimal.Decimal, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("strategy %s panicked: %v", l.strategy.Name(), r)
		}
	}()

	signal = core.SignalHold
	if signals := l.strategy.GenerateSignals(prices); len(signals) > 0 {
		signal = signals[len(signals)-1].Normalize()
	}

	fraction = l.strategy.CalculatePosition(signal, current)
	if fraction.IsNegative() {
		fraction = decimal.Zero
	}
	if fraction.GreaterThan(l.maxFraction) {
		fraction = l.maxFraction
	}
	return signal, fraction, nil
}

// openingSize is the part of delta that adds exposure
func openingSize(size, delta decimal.Decimal) decimal.Decimal {
	if size.IsZero() || size.Sign() == delta.Sign() {
		return delta.Abs()
	}
	if over := delta.Abs().Sub(size.Abs()); over.IsPositive() {
		return over
	}
	return decimal.Zero
}

// exceedsValueLimit reports whether the exposure-adding part of delta is
// worth more than limit at price. Reductions never exceed it.
func exceedsValueLimit(size, delta, price, limit decimal.Decimal) bool {
	opening := openingSize(size, delta)
	if !opening.IsPositive() {
		return false
	}
	return opening.Mul(price).Sub(limit).GreaterThan(limit.Mul(guardSlack))
}

// trade places one order and applies the fill. Position is untouched on error.
func (l *Loop) trade(ctx context.Context, side core.Side, size, price decimal.Decimal, reason string) error {
	res, err := l.executor.Execute(ctx, l.cfg.Market, side, size, core.OrderTypeMarket, price)
	l.metrics.RecordOrder(ctx, l.cfg.Market, string(side), err == nil)
	if err != nil {
		return err
	}
	if !res.FilledSize.IsPositive() {
		l.logger.Info("Order accepted without fill", "order_id", res.OrderID, "status", res.Status)
		return nil
	}

	before := l.pos
	l.pos = before.ApplyFill(side, res.FilledSize, res.FillPrice)
	l.trades++
	l.publish()

	l.logger.Info("Trade executed",
		"iteration", l.iteration,
		"side", side,
		"size", res.FilledSize.String(),
		"price", res.FillPrice.String(),
		"order_id", res.OrderID,
		"position", l.pos.Size.String(),
		"reason", reason)

	l.report(core.TradeExecuted{
		EventHeader:    core.NewHeader(l.cfg.Market),
		Side:           side,
		Size:           res.FilledSize,
		Price:          res.FillPrice,
		OrderID:        res.OrderID,
		PositionBefore: before.Size,
		PositionAfter:  l.pos.Size,
		Reason:         reason,
	})
	l.report(core.PositionUpdated{
		EventHeader:  core.NewHeader(l.cfg.Market),
		PositionSize: l.pos.Size,
		EntryPrice:   l.pos.EntryPrice,
		CurrentPrice: price,
		PnL:          l.pos.UnrealizedPnL(price),
		PnLPct:       l.pos.PnLPct(price),
	})
	l.metrics.SetPosition(l.cfg.Market, l.pos.Size.InexactFloat64(), l.pos.UnrealizedPnL(price).InexactFloat64())

	if l.journal != nil {
		rec := core.TradeRecord{
			RuntimeID:      l.runtimeID,
			Market:         l.cfg.Market,
			OrderID:        res.OrderID,
			Side:           side,
			Size:           res.FilledSize,
			Price:          res.FillPrice,
			PositionBefore: before.Size,
			PositionAfter:  l.pos.Size,
			Reason:         reason,
			Timestamp:      time.Now().UTC(),
		}
		if err := l.journal.RecordTrade(ctx, rec); err != nil {
			l.logger.Warn("Failed to journal trade", "order_id", res.OrderID, "error", err)
		}
	}
	return nil
}

func (l *Loop) stopRequested(ctx context.Context) bool {
	select {
	case <-l.stopCh:
		return true
	case <-ctx.Done():
		return true
	default:
		return false
	}
}

// sleep waits one check interval; false means stop
func (l *Loop) sleep(ctx context.Context) bool {
	timer := time.NewTimer(l.interval)
	defer timer.Stop()

	select {
	case <-timer.C:
		return true
	case <-l.stopCh:
		return false
	case <-ctx.Done():
		return false
	}
}

// finish ends the run. A fatal cause skips stopping: there is no
// iteration left to complete.
func (l *Loop) finish(cause error) {
	if cause != nil {
		l.lastErr = cause
	} else {
		l.transition(StateStopping)
	}
	l.transition(StateStopped)

	l.logger.Info("Live trading stopped",
		"iterations", l.iteration,
		"trades", l.trades,
		"final_position", l.pos.Size.String())
}

// transition moves the loop to next and reports it. When from is given the
// current state must be one of them. It returns false when nothing changed.
func (l *Loop) transition(next State, from ...State) bool {
	l.mu.Lock()
	prev := l.state
	if prev == next || prev == StateStopped || (len(from) > 0 && !oneOf(prev, from)) {
		l.mu.Unlock()
		return false
	}
	l.state = next
	l.mu.Unlock()
	l.publish()

	l.logger.Info("Loop state changed", "from", string(prev), "to", string(next), "iteration", l.iteration)

	ev := core.StatusChanged{
		EventHeader: core.NewHeader(l.cfg.Market),
		Status:      string(next),
		Iteration:   l.iteration,
		TotalTrades: l.trades,
	}
	if next == StateStopped {
		ev.FinalPosition = l.pos.Size
	}
	l.report(ev)

	if l.journal != nil {
		err := l.journal.RecordStatus(context.Background(), core.StatusRecord{
			RuntimeID: l.runtimeID,
			Market:    l.cfg.Market,
			State:     string(next),
			Iteration: l.iteration,
			Timestamp: time.Now().UTC(),
		})
		if err != nil {
			l.logger.Warn("Failed to journal state", "state", string(next), "error", err)
		}
	}
	return true
}

func oneOf(s State, states []State) bool {
	for _, c := range states {
		if s == c {
			return true
		}
	}
	return false
}

func (l *Loop) report(ev core.ReportEvent) {
	l.reporter.Report(ev)
}

// publish stores a fresh snapshot for Status readers
func (l *Loop) publish() {
	l.mu.Lock()
	state := l.state
	l.mu.Unlock()

	s := &Status{
		State:      state,
		Market:     l.cfg.Market,
		Position:   l.pos,
		Iteration:  l.iteration,
		LastPrice:  l.lastPrice,
		TradeCount: l.trades,
		HistoryLen: l.history.Len(),
		Telemetry:  l.reporter != nil && l.reporter.Enabled(),
	}
	if l.lastErr != nil {
		s.LastError = l.lastErr.Error()
	}
	l.status.Store(s)
}
