package live

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"livetrader/internal/config"
	"livetrader/internal/core"
	"livetrader/internal/journal"
	"livetrader/internal/mock"
	"livetrader/internal/monitor"
	apperrors "livetrader/pkg/errors"
	"livetrader/pkg/retry"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const market = "BTC-PERP"

func testConfig() config.TradingConfig {
	return config.TradingConfig{
		Market:               market,
		InitialCapital:       10000,
		MaxPositionSize:      0.5,
		CheckIntervalSeconds: 0.001,
		StopLossPct:          0.05,
		TakeProfitPct:        0.10,
		MinOrderSize:         1e-9,
		OrderValueGuard:      true,
	}
}

func newLoop(t *testing.T, cfg config.TradingConfig, ex core.IExchangeGateway, strat core.IStrategy, opts ...Option) *Loop {
	t.Helper()
	opts = append([]Option{WithLogger(&mock.NopLogger{})}, opts...)
	l, err := NewLoop(cfg, ex, strat, opts...)
	require.NoError(t, err)
	return l
}

func statuses(r *mock.MockReporter) []string {
	var out []string
	for _, ev := range r.Events(core.EventStatusChanged) {
		out = append(out, ev.(core.StatusChanged).Status)
	}
	return out
}

func TestNewLoop_RejectsInvalidConfig(t *testing.T) {
	ex := mock.NewMockExchange("mock", 100)
	strat := mock.NewMockStrategy(core.SignalBuy, 0.5)

	tests := []struct {
		name   string
		mutate func(*config.TradingConfig)
	}{
		{"missing market", func(c *config.TradingConfig) { c.Market = "" }},
		{"zero capital", func(c *config.TradingConfig) { c.InitialCapital = 0 }},
		{"max position above one", func(c *config.TradingConfig) { c.MaxPositionSize = 1.5 }},
		{"zero interval", func(c *config.TradingConfig) { c.CheckIntervalSeconds = 0 }},
		{"negative stop loss", func(c *config.TradingConfig) { c.StopLossPct = -0.1 }},
		{"history window too small to leave warmup", func(c *config.TradingConfig) { c.HistoryCapacity = 1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			tt.mutate(&cfg)
			_, err := NewLoop(cfg, ex, strat)
			require.Error(t, err)
			assert.True(t, errors.Is(err, apperrors.ErrInvalidParameter))
		})
	}

	_, err := NewLoop(testConfig(), nil, strat)
	assert.True(t, errors.Is(err, apperrors.ErrInvalidParameter))
}

func TestLoop_WarmupPlacesNoOrders(t *testing.T) {
	ex := mock.NewMockExchange("mock", 100)
	strat := mock.NewMockStrategy(core.SignalBuy, 0.5)
	rep := mock.NewMockReporter()
	l := newLoop(t, testConfig(), ex, strat, WithReporter(rep))

	require.NoError(t, l.Start(context.Background(), 1))

	assert.Empty(t, ex.Orders())
	assert.Zero(t, strat.GenerateCalls())
	assert.Empty(t, rep.Events(core.EventSignalEmitted))

	s := l.Status()
	assert.Equal(t, StateStopped, s.State)
	assert.Equal(t, 1, s.HistoryLen)
	assert.True(t, s.Position.IsFlat())
	assert.Equal(t, []string{"warmup", "stopping", "stopped"}, statuses(rep))
}

func TestLoop_BuySignalOpensPosition(t *testing.T) {
	ex := mock.NewMockExchange("mock", 100, 102)
	strat := mock.NewMockStrategy(core.SignalBuy, 0.5)
	rep := mock.NewMockReporter()
	l := newLoop(t, testConfig(), ex, strat, WithReporter(rep))

	require.NoError(t, l.Start(context.Background(), 2))

	price := decimal.NewFromFloat(102)
	want := decimal.NewFromFloat(0.5).Mul(decimal.NewFromFloat(10000)).Div(price)

	orders := ex.Orders()
	require.Len(t, orders, 1)
	assert.Equal(t, core.SideBuy, orders[0].Side)
	assert.Equal(t, core.OrderTypeMarket, orders[0].Type)
	assert.True(t, orders[0].Size.Equal(want), "size %s, want %s", orders[0].Size, want)

	s := l.Status()
	assert.True(t, s.Position.Size.Equal(want))
	assert.Equal(t, core.PositionLong, s.Position.Side)
	assert.True(t, s.Position.EntryPrice.Equal(price))
	assert.Equal(t, int64(1), s.TradeCount)
	assert.Equal(t, int64(2), s.Iteration)

	allocations := strat.Allocations()
	require.Len(t, allocations, 1)
	assert.True(t, allocations[0].IsZero())

	signals := rep.Events(core.EventSignalEmitted)
	require.Len(t, signals, 1)
	sig := signals[0].(core.SignalEmitted)
	assert.Equal(t, core.SignalBuy, sig.Signal)
	assert.True(t, sig.TargetPosition.Equal(want))

	trades := rep.Events(core.EventTradeExecuted)
	require.Len(t, trades, 1)
	trade := trades[0].(core.TradeExecuted)
	assert.True(t, trade.PositionBefore.IsZero())
	assert.True(t, trade.PositionAfter.Equal(want))
	assert.Equal(t, "1001", trade.OrderID)

	require.Len(t, rep.Events(core.EventPositionUpdated), 1)

	assert.Equal(t, []string{"warmup", "running", "stopping", "stopped"}, statuses(rep))
	final := rep.Events(core.EventStatusChanged)
	last := final[len(final)-1].(core.StatusChanged)
	assert.Equal(t, int64(1), last.TotalTrades)
	assert.True(t, last.FinalPosition.Equal(want))
}

func TestLoop_HoldAtTargetPlacesNoFurtherOrders(t *testing.T) {
	ex := mock.NewMockExchange("mock", 100, 102, 102, 102)
	strat := mock.NewMockStrategy(core.SignalBuy, 0.5)
	l := newLoop(t, testConfig(), ex, strat)

	require.NoError(t, l.Start(context.Background(), 4))
	assert.Len(t, ex.Orders(), 1)
	assert.Equal(t, 3, strat.GenerateCalls())
}

func TestLoop_TargetIsClampedToMaxPosition(t *testing.T) {
	ex := mock.NewMockExchange("mock", 100, 100)
	strat := mock.NewMockStrategy(core.SignalBuy, 3)
	l := newLoop(t, testConfig(), ex, strat)

	require.NoError(t, l.Start(context.Background(), 2))

	orders := ex.Orders()
	require.Len(t, orders, 1)
	assert.True(t, orders[0].Size.Equal(decimal.NewFromInt(50)), "got %s", orders[0].Size)
}

// scriptedStrategy answers the n-th CalculatePosition call with targets[n]
type scriptedStrategy struct {
	targets []float64
	calls   int
}

func (s *scriptedStrategy) Name() string { return "scripted" }

func (s *scriptedStrategy) GenerateSignals(history []decimal.Decimal) []core.Signal {
	return []core.Signal{core.SignalBuy}
}

func (s *scriptedStrategy) CalculatePosition(signal core.Signal, current decimal.Decimal) decimal.Decimal {
	i := s.calls
	if i >= len(s.targets) {
		i = len(s.targets) - 1
	}
	s.calls++
	return decimal.NewFromFloat(s.targets[i])
}

func TestLoop_ZeroTargetClosesPosition(t *testing.T) {
	ex := mock.NewMockExchange("mock", 100, 100, 100)
	strat := &scriptedStrategy{targets: []float64{0.5, 0}}
	l := newLoop(t, testConfig(), ex, strat)

	require.NoError(t, l.Start(context.Background(), 3))

	orders := ex.Orders()
	require.Len(t, orders, 2)
	assert.Equal(t, core.SideBuy, orders[0].Side)
	assert.Equal(t, core.SideSell, orders[1].Side)
	assert.True(t, orders[1].Size.Equal(orders[0].Size))
	assert.True(t, l.Status().Position.IsFlat())
	assert.Equal(t, int64(2), l.Status().TradeCount)
}

func TestLoop_PartialReductionKeepsEntry(t *testing.T) {
	ex := mock.NewMockExchange("mock", 100, 100, 110)
	strat := &scriptedStrategy{targets: []float64{0.5, 0.11}}
	cfg := testConfig()
	cfg.TakeProfitPct = 0
	l := newLoop(t, cfg, ex, strat)

	require.NoError(t, l.Start(context.Background(), 3))

	orders := ex.Orders()
	require.Len(t, orders, 2)
	assert.Equal(t, core.SideSell, orders[1].Side)

	s := l.Status()
	assert.True(t, s.Position.Size.Equal(decimal.NewFromInt(10)), "got %s", s.Position.Size)
	assert.True(t, s.Position.EntryPrice.Equal(decimal.NewFromInt(100)))
}

func TestLoop_StopLossForcesClose(t *testing.T) {
	ex := mock.NewMockExchange("mock", 50000, 47400)
	ex.SetPositions([]*core.ExchangePosition{{
		Market:     market,
		Size:       decimal.RequireFromString("0.1"),
		EntryPrice: decimal.NewFromInt(50000),
	}}, nil)
	strat := mock.NewMockStrategy(core.SignalBuy, 0.5)
	rep := mock.NewMockReporter()

	cfg := testConfig()
	cfg.SyncPositionOnStart = true
	l := newLoop(t, cfg, ex, strat, WithReporter(rep))

	require.NoError(t, l.Start(context.Background(), 2))

	orders := ex.Orders()
	require.Len(t, orders, 1)
	assert.Equal(t, core.SideSell, orders[0].Side)
	assert.True(t, orders[0].Size.Equal(decimal.RequireFromString("0.1")))
	assert.Zero(t, strat.GenerateCalls(), "strategy is bypassed when a trigger fires")
	assert.True(t, l.Status().Position.IsFlat())

	signals := rep.Events(core.EventSignalEmitted)
	require.Len(t, signals, 1)
	assert.Equal(t, "stop_loss", signals[0].(core.SignalEmitted).Reason)
	assert.Equal(t, core.SignalSell, signals[0].(core.SignalEmitted).Signal)

	trades := rep.Events(core.EventTradeExecuted)
	require.Len(t, trades, 1)
	assert.Equal(t, "stop_loss", trades[0].(core.TradeExecuted).Reason)
}

func TestLoop_TakeProfitClosesShort(t *testing.T) {
	ex := mock.NewMockExchange("mock", 100, 89)
	ex.SetPositions([]*core.ExchangePosition{{
		Market:     market,
		Size:       decimal.NewFromInt(-2),
		EntryPrice: decimal.NewFromInt(100),
	}}, nil)
	strat := mock.NewMockStrategy(core.SignalHold, 0)

	cfg := testConfig()
	cfg.SyncPositionOnStart = true
	l := newLoop(t, cfg, ex, strat)

	require.NoError(t, l.Start(context.Background(), 2))

	orders := ex.Orders()
	require.Len(t, orders, 1)
	assert.Equal(t, core.SideBuy, orders[0].Side)
	assert.True(t, orders[0].Size.Equal(decimal.NewFromInt(2)))
}

func TestLoop_FailedOrderLeavesPositionUnchanged(t *testing.T) {
	ex := mock.NewMockExchange("mock", 100, 102, 102)
	ex.SetOrderError(apperrors.Newf(apperrors.KindInsufficientMargin, "place order", "not enough margin"), true)
	strat := mock.NewMockStrategy(core.SignalBuy, 0.5)
	l := newLoop(t, testConfig(), ex, strat)

	require.NoError(t, l.Start(context.Background(), 2))
	s := l.Status()
	assert.Len(t, ex.Orders(), 1)
	assert.True(t, s.Position.IsFlat())
	assert.Zero(t, s.TradeCount)
	assert.Contains(t, s.LastError, "insufficient_margin")
}

func TestLoop_RecoversAfterFailedOrder(t *testing.T) {
	ex := mock.NewMockExchange("mock", 100, 102, 102)
	ex.SetOrderError(apperrors.Newf(apperrors.KindAPI, "place order", "boom"), true)
	strat := mock.NewMockStrategy(core.SignalBuy, 0.5)
	l := newLoop(t, testConfig(), ex, strat)

	require.NoError(t, l.Start(context.Background(), 3))

	want := decimal.NewFromFloat(0.5).Mul(decimal.NewFromFloat(10000)).Div(decimal.NewFromFloat(102))
	assert.Len(t, ex.Orders(), 2)
	assert.True(t, l.Status().Position.Size.Equal(want))
}

func TestLoop_AuthenticationErrorIsFatal(t *testing.T) {
	ex := mock.NewMockExchange("mock", 100, 101, 102)
	ex.FailTickerOn(2, apperrors.Newf(apperrors.KindAuthentication, "get ticker", "bad key"))
	strat := mock.NewMockStrategy(core.SignalHold, 0)
	rep := mock.NewMockReporter()
	l := newLoop(t, testConfig(), ex, strat, WithReporter(rep))

	err := l.Start(context.Background(), 10)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrAuthenticationFailed))
	assert.Equal(t, 2, ex.TickerCalls())
	assert.Equal(t, StateStopped, l.Status().State)
	assert.Equal(t, []string{"warmup", "stopped"}, statuses(rep), "a fatal error skips stopping")
}

func TestLoop_ConfigurationErrorOnFirstTickIsFatal(t *testing.T) {
	ex := mock.NewMockExchange("mock", 100)
	ex.FailTickerOn(1, apperrors.Newf(apperrors.KindMarketNotFound, "get ticker", "unknown market"))
	l := newLoop(t, testConfig(), ex, mock.NewMockStrategy(core.SignalHold, 0))

	err := l.Start(context.Background(), 5)
	assert.True(t, errors.Is(err, apperrors.ErrMarketNotFound))
	assert.Equal(t, 1, ex.TickerCalls())
}

func TestLoop_RecoverableErrorsSkipIteration(t *testing.T) {
	ex := mock.NewMockExchange("mock", 100, 101, 102)
	ex.FailTickerOn(2, apperrors.Newf(apperrors.KindRateLimit, "get ticker", "slow down"))
	ex.FailTickerOn(3, apperrors.Newf(apperrors.KindMarketNotFound, "get ticker", "flapping"))
	l := newLoop(t, testConfig(), ex, mock.NewMockStrategy(core.SignalHold, 0))

	require.NoError(t, l.Start(context.Background(), 4))
	s := l.Status()
	assert.Equal(t, int64(4), s.Iteration)
	assert.Equal(t, 2, s.HistoryLen)
}

func TestLoop_StrategyPanicIsContained(t *testing.T) {
	ex := mock.NewMockExchange("mock", 100, 101, 102)
	strat := mock.NewMockStrategy(core.SignalBuy, 0.5)
	strat.PanicOnGen = true
	l := newLoop(t, testConfig(), ex, strat)

	require.NoError(t, l.Start(context.Background(), 3))
	assert.Empty(t, ex.Orders())
	assert.Contains(t, l.Status().LastError, "panicked")
}

func TestLoop_StopIsIdempotent(t *testing.T) {
	rep := mock.NewMockReporter()
	l := newLoop(t, testConfig(), mock.NewMockExchange("mock", 100), mock.NewMockStrategy(core.SignalHold, 0), WithReporter(rep))

	l.Stop()
	l.Stop()
	assert.Equal(t, StateStopped, l.Status().State)
	assert.Equal(t, []string{"stopped"}, statuses(rep))
	assert.ErrorIs(t, l.Start(context.Background(), 1), ErrLoopStopped)
	assert.Error(t, l.Healthy())
}

func TestLoop_StopWhileRunning(t *testing.T) {
	cfg := testConfig()
	cfg.CheckIntervalSeconds = 0.01
	rep := mock.NewMockReporter()
	l := newLoop(t, cfg, mock.NewMockExchange("mock", 100, 101), mock.NewMockStrategy(core.SignalHold, 0), WithReporter(rep))

	done := make(chan error, 1)
	go func() { done <- l.Start(context.Background(), 0) }()

	require.Eventually(t, func() bool { return l.Status().Iteration >= 3 }, 2*time.Second, time.Millisecond)
	assert.NoError(t, l.Healthy())
	assert.ErrorIs(t, l.Start(context.Background(), 1), ErrLoopStarted)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.Stop()
		}()
	}
	wg.Wait()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not stop")
	}

	stopped := 0
	for _, s := range statuses(rep) {
		if s == "stopped" {
			stopped++
		}
	}
	assert.Equal(t, 1, stopped)
}

func TestLoop_ContextCancellationInterruptsSleep(t *testing.T) {
	cfg := testConfig()
	cfg.CheckIntervalSeconds = 60
	l := newLoop(t, cfg, mock.NewMockExchange("mock", 100), mock.NewMockStrategy(core.SignalHold, 0))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Start(ctx, 0) }()

	require.Eventually(t, func() bool { return l.Status().Iteration == 1 }, time.Second, time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("sleep was not interrupted")
	}
	assert.Equal(t, StateStopped, l.Status().State)
}

// cancelingStrategy cancels the run while the loop is consulting it
type cancelingStrategy struct {
	cancel context.CancelFunc
}

func (s *cancelingStrategy) Name() string { return "canceling" }

func (s *cancelingStrategy) GenerateSignals(history []decimal.Decimal) []core.Signal {
	s.cancel()
	return []core.Signal{core.SignalBuy}
}

func (s *cancelingStrategy) CalculatePosition(signal core.Signal, current decimal.Decimal) decimal.Decimal {
	return decimal.NewFromFloat(0.5)
}

func TestLoop_CancellationAfterFetchCompletesIteration(t *testing.T) {
	ex := mock.NewMockExchange("mock", 100, 102)
	rep := mock.NewMockReporter()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg := testConfig()
	cfg.OrdersPerSecond = 1
	l := newLoop(t, cfg, ex, &cancelingStrategy{cancel: cancel}, WithReporter(rep))

	require.NoError(t, l.Start(ctx, 0))

	s := l.Status()
	want := decimal.NewFromFloat(0.5).Mul(decimal.NewFromFloat(10000)).Div(decimal.NewFromFloat(102))
	assert.Equal(t, int64(2), s.Iteration)
	require.Len(t, ex.Orders(), 1)
	assert.True(t, s.Position.Size.Equal(want))
	assert.Equal(t, int64(1), s.TradeCount)
	assert.Empty(t, s.LastError)
	assert.Len(t, rep.Events(core.EventTradeExecuted), 1)
	assert.Equal(t, []string{"warmup", "running", "stopping", "stopped"}, statuses(rep))
}

func TestLoop_ContextCancellationDuringSlowFetch(t *testing.T) {
	ex := mock.NewMockExchange("mock", 100)
	ex.SetTickerDelay(time.Minute)
	l := newLoop(t, testConfig(), ex, mock.NewMockStrategy(core.SignalHold, 0))

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	start := time.Now()
	require.NoError(t, l.Start(ctx, 0))
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Equal(t, StateStopped, l.Status().State)
	assert.Zero(t, l.Status().HistoryLen)
}

func TestLoop_PositionSyncFailureStartsFlat(t *testing.T) {
	ex := mock.NewMockExchange("mock", 100)
	ex.SetPositions(nil, apperrors.Newf(apperrors.KindNetwork, "get positions", "timeout"))

	cfg := testConfig()
	cfg.SyncPositionOnStart = true
	l := newLoop(t, cfg, ex, mock.NewMockStrategy(core.SignalHold, 0),
		WithSyncPolicy(retry.RetryPolicy{MaxAttempts: 2, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond}))

	require.NoError(t, l.Start(context.Background(), 1))
	assert.True(t, l.Status().Position.IsFlat())
}

func TestLoop_PositionSyncAuthFailureIsFatal(t *testing.T) {
	ex := mock.NewMockExchange("mock", 100)
	ex.SetPositions(nil, apperrors.Newf(apperrors.KindAuthentication, "get positions", "bad key"))

	cfg := testConfig()
	cfg.SyncPositionOnStart = true
	l := newLoop(t, cfg, ex, mock.NewMockStrategy(core.SignalHold, 0))

	err := l.Start(context.Background(), 1)
	assert.True(t, errors.Is(err, apperrors.ErrAuthenticationFailed))
	assert.Zero(t, ex.TickerCalls())
}

func TestLoop_TelemetryRegistrationFailureDoesNotStopTrading(t *testing.T) {
	ex := mock.NewMockExchange("mock", 100, 102)
	rep := mock.NewMockReporter()
	rep.FailCreate()
	l := newLoop(t, testConfig(), ex, mock.NewMockStrategy(core.SignalBuy, 0.5), WithReporter(rep))

	require.NoError(t, l.Start(context.Background(), 2))
	assert.Len(t, ex.Orders(), 1)
	assert.Empty(t, rep.Events())
	assert.False(t, l.Status().Telemetry)
}

func TestLoop_JournalRecordsTradesAndStates(t *testing.T) {
	ex := mock.NewMockExchange("mock", 100, 102)
	store := journal.NewMemoryStore()
	l := newLoop(t, testConfig(), ex, mock.NewMockStrategy(core.SignalBuy, 0.5),
		WithJournal(store), WithRuntimeID("run-1"))

	require.NoError(t, l.Start(context.Background(), 2))

	trades, err := store.Trades(context.Background(), "run-1")
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.Equal(t, core.SideBuy, trades[0].Side)
	assert.Equal(t, market, trades[0].Market)

	states, err := store.Statuses(context.Background(), "run-1")
	require.NoError(t, err)
	var names []string
	for _, s := range states {
		names = append(names, s.State)
	}
	assert.Equal(t, []string{"warmup", "running", "stopping", "stopped"}, names)
}

func TestLoop_UnresponsiveTelemetryDoesNotSlowTrading(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost && r.URL.Path == "/api/v1/runtimes" {
			_, _ = w.Write([]byte(`{"success":true}`))
			return
		}
		select {
		case <-r.Context().Done():
		case <-time.After(10 * time.Second):
		}
	}))
	defer backend.Close()

	rep := monitor.NewReporter(monitor.Config{
		APIBaseURL: backend.URL,
		APIKey:     "key",
		RuntimeID:  "run-1",
		StrategyID: "mock",
		Workers:    1,
		QueueSize:  2,
		Timeout:    10 * time.Second,
	}, &mock.NopLogger{})

	ex := mock.NewMockExchange("mock", 100, 101, 102, 103, 104, 105, 106, 107, 108, 109)
	strat := mock.NewMockStrategy(core.SignalBuy, 0.5)
	l := newLoop(t, testConfig(), ex, strat, WithReporter(rep))

	start := time.Now()
	require.NoError(t, l.Start(context.Background(), 10))
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Positive(t, rep.Stats().Dropped)

	rep.Shutdown(50 * time.Millisecond)
}

func TestOpeningSize(t *testing.T) {
	d := decimal.NewFromInt
	assert.True(t, openingSize(d(0), d(3)).Equal(d(3)))
	assert.True(t, openingSize(d(2), d(3)).Equal(d(3)))
	assert.True(t, openingSize(d(2), d(-1)).IsZero())
	assert.True(t, openingSize(d(2), d(-5)).Equal(d(3)))
	assert.True(t, openingSize(d(-2), d(2)).IsZero())
}

func TestExceedsValueLimit(t *testing.T) {
	d := decimal.NewFromInt
	limit := d(5000)

	tests := []struct {
		name        string
		size, delta decimal.Decimal
		price       decimal.Decimal
		want        bool
	}{
		{"open within limit", d(0), d(50), d(100), false},
		{"open above limit", d(0), d(51), d(100), true},
		{"add within limit", d(30), d(21), d(100), false},
		{"add above limit", d(30), d(60), d(100), true},
		{"close is never limited", d(80), d(-80), d(100), false},
		{"flip counts only the new side", d(40), d(-91), d(100), true},
		{"flip within limit", d(40), d(-90), d(100), false},
		{"rounding noise tolerated", d(0), decimal.RequireFromString("50.0000000001"), d(100), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, exceedsValueLimit(tt.size, tt.delta, tt.price, limit))
		})
	}
}

func TestLoop_InitialStatus(t *testing.T) {
	l := newLoop(t, testConfig(), mock.NewMockExchange("mock", 100), mock.NewMockStrategy(core.SignalHold, 0))
	s := l.Status()
	assert.Equal(t, StateCreated, s.State)
	assert.Equal(t, market, s.Market)
	assert.Zero(t, s.Iteration)
	assert.True(t, s.Position.IsFlat())
	assert.True(t, s.UnrealizedPnL().IsZero())
	assert.NoError(t, l.Healthy())
}
