package telemetry

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metric names
const (
	MetricIterationsTotal     = "live_trader_iterations_total"
	MetricIterationErrors     = "live_trader_iteration_errors_total"
	MetricIterationLatency    = "live_trader_iteration_duration_ms"
	MetricOrdersPlacedTotal   = "live_trader_orders_placed_total"
	MetricOrdersFailedTotal   = "live_trader_orders_failed_total"
	MetricRiskTriggersTotal   = "live_trader_risk_triggers_total"
	MetricReportsDroppedTotal = "live_trader_reports_dropped_total"
	MetricPositionSize        = "live_trader_position_size"
	MetricPnLUnrealized       = "live_trader_pnl_unrealized"
	MetricLastPrice           = "live_trader_last_price"
)

// MetricsHolder holds initialized instruments. Until InitMetrics runs every
// recording helper is a no-op, so components can record unconditionally.
type MetricsHolder struct {
	IterationsTotal     metric.Int64Counter
	IterationErrors     metric.Int64Counter
	IterationLatency    metric.Float64Histogram
	OrdersPlacedTotal   metric.Int64Counter
	OrdersFailedTotal   metric.Int64Counter
	RiskTriggersTotal   metric.Int64Counter
	ReportsDroppedTotal metric.Int64Counter
	PositionSize        metric.Float64ObservableGauge
	PnLUnrealized       metric.Float64ObservableGauge
	LastPrice           metric.Float64ObservableGauge

	mu               sync.RWMutex
	initialized      bool
	positionSizeMap  map[string]float64
	unrealizedPnLMap map[string]float64
	lastPriceMap     map[string]float64
}

var (
	globalMetrics *MetricsHolder
	initOnce      sync.Once
)

// GetGlobalMetrics returns the singleton metrics holder
func GetGlobalMetrics() *MetricsHolder {
	initOnce.Do(func() {
		globalMetrics = &MetricsHolder{
			positionSizeMap:  make(map[string]float64),
			unrealizedPnLMap: make(map[string]float64),
			lastPriceMap:     make(map[string]float64),
		}
	})
	return globalMetrics
}

// InitMetrics initializes instruments using the meter
func (m *MetricsHolder) InitMetrics(meter metric.Meter) error {
	var err error

	if m.IterationsTotal, err = meter.Int64Counter(MetricIterationsTotal, metric.WithDescription("Completed trading loop iterations")); err != nil {
		return err
	}
	if m.IterationErrors, err = meter.Int64Counter(MetricIterationErrors, metric.WithDescription("Iterations skipped because of an error")); err != nil {
		return err
	}
	if m.IterationLatency, err = meter.Float64Histogram(MetricIterationLatency, metric.WithDescription("Iteration duration excluding the inter-tick sleep"), metric.WithUnit("ms")); err != nil {
		return err
	}
	if m.OrdersPlacedTotal, err = meter.Int64Counter(MetricOrdersPlacedTotal, metric.WithDescription("Orders accepted by the exchange")); err != nil {
		return err
	}
	if m.OrdersFailedTotal, err = meter.Int64Counter(MetricOrdersFailedTotal, metric.WithDescription("Orders that failed to execute")); err != nil {
		return err
	}
	if m.RiskTriggersTotal, err = meter.Int64Counter(MetricRiskTriggersTotal, metric.WithDescription("Stop-loss and take-profit triggers")); err != nil {
		return err
	}
	if m.ReportsDroppedTotal, err = meter.Int64Counter(MetricReportsDroppedTotal, metric.WithDescription("Telemetry events dropped before delivery")); err != nil {
		return err
	}

	m.PositionSize, err = meter.Float64ObservableGauge(MetricPositionSize, metric.WithDescription("Current signed position size"),
		metric.WithFloat64Callback(m.observe(func() map[string]float64 { return m.positionSizeMap })))
	if err != nil {
		return err
	}
	m.PnLUnrealized, err = meter.Float64ObservableGauge(MetricPnLUnrealized, metric.WithDescription("Current unrealized PnL"),
		metric.WithFloat64Callback(m.observe(func() map[string]float64 { return m.unrealizedPnLMap })))
	if err != nil {
		return err
	}
	m.LastPrice, err = meter.Float64ObservableGauge(MetricLastPrice, metric.WithDescription("Last observed price"),
		metric.WithFloat64Callback(m.observe(func() map[string]float64 { return m.lastPriceMap })))
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.initialized = true
	m.mu.Unlock()
	return nil
}

func (m *MetricsHolder) observe(values func() map[string]float64) metric.Float64Callback {
	return func(ctx context.Context, obs metric.Float64Observer) error {
		m.mu.RLock()
		defer m.mu.RUnlock()
		for market, val := range values() {
			obs.Observe(val, metric.WithAttributes(attribute.String("market", market)))
		}
		return nil
	}
}

func (m *MetricsHolder) ready() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.initialized
}

func marketAttr(market string) metric.AddOption {
	return metric.WithAttributes(attribute.String("market", market))
}

// RecordIteration records a finished iteration and its latency
func (m *MetricsHolder) RecordIteration(ctx context.Context, market string, latencyMs float64, failed bool) {
	if !m.ready() {
		return
	}
	m.IterationsTotal.Add(ctx, 1, marketAttr(market))
	m.IterationLatency.Record(ctx, latencyMs, metric.WithAttributes(attribute.String("market", market)))
	if failed {
		m.IterationErrors.Add(ctx, 1, marketAttr(market))
	}
}

// RecordOrder counts an order outcome
func (m *MetricsHolder) RecordOrder(ctx context.Context, market, side string, ok bool) {
	if !m.ready() {
		return
	}
	attrs := metric.WithAttributes(attribute.String("market", market), attribute.String("side", side))
	if ok {
		m.OrdersPlacedTotal.Add(ctx, 1, attrs)
		return
	}
	m.OrdersFailedTotal.Add(ctx, 1, attrs)
}

// RecordRiskTrigger counts a stop-loss or take-profit trigger
func (m *MetricsHolder) RecordRiskTrigger(ctx context.Context, market, trigger string) {
	if !m.ready() {
		return
	}
	m.RiskTriggersTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("market", market), attribute.String("trigger", trigger)))
}

// RecordReportDropped counts a telemetry event that never reached a worker
func (m *MetricsHolder) RecordReportDropped(ctx context.Context, kind string) {
	if !m.ready() {
		return
	}
	m.ReportsDroppedTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

// SetPosition updates the observable position gauges
func (m *MetricsHolder) SetPosition(market string, size, unrealizedPnL float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.positionSizeMap[market] = size
	m.unrealizedPnLMap[market] = unrealizedPnL
}

// SetLastPrice updates the observable price gauge
func (m *MetricsHolder) SetLastPrice(market string, price float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastPriceMap[market] = price
}
