// Package order turns position deltas into single exchange orders
package order

import (
	"context"
	"fmt"
	"math"

	"livetrader/internal/core"
	apperrors "livetrader/pkg/errors"
	"livetrader/pkg/telemetry"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"
)

// ExecutionError wraps a failed placement. The classification of the
// underlying error survives: errors.Is and apperrors.KindOf see through it.
type ExecutionError struct {
	Market string
	Side   core.Side
	Size   decimal.Decimal
	Err    error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("execute %s %s %s: %v", e.Side, e.Size, e.Market, e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

// Executor implements core.IOrderExecutor. It never retries: a blind
// resubmit on an order endpoint risks double execution.
type Executor struct {
	gateway     core.IExchangeGateway
	logger      core.ILogger
	rateLimiter *rate.Limiter

	tracer       trace.Tracer
	orderCounter metric.Int64Counter
	failCounter  metric.Int64Counter
}

// NewExecutor creates an executor. ordersPerSecond <= 0 disables pacing.
func NewExecutor(gateway core.IExchangeGateway, logger core.ILogger, ordersPerSecond float64) *Executor {
	limit := rate.Inf
	burst := 1
	if ordersPerSecond > 0 {
		limit = rate.Limit(ordersPerSecond)
		burst = int(math.Max(1, math.Ceil(ordersPerSecond)))
	}

	meter := telemetry.GetMeter("order-executor")
	orderCounter, _ := meter.Int64Counter("order_placements_total",
		metric.WithDescription("Total number of orders placed"))
	failCounter, _ := meter.Int64Counter("order_failures_total",
		metric.WithDescription("Total number of order placement failures"))

	return &Executor{
		gateway:      gateway,
		logger:       logger.WithField("component", "order_executor"),
		rateLimiter:  rate.NewLimiter(limit, burst),
		tracer:       telemetry.GetTracer("order-executor"),
		orderCounter: orderCounter,
		failCounter:  failCounter,
	}
}

// Execute places exactly one order. For limit orders price is the limit;
// for market orders it is the reference price used when the exchange does
// not report a fill price.
func (e *Executor) Execute(ctx context.Context, market string, side core.Side, size decimal.Decimal, orderType core.OrderType, price decimal.Decimal) (*core.OrderResult, error) {
	ctx, span := e.tracer.Start(ctx, "Execute",
		trace.WithAttributes(
			attribute.String("market", market),
			attribute.String("side", string(side)),
			attribute.String("size", size.String()),
			attribute.String("type", string(orderType)),
		),
	)
	defer span.End()

	fail := func(err error) (*core.OrderResult, error) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		e.failCounter.Add(ctx, 1, metric.WithAttributes(
			attribute.String("market", market),
			attribute.String("kind", apperrors.KindOf(err).String()),
		))
		return nil, &ExecutionError{Market: market, Side: side, Size: size, Err: err}
	}

	if err := validate(side, size, orderType, price); err != nil {
		return fail(err)
	}

	if err := e.rateLimiter.Wait(ctx); err != nil {
		return fail(apperrors.New(apperrors.KindNetwork, "rate limiter", err))
	}

	req := &core.OrderRequest{
		Market:        market,
		Side:          side,
		Type:          orderType,
		Size:          size,
		ClientOrderID: uuid.NewString(),
	}
	if orderType == core.OrderTypeLimit {
		req.Price = price
	}

	ack, err := e.gateway.PlaceOrder(ctx, req)
	if err != nil {
		e.logger.Warn("Order placement failed",
			"market", market,
			"side", side,
			"size", size.String(),
			"kind", apperrors.KindOf(err).String(),
			"error", err)
		return fail(err)
	}
	if ack == nil {
		return fail(apperrors.Newf(apperrors.KindAPI, "place order", "empty acknowledgement"))
	}

	result, err := normalize(req, ack, price)
	if err != nil {
		return fail(err)
	}

	e.orderCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("market", market),
		attribute.String("side", string(side)),
	))
	span.SetAttributes(
		attribute.String("order_id", result.OrderID),
		attribute.String("status", string(result.Status)),
	)
	e.logger.Info("Order executed",
		"market", market,
		"side", side,
		"size", result.FilledSize.String(),
		"price", result.FillPrice.String(),
		"order_id", result.OrderID,
		"status", result.Status)

	return result, nil
}

func validate(side core.Side, size decimal.Decimal, orderType core.OrderType, price decimal.Decimal) error {
	if side != core.SideBuy && side != core.SideSell {
		return apperrors.Newf(apperrors.KindInvalidParameter, "validate order", "unknown side %q", side)
	}
	if !size.IsPositive() {
		return apperrors.Newf(apperrors.KindInvalidParameter, "validate order", "size must be positive, got %s", size)
	}
	switch orderType {
	case core.OrderTypeMarket:
	case core.OrderTypeLimit:
		if !price.IsPositive() {
			return apperrors.Newf(apperrors.KindInvalidParameter, "validate order", "limit order requires a positive price")
		}
	default:
		return apperrors.Newf(apperrors.KindInvalidParameter, "validate order", "unknown order type %q", orderType)
	}
	return nil
}

// normalize fills the gaps backends leave in their acknowledgements
func normalize(req *core.OrderRequest, ack *core.OrderAck, refPrice decimal.Decimal) (*core.OrderResult, error) {
	status := ack.Status
	if status == "" {
		if req.Type == core.OrderTypeMarket {
			status = core.OrderStatusFilled
		} else {
			status = core.OrderStatusNew
		}
	}

	switch status {
	case core.OrderStatusRejected, core.OrderStatusCanceled:
		return nil, apperrors.Newf(apperrors.KindOrderRejected, "place order", "order %s %s", ack.OrderID, status)
	}

	filled := ack.FilledSize
	if !filled.IsPositive() {
		filled = decimal.Zero
		if status == core.OrderStatusFilled {
			filled = req.Size
		}
	}

	fillPrice := ack.FillPrice
	if !fillPrice.IsPositive() {
		fillPrice = refPrice
	}

	return &core.OrderResult{
		OrderID:    ack.OrderID,
		Side:       req.Side,
		FilledSize: filled,
		FillPrice:  fillPrice,
		Status:     status,
	}, nil
}
