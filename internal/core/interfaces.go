// Package core defines the capability interfaces and shared types of the live trader
package core

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// IExchangeGateway is the exchange capability the trading loop depends on.
// Backends normalize their native payloads into these types and classify
// failures with pkg/errors.
type IExchangeGateway interface {
	GetName() string
	GetTicker(ctx context.Context, market string) (*Ticker, error)
	GetPositions(ctx context.Context, market string) ([]*ExchangePosition, error)
	PlaceOrder(ctx context.Context, req *OrderRequest) (*OrderAck, error)
}

// IStrategy is the signal-generation capability supplied by the caller
type IStrategy interface {
	Name() string
	// GenerateSignals returns one signal per observation; the loop acts on the last one.
	GenerateSignals(history []decimal.Decimal) []Signal
	// CalculatePosition returns the desired allocation fraction of initial capital.
	CalculatePosition(signal Signal, currentAllocation decimal.Decimal) decimal.Decimal
}

// IOrderExecutor turns a position delta into exactly one exchange order
type IOrderExecutor interface {
	Execute(ctx context.Context, market string, side Side, size decimal.Decimal, orderType OrderType, limitPrice decimal.Decimal) (*OrderResult, error)
}

// IReporter is the fire-and-forget telemetry sink. CreateRuntime is the one
// synchronous call; a false return disables the reporter for the run.
type IReporter interface {
	CreateRuntime(ctx context.Context, ev RuntimeCreated) bool
	Report(event ReportEvent)
	Enabled() bool
	Shutdown(drainTimeout time.Duration) int
}

// IJournal persists executed trades and loop transitions
type IJournal interface {
	RecordTrade(ctx context.Context, rec TradeRecord) error
	RecordStatus(ctx context.Context, rec StatusRecord) error
	Close() error
}

// IHealthMonitor defines the interface for health monitoring
type IHealthMonitor interface {
	Register(component string, check func() error)
	GetStatus() map[string]string
	IsHealthy() bool
}

// ILogger defines the interface for logging
type ILogger interface {
	Debug(msg string, fields ...interface{})
	Info(msg string, fields ...interface{})
	Warn(msg string, fields ...interface{})
	Error(msg string, fields ...interface{})
	Fatal(msg string, fields ...interface{})
	WithField(key string, value interface{}) ILogger
	WithFields(fields map[string]interface{}) ILogger
}
