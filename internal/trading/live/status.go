package live

import (
	"livetrader/internal/trading/position"

	"github.com/shopspring/decimal"
)

// State is the lifecycle phase of a loop
type State string

const (
	StateCreated  State = "created"
	StateWarmup   State = "warmup"
	StateRunning  State = "running"
	StateStopping State = "stopping"
	StateStopped  State = "stopped"
)

// Status is an immutable snapshot of the loop. A new value is published
// after every change; readers never see a half-applied fill.
type Status struct {
	State      State             `json:"state"`
	Market     string            `json:"market"`
	Position   position.Position `json:"position"`
	Iteration  int64             `json:"iteration"`
	LastPrice  decimal.Decimal   `json:"last_price"`
	TradeCount int64             `json:"trade_count"`
	HistoryLen int               `json:"history_len"`
	Telemetry  bool              `json:"telemetry"`
	LastError  string            `json:"last_error,omitempty"`
}

// UnrealizedPnL of the snapshot position at the snapshot price
func (s Status) UnrealizedPnL() decimal.Decimal {
	return s.Position.UnrealizedPnL(s.LastPrice)
}
