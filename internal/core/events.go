package core

import (
	"time"

	"github.com/shopspring/decimal"
)

// EventKind tags a ReportEvent variant
type EventKind string

const (
	EventRuntimeCreated  EventKind = "runtime_created"
	EventTradeExecuted   EventKind = "trade_executed"
	EventSignalEmitted   EventKind = "signal_emitted"
	EventPositionUpdated EventKind = "position_updated"
	EventStatusChanged   EventKind = "status_changed"
)

func (k EventKind) String() string { return string(k) }

// ReportEvent is an observational record handed to the telemetry reporter.
// Implementations are immutable values.
type ReportEvent interface {
	Kind() EventKind
	EventMarket() string
	EventTime() time.Time
}

// EventHeader carries the fields shared by every event
type EventHeader struct {
	Market    string
	Timestamp time.Time
}

func (h EventHeader) EventMarket() string   { return h.Market }
func (h EventHeader) EventTime() time.Time { return h.Timestamp }

// NewHeader stamps an event header with the current UTC time
func NewHeader(market string) EventHeader {
	return EventHeader{Market: market, Timestamp: time.Now().UTC()}
}

// RuntimeCreated is emitted once the monitoring backend accepted the run
type RuntimeCreated struct {
	EventHeader
	InitialCapital  decimal.Decimal
	MaxPositionSize decimal.Decimal
}

func (RuntimeCreated) Kind() EventKind { return EventRuntimeCreated }

// TradeExecuted is emitted after a successful order
type TradeExecuted struct {
	EventHeader
	Side           Side
	Size           decimal.Decimal
	Price          decimal.Decimal
	OrderID        string
	PositionBefore decimal.Decimal
	PositionAfter  decimal.Decimal
	Reason         string
}

func (TradeExecuted) Kind() EventKind { return EventTradeExecuted }

// SignalEmitted is emitted once per non-warmup iteration
type SignalEmitted struct {
	EventHeader
	Signal          Signal
	Price           decimal.Decimal
	CurrentPosition decimal.Decimal
	TargetPosition  decimal.Decimal
	Reason          string
}

func (SignalEmitted) Kind() EventKind { return EventSignalEmitted }

// PositionUpdated is emitted after every position mutation
type PositionUpdated struct {
	EventHeader
	PositionSize decimal.Decimal
	EntryPrice   decimal.Decimal
	CurrentPrice decimal.Decimal
	PnL          decimal.Decimal
	PnLPct       decimal.Decimal
}

func (PositionUpdated) Kind() EventKind { return EventPositionUpdated }

// StatusChanged is emitted on every loop state transition
type StatusChanged struct {
	EventHeader
	Status        string
	Iteration     int64
	TotalTrades   int64
	FinalPosition decimal.Decimal
}

func (StatusChanged) Kind() EventKind { return EventStatusChanged }
