package core

import (
	"time"

	"github.com/shopspring/decimal"
)

// Signal is the directional intent produced by a strategy for one iteration
type Signal int

const (
	SignalSell Signal = -1
	SignalHold Signal = 0
	SignalBuy  Signal = 1
)

func (s Signal) String() string {
	switch s {
	case SignalBuy:
		return "buy"
	case SignalSell:
		return "sell"
	default:
		return "hold"
	}
}

// Normalize maps any integer onto {-1, 0, 1}
func (s Signal) Normalize() Signal {
	switch {
	case s > 0:
		return SignalBuy
	case s < 0:
		return SignalSell
	default:
		return SignalHold
	}
}

// Side is the direction of an order
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// PositionSide is the net direction of a position
type PositionSide string

const (
	PositionFlat  PositionSide = "flat"
	PositionLong  PositionSide = "long"
	PositionShort PositionSide = "short"
)

// OrderType is the execution style of an order
type OrderType string

const (
	OrderTypeMarket OrderType = "market"
	OrderTypeLimit  OrderType = "limit"
)

// OrderStatus is the exchange-agnostic order state
type OrderStatus string

const (
	OrderStatusNew             OrderStatus = "new"
	OrderStatusPartiallyFilled OrderStatus = "partially_filled"
	OrderStatusFilled          OrderStatus = "filled"
	OrderStatusCanceled        OrderStatus = "canceled"
	OrderStatusRejected        OrderStatus = "rejected"
)

// Ticker is a normalized market data snapshot
type Ticker struct {
	Market    string
	LastPrice decimal.Decimal
	MarkPrice decimal.Decimal
	Timestamp time.Time
}

// ExchangePosition is a position record as reported by an exchange.
// Size is signed: negative means short.
type ExchangePosition struct {
	Market     string
	Size       decimal.Decimal
	EntryPrice decimal.Decimal
	MarkPrice  decimal.Decimal
}

// OrderRequest is an exchange-agnostic order placement request
type OrderRequest struct {
	Market        string
	Side          Side
	Type          OrderType
	Size          decimal.Decimal
	Price         decimal.Decimal // zero for market orders
	ClientOrderID string
	ReduceOnly    bool
}

// OrderAck is the normalized response of an order placement
type OrderAck struct {
	OrderID       string
	ClientOrderID string
	Status        OrderStatus
	FilledSize    decimal.Decimal
	FillPrice     decimal.Decimal
}

// OrderResult is the executor's view of a completed placement
type OrderResult struct {
	OrderID    string
	Side       Side
	FilledSize decimal.Decimal
	FillPrice  decimal.Decimal
	Status     OrderStatus
}

// TradeRecord is one executed order as written to the journal
type TradeRecord struct {
	RuntimeID      string
	Market         string
	OrderID        string
	Side           Side
	Size           decimal.Decimal
	Price          decimal.Decimal
	PositionBefore decimal.Decimal
	PositionAfter  decimal.Decimal
	Reason         string
	Timestamp      time.Time
}

// StatusRecord is one loop state transition as written to the journal
type StatusRecord struct {
	RuntimeID string
	Market    string
	State     string
	Iteration int64
	Timestamp time.Time
}
