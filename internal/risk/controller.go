// Package risk evaluates stop-loss and take-profit triggers
package risk

import (
	"livetrader/internal/core"
	"livetrader/internal/trading/position"

	"github.com/shopspring/decimal"
)

// TriggerDecision is the outcome of one evaluation
type TriggerDecision int

const (
	TriggerNone TriggerDecision = iota
	TriggerStopLoss
	TriggerTakeProfit
)

func (d TriggerDecision) String() string {
	switch d {
	case TriggerStopLoss:
		return "stop_loss"
	case TriggerTakeProfit:
		return "take_profit"
	default:
		return "none"
	}
}

// Limits are the trigger thresholds as fractions of entry price. Zero disables a trigger.
type Limits struct {
	StopLossPct   decimal.Decimal
	TakeProfitPct decimal.Decimal
}

// Controller is stateless; the zero value is ready to use
type Controller struct{}

// NewController returns a controller
func NewController() *Controller {
	return &Controller{}
}

// Evaluate reports whether the position breached a threshold at price.
// Stop-loss wins if both thresholds are satisfied.
func (c *Controller) Evaluate(pos position.Position, price decimal.Decimal, limits Limits) TriggerDecision {
	if pos.IsFlat() || !pos.EntryPrice.IsPositive() || !price.IsPositive() {
		return TriggerNone
	}

	one := decimal.NewFromInt(1)
	entry := pos.EntryPrice
	long := pos.Size.IsPositive()

	if limits.StopLossPct.IsPositive() {
		if long && price.LessThanOrEqual(entry.Mul(one.Sub(limits.StopLossPct))) {
			return TriggerStopLoss
		}
		if !long && price.GreaterThanOrEqual(entry.Mul(one.Add(limits.StopLossPct))) {
			return TriggerStopLoss
		}
	}

	if limits.TakeProfitPct.IsPositive() {
		if long && price.GreaterThanOrEqual(entry.Mul(one.Add(limits.TakeProfitPct))) {
			return TriggerTakeProfit
		}
		if !long && price.LessThanOrEqual(entry.Mul(one.Sub(limits.TakeProfitPct))) {
			return TriggerTakeProfit
		}
	}

	return TriggerNone
}

// ClosingSide returns the order side that flattens pos
func ClosingSide(pos position.Position) core.Side {
	if pos.Size.IsNegative() {
		return core.SideBuy
	}
	return core.SideSell
}

// ClosingSignal is the signal equivalent of ClosingSide
func ClosingSignal(pos position.Position) core.Signal {
	if pos.Size.IsNegative() {
		return core.SignalBuy
	}
	return core.SignalSell
}
