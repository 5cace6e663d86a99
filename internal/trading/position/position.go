// Package position implements the loop-owned position value type
package position

import (
	"livetrader/internal/core"

	"github.com/shopspring/decimal"
)

// Position is the in-memory net position of one market. Size is signed:
// negative means short. Values are immutable; ApplyFill returns a new one.
type Position struct {
	Market     string
	Size       decimal.Decimal
	EntryPrice decimal.Decimal
	Side       core.PositionSide
}

// Flat returns an empty position
func Flat(market string) Position {
	return Position{Market: market, Side: core.PositionFlat}
}

// FromExchange adopts a position reported by the exchange
func FromExchange(market string, size, entry decimal.Decimal) Position {
	if size.IsZero() {
		return Flat(market)
	}
	return Position{Market: market, Size: size, EntryPrice: entry, Side: sideOf(size)}
}

func sideOf(size decimal.Decimal) core.PositionSide {
	switch size.Sign() {
	case 1:
		return core.PositionLong
	case -1:
		return core.PositionShort
	default:
		return core.PositionFlat
	}
}

// IsFlat reports whether there is no exposure
func (p Position) IsFlat() bool {
	return p.Size.IsZero()
}

// ApplyFill returns the position after qty was filled at price on side.
//
//   - opening from flat, or flipping through zero: entry is the fill price
//   - adding in the same direction: entry is the size-weighted average
//   - reducing: entry is preserved
//   - closing exactly: flat, entry cleared
func (p Position) ApplyFill(side core.Side, qty, price decimal.Decimal) Position {
	if !qty.IsPositive() {
		return p
	}
	delta := qty
	if side == core.SideSell {
		delta = qty.Neg()
	}
	newSize := p.Size.Add(delta)

	next := Position{Market: p.Market, Size: newSize, Side: sideOf(newSize)}
	switch {
	case newSize.IsZero():
		next.Size = decimal.Zero
	case p.IsFlat() || newSize.Sign() != p.Size.Sign():
		next.EntryPrice = price
	case delta.Sign() == p.Size.Sign():
		oldAbs := p.Size.Abs()
		next.EntryPrice = p.EntryPrice.Mul(oldAbs).Add(price.Mul(qty)).Div(oldAbs.Add(qty))
	default:
		next.EntryPrice = p.EntryPrice
	}
	return next
}

// Notional is the absolute market value of the position
func (p Position) Notional(price decimal.Decimal) decimal.Decimal {
	return p.Size.Abs().Mul(price)
}

// UnrealizedPnL is (price - entry) * size; sign-correct for shorts
func (p Position) UnrealizedPnL(price decimal.Decimal) decimal.Decimal {
	if p.IsFlat() {
		return decimal.Zero
	}
	return price.Sub(p.EntryPrice).Mul(p.Size)
}

// PnLPct is the price move relative to entry, in the position's favour
func (p Position) PnLPct(price decimal.Decimal) decimal.Decimal {
	if p.IsFlat() || p.EntryPrice.IsZero() {
		return decimal.Zero
	}
	move := price.Sub(p.EntryPrice).Div(p.EntryPrice)
	if p.Side == core.PositionShort {
		return move.Neg()
	}
	return move
}
