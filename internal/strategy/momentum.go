// Package strategy holds the reference strategy shipped with the binary
package strategy

import (
	"fmt"

	"livetrader/internal/core"

	"github.com/shopspring/decimal"
)

// Momentum goes long when the price rose over the lookback window and
// flattens when it fell. It is stateless; all state lives in the history.
type Momentum struct {
	lookback   int
	allocation decimal.Decimal
}

// NewMomentum creates a momentum strategy. allocation is the fraction of
// capital to hold while long.
func NewMomentum(lookback int, allocation float64) (*Momentum, error) {
	if lookback < 1 {
		return nil, fmt.Errorf("lookback must be at least 1, got %d", lookback)
	}
	if allocation <= 0 || allocation > 1 {
		return nil, fmt.Errorf("allocation must be in (0, 1], got %v", allocation)
	}
	return &Momentum{
		lookback:   lookback,
		allocation: decimal.NewFromFloat(allocation),
	}, nil
}

func (m *Momentum) Name() string {
	return fmt.Sprintf("momentum(%d)", m.lookback)
}

// GenerateSignals returns one signal per observation. Observations without
// a full lookback window hold.
func (m *Momentum) GenerateSignals(history []decimal.Decimal) []core.Signal {
	signals := make([]core.Signal, len(history))
	for i := m.lookback; i < len(history); i++ {
		signals[i] = core.Signal(history[i].Cmp(history[i-m.lookback]))
	}
	return signals
}

// CalculatePosition maps a signal onto a target allocation
func (m *Momentum) CalculatePosition(signal core.Signal, currentAllocation decimal.Decimal) decimal.Decimal {
	switch signal.Normalize() {
	case core.SignalBuy:
		return m.allocation
	case core.SignalSell:
		return decimal.Zero
	default:
		return currentAllocation
	}
}
