// Package history holds the rolling price buffer owned by the trading loop
package history

import (
	"github.com/shopspring/decimal"
)

// PriceHistory is an insertion-ordered price buffer. With a capacity the
// oldest prices slide out of the window; entries are never reordered.
// It is not safe for concurrent use: the trading loop is its only writer.
type PriceHistory struct {
	prices   []decimal.Decimal
	capacity int
	total    int64
}

// New creates a history. capacity <= 0 means unbounded.
func New(capacity int) *PriceHistory {
	if capacity < 0 {
		capacity = 0
	}
	return &PriceHistory{capacity: capacity}
}

// Append records a new observation
func (h *PriceHistory) Append(price decimal.Decimal) {
	h.total++
	if h.capacity > 0 && len(h.prices) == h.capacity {
		copy(h.prices, h.prices[1:])
		h.prices[len(h.prices)-1] = price
		return
	}
	h.prices = append(h.prices, price)
}

// Len returns the number of prices in the window
func (h *PriceHistory) Len() int {
	return len(h.prices)
}

// TotalObserved counts every append, including prices that left the window
func (h *PriceHistory) TotalObserved() int64 {
	return h.total
}

// Last returns the newest price
func (h *PriceHistory) Last() (decimal.Decimal, bool) {
	if len(h.prices) == 0 {
		return decimal.Zero, false
	}
	return h.prices[len(h.prices)-1], true
}

// Snapshot returns a copy of the window that callers may keep
func (h *PriceHistory) Snapshot() []decimal.Decimal {
	out := make([]decimal.Decimal, len(h.prices))
	copy(out, h.prices)
	return out
}
