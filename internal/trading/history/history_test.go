package history

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func d(v float64) decimal.Decimal { return decimal.NewFromFloat(v) }

func TestPriceHistory_AppendKeepsOrder(t *testing.T) {
	h := New(0)
	_, ok := h.Last()
	assert.False(t, ok)

	for _, p := range []float64{100, 102, 101} {
		h.Append(d(p))
	}

	assert.Equal(t, 3, h.Len())
	last, ok := h.Last()
	assert.True(t, ok)
	assert.True(t, last.Equal(d(101)))

	snap := h.Snapshot()
	assert.True(t, snap[0].Equal(d(100)))
	assert.True(t, snap[1].Equal(d(102)))
}

func TestPriceHistory_SnapshotIsACopy(t *testing.T) {
	h := New(0)
	h.Append(d(1))
	snap := h.Snapshot()
	snap[0] = d(99)

	last, _ := h.Last()
	assert.True(t, last.Equal(d(1)))
}

func TestPriceHistory_BoundedWindowSlides(t *testing.T) {
	h := New(3)
	for i := 1; i <= 5; i++ {
		h.Append(decimal.NewFromInt(int64(i)))
	}

	assert.Equal(t, 3, h.Len())
	assert.Equal(t, int64(5), h.TotalObserved())

	snap := h.Snapshot()
	for i, want := range []int64{3, 4, 5} {
		assert.True(t, snap[i].Equal(decimal.NewFromInt(want)), "index %d", i)
	}
}

func TestPriceHistory_LengthNeverDecreases(t *testing.T) {
	h := New(0)
	prev := 0
	for i := 0; i < 50; i++ {
		h.Append(decimal.NewFromInt(int64(i)))
		assert.GreaterOrEqual(t, h.Len(), prev)
		prev = h.Len()
	}
}
