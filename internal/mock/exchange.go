// Package mock provides hand-written test doubles for the trading capabilities
package mock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"livetrader/internal/core"

	"github.com/shopspring/decimal"
)

// MockExchange implements core.IExchangeGateway for testing. Prices are
// served from a script; once the script is exhausted the last price repeats.
type MockExchange struct {
	name string
	mu   sync.Mutex

	prices      []decimal.Decimal
	priceIdx    int
	tickerErrs  map[int]error // keyed by 1-based GetTicker call number
	tickerCalls int
	tickerDelay time.Duration

	positions    []*core.ExchangePosition
	positionsErr error

	orders         []core.OrderRequest
	orderErr       error
	orderErrOnce   bool
	ackStatus      core.OrderStatus
	reportFillSize bool
	orderIDCounter int64
}

// NewMockExchange creates a mock with the given price script
func NewMockExchange(name string, prices ...float64) *MockExchange {
	m := &MockExchange{
		name:           name,
		tickerErrs:     make(map[int]error),
		ackStatus:      core.OrderStatusFilled,
		reportFillSize: true,
		orderIDCounter: 1000,
	}
	for _, p := range prices {
		m.prices = append(m.prices, decimal.NewFromFloat(p))
	}
	return m
}

func (m *MockExchange) GetName() string {
	return m.name
}

// FailTickerOn makes the n-th GetTicker call (1-based) return err
func (m *MockExchange) FailTickerOn(n int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tickerErrs[n] = err
}

// SetTickerDelay slows every GetTicker call
func (m *MockExchange) SetTickerDelay(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tickerDelay = d
}

// SetOrderError makes PlaceOrder fail; once limits it to the next call
func (m *MockExchange) SetOrderError(err error, once bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orderErr = err
	m.orderErrOnce = once
}

// SetAckStatus overrides the status of acknowledged orders
func (m *MockExchange) SetAckStatus(status core.OrderStatus, reportFillSize bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ackStatus = status
	m.reportFillSize = reportFillSize
}

// SetPositions sets what GetPositions returns
func (m *MockExchange) SetPositions(positions []*core.ExchangePosition, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.positions = positions
	m.positionsErr = err
}

func (m *MockExchange) GetTicker(ctx context.Context, market string) (*core.Ticker, error) {
	m.mu.Lock()
	m.tickerCalls++
	call := m.tickerCalls
	delay := m.tickerDelay
	err, failing := m.tickerErrs[call]
	m.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if failing {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.prices) == 0 {
		return nil, fmt.Errorf("mock %s: no prices scripted", m.name)
	}
	price := m.prices[m.priceIdx]
	if m.priceIdx < len(m.prices)-1 {
		m.priceIdx++
	}
	return &core.Ticker{
		Market:    market,
		LastPrice: price,
		MarkPrice: price,
		Timestamp: time.Now(),
	}, nil
}

func (m *MockExchange) GetPositions(ctx context.Context, market string) ([]*core.ExchangePosition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.positionsErr != nil {
		return nil, m.positionsErr
	}
	var out []*core.ExchangePosition
	for _, p := range m.positions {
		if market == "" || p.Market == market {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *MockExchange) PlaceOrder(ctx context.Context, req *core.OrderRequest) (*core.OrderAck, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.orders = append(m.orders, *req)
	if m.orderErr != nil {
		err := m.orderErr
		if m.orderErrOnce {
			m.orderErr = nil
		}
		return nil, err
	}

	m.orderIDCounter++
	ack := &core.OrderAck{
		OrderID:       fmt.Sprintf("%d", m.orderIDCounter),
		ClientOrderID: req.ClientOrderID,
		Status:        m.ackStatus,
	}
	if m.reportFillSize && m.ackStatus == core.OrderStatusFilled {
		ack.FilledSize = req.Size
	}
	return ack, nil
}

// Orders returns a copy of every order request received
func (m *MockExchange) Orders() []core.OrderRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]core.OrderRequest, len(m.orders))
	copy(out, m.orders)
	return out
}

// TickerCalls returns how many times GetTicker was called
func (m *MockExchange) TickerCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tickerCalls
}
