// Package paper implements a simulated exchange backend: a seeded random-walk
// price feed with immediate fills and local position bookkeeping.
package paper

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"livetrader/internal/core"
	"livetrader/internal/trading/position"
	apperrors "livetrader/pkg/errors"

	"github.com/shopspring/decimal"
)

// Config drives the price walk
type Config struct {
	StartPrice float64
	// Volatility is the standard deviation of one step's relative move
	Volatility float64
	Seed       int64
}

// Exchange implements core.IExchangeGateway without touching the network
type Exchange struct {
	cfg    Config
	logger core.ILogger

	mu        sync.Mutex
	rng       *rand.Rand
	prices    map[string]decimal.Decimal
	positions map[string]position.Position
	orderSeq  int64
	now       func() time.Time
}

// NewExchange creates a paper backend
func NewExchange(cfg Config, logger core.ILogger) *Exchange {
	if cfg.StartPrice <= 0 {
		cfg.StartPrice = 50000
	}
	if cfg.Volatility < 0 {
		cfg.Volatility = 0
	}
	return &Exchange{
		cfg:       cfg,
		logger:    logger.WithField("component", "paper_exchange"),
		rng:       rand.New(rand.NewSource(cfg.Seed)),
		prices:    make(map[string]decimal.Decimal),
		positions: make(map[string]position.Position),
		now:       time.Now,
	}
}

func (e *Exchange) GetName() string {
	return "paper"
}

// GetTicker advances the walk by one step and returns the new price
func (e *Exchange) GetTicker(ctx context.Context, market string) (*core.Ticker, error) {
	if market == "" {
		return nil, apperrors.Newf(apperrors.KindInvalidParameter, "get ticker", "market is required")
	}
	if err := ctx.Err(); err != nil {
		return nil, apperrors.New(apperrors.KindNetwork, "get ticker", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	price, ok := e.prices[market]
	if !ok {
		price = decimal.NewFromFloat(e.cfg.StartPrice)
	} else {
		step := 1 + e.rng.NormFloat64()*e.cfg.Volatility
		if step <= 0 {
			step = 0.5
		}
		price = price.Mul(decimal.NewFromFloat(step)).Round(8)
	}
	e.prices[market] = price

	return &core.Ticker{
		Market:    market,
		LastPrice: price,
		MarkPrice: price,
		Timestamp: e.now(),
	}, nil
}

// GetPositions returns the locally tracked positions
func (e *Exchange) GetPositions(ctx context.Context, market string) ([]*core.ExchangePosition, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var out []*core.ExchangePosition
	for m, p := range e.positions {
		if p.IsFlat() || (market != "" && m != market) {
			continue
		}
		out = append(out, &core.ExchangePosition{
			Market:     m,
			Size:       p.Size,
			EntryPrice: p.EntryPrice,
			MarkPrice:  e.prices[m],
		})
	}
	return out, nil
}

// PlaceOrder fills market orders at the current price. Limit orders fill
// at their limit when it crosses the current price and otherwise rest as new.
func (e *Exchange) PlaceOrder(ctx context.Context, req *core.OrderRequest) (*core.OrderAck, error) {
	const op = "place order"
	if req == nil || req.Market == "" || !req.Size.IsPositive() {
		return nil, apperrors.Newf(apperrors.KindInvalidParameter, op, "market and positive size are required")
	}
	if err := ctx.Err(); err != nil {
		return nil, apperrors.New(apperrors.KindNetwork, op, err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	price, ok := e.prices[req.Market]
	if !ok {
		return nil, apperrors.Newf(apperrors.KindMarketNotFound, op, "no price for %s yet", req.Market)
	}

	e.orderSeq++
	ack := &core.OrderAck{
		OrderID:       fmt.Sprintf("paper-%d", e.orderSeq),
		ClientOrderID: req.ClientOrderID,
		Status:        core.OrderStatusNew,
	}

	fillPrice := price
	if req.Type == core.OrderTypeLimit {
		crosses := (req.Side == core.SideBuy && req.Price.GreaterThanOrEqual(price)) ||
			(req.Side == core.SideSell && req.Price.LessThanOrEqual(price))
		if !crosses {
			return ack, nil
		}
		fillPrice = req.Price
	}

	pos, ok := e.positions[req.Market]
	if !ok {
		pos = position.Flat(req.Market)
	}
	e.positions[req.Market] = pos.ApplyFill(req.Side, req.Size, fillPrice)

	ack.Status = core.OrderStatusFilled
	ack.FilledSize = req.Size
	ack.FillPrice = fillPrice

	e.logger.Debug("Paper order filled",
		"market", req.Market,
		"side", req.Side,
		"size", req.Size.String(),
		"price", fillPrice.String())

	return ack, nil
}
