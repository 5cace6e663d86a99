package monitor

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"livetrader/internal/core"

	"github.com/shopspring/decimal"
)

const (
	pathRuntimes  = "/api/v1/runtimes"
	pathTrades    = "/api/v1/trades"
	pathSignals   = "/api/v1/signals"
	pathPositions = "/api/v1/positions"
)

var errSynchronousOnly = errors.New("runtime registration is synchronous, use CreateRuntime")

type identity struct {
	RuntimeID  string `json:"runtime_id"`
	StrategyID string `json:"strategy_id,omitempty"`
	Market     string `json:"market"`
	Timestamp  string `json:"timestamp"`
}

type runtimePayload struct {
	RuntimeID       string            `json:"runtime_id"`
	StrategyID      string            `json:"strategy_id,omitempty"`
	Market          string            `json:"market"`
	InitialCapital  float64           `json:"initial_capital"`
	MaxPositionSize float64           `json:"max_position_size"`
	Environment     string            `json:"environment"`
	SDKVersion      string            `json:"sdk_version"`
	Status          string            `json:"status"`
	StartTime       string            `json:"start_time"`
	Metadata        map[string]string `json:"metadata,omitempty"`
}

type tradePayload struct {
	identity
	Side           string  `json:"side"`
	Size           float64 `json:"size"`
	Price          float64 `json:"price"`
	OrderID        string  `json:"order_id,omitempty"`
	PositionBefore float64 `json:"position_before"`
	PositionAfter  float64 `json:"position_after"`
	Reason         string  `json:"reason,omitempty"`
}

type signalPayload struct {
	identity
	Signal          int     `json:"signal"`
	Price           float64 `json:"price"`
	CurrentPosition float64 `json:"current_position"`
	TargetPosition  float64 `json:"target_position"`
	Reason          string  `json:"reason,omitempty"`
}

type positionPayload struct {
	identity
	PositionSize float64 `json:"position_size"`
	EntryPrice   float64 `json:"entry_price"`
	CurrentPrice float64 `json:"current_price"`
	PnL          float64 `json:"pnl"`
	PnLPct       float64 `json:"pnl_pct"`
}

type statusPayload struct {
	Status        string  `json:"status"`
	UpdatedAt     string  `json:"updated_at"`
	Iteration     int64   `json:"iteration"`
	TotalTrades   int64   `json:"total_trades"`
	FinalPosition float64 `json:"final_position"`
}

// request is one HTTP call derived from an event
type request struct {
	method string
	path   string
	body   interface{}
}

func f64(d decimal.Decimal) float64 {
	return d.InexactFloat64()
}

func stamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func (r *Reporter) identity(ev core.ReportEvent) identity {
	return identity{
		RuntimeID:  r.cfg.RuntimeID,
		StrategyID: r.cfg.StrategyID,
		Market:     ev.EventMarket(),
		Timestamp:  stamp(ev.EventTime()),
	}
}

func (r *Reporter) registration(ev core.RuntimeCreated) runtimePayload {
	return runtimePayload{
		RuntimeID:       r.cfg.RuntimeID,
		StrategyID:      r.cfg.StrategyID,
		Market:          ev.Market,
		InitialCapital:  f64(ev.InitialCapital),
		MaxPositionSize: f64(ev.MaxPositionSize),
		Environment:     r.cfg.Environment,
		SDKVersion:      r.cfg.SDKVersion,
		Status:          "running",
		StartTime:       stamp(ev.Timestamp),
		Metadata:        r.cfg.Metadata,
	}
}

// encode maps an event onto its endpoint and JSON body
func (r *Reporter) encode(ev core.ReportEvent) (request, error) {
	switch e := ev.(type) {
	case core.TradeExecuted:
		return request{http.MethodPost, pathTrades, tradePayload{
			identity:       r.identity(e),
			Side:           string(e.Side),
			Size:           f64(e.Size),
			Price:          f64(e.Price),
			OrderID:        e.OrderID,
			PositionBefore: f64(e.PositionBefore),
			PositionAfter:  f64(e.PositionAfter),
			Reason:         e.Reason,
		}}, nil
	case core.SignalEmitted:
		return request{http.MethodPost, pathSignals, signalPayload{
			identity:        r.identity(e),
			Signal:          int(e.Signal),
			Price:           f64(e.Price),
			CurrentPosition: f64(e.CurrentPosition),
			TargetPosition:  f64(e.TargetPosition),
			Reason:          e.Reason,
		}}, nil
	case core.PositionUpdated:
		return request{http.MethodPost, pathPositions, positionPayload{
			identity:     r.identity(e),
			PositionSize: f64(e.PositionSize),
			EntryPrice:   f64(e.EntryPrice),
			CurrentPrice: f64(e.CurrentPrice),
			PnL:          f64(e.PnL),
			PnLPct:       f64(e.PnLPct),
		}}, nil
	case core.StatusChanged:
		return request{http.MethodPatch, pathRuntimes + "/" + r.cfg.RuntimeID, statusPayload{
			Status:        e.Status,
			UpdatedAt:     stamp(e.Timestamp),
			Iteration:     e.Iteration,
			TotalTrades:   e.TotalTrades,
			FinalPosition: f64(e.FinalPosition),
		}}, nil
	case core.RuntimeCreated:
		return request{}, errSynchronousOnly
	default:
		return request{}, fmt.Errorf("unsupported event %T", ev)
	}
}
