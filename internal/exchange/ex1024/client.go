// Package ex1024 implements the 1024ex perpetual futures REST backend
package ex1024

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"livetrader/internal/core"
	apperrors "livetrader/pkg/errors"
	httpclient "livetrader/pkg/http"

	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"
)

const (
	DefaultBaseURL = "https://api.1024ex.com"
	pathPrefix     = "/api/v1/perp"
)

// Config holds the connection settings of the backend
type Config struct {
	BaseURL    string
	APIKey     string
	SecretKey  string
	RecvWindow int
	Timeout    time.Duration
	// RequestsPerSecond paces every call; zero means 10/s
	RequestsPerSecond float64
}

// Exchange implements core.IExchangeGateway for 1024ex
type Exchange struct {
	client  *httpclient.Client
	limiter *rate.Limiter
	logger  core.ILogger
}

// NewExchange creates a new 1024ex backend
func NewExchange(cfg Config, logger core.ILogger) *Exchange {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 10
	}

	return &Exchange{
		client: httpclient.NewClient(
			strings.TrimRight(cfg.BaseURL, "/"),
			cfg.Timeout,
			NewSigner(cfg.APIKey, cfg.SecretKey, cfg.RecvWindow),
			httpclient.DefaultOptions("ex1024"),
		),
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), int(cfg.RequestsPerSecond)+1),
		logger:  logger.WithField("component", "ex1024"),
	}
}

func (e *Exchange) GetName() string {
	return "1024ex"
}

type tickerResponse struct {
	Market    string          `json:"market"`
	LastPrice decimal.Decimal `json:"last_price"`
	MarkPrice decimal.Decimal `json:"mark_price"`
}

// GetTicker fetches the latest prices of market
func (e *Exchange) GetTicker(ctx context.Context, market string) (*core.Ticker, error) {
	const op = "get ticker"
	if market == "" {
		return nil, apperrors.Newf(apperrors.KindInvalidParameter, op, "market is required")
	}
	if err := e.limiter.Wait(ctx); err != nil {
		return nil, apperrors.New(apperrors.KindNetwork, op, err)
	}

	body, err := e.client.Get(ctx, pathPrefix+"/ticker/"+url.PathEscape(market), nil)
	if err != nil {
		return nil, e.classify(op, err)
	}

	var t tickerResponse
	if err := decode(body, &t); err != nil {
		return nil, apperrors.New(apperrors.KindAPI, op, err)
	}
	if !t.LastPrice.IsPositive() {
		return nil, apperrors.Newf(apperrors.KindAPI, op, "ticker for %s has no last price", market)
	}
	if t.Market == "" {
		t.Market = market
	}

	return &core.Ticker{
		Market:    t.Market,
		LastPrice: t.LastPrice,
		MarkPrice: t.MarkPrice,
		Timestamp: time.Now(),
	}, nil
}

type positionResponse struct {
	Market     string          `json:"market"`
	Side       string          `json:"side"`
	Size       decimal.Decimal `json:"size"`
	EntryPrice decimal.Decimal `json:"entry_price"`
	MarkPrice  decimal.Decimal `json:"mark_price"`
}

// GetPositions lists open positions, optionally filtered by market
func (e *Exchange) GetPositions(ctx context.Context, market string) ([]*core.ExchangePosition, error) {
	const op = "get positions"
	if err := e.limiter.Wait(ctx); err != nil {
		return nil, apperrors.New(apperrors.KindNetwork, op, err)
	}

	var params map[string]string
	if market != "" {
		params = map[string]string{"market": market}
	}
	body, err := e.client.Get(ctx, pathPrefix+"/positions", params)
	if err != nil {
		return nil, e.classify(op, err)
	}

	var raw []positionResponse
	if err := decode(body, &raw); err != nil {
		return nil, apperrors.New(apperrors.KindAPI, op, err)
	}

	out := make([]*core.ExchangePosition, 0, len(raw))
	for _, p := range raw {
		size := p.Size
		// some payloads carry an unsigned size plus a side
		if strings.EqualFold(p.Side, "short") && size.IsPositive() {
			size = size.Neg()
		}
		out = append(out, &core.ExchangePosition{
			Market:     p.Market,
			Size:       size,
			EntryPrice: p.EntryPrice,
			MarkPrice:  p.MarkPrice,
		})
	}
	return out, nil
}

type orderRequest struct {
	Market        string `json:"market"`
	Side          string `json:"side"`
	OrderType     string `json:"order_type"`
	Size          string `json:"size"`
	Price         string `json:"price,omitempty"`
	ReduceOnly    bool   `json:"reduce_only,omitempty"`
	ClientOrderID string `json:"client_order_id,omitempty"`
}

type orderResponse struct {
	OrderID       string          `json:"order_id"`
	ClientOrderID string          `json:"client_order_id"`
	Status        string          `json:"status"`
	FilledSize    decimal.Decimal `json:"filled_size"`
	AvgPrice      decimal.Decimal `json:"avg_price"`
}

// PlaceOrder submits one order. It is sent at most once.
func (e *Exchange) PlaceOrder(ctx context.Context, req *core.OrderRequest) (*core.OrderAck, error) {
	const op = "place order"
	if req == nil || req.Market == "" || !req.Size.IsPositive() {
		return nil, apperrors.Newf(apperrors.KindInvalidParameter, op, "market and positive size are required")
	}
	if err := e.limiter.Wait(ctx); err != nil {
		return nil, apperrors.New(apperrors.KindNetwork, op, err)
	}

	payload := orderRequest{
		Market:        req.Market,
		Side:          string(req.Side),
		OrderType:     string(req.Type),
		Size:          req.Size.String(),
		ReduceOnly:    req.ReduceOnly,
		ClientOrderID: req.ClientOrderID,
	}
	if req.Type == core.OrderTypeLimit {
		payload.Price = req.Price.String()
	}

	body, err := e.client.Post(ctx, pathPrefix+"/orders", payload)
	if err != nil {
		return nil, e.classify(op, err)
	}

	var resp orderResponse
	if err := decode(body, &resp); err != nil {
		return nil, apperrors.New(apperrors.KindAPI, op, err)
	}

	e.logger.Debug("Order acknowledged",
		"market", req.Market,
		"order_id", resp.OrderID,
		"status", resp.Status)

	return &core.OrderAck{
		OrderID:       resp.OrderID,
		ClientOrderID: resp.ClientOrderID,
		Status:        mapOrderStatus(resp.Status),
		FilledSize:    resp.FilledSize,
		FillPrice:     resp.AvgPrice,
	}, nil
}

func mapOrderStatus(raw string) core.OrderStatus {
	switch strings.ToLower(raw) {
	case "new", "open", "pending":
		return core.OrderStatusNew
	case "partially_filled", "partial":
		return core.OrderStatusPartiallyFilled
	case "filled", "closed":
		return core.OrderStatusFilled
	case "canceled", "cancelled":
		return core.OrderStatusCanceled
	case "rejected", "expired":
		return core.OrderStatusRejected
	default:
		return ""
	}
}

// decode accepts both {"success":..,"data":X} envelopes and bare X
func decode(body []byte, out interface{}) error {
	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil && len(envelope.Data) > 0 && string(envelope.Data) != "null" {
		body = envelope.Data
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// classify maps transport and HTTP failures onto the error taxonomy
func (e *Exchange) classify(op string, err error) error {
	var apiErr *httpclient.APIError
	if !errors.As(err, &apiErr) {
		return apperrors.New(apperrors.KindNetwork, op, err)
	}

	msg := parseMessage(apiErr.Body)
	switch {
	case apiErr.StatusCode == 401 || apiErr.StatusCode == 403:
		return apperrors.Newf(apperrors.KindAuthentication, op, "%s", msg)
	case apiErr.StatusCode == 429:
		return apperrors.Newf(apperrors.KindRateLimit, op, "%s", msg)
	case apiErr.StatusCode == 404:
		return apperrors.Newf(apperrors.KindMarketNotFound, op, "%s", msg)
	case apiErr.StatusCode == 400 && strings.Contains(strings.ToLower(msg), "margin"):
		return apperrors.Newf(apperrors.KindInsufficientMargin, op, "%s", msg)
	case apiErr.StatusCode == 400 && strings.Contains(strings.ToLower(msg), "order not found"):
		return apperrors.Newf(apperrors.KindOrderNotFound, op, "%s", msg)
	default:
		return apperrors.Newf(apperrors.KindAPI, op, "status %d: %s", apiErr.StatusCode, msg)
	}
}

func parseMessage(body []byte) string {
	var resp struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(body, &resp); err == nil {
		if resp.Message != "" {
			return resp.Message
		}
		if resp.Error != "" {
			return resp.Error
		}
	}
	if len(body) == 0 {
		return "empty response"
	}
	return string(body)
}
