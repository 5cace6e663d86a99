// Package exchange selects the gateway backend named in the configuration
package exchange

import (
	"fmt"
	"strings"
	"time"

	"livetrader/internal/config"
	"livetrader/internal/core"
	"livetrader/internal/exchange/ex1024"
	"livetrader/internal/exchange/paper"
)

// NewExchange creates the gateway described by cfg
func NewExchange(cfg config.ExchangeConfig, logger core.ILogger) (core.IExchangeGateway, error) {
	switch strings.ToLower(cfg.Name) {
	case config.Exchange1024ex:
		if !cfg.APIKey.IsSet() || !cfg.SecretKey.IsSet() {
			return nil, fmt.Errorf("api_key and secret_key are required for exchange %s", cfg.Name)
		}
		return ex1024.NewExchange(ex1024.Config{
			BaseURL:    cfg.BaseURL,
			APIKey:     cfg.APIKey.Value(),
			SecretKey:  cfg.SecretKey.Value(),
			RecvWindow: cfg.RecvWindowMs,
			Timeout:    time.Duration(cfg.TimeoutSeconds) * time.Second,
		}, logger), nil
	case config.ExchangePaper:
		logger.Warn("Using paper exchange, orders are simulated")
		return paper.NewExchange(paper.Config{
			StartPrice: cfg.Paper.StartPrice,
			Volatility: cfg.Paper.Volatility,
			Seed:       cfg.Paper.Seed,
		}, logger), nil
	default:
		return nil, fmt.Errorf("unsupported exchange: %s", cfg.Name)
	}
}
