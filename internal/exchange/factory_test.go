package exchange

import (
	"testing"

	"livetrader/internal/config"
	"livetrader/internal/mock"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewExchange(t *testing.T) {
	logger := &mock.NopLogger{}

	ex, err := NewExchange(config.ExchangeConfig{Name: config.ExchangePaper}, logger)
	require.NoError(t, err)
	assert.Equal(t, "paper", ex.GetName())

	ex, err = NewExchange(config.ExchangeConfig{Name: config.Exchange1024ex, APIKey: "k", SecretKey: "s"}, logger)
	require.NoError(t, err)
	assert.Equal(t, "1024ex", ex.GetName())

	_, err = NewExchange(config.ExchangeConfig{Name: config.Exchange1024ex}, logger)
	assert.Error(t, err)

	_, err = NewExchange(config.ExchangeConfig{Name: "binance"}, logger)
	assert.Error(t, err)
}
