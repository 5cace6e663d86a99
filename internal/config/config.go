// Package config handles configuration management with validation
package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// Exchange identifiers accepted by exchange.New
const (
	Exchange1024ex = "1024ex"
	ExchangePaper  = "paper"
)

const (
	DefaultExchangeBaseURL  = "https://api.1024ex.com"
	DefaultTelemetryBaseURL = "https://api.1024quant.com"
	DefaultEnvironment      = "local"
)

// Config represents the complete configuration structure
type Config struct {
	Trading   TradingConfig   `yaml:"trading"`
	Strategy  StrategyConfig  `yaml:"strategy"`
	Exchange  ExchangeConfig  `yaml:"exchange"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	System    SystemConfig    `yaml:"system"`
}

// TradingConfig is the immutable runtime configuration of one trading loop
type TradingConfig struct {
	Market               string  `yaml:"market" validate:"required"`
	InitialCapital       float64 `yaml:"initial_capital" validate:"gt=0"`
	MaxPositionSize      float64 `yaml:"max_position_size" validate:"gt=0,lte=1"`
	CheckIntervalSeconds float64 `yaml:"check_interval_seconds" validate:"gt=0"`
	StopLossPct          float64 `yaml:"stop_loss_pct" validate:"gte=0,lt=1"`
	TakeProfitPct        float64 `yaml:"take_profit_pct" validate:"gte=0"`

	// MinOrderSize is the delta below which no order is placed
	MinOrderSize float64 `yaml:"min_order_size" validate:"gte=0"`
	// OrderValueGuard rejects opening orders worth more than initial_capital*max_position_size
	OrderValueGuard     bool    `yaml:"order_value_guard"`
	SyncPositionOnStart bool    `yaml:"sync_position_on_start"`
	HistoryCapacity     int     `yaml:"history_capacity" validate:"eq=0|gte=2"`
	OrdersPerSecond     float64 `yaml:"orders_per_second" validate:"gte=0"`
}

// CheckInterval returns the sleep between iterations
func (t TradingConfig) CheckInterval() time.Duration {
	return time.Duration(t.CheckIntervalSeconds * float64(time.Second))
}

// StrategyConfig selects the built-in strategy driven by the binary
type StrategyConfig struct {
	Name       string  `yaml:"name" validate:"required,oneof=momentum"`
	Lookback   int     `yaml:"lookback" validate:"min=1,max=1000"`
	Allocation float64 `yaml:"allocation" validate:"gt=0,lte=1"`
}

// ExchangeConfig contains exchange-specific configuration
type ExchangeConfig struct {
	Name           string      `yaml:"name" validate:"required,oneof=1024ex paper"`
	BaseURL        string      `yaml:"base_url" validate:"omitempty,url"`
	APIKey         Secret      `yaml:"api_key"`
	SecretKey      Secret      `yaml:"secret_key"`
	RecvWindowMs   int         `yaml:"recv_window_ms" validate:"gte=0,lte=60000"`
	TimeoutSeconds int         `yaml:"timeout_seconds" validate:"gte=0,lte=120"`
	Paper          PaperConfig `yaml:"paper"`
}

// PaperConfig drives the simulated backend
type PaperConfig struct {
	StartPrice float64 `yaml:"start_price" validate:"gte=0"`
	Volatility float64 `yaml:"volatility" validate:"gte=0,lt=1"`
	Seed       int64   `yaml:"seed"`
}

// TelemetryConfig is the optional monitoring sub-configuration
type TelemetryConfig struct {
	Enabled             bool              `yaml:"enabled"`
	APIKey              Secret            `yaml:"api_key"`
	APIBaseURL          string            `yaml:"api_base_url" validate:"omitempty,url"`
	RuntimeID           string            `yaml:"runtime_id"`
	StrategyID          string            `yaml:"strategy_id"`
	Environment         string            `yaml:"environment"`
	Metadata            map[string]string `yaml:"metadata"`
	Workers             int               `yaml:"workers" validate:"gte=0,lte=64"`
	QueueSize           int               `yaml:"queue_size" validate:"gte=0,lte=100000"`
	TimeoutSeconds      int               `yaml:"timeout_seconds" validate:"gte=0,lte=120"`
	DrainTimeoutSeconds int               `yaml:"drain_timeout_seconds" validate:"gte=0,lte=300"`
}

// SystemConfig contains system settings
type SystemConfig struct {
	LogLevel      string `yaml:"log_level" validate:"required"`
	MetricsPort   int    `yaml:"metrics_port" validate:"gte=0,lte=65535"`
	EnableMetrics bool   `yaml:"enable_metrics"`
	StdoutTraces  bool   `yaml:"stdout_traces"`
	StdoutLogs    bool   `yaml:"stdout_logs"`
	// JournalPath is the SQLite file for the trade journal; empty keeps it in memory
	JournalPath string `yaml:"journal_path"`
}

// ValidationError represents a configuration validation error
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s' (value: %v): %s", e.Field, e.Value, e.Message)
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// report yaml paths instead of Go field names
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("yaml"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// LoadConfig loads configuration from a YAML file with environment variable expansion
func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML on top of DefaultConfig, applies environment
// fallbacks and validates the result
func Parse(data []byte) (*Config, error) {
	expandedData := os.ExpandEnv(string(data))

	config := DefaultConfig()
	if err := yaml.Unmarshal([]byte(expandedData), config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	config.ApplyEnv()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// ApplyEnv fills telemetry identity fields from the environment and
// generates a runtime id when none is configured
func (c *Config) ApplyEnv() {
	t := &c.Telemetry
	if t.StrategyID == "" {
		t.StrategyID = os.Getenv("STRATEGY_ID")
	}
	if t.Environment == "" {
		t.Environment = os.Getenv("ENVIRONMENT")
	}
	if t.Environment == "" {
		t.Environment = DefaultEnvironment
	}
	if env := os.Getenv("API_BASE_URL"); env != "" {
		t.APIBaseURL = env
	}
	if t.APIBaseURL == "" {
		t.APIBaseURL = DefaultTelemetryBaseURL
	}
	if t.RuntimeID == "" {
		t.RuntimeID = uuid.NewString()
	}
	if c.Exchange.BaseURL == "" && c.Exchange.Name == Exchange1024ex {
		c.Exchange.BaseURL = DefaultExchangeBaseURL
	}
}

// Validate performs comprehensive validation of the configuration
func (c *Config) Validate() error {
	var errs []string

	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return err
		}
		for _, fe := range verrs {
			errs = append(errs, fieldError(fe).Error())
		}
	}

	for _, check := range []func() error{
		c.validateExchange,
		c.validateTelemetry,
		c.validateSystem,
	} {
		if err := check(); err != nil {
			errs = append(errs, err.Error())
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed:\n%s", strings.Join(errs, "\n"))
	}
	return nil
}

// ValidateTrading checks a trading section on its own, for callers that
// build it without going through Parse
func ValidateTrading(t TradingConfig) error {
	err := validate.Struct(t)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	errs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		errs = append(errs, fieldError(fe).Error())
	}
	return errors.New(strings.Join(errs, "; "))
}

func fieldError(fe validator.FieldError) ValidationError {
	// drop the root struct name: "Config.trading.market" -> "trading.market"
	field := fe.Namespace()
	if i := strings.Index(field, "."); i >= 0 {
		field = field[i+1:]
	}
	msg := fmt.Sprintf("failed '%s' check", fe.Tag())
	if fe.Param() != "" {
		msg = fmt.Sprintf("failed '%s=%s' check", fe.Tag(), fe.Param())
	}
	return ValidationError{Field: field, Value: fe.Value(), Message: msg}
}

func (c *Config) validateExchange() error {
	if c.Exchange.Name != Exchange1024ex {
		return nil
	}
	if !c.Exchange.APIKey.IsSet() {
		return ValidationError{
			Field:   "exchange.api_key",
			Message: "API key is required",
		}
	}
	if !c.Exchange.SecretKey.IsSet() {
		return ValidationError{
			Field:   "exchange.secret_key",
			Message: "secret key is required",
		}
	}
	return nil
}

func (c *Config) validateTelemetry() error {
	if !c.Telemetry.Enabled {
		return nil
	}
	if !c.Telemetry.APIKey.IsSet() {
		return ValidationError{
			Field:   "telemetry.api_key",
			Message: "API key is required when telemetry is enabled",
		}
	}
	if c.Telemetry.RuntimeID == "" {
		return ValidationError{
			Field:   "telemetry.runtime_id",
			Message: "runtime id must be set or generated",
		}
	}
	return nil
}

func (c *Config) validateSystem() error {
	validLevels := []string{"DEBUG", "INFO", "WARN", "ERROR", "FATAL"}
	if !contains(validLevels, strings.ToUpper(c.System.LogLevel)) {
		return ValidationError{
			Field:   "system.log_level",
			Value:   c.System.LogLevel,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(validLevels, ", ")),
		}
	}
	return nil
}

// String returns a string representation of the configuration (with sensitive data masked)
func (c *Config) String() string {
	data, _ := yaml.Marshal(c)
	return string(data)
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}

// DefaultConfig mirrors the defaults of a plain start: 10000 capital, half
// of it at most in the market, one tick a minute, 5% stop and 10% take
func DefaultConfig() *Config {
	return &Config{
		Trading: TradingConfig{
			Market:               "BTC-PERP",
			InitialCapital:       10000,
			MaxPositionSize:      0.5,
			CheckIntervalSeconds: 60,
			StopLossPct:          0.05,
			TakeProfitPct:        0.10,
			MinOrderSize:         0.000001,
			OrderValueGuard:      true,
			OrdersPerSecond:      5,
		},
		Strategy: StrategyConfig{
			Name:       "momentum",
			Lookback:   5,
			Allocation: 0.5,
		},
		Exchange: ExchangeConfig{
			Name:           ExchangePaper,
			RecvWindowMs:   5000,
			TimeoutSeconds: 10,
			Paper: PaperConfig{
				StartPrice: 50000,
				Volatility: 0.002,
				Seed:       1,
			},
		},
		Telemetry: TelemetryConfig{
			Workers:             3,
			QueueSize:           256,
			TimeoutSeconds:      10,
			DrainTimeoutSeconds: 5,
		},
		System: SystemConfig{
			LogLevel:      "INFO",
			MetricsPort:   9090,
			EnableMetrics: true,
		},
	}
}
