// Package http provides a reusable HTTP client with resilience features
package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"livetrader/pkg/telemetry"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/circuitbreaker"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// ErrCircuitOpen is returned while the breaker rejects calls
var ErrCircuitOpen = circuitbreaker.ErrOpen

// APIError represents an API error response
type APIError struct {
	StatusCode int
	Body       []byte
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error: status=%d body=%s", e.StatusCode, string(e.Body))
}

// Signer is an interface for signing requests.
// Implementations must not consume req.Body; use GetBody to read it.
type Signer interface {
	SignRequest(req *http.Request) error
}

// Options tunes the resilience pipeline
type Options struct {
	// Name labels the tracer, meter and metric attributes
	Name string
	// MaxRetries applies to GET requests only; requests with side effects are sent at most once
	MaxRetries int
	// BreakerFailures out of BreakerWindow executions opens the circuit
	BreakerFailures uint
	BreakerWindow   uint
	BreakerDelay    time.Duration
}

// DefaultOptions retries idempotent reads three times
func DefaultOptions(name string) Options {
	return Options{
		Name:            name,
		MaxRetries:      3,
		BreakerFailures: 5,
		BreakerWindow:   10,
		BreakerDelay:    10 * time.Second,
	}
}

// Client is a wrapper around http.Client with resilience
type Client struct {
	client  *http.Client
	baseURL string
	signer  Signer
	name    string

	// reads go through retry + breaker, writes through the breaker alone
	readPipeline  failsafe.Executor[*http.Response]
	writePipeline failsafe.Executor[*http.Response]

	tracer      trace.Tracer
	reqCounter  metric.Int64Counter
	errCounter  metric.Int64Counter
	latencyHist metric.Float64Histogram
}

// NewClient creates a new HTTP client
func NewClient(baseURL string, timeout time.Duration, signer Signer, opts Options) *Client {
	if opts.Name == "" {
		opts.Name = "http-client"
	}
	if opts.BreakerWindow == 0 {
		opts.BreakerFailures, opts.BreakerWindow = 5, 10
	}
	if opts.BreakerDelay <= 0 {
		opts.BreakerDelay = 10 * time.Second
	}

	breaker := circuitbreaker.NewBuilder[*http.Response]().
		HandleIf(func(resp *http.Response, err error) bool {
			if err != nil {
				return true
			}
			return resp.StatusCode >= 500
		}).
		WithFailureThresholdRatio(opts.BreakerFailures, opts.BreakerWindow).
		WithDelay(opts.BreakerDelay).
		Build()

	readPolicies := []failsafe.Policy[*http.Response]{}
	if opts.MaxRetries > 0 {
		retryPolicy := retrypolicy.NewBuilder[*http.Response]().
			HandleIf(func(resp *http.Response, err error) bool {
				if err != nil {
					return !errors.Is(err, circuitbreaker.ErrOpen)
				}
				return resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests
			}).
			WithBackoff(100*time.Millisecond, 2*time.Second).
			WithMaxRetries(opts.MaxRetries).
			ReturnLastFailure().
			Build()
		readPolicies = append(readPolicies, retryPolicy)
	}
	readPolicies = append(readPolicies, breaker)

	tracer := telemetry.GetTracer(opts.Name)
	meter := telemetry.GetMeter(opts.Name)

	reqCounter, _ := meter.Int64Counter("http_requests_total",
		metric.WithDescription("Total number of HTTP requests"))
	errCounter, _ := meter.Int64Counter("http_errors_total",
		metric.WithDescription("Total number of HTTP errors"))
	latencyHist, _ := meter.Float64Histogram("http_request_duration_seconds",
		metric.WithDescription("HTTP request latency in seconds"))

	return &Client{
		client: &http.Client{
			Timeout: timeout,
		},
		baseURL:       baseURL,
		signer:        signer,
		name:          opts.Name,
		readPipeline:  failsafe.With[*http.Response](readPolicies...),
		writePipeline: failsafe.With[*http.Response](breaker),
		tracer:        tracer,
		reqCounter:    reqCounter,
		errCounter:    errCounter,
		latencyHist:   latencyHist,
	}
}

// Get sends a GET request
func (c *Client) Get(ctx context.Context, path string, params map[string]string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	q := req.URL.Query()
	for k, v := range params {
		q.Add(k, v)
	}
	req.URL.RawQuery = q.Encode()

	return c.do(req, c.readPipeline)
}

// Post sends a JSON POST request
func (c *Client) Post(ctx context.Context, path string, body interface{}) ([]byte, error) {
	return c.send(ctx, http.MethodPost, path, body)
}

// Patch sends a JSON PATCH request
func (c *Client) Patch(ctx context.Context, path string, body interface{}) ([]byte, error) {
	return c.send(ctx, http.MethodPatch, path, body)
}

func (c *Client) send(ctx context.Context, method, path string, body interface{}) ([]byte, error) {
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return nil, fmt.Errorf("failed to marshal body: %w", err)
		}
	}

	// http.NewRequest fills GetBody for *bytes.Reader, which signers rely on
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.do(req, c.writePipeline)
}

func (c *Client) do(req *http.Request, pipeline failsafe.Executor[*http.Response]) ([]byte, error) {
	start := time.Now()
	ctx := req.Context()

	ctx, span := c.tracer.Start(ctx, fmt.Sprintf("%s %s", req.Method, req.URL.Path),
		trace.WithAttributes(
			attribute.String("http.method", req.Method),
			attribute.String("http.url", req.URL.String()),
		),
	)
	defer span.End()

	req = req.WithContext(ctx)

	if c.signer != nil {
		if err := c.signer.SignRequest(req); err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("failed to sign request: %w", err)
		}
	}

	resp, err := pipeline.GetWithExecution(func(exec failsafe.Execution[*http.Response]) (*http.Response, error) {
		if !exec.IsFirstAttempt() {
			// drop the body of the attempt being retried
			if last := exec.LastResult(); last != nil && last.Body != nil {
				last.Body.Close()
			}
		}
		return c.client.Do(req)
	})

	attrs := []attribute.KeyValue{
		attribute.String("client", c.name),
		attribute.String("method", req.Method),
		attribute.String("path", req.URL.Path),
	}
	c.reqCounter.Add(ctx, 1, metric.WithAttributes(attrs...))
	c.latencyHist.Record(ctx, time.Since(start).Seconds(), metric.WithAttributes(attrs...))

	if err != nil {
		if resp != nil && resp.Body != nil {
			resp.Body.Close()
		}
		span.RecordError(err)
		c.errCounter.Add(ctx, 1, metric.WithAttributes(append(attrs, attribute.String("error", "pipeline_failed"))...))
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode >= 400 {
		c.errCounter.Add(ctx, 1, metric.WithAttributes(append(attrs, attribute.Int("status", resp.StatusCode))...))
		return nil, &APIError{
			StatusCode: resp.StatusCode,
			Body:       body,
		}
	}

	return body, nil
}
