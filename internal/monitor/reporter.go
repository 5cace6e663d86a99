// Package monitor delivers trading events to the monitoring backend without
// ever blocking the trading loop
package monitor

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"livetrader/internal/core"
	"livetrader/pkg/concurrency"
	httpclient "livetrader/pkg/http"
	"livetrader/pkg/telemetry"
)

// Version is reported as sdk_version when registering a runtime
const Version = "1.0.0"

// Config is the reporter's view of the telemetry sub-configuration
type Config struct {
	APIBaseURL  string
	APIKey      string
	RuntimeID   string
	StrategyID  string
	Environment string
	SDKVersion  string
	Metadata    map[string]string

	Workers   int
	QueueSize int
	Timeout   time.Duration
}

func (c *Config) applyDefaults() {
	if c.Workers <= 0 {
		c.Workers = 3
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 256
	}
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
	if c.SDKVersion == "" {
		c.SDKVersion = Version
	}
}

// Stats counts what happened to reported events
type Stats struct {
	Submitted int64
	Delivered int64
	Failed    int64
	Dropped   int64
}

type apiKeySigner struct {
	key string
}

func (s apiKeySigner) SignRequest(req *http.Request) error {
	req.Header.Set("X-API-Key", s.key)
	return nil
}

// Reporter implements core.IReporter. Delivery runs on a bounded worker
// pool; a full queue drops the event instead of blocking the caller.
type Reporter struct {
	cfg    Config
	client *httpclient.Client
	pool   *concurrency.WorkerPool
	logger core.ILogger

	// cancels in-flight deliveries once the drain budget is spent
	ctx    context.Context
	cancel context.CancelFunc

	created  atomic.Bool
	disabled atomic.Bool
	closed   atomic.Bool

	shutdownOnce sync.Once
	pendingAtEnd int

	submitted atomic.Int64
	delivered atomic.Int64
	failed    atomic.Int64
	dropped   atomic.Int64
}

// NewReporter creates a reporter. Nothing is sent before CreateRuntime succeeds.
func NewReporter(cfg Config, logger core.ILogger) *Reporter {
	cfg.applyDefaults()
	logger = logger.WithField("component", "telemetry_reporter")

	// at-most-once: no retries, the breaker only sheds load from a dead backend
	opts := httpclient.DefaultOptions("telemetry-reporter")
	opts.MaxRetries = 0

	ctx, cancel := context.WithCancel(context.Background())
	return &Reporter{
		cfg:    cfg,
		client: httpclient.NewClient(cfg.APIBaseURL, cfg.Timeout, apiKeySigner{key: cfg.APIKey}, opts),
		pool: concurrency.NewWorkerPool(concurrency.PoolConfig{
			Name:        "telemetry",
			MaxWorkers:  cfg.Workers,
			MaxCapacity: cfg.QueueSize,
			NonBlocking: true,
		}, logger),
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}
}

// CreateRuntime registers the run synchronously. On failure the reporter
// disables itself for the rest of the run.
func (r *Reporter) CreateRuntime(ctx context.Context, ev core.RuntimeCreated) bool {
	if r.created.Load() {
		r.logger.Warn("Runtime already created", "runtime_id", r.cfg.RuntimeID)
		return true
	}
	if r.closed.Load() || r.disabled.Load() {
		return false
	}

	ctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	if _, err := r.client.Post(ctx, pathRuntimes, r.registration(ev)); err != nil {
		r.disabled.Store(true)
		r.logger.Error("Failed to create runtime, telemetry disabled",
			"runtime_id", r.cfg.RuntimeID,
			"error", err)
		return false
	}

	r.created.Store(true)
	r.logger.Info("Runtime created", "runtime_id", r.cfg.RuntimeID, "market", ev.Market)
	return true
}

// Enabled reports whether events are currently accepted
func (r *Reporter) Enabled() bool {
	return r.created.Load() && !r.disabled.Load() && !r.closed.Load()
}

// Report queues ev for delivery and returns immediately
func (r *Reporter) Report(ev core.ReportEvent) {
	if ev == nil {
		return
	}
	if !r.Enabled() {
		r.logger.Debug("Telemetry inactive, event skipped", "kind", ev.Kind())
		return
	}

	req, err := r.encode(ev)
	if err != nil {
		r.logger.Warn("Event not reportable", "kind", ev.Kind(), "error", err)
		return
	}

	err = r.pool.Submit(func() { r.deliver(ev.Kind(), req) })
	switch {
	case err == nil:
		r.submitted.Add(1)
	case errors.Is(err, concurrency.ErrPoolFull):
		r.dropped.Add(1)
		telemetry.GetGlobalMetrics().RecordReportDropped(context.Background(), string(ev.Kind()))
		r.logger.Warn("Telemetry queue full, event dropped",
			"kind", ev.Kind(),
			"market", ev.EventMarket(),
			"queue_size", r.cfg.QueueSize)
	default:
		r.dropped.Add(1)
		r.logger.Debug("Telemetry stopped, event dropped", "kind", ev.Kind())
	}
}

func (r *Reporter) deliver(kind core.EventKind, req request) {
	ctx, cancel := context.WithTimeout(r.ctx, r.cfg.Timeout)
	defer cancel()

	var err error
	switch req.method {
	case http.MethodPatch:
		_, err = r.client.Patch(ctx, req.path, req.body)
	default:
		_, err = r.client.Post(ctx, req.path, req.body)
	}

	if err != nil {
		r.failed.Add(1)
		var apiErr *httpclient.APIError
		if errors.As(err, &apiErr) {
			r.logger.Warn("Telemetry rejected", "kind", kind, "status", apiErr.StatusCode)
			return
		}
		r.logger.Debug("Telemetry delivery failed", "kind", kind, "error", err)
		return
	}
	r.delivered.Add(1)
}

// Shutdown stops intake, waits up to drainTimeout for queued deliveries and
// abandons the rest. It returns how many events were still pending.
// Calling it again returns the first result.
func (r *Reporter) Shutdown(drainTimeout time.Duration) int {
	r.shutdownOnce.Do(func() {
		r.closed.Store(true)
		r.pendingAtEnd = r.pool.StopWithin(drainTimeout)
		r.cancel()

		s := r.Stats()
		r.logger.Info("Telemetry reporter stopped",
			"submitted", s.Submitted,
			"delivered", s.Delivered,
			"failed", s.Failed,
			"dropped", s.Dropped,
			"abandoned", r.pendingAtEnd)
	})
	return r.pendingAtEnd
}

// Stats returns delivery counters
func (r *Reporter) Stats() Stats {
	return Stats{
		Submitted: r.submitted.Load(),
		Delivered: r.delivered.Load(),
		Failed:    r.failed.Load(),
		Dropped:   r.dropped.Load(),
	}
}

// NopReporter is used when telemetry is not configured
type NopReporter struct{}

func (NopReporter) CreateRuntime(ctx context.Context, ev core.RuntimeCreated) bool { return false }
func (NopReporter) Report(ev core.ReportEvent)                                     {}
func (NopReporter) Enabled() bool                                                  { return false }
func (NopReporter) Shutdown(drainTimeout time.Duration) int                        { return 0 }
