package concurrency

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"livetrader/internal/core"

	"github.com/alitto/pond"
)

// ErrPoolFull is returned by a non-blocking Submit when the queue is at capacity
var ErrPoolFull = errors.New("worker pool is full")

// ErrPoolStopped is returned by Submit once the pool has been stopped
var ErrPoolStopped = errors.New("worker pool is stopped")

// PoolConfig holds configuration for a worker pool
type PoolConfig struct {
	Name        string
	MaxWorkers  int
	MaxCapacity int
	IdleTimeout time.Duration
	NonBlocking bool // If true, Submit() returns ErrPoolFull instead of blocking when full
}

// WorkerPool wraps alitto/pond with a stop guard and standardized config
type WorkerPool struct {
	pool    *pond.WorkerPool
	config  PoolConfig
	logger  core.ILogger
	mu      sync.RWMutex
	stopped bool

	accepted atomic.Int64
	finished atomic.Int64
}

// NewWorkerPool creates a new worker pool
func NewWorkerPool(cfg PoolConfig, logger core.ILogger) *WorkerPool {
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = 10
	}
	if cfg.MaxCapacity <= 0 {
		cfg.MaxCapacity = 100
	}
	if cfg.IdleTimeout == 0 {
		cfg.IdleTimeout = 60 * time.Second
	}

	log := logger.WithField("component", "worker_pool").WithField("pool", cfg.Name)

	pool := pond.New(
		cfg.MaxWorkers,
		cfg.MaxCapacity,
		pond.MinWorkers(1),
		pond.IdleTimeout(cfg.IdleTimeout),
		pond.Strategy(pond.Balanced()),
		pond.PanicHandler(func(p interface{}) {
			log.Error("Worker pool panic recovered", "panic", p)
		}),
	)

	return &WorkerPool{
		pool:   pool,
		config: cfg,
		logger: log,
	}
}

// Submit adds a task to the pool
func (wp *WorkerPool) Submit(task func()) error {
	wp.mu.RLock()
	defer wp.mu.RUnlock()

	if wp.stopped {
		return ErrPoolStopped
	}

	wrapped := func() {
		defer wp.finished.Add(1)
		task()
	}

	if wp.config.NonBlocking {
		if !wp.pool.TrySubmit(wrapped) {
			return fmt.Errorf("%w: %s (capacity: %d)", ErrPoolFull, wp.config.Name, wp.config.MaxCapacity)
		}
		wp.accepted.Add(1)
		return nil
	}

	wp.accepted.Add(1)
	wp.pool.Submit(wrapped)
	return nil
}

// Stop stops the pool and waits for every queued task
func (wp *WorkerPool) Stop() {
	if !wp.markStopped() {
		return
	}
	wp.pool.StopAndWait()
}

// StopWithin stops accepting tasks and waits up to deadline for queued and
// running tasks. It returns how many tasks had not completed when it gave up.
func (wp *WorkerPool) StopWithin(deadline time.Duration) int {
	if !wp.markStopped() {
		return wp.pending()
	}
	wp.pool.StopAndWaitFor(deadline)
	pending := wp.pending()
	if pending > 0 {
		wp.logger.Warn("Worker pool stopped with unfinished tasks", "pending", pending, "deadline", deadline)
	}
	return pending
}

func (wp *WorkerPool) markStopped() bool {
	wp.mu.Lock()
	defer wp.mu.Unlock()
	if wp.stopped {
		return false
	}
	wp.stopped = true
	return true
}

func (wp *WorkerPool) pending() int {
	return int(wp.accepted.Load() - wp.finished.Load())
}

// Stopped reports whether Stop or StopWithin was called
func (wp *WorkerPool) Stopped() bool {
	wp.mu.RLock()
	defer wp.mu.RUnlock()
	return wp.stopped
}
