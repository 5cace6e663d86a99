package mock

import (
	"context"
	"sync"
	"time"

	"livetrader/internal/core"
)

// MockReporter records events in memory
type MockReporter struct {
	mu         sync.Mutex
	events     []core.ReportEvent
	created    bool
	enabled    bool
	failCreate bool
	shutdowns  int
}

// NewMockReporter creates an enabled recorder
func NewMockReporter() *MockReporter {
	return &MockReporter{enabled: true}
}

// FailCreate makes CreateRuntime report failure
func (r *MockReporter) FailCreate() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failCreate = true
}

func (r *MockReporter) CreateRuntime(ctx context.Context, ev core.RuntimeCreated) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failCreate {
		r.enabled = false
		return false
	}
	r.created = true
	r.events = append(r.events, ev)
	return true
}

func (r *MockReporter) Report(event core.ReportEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.enabled {
		return
	}
	r.events = append(r.events, event)
}

func (r *MockReporter) Enabled() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.enabled
}

func (r *MockReporter) Shutdown(drainTimeout time.Duration) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.shutdowns++
	r.enabled = false
	return 0
}

// Events returns recorded events, optionally filtered by kind
func (r *MockReporter) Events(kinds ...core.EventKind) []core.ReportEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(kinds) == 0 {
		return append([]core.ReportEvent(nil), r.events...)
	}
	var out []core.ReportEvent
	for _, e := range r.events {
		for _, k := range kinds {
			if e.Kind() == k {
				out = append(out, e)
				break
			}
		}
	}
	return out
}

// Created reports whether CreateRuntime succeeded
func (r *MockReporter) Created() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.created
}
