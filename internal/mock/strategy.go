package mock

import (
	"sync"

	"livetrader/internal/core"

	"github.com/shopspring/decimal"
)

// MockStrategy returns scripted signals and a fixed target allocation
type MockStrategy struct {
	mu sync.Mutex

	Signal     core.Signal
	Target     decimal.Decimal
	PanicOnGen bool

	genCalls    int
	histories   [][]decimal.Decimal
	allocations []decimal.Decimal
	calcSignals []core.Signal
}

// NewMockStrategy creates a strategy that always answers signal with target
func NewMockStrategy(signal core.Signal, target float64) *MockStrategy {
	return &MockStrategy{Signal: signal, Target: decimal.NewFromFloat(target)}
}

func (s *MockStrategy) Name() string {
	return "mock"
}

func (s *MockStrategy) GenerateSignals(history []decimal.Decimal) []core.Signal {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.genCalls++
	s.histories = append(s.histories, history)
	if s.PanicOnGen {
		panic("mock strategy failure")
	}
	out := make([]core.Signal, len(history))
	if len(out) > 0 {
		out[len(out)-1] = s.Signal
	}
	return out
}

func (s *MockStrategy) CalculatePosition(signal core.Signal, currentAllocation decimal.Decimal) decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calcSignals = append(s.calcSignals, signal)
	s.allocations = append(s.allocations, currentAllocation)
	return s.Target
}

// Set changes the scripted answer
func (s *MockStrategy) Set(signal core.Signal, target float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Signal = signal
	s.Target = decimal.NewFromFloat(target)
}

// GenerateCalls returns how often GenerateSignals ran
func (s *MockStrategy) GenerateCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.genCalls
}

// Allocations returns the allocations CalculatePosition was called with
func (s *MockStrategy) Allocations() []decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]decimal.Decimal(nil), s.allocations...)
}
