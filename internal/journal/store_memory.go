package journal

import (
	"context"
	"sync"

	"livetrader/internal/core"
)

// MemoryStore implements core.IJournal in memory
type MemoryStore struct {
	trades   []core.TradeRecord
	statuses []core.StatusRecord
	mu       sync.RWMutex
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) RecordTrade(ctx context.Context, rec core.TradeRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.trades = append(s.trades, rec)
	return nil
}

func (s *MemoryStore) RecordStatus(ctx context.Context, rec core.StatusRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses = append(s.statuses, rec)
	return nil
}

func (s *MemoryStore) Trades(ctx context.Context, runtimeID string) ([]core.TradeRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []core.TradeRecord
	for _, t := range s.trades {
		if t.RuntimeID == runtimeID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *MemoryStore) Statuses(ctx context.Context, runtimeID string) ([]core.StatusRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []core.StatusRecord
	for _, st := range s.statuses {
		if st.RuntimeID == runtimeID {
			out = append(out, st)
		}
	}
	return out, nil
}

func (s *MemoryStore) Close() error {
	return nil
}
