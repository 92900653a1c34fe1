package storage

import (
	"context"
	"sync"

	"github.com/flowcore/flowexpr/pkg/api"
)

// InMemory is a goroutine-safe api.Storage backed by a map, grounded on
// the teacher's persistence.InMemoryStore.
type InMemory struct {
	mu      sync.RWMutex
	records map[string]api.ExpressionRecord
}

var _ api.Storage = (*InMemory)(nil)

// New creates an empty InMemory store.
func New() *InMemory {
	return &InMemory{records: make(map[string]api.ExpressionRecord)}
}

func (s *InMemory) Load(ctx context.Context, fei api.FEI) (api.ExpressionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[fei.String()]
	if !ok {
		return api.ExpressionRecord{}, api.ErrExpressionNotFound
	}
	return rec.Clone(), nil
}

func (s *InMemory) Save(ctx context.Context, rec api.ExpressionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records[rec.Fei.String()] = rec.Clone()
	return nil
}

func (s *InMemory) Delete(ctx context.Context, fei api.FEI) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.records, fei.String())
	return nil
}
