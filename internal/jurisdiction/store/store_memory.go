// Package store holds jurisdiction counters and the known-name list.
//
// Error contract:
//   - FindByName and Execute return sentinel.ErrNotFound for unknown names
//   - Create returns sentinel.ErrConflict when the name already has a counter
package store

import (
	"context"
	"fmt"
	"sync"

	"taxlens/internal/jurisdiction/models"
	"taxlens/pkg/platform/sentinel"
)

// InMemory keeps counters in a map and the name list in a slice. A name is
// appended to the list in the same critical section that creates its
// counter, so the two never drift.
type InMemory struct {
	mu       sync.RWMutex
	counters map[string]*models.Counter
	names    []string
}

func NewInMemory() *InMemory {
	return &InMemory{counters: make(map[string]*models.Counter)}
}

func (s *InMemory) FindByName(_ context.Context, name string) (*models.Counter, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.counters[name]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (s *InMemory) Create(_ context.Context, counter *models.Counter) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.counters[counter.Name]; ok {
		return fmt.Errorf("jurisdiction %q: %w", counter.Name, sentinel.ErrConflict)
	}
	s.names = append(s.names, counter.Name)
	counter.Position = len(s.names)
	cp := *counter
	s.counters[counter.Name] = &cp
	return nil
}

// Execute runs mutate on a copy of the named counter and stores the copy only
// when mutate succeeds.
func (s *InMemory) Execute(_ context.Context, name string, mutate func(*models.Counter) error) (*models.Counter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.counters[name]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	working := *c
	if err := mutate(&working); err != nil {
		return nil, err
	}
	s.counters[name] = &working
	result := working
	return &result, nil
}

func (s *InMemory) ListNames(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.names...), nil
}

func (s *InMemory) List(_ context.Context) ([]*models.Counter, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Counter, 0, len(s.names))
	for _, name := range s.names {
		cp := *s.counters[name]
		out = append(out, &cp)
	}
	return out, nil
}
