// Package store holds the Decryption Request Ledger backends.
//
// Error contract, shared by every backend:
//   - Register returns sentinel.ErrConflict when the request id is taken
//   - Find returns sentinel.ErrNotFound for unknown request ids
//   - Consume returns sentinel.ErrNotFound for unknown ids and
//     sentinel.ErrAlreadyUsed when a callback already resolved the request
package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"taxlens/internal/fhe"
	"taxlens/internal/ledger/models"
	"taxlens/pkg/platform/sentinel"
)

// InMemory keeps pending requests in a map for tests and development.
type InMemory struct {
	mu       sync.RWMutex
	requests map[fhe.RequestID]*models.PendingRequest
}

func NewInMemory() *InMemory {
	return &InMemory{requests: make(map[fhe.RequestID]*models.PendingRequest)}
}

func (s *InMemory) Register(_ context.Context, req *models.PendingRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.requests[req.RequestID]; ok {
		return fmt.Errorf("request %s: %w", req.RequestID, sentinel.ErrConflict)
	}
	s.requests[req.RequestID] = req.Clone()
	return nil
}

func (s *InMemory) Find(_ context.Context, rid fhe.RequestID) (*models.PendingRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	req, ok := s.requests[rid]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return req.Clone(), nil
}

func (s *InMemory) Consume(_ context.Context, rid fhe.RequestID, now time.Time) (*models.PendingRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.requests[rid]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	if err := req.CanConsume(); err != nil {
		return nil, fmt.Errorf("%s: %w", err.Error(), sentinel.ErrAlreadyUsed)
	}
	req.ApplyConsume(now)
	return req.Clone(), nil
}
