package store

import (
	"context"
	"sync"

	"taxlens/internal/profile/models"
	"taxlens/pkg/platform/sentinel"
)

// InMemory is the Ciphertext Store kept in process memory. Profile i lives
// at index i-1.
type InMemory struct {
	mu       sync.RWMutex
	profiles []models.EncryptedProfile
	shadows  []models.DecryptedShadow
}

func NewInMemory() *InMemory {
	return &InMemory{}
}

func (s *InMemory) Create(_ context.Context, profile *models.EncryptedProfile) (models.ProfileID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := models.ProfileID(len(s.profiles) + 1)
	profile.ID = id
	s.profiles = append(s.profiles, *profile)
	s.shadows = append(s.shadows, *models.NewShadow(id))
	return id, nil
}

func (s *InMemory) FindByID(_ context.Context, id models.ProfileID) (*models.EncryptedProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.existsLocked(id) {
		return nil, sentinel.ErrNotFound
	}
	p := s.profiles[id-1]
	return &p, nil
}

func (s *InMemory) FindShadow(_ context.Context, id models.ProfileID) (*models.DecryptedShadow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.existsLocked(id) {
		return nil, sentinel.ErrNotFound
	}
	return copyShadow(s.shadows[id-1]), nil
}

// ExecuteShadow validates and mutates one shadow while holding the write lock.
// The stored shadow changes only when validate succeeds.
func (s *InMemory) ExecuteShadow(_ context.Context, id models.ProfileID, validate func(*models.DecryptedShadow) error, mutate func(*models.DecryptedShadow)) (*models.DecryptedShadow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.existsLocked(id) {
		return nil, sentinel.ErrNotFound
	}
	working := copyShadow(s.shadows[id-1])
	if err := validate(working); err != nil {
		return nil, err
	}
	mutate(working)
	s.shadows[id-1] = *working
	return copyShadow(*working), nil
}

func (s *InMemory) existsLocked(id models.ProfileID) bool {
	return id != 0 && uint64(id) <= uint64(len(s.profiles))
}

func copyShadow(src models.DecryptedShadow) *models.DecryptedShadow {
	dst := src
	if src.LastRequestedAt != nil {
		t := *src.LastRequestedAt
		dst.LastRequestedAt = &t
	}
	if src.AnalyzedAt != nil {
		t := *src.AnalyzedAt
		dst.AnalyzedAt = &t
	}
	return &dst
}
