package store

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/stretchr/testify/suite"

	"taxlens/internal/fhe"
	jurisdictionmodels "taxlens/internal/jurisdiction/models"
	"taxlens/internal/ledger/models"
	"taxlens/pkg/platform/sentinel"
)

type ledger interface {
	Register(ctx context.Context, req *models.PendingRequest) error
	Find(ctx context.Context, rid fhe.RequestID) (*models.PendingRequest, error)
	Consume(ctx context.Context, rid fhe.RequestID, now time.Time) (*models.PendingRequest, error)
}

// ledgerContractSuite holds the behavior every backend must share. Backend
// suites embed it and set store in SetupTest.
type ledgerContractSuite struct {
	suite.Suite
	store ledger
	ctx   context.Context
	seq   byte
}

func (s *ledgerContractSuite) nextID() fhe.RequestID {
	s.seq++
	return fhe.RequestID{0xAA, s.seq}
}

func (s *ledgerContractSuite) pending(target models.RequestTarget) *models.PendingRequest {
	req, err := models.NewPendingRequest(s.nextID(), target, []fhe.Handle{{1}, {2}, {3}}, time.Now().UTC().Truncate(time.Microsecond))
	s.Require().NoError(err)
	return req
}

func (s *ledgerContractSuite) TestRegisterAndFind() {
	s.Run("profile target round trips", func() {
		req := s.pending(models.ProfileTarget(12))
		s.Require().NoError(s.store.Register(s.ctx, req))

		found, err := s.store.Find(s.ctx, req.RequestID)
		s.Require().NoError(err)
		s.Equal(req.Target, found.Target)
		s.Equal(req.Handles, found.Handles)
		s.True(req.RequestedAt.Equal(found.RequestedAt))
		s.False(found.IsResolved())
	})

	s.Run("jurisdiction target round trips", func() {
		req := s.pending(models.JurisdictionStatsTarget(jurisdictionmodels.HashName("US")))
		s.Require().NoError(s.store.Register(s.ctx, req))

		found, err := s.store.Find(s.ctx, req.RequestID)
		s.Require().NoError(err)
		s.Equal(models.TargetJurisdictionStats, found.Target.Kind)
		s.Equal(jurisdictionmodels.HashName("US"), found.Target.NameHash)
	})

	s.Run("duplicate request id conflicts", func() {
		req := s.pending(models.ProfileTarget(1))
		s.Require().NoError(s.store.Register(s.ctx, req))
		s.ErrorIs(s.store.Register(s.ctx, req), sentinel.ErrConflict)
	})

	s.Run("unknown request id", func() {
		_, err := s.store.Find(s.ctx, fhe.RequestID{0xEE})
		s.ErrorIs(err, sentinel.ErrNotFound)
	})
}

func (s *ledgerContractSuite) TestConsumeOnce() {
	req := s.pending(models.ProfileTarget(5))
	s.Require().NoError(s.store.Register(s.ctx, req))

	consumed, err := s.store.Consume(s.ctx, req.RequestID, time.Now())
	s.Require().NoError(err)
	s.True(consumed.IsResolved())
	s.Equal(req.Target, consumed.Target)

	_, err = s.store.Consume(s.ctx, req.RequestID, time.Now())
	s.ErrorIs(err, sentinel.ErrAlreadyUsed)

	found, err := s.store.Find(s.ctx, req.RequestID)
	s.Require().NoError(err)
	s.True(found.IsResolved(), "consumed entries stay readable")

	_, err = s.store.Consume(s.ctx, fhe.RequestID{0xEF}, time.Now())
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *ledgerContractSuite) TestConcurrentConsume() {
	req := s.pending(models.ProfileTarget(8))
	s.Require().NoError(s.store.Register(s.ctx, req))

	const goroutines = 20
	var wg sync.WaitGroup
	var wins, used atomic.Int32
	for range goroutines {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.store.Consume(s.ctx, req.RequestID, time.Now())
			switch {
			case err == nil:
				wins.Add(1)
			case isAlreadyUsed(err):
				used.Add(1)
			}
		}()
	}
	wg.Wait()
	s.Equal(int32(1), wins.Load())
	s.Equal(int32(goroutines-1), used.Load())
}

func isAlreadyUsed(err error) bool {
	return errors.Is(err, sentinel.ErrAlreadyUsed)
}
