// Package service is the command and query surface of the Ciphertext Store.
package service

import (
	"context"
	"errors"
	"log/slog"

	"taxlens/internal/events"
	"taxlens/internal/fhe"
	"taxlens/internal/platform/metrics"
	"taxlens/internal/profile/models"
	dErrors "taxlens/pkg/domain-errors"
	"taxlens/pkg/platform/sentinel"
	"taxlens/pkg/platform/tx"
	"taxlens/pkg/requestcontext"
)

type Store interface {
	Create(ctx context.Context, profile *models.EncryptedProfile) (models.ProfileID, error)
	FindByID(ctx context.Context, id models.ProfileID) (*models.EncryptedProfile, error)
	FindShadow(ctx context.Context, id models.ProfileID) (*models.DecryptedShadow, error)
}

// CreateRequest carries the three ciphertexts of a submission.
type CreateRequest struct {
	Assets          fhe.Handle `json:"assets"`
	FamilyStructure fhe.Handle `json:"family_structure"`
	TaxJurisdiction fhe.Handle `json:"tax_jurisdiction"`
}

type Service struct {
	store     Store
	lib       fhe.Library
	tx        tx.Runner
	publisher events.Publisher
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithPublisher(publisher events.Publisher) Option {
	return func(s *Service) {
		s.publisher = publisher
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithTxRunner(runner tx.Runner) Option {
	return func(s *Service) {
		s.tx = runner
	}
}

func New(store Store, lib fhe.Library, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("profile store is required")
	}
	if lib == nil {
		return nil, errors.New("encryption library is required")
	}
	s := &Service{
		store:  store,
		lib:    lib,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.tx == nil {
		s.tx = tx.NewLocalRunner()
	}
	return s, nil
}

// Create stores a new profile and its empty shadow under the next id.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*models.EncryptedProfile, error) {
	for _, h := range []fhe.Handle{req.Assets, req.FamilyStructure, req.TaxJurisdiction} {
		if !h.IsZero() && !s.lib.IsInitialized(h) {
			return nil, dErrors.New(dErrors.CodeValidation, "ciphertext handle "+h.String()+" is not known to the encryption library")
		}
	}
	profile, err := models.NewEncryptedProfile(req.Assets, req.FamilyStructure, req.TaxJurisdiction, requestcontext.Now(ctx))
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeInvariantViolation) {
			return nil, dErrors.New(dErrors.CodeValidation, dErrors.Message(err))
		}
		return nil, err
	}

	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		id, err := s.store.Create(txCtx, profile)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to store profile")
		}
		profile.ID = id
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.IncrementProfilesCreated()
	s.logger.InfoContext(ctx, "profile created",
		"profile_id", profile.ID,
		"http_request_id", requestcontext.RequestID(ctx),
	)
	s.emit(ctx, events.ProfileCreated(profile.ID, profile.CreatedAt))
	return profile, nil
}

// Get returns the encrypted profile. Id 0 never names a profile.
func (s *Service) Get(ctx context.Context, id models.ProfileID) (*models.EncryptedProfile, error) {
	var profile *models.EncryptedProfile
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		p, err := s.store.FindByID(txCtx, id)
		if err != nil {
			return translateFindErr(err)
		}
		profile = p
		return nil
	})
	return profile, err
}

// GetShadow returns the plaintext mirror, which is empty until analysis.
func (s *Service) GetShadow(ctx context.Context, id models.ProfileID) (*models.DecryptedShadow, error) {
	var shadow *models.DecryptedShadow
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		sh, err := s.store.FindShadow(txCtx, id)
		if err != nil {
			return translateFindErr(err)
		}
		shadow = sh
		return nil
	})
	return shadow, err
}

func (s *Service) emit(ctx context.Context, event events.Event) {
	if s.publisher == nil {
		return
	}
	event.HTTPRequestID = requestcontext.RequestID(ctx)
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.metrics.IncrementEventPublishFailures()
		s.logger.ErrorContext(ctx, "failed to publish event",
			"event_type", event.Type,
			"error", err,
		)
	}
}

func translateFindErr(err error) error {
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.New(dErrors.CodeNotFound, "profile not found")
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load profile")
}
