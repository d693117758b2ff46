// Package service implements the analysis lifecycle of a profile:
// Submitted, RequestIssued, Analyzed.
//
// RequestAnalysis asks the oracle to decrypt the profile's three ciphertexts
// and records the oracle's request id in the ledger. OnDecryptionCallback is
// the entry point the oracle invokes later; it verifies the proof before it
// touches any state, writes the shadow, and drives the jurisdiction counter
// in the same unit of work. Issuing several requests before a callback lands
// is allowed; the first verified callback wins and later ones are rejected.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"taxlens/internal/authz"
	"taxlens/internal/events"
	"taxlens/internal/fhe"
	jurisdictionmodels "taxlens/internal/jurisdiction/models"
	ledgermodels "taxlens/internal/ledger/models"
	"taxlens/internal/platform/metrics"
	"taxlens/internal/profile/models"
	dErrors "taxlens/pkg/domain-errors"
	"taxlens/pkg/platform/sentinel"
	"taxlens/pkg/platform/tx"
	"taxlens/pkg/requestcontext"
)

type ProfileStore interface {
	FindByID(ctx context.Context, id models.ProfileID) (*models.EncryptedProfile, error)
	FindShadow(ctx context.Context, id models.ProfileID) (*models.DecryptedShadow, error)
	ExecuteShadow(ctx context.Context, id models.ProfileID, validate func(*models.DecryptedShadow) error, mutate func(*models.DecryptedShadow)) (*models.DecryptedShadow, error)
}

type Ledger interface {
	Register(ctx context.Context, req *ledgermodels.PendingRequest) error
	Find(ctx context.Context, rid fhe.RequestID) (*ledgermodels.PendingRequest, error)
	Consume(ctx context.Context, rid fhe.RequestID, now time.Time) (*ledgermodels.PendingRequest, error)
}

// Aggregator is the part of the jurisdiction aggregator the callback drives.
type Aggregator interface {
	RecordAnalysis(ctx context.Context, name string) (*jurisdictionmodels.Counter, error)
}

type Service struct {
	profiles   ProfileStore
	ledger     Ledger
	aggregator Aggregator
	oracle     fhe.Oracle
	authorizer authz.Authorizer
	tx         tx.Runner
	publisher  events.Publisher
	logger     *slog.Logger
	metrics    *metrics.Metrics
	tracer     trace.Tracer
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

// WithTxRunner sets the unit-of-work runner. It must be the runner the
// aggregator's callers share.
func WithTxRunner(runner tx.Runner) Option {
	return func(s *Service) {
		s.tx = runner
	}
}

// WithAuthorizer replaces the permissive default hook on RequestAnalysis.
func WithAuthorizer(a authz.Authorizer) Option {
	return func(s *Service) {
		s.authorizer = a
	}
}

func New(profiles ProfileStore, ledger Ledger, aggregator Aggregator, oracle fhe.Oracle, opts ...Option) (*Service, error) {
	if profiles == nil {
		return nil, errors.New("profile store is required")
	}
	if ledger == nil {
		return nil, errors.New("ledger is required")
	}
	if aggregator == nil {
		return nil, errors.New("jurisdiction aggregator is required")
	}
	if oracle == nil {
		return nil, errors.New("oracle is required")
	}
	s := &Service{
		profiles:   profiles,
		ledger:     ledger,
		aggregator: aggregator,
		oracle:     oracle,
		authorizer: authz.AllowAll{},
		logger:     slog.Default(),
		tracer:     otel.Tracer("taxlens/analysis"),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.tx == nil {
		s.tx = tx.NewLocalRunner()
	}
	return s, nil
}

// RequestAnalysis issues a decryption request for the profile's fields and
// returns the oracle's correlation token.
func (s *Service) RequestAnalysis(ctx context.Context, id models.ProfileID) (fhe.RequestID, error) {
	ctx, span := s.tracer.Start(ctx, "analysis.RequestAnalysis",
		trace.WithAttributes(attribute.Int64("profile_id", int64(id))))
	defer span.End()

	if err := s.authorizer.Authorize(ctx, authz.ActionRequestAnalysis, id.String()); err != nil {
		s.logger.WarnContext(ctx, "analysis request denied",
			"log_type", "security",
			"profile_id", id,
			"subject", requestcontext.Actor(ctx).Subject,
		)
		failSpan(span, err)
		return fhe.RequestID{}, err
	}

	var rid fhe.RequestID
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		now := requestcontext.Now(txCtx)
		profile, err := s.profiles.FindByID(txCtx, id)
		if err != nil {
			return translateProfileErr(err)
		}
		shadow, err := s.profiles.FindShadow(txCtx, id)
		if err != nil {
			return translateProfileErr(err)
		}
		if err := shadow.CanRequestAnalysis(); err != nil {
			return alreadyAnalyzed(err)
		}

		handles := profile.Handles()
		rid, err = s.oracle.RequestDecryption(txCtx, handles, fhe.SelectorAnalysis)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to request decryption")
		}
		pending, err := ledgermodels.NewPendingRequest(rid, ledgermodels.ProfileTarget(id), handles, now)
		if err != nil {
			return err
		}
		if err := s.ledger.Register(txCtx, pending); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to record decryption request")
		}

		_, err = s.profiles.ExecuteShadow(txCtx, id,
			func(sh *models.DecryptedShadow) error {
				if err := sh.CanRequestAnalysis(); err != nil {
					return alreadyAnalyzed(err)
				}
				return nil
			},
			func(sh *models.DecryptedShadow) {
				sh.ApplyAnalysisRequest(now)
			},
		)
		if err != nil {
			return translateProfileErr(err)
		}
		return nil
	})
	if err != nil {
		failSpan(span, err)
		return fhe.RequestID{}, err
	}

	s.metrics.IncrementAnalysisRequests()
	s.logger.InfoContext(ctx, "analysis requested",
		"profile_id", id,
		"request_id", rid.String(),
		"http_request_id", requestcontext.RequestID(ctx),
	)
	s.emit(ctx, events.AnalysisRequested(id, rid, requestcontext.Now(ctx)))
	return rid, nil
}

// OnDecryptionCallback applies one oracle delivery for an analysis request.
// Every check runs before the first write, so a rejected callback changes
// nothing.
func (s *Service) OnDecryptionCallback(ctx context.Context, rid fhe.RequestID, cleartexts, proof []byte) (*models.DecryptedShadow, error) {
	ctx, span := s.tracer.Start(ctx, "analysis.OnDecryptionCallback",
		trace.WithAttributes(attribute.String("request_id", rid.String())))
	defer span.End()
	start := time.Now()

	var (
		result *models.DecryptedShadow
		id     models.ProfileID
	)
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		now := requestcontext.Now(txCtx)
		pending, err := s.ledger.Find(txCtx, rid)
		if err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return dErrors.New(dErrors.CodeUnknownRequest, "unknown decryption request")
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load decryption request")
		}
		if pending.Target.Kind != ledgermodels.TargetProfile || pending.IsResolved() {
			return dErrors.New(dErrors.CodeUnknownRequest, "unknown decryption request")
		}
		id = pending.Target.ProfileID

		if err := s.oracle.CheckSignatures(rid, cleartexts, proof); err != nil {
			s.logger.WarnContext(txCtx, "analysis callback proof rejected",
				"log_type", "security",
				"profile_id", id,
				"request_id", rid.String(),
				"error", err,
			)
			return dErrors.Wrap(err, dErrors.CodeInvalidProof, "decryption proof is invalid")
		}

		fields, err := models.DecodeFields(cleartexts)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeBadRequest, "malformed analysis cleartexts")
		}

		shadow, err := s.profiles.FindShadow(txCtx, id)
		if err != nil {
			return translateProfileErr(err)
		}
		if err := shadow.CanApplyAnalysis(); err != nil {
			return alreadyAnalyzed(err)
		}

		// Consume is the only write that can fail for an external reason
		// (Redis), so it runs before the profile and counter change.
		if _, err := s.ledger.Consume(txCtx, rid, now); err != nil {
			if errors.Is(err, sentinel.ErrAlreadyUsed) || errors.Is(err, sentinel.ErrNotFound) {
				return dErrors.New(dErrors.CodeUnknownRequest, "decryption request already resolved")
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to resolve decryption request")
		}

		if _, err := s.aggregator.RecordAnalysis(txCtx, fields.TaxJurisdiction); err != nil {
			return err
		}

		result, err = s.profiles.ExecuteShadow(txCtx, id,
			func(sh *models.DecryptedShadow) error {
				if err := sh.CanApplyAnalysis(); err != nil {
					return alreadyAnalyzed(err)
				}
				return nil
			},
			func(sh *models.DecryptedShadow) {
				sh.ApplyAnalysis(fields, now)
			},
		)
		if err != nil {
			return translateProfileErr(err)
		}

		return nil
	})
	if err != nil {
		failSpan(span, err)
		s.metrics.ObserveCallback(string(fhe.SelectorAnalysis), outcomeOf(err), time.Since(start).Seconds())
		s.logger.InfoContext(ctx, "analysis callback rejected",
			"profile_id", id,
			"request_id", rid.String(),
			"code", dErrors.CodeOf(err),
		)
		return nil, err
	}

	s.metrics.ObserveCallback(string(fhe.SelectorAnalysis), metrics.OutcomeAccepted, time.Since(start).Seconds())
	s.logger.InfoContext(ctx, "profile analyzed",
		"profile_id", id,
		"request_id", rid.String(),
	)
	s.emit(ctx, events.ProfileAnalyzed(id, rid, requestcontext.Now(ctx)))
	return result, nil
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

func alreadyAnalyzed(err error) error {
	if dErrors.HasCode(err, dErrors.CodeInvariantViolation) {
		return dErrors.New(dErrors.CodeAlreadyAnalyzed, "profile is already analyzed")
	}
	return err
}

func translateProfileErr(err error) error {
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.New(dErrors.CodeNotFound, "profile not found")
	}
	var de *dErrors.Error
	if errors.As(err, &de) {
		return err
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, "failed to update profile")
}

func outcomeOf(err error) string {
	switch dErrors.CodeOf(err) {
	case dErrors.CodeInvalidProof:
		return metrics.OutcomeInvalidProof
	case dErrors.CodeUnknownRequest:
		return metrics.OutcomeUnknownRequest
	case dErrors.CodeAlreadyAnalyzed:
		return metrics.OutcomeAlreadyAnalyzed
	case dErrors.CodeInternal:
		return metrics.OutcomeError
	default:
		return metrics.OutcomeRejected
	}
}

func failSpan(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, string(dErrors.CodeOf(err)))
}
