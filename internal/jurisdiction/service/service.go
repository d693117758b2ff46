// Package service implements the Jurisdiction Aggregator: one encrypted
// counter per jurisdiction name, incremented once per analyzed profile and
// decrypted only on explicit request.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"taxlens/internal/events"
	"taxlens/internal/fhe"
	"taxlens/internal/jurisdiction/models"
	ledgermodels "taxlens/internal/ledger/models"
	"taxlens/internal/platform/metrics"
	dErrors "taxlens/pkg/domain-errors"
	"taxlens/pkg/platform/sentinel"
	"taxlens/pkg/platform/tx"
	"taxlens/pkg/requestcontext"
)

type CounterStore interface {
	FindByName(ctx context.Context, name string) (*models.Counter, error)
	Create(ctx context.Context, counter *models.Counter) error
	Execute(ctx context.Context, name string, mutate func(*models.Counter) error) (*models.Counter, error)
	ListNames(ctx context.Context) ([]string, error)
	List(ctx context.Context) ([]*models.Counter, error)
}

type Ledger interface {
	Register(ctx context.Context, req *ledgermodels.PendingRequest) error
	Find(ctx context.Context, rid fhe.RequestID) (*ledgermodels.PendingRequest, error)
	Consume(ctx context.Context, rid fhe.RequestID, now time.Time) (*ledgermodels.PendingRequest, error)
}

// StatsResult is the outcome of a verified stats callback.
type StatsResult struct {
	RequestID    fhe.RequestID `json:"request_id"`
	Jurisdiction string        `json:"jurisdiction"`
	Count        uint64        `json:"count"`
}

// Aggregator owns the jurisdiction counters and the stats request path.
type Aggregator struct {
	counters  CounterStore
	ledger    Ledger
	lib       fhe.Library
	oracle    fhe.Oracle
	tx        tx.Runner
	publisher events.Publisher
	logger    *slog.Logger
	metrics   *metrics.Metrics
	tracer    trace.Tracer
}

type Option func(*Aggregator)

func WithLogger(logger *slog.Logger) Option {
	return func(a *Aggregator) {
		a.logger = logger
	}
}

func WithPublisher(publisher events.Publisher) Option {
	return func(a *Aggregator) {
		a.publisher = publisher
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(a *Aggregator) {
		a.metrics = m
	}
}

// WithTxRunner sets the unit-of-work runner. Defaults to a local runner,
// which only suits the in-memory stores.
func WithTxRunner(runner tx.Runner) Option {
	return func(a *Aggregator) {
		a.tx = runner
	}
}

func New(counters CounterStore, ledger Ledger, lib fhe.Library, oracle fhe.Oracle, opts ...Option) (*Aggregator, error) {
	if counters == nil {
		return nil, errors.New("counter store is required")
	}
	if ledger == nil {
		return nil, errors.New("ledger is required")
	}
	if lib == nil || oracle == nil {
		return nil, errors.New("encryption library and oracle are required")
	}
	a := &Aggregator{
		counters: counters,
		ledger:   ledger,
		lib:      lib,
		oracle:   oracle,
		logger:   slog.Default(),
		tracer:   otel.Tracer("taxlens/jurisdiction"),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.tx == nil {
		a.tx = tx.NewLocalRunner()
	}
	return a, nil
}

// RecordAnalysis adds encrypted one to the counter of name, creating the
// counter at encrypted zero first when the name is new. Callers run it inside
// the unit of work that marks the profile analyzed. All homomorphic work
// happens before any store write.
func (a *Aggregator) RecordAnalysis(ctx context.Context, name string) (*models.Counter, error) {
	now := requestcontext.Now(ctx)
	one, err := a.lib.AsEncrypted(ctx, fhe.Uint64Word(1))
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to encrypt increment")
	}

	increment := func(c *models.Counter) error {
		sum, err := a.lib.Add(ctx, c.Handle, one)
		if err != nil {
			return fmt.Errorf("add to jurisdiction counter: %w", err)
		}
		c.ApplyIncrement(sum, now)
		return nil
	}

	counter, err := a.counters.Execute(ctx, name, increment)
	if err == nil {
		return counter, nil
	}
	if !errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to increment jurisdiction counter")
	}

	zero, err := a.lib.AsEncrypted(ctx, fhe.Uint64Word(0))
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to encrypt zero")
	}
	counter = models.NewCounter(name, zero, now)
	if err := increment(counter); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to increment new jurisdiction counter")
	}
	if err := a.counters.Create(ctx, counter); err != nil {
		if !errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create jurisdiction counter")
		}
		// Another unit created it first; increment theirs instead.
		counter, err = a.counters.Execute(ctx, name, increment)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to increment jurisdiction counter")
		}
		return counter, nil
	}
	a.metrics.IncrementJurisdictionsCreated()
	a.logger.InfoContext(ctx, "jurisdiction counter created",
		"jurisdiction", name,
		"position", counter.Position,
	)
	return counter, nil
}

// RequestStatsDecryption asks the oracle to decrypt the counter of name and
// records the request against the name hash.
func (a *Aggregator) RequestStatsDecryption(ctx context.Context, name string) (fhe.RequestID, error) {
	ctx, span := a.tracer.Start(ctx, "jurisdiction.RequestStatsDecryption",
		trace.WithAttributes(attribute.String("jurisdiction", name)))
	defer span.End()

	var rid fhe.RequestID
	err := a.tx.RunInTx(ctx, func(txCtx context.Context) error {
		counter, err := a.counters.FindByName(txCtx, name)
		if err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return dErrors.New(dErrors.CodeUnknownJurisdiction, "no profiles have been analyzed into this jurisdiction")
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load jurisdiction counter")
		}
		handles := []fhe.Handle{counter.Handle}
		rid, err = a.oracle.RequestDecryption(txCtx, handles, fhe.SelectorStats)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to request stats decryption")
		}
		pending, err := ledgermodels.NewPendingRequest(rid, ledgermodels.JurisdictionStatsTarget(counter.NameHash), handles, requestcontext.Now(txCtx))
		if err != nil {
			return err
		}
		if err := a.ledger.Register(txCtx, pending); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to record stats request")
		}
		return nil
	})
	if err != nil {
		failSpan(span, err)
		return fhe.RequestID{}, err
	}

	a.metrics.IncrementStatsRequests()
	a.logger.InfoContext(ctx, "stats decryption requested",
		"jurisdiction", name,
		"request_id", rid.String(),
		"http_request_id", requestcontext.RequestID(ctx),
	)
	a.emit(ctx, events.StatsRequested(name, rid, requestcontext.Now(ctx)))
	return rid, nil
}

// OnStatsCallback verifies a stats delivery and resolves the jurisdiction it
// belongs to. It changes no aggregator state; only the ledger entry is
// consumed.
func (a *Aggregator) OnStatsCallback(ctx context.Context, rid fhe.RequestID, cleartexts, proof []byte) (*StatsResult, error) {
	ctx, span := a.tracer.Start(ctx, "jurisdiction.OnStatsCallback",
		trace.WithAttributes(attribute.String("request_id", rid.String())))
	defer span.End()
	start := time.Now()

	var result *StatsResult
	err := a.tx.RunInTx(ctx, func(txCtx context.Context) error {
		pending, err := a.ledger.Find(txCtx, rid)
		if err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return dErrors.New(dErrors.CodeUnknownRequest, "unknown decryption request")
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load decryption request")
		}
		if pending.Target.Kind != ledgermodels.TargetJurisdictionStats || pending.IsResolved() {
			return dErrors.New(dErrors.CodeUnknownRequest, "unknown decryption request")
		}

		if err := a.oracle.CheckSignatures(rid, cleartexts, proof); err != nil {
			a.logger.WarnContext(txCtx, "stats callback proof rejected",
				"log_type", "security",
				"request_id", rid.String(),
				"error", err,
			)
			return dErrors.Wrap(err, dErrors.CodeInvalidProof, "decryption proof is invalid")
		}

		words, err := fhe.DecodeCleartexts(cleartexts, 1)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeBadRequest, "malformed stats cleartext")
		}
		count, err := words[0].Uint64()
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeBadRequest, "malformed stats cleartext")
		}

		names, err := a.counters.ListNames(txCtx)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to list jurisdictions")
		}
		name, ok := models.ResolveName(names, pending.Target.NameHash)
		if !ok {
			a.logger.ErrorContext(txCtx, "stats request matches no known jurisdiction",
				"request_id", rid.String(),
				"name_hash", pending.Target.NameHash.String(),
			)
			return dErrors.New(dErrors.CodeJurisdictionNotFound, "jurisdiction for stats request not found")
		}

		if _, err := a.ledger.Consume(txCtx, rid, requestcontext.Now(txCtx)); err != nil {
			return translateConsumeErr(err)
		}
		result = &StatsResult{RequestID: rid, Jurisdiction: name, Count: count}
		return nil
	})
	if err != nil {
		failSpan(span, err)
		a.metrics.ObserveCallback(string(fhe.SelectorStats), outcomeOf(err), time.Since(start).Seconds())
		return nil, err
	}

	a.metrics.ObserveCallback(string(fhe.SelectorStats), metrics.OutcomeAccepted, time.Since(start).Seconds())
	a.logger.InfoContext(ctx, "jurisdiction stats decrypted",
		"jurisdiction", result.Jurisdiction,
		"count", result.Count,
		"request_id", rid.String(),
	)
	a.emit(ctx, events.StatsDecrypted(result.Jurisdiction, result.Count, rid, requestcontext.Now(ctx)))
	return result, nil
}

// Get returns the counter of name.
func (a *Aggregator) Get(ctx context.Context, name string) (*models.Counter, error) {
	var counter *models.Counter
	err := a.tx.RunInTx(ctx, func(txCtx context.Context) error {
		c, err := a.counters.FindByName(txCtx, name)
		if err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return dErrors.New(dErrors.CodeUnknownJurisdiction, "jurisdiction not found")
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load jurisdiction counter")
		}
		counter = c
		return nil
	})
	return counter, err
}

// List returns every counter in creation order.
func (a *Aggregator) List(ctx context.Context) ([]*models.Counter, error) {
	var counters []*models.Counter
	err := a.tx.RunInTx(ctx, func(txCtx context.Context) error {
		c, err := a.counters.List(txCtx)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to list jurisdictions")
		}
		counters = c
		return nil
	})
	return counters, err
}

func (a *Aggregator) emit(ctx context.Context, event events.Event) {
	if a.publisher == nil {
		return
	}
	event.HTTPRequestID = requestcontext.RequestID(ctx)
	if err := a.publisher.Publish(ctx, event); err != nil {
		a.metrics.IncrementEventPublishFailures()
		a.logger.ErrorContext(ctx, "failed to publish event",
			"event_type", event.Type,
			"error", err,
		)
	}
}

func translateConsumeErr(err error) error {
	switch {
	case errors.Is(err, sentinel.ErrAlreadyUsed), errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeUnknownRequest, "decryption request already resolved")
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to resolve decryption request")
	}
}

func outcomeOf(err error) string {
	switch dErrors.CodeOf(err) {
	case dErrors.CodeInvalidProof:
		return metrics.OutcomeInvalidProof
	case dErrors.CodeUnknownRequest:
		return metrics.OutcomeUnknownRequest
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
