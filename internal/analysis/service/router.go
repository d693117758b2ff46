package service

import (
	"context"
	"log/slog"

	"taxlens/internal/fhe"
	jurisdictionservice "taxlens/internal/jurisdiction/service"
	dErrors "taxlens/pkg/domain-errors"
)

// StatsHandler handles deliveries for jurisdiction stats requests.
type StatsHandler interface {
	OnStatsCallback(ctx context.Context, rid fhe.RequestID, cleartexts, proof []byte) (*jurisdictionservice.StatsResult, error)
}

// Router is the fhe.CallbackSink the oracle delivers to. It dispatches each
// delivery to the entry point its selector names.
type Router struct {
	analysis *Service
	stats    StatsHandler
	logger   *slog.Logger
}

var _ fhe.CallbackSink = (*Router)(nil)

func NewRouter(analysis *Service, stats StatsHandler, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{analysis: analysis, stats: stats, logger: logger}
}

func (r *Router) Deliver(ctx context.Context, cb fhe.Callback) error {
	switch cb.Selector {
	case fhe.SelectorAnalysis:
		_, err := r.analysis.OnDecryptionCallback(ctx, cb.RequestID, cb.Cleartexts, cb.Proof)
		return err
	case fhe.SelectorStats:
		_, err := r.stats.OnStatsCallback(ctx, cb.RequestID, cb.Cleartexts, cb.Proof)
		return err
	default:
		r.logger.WarnContext(ctx, "callback with unknown selector",
			"selector", cb.Selector,
			"request_id", cb.RequestID.String(),
		)
		return dErrors.New(dErrors.CodeBadRequest, "unknown callback selector")
	}
}
