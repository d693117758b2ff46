package httptransport

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"taxlens/internal/fhe"
	jurisdictionservice "taxlens/internal/jurisdiction/service"
	"taxlens/internal/profile/models"
	"taxlens/pkg/platform/httputil"
)

type AnalysisCallback interface {
	OnDecryptionCallback(ctx context.Context, rid fhe.RequestID, cleartexts, proof []byte) (*models.DecryptedShadow, error)
}

type StatsCallback interface {
	OnStatsCallback(ctx context.Context, rid fhe.RequestID, cleartexts, proof []byte) (*jurisdictionservice.StatsResult, error)
}

// CallbackHandler is the entry point for an oracle that delivers over HTTP.
// The proof inside each delivery is what authenticates it.
type CallbackHandler struct {
	analysis AnalysisCallback
	stats    StatsCallback
	logger   *slog.Logger
}

func NewCallbackHandler(analysis AnalysisCallback, stats StatsCallback, logger *slog.Logger) *CallbackHandler {
	return &CallbackHandler{analysis: analysis, stats: stats, logger: logger}
}

func (h *CallbackHandler) Register(r chi.Router) {
	r.Post("/oracle/callbacks/analysis", h.handleAnalysis)
	r.Post("/oracle/callbacks/stats", h.handleStats)
}

func (h *CallbackHandler) handleAnalysis(w http.ResponseWriter, r *http.Request) {
	var req CallbackRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	shadow, err := h.analysis.OnDecryptionCallback(r.Context(), req.RequestID, req.Cleartexts, req.Proof)
	if err != nil {
		logFailure(r.Context(), h.logger, "analysis callback rejected", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, shadowResponse{DecryptedShadow: shadow, Status: shadow.Status()})
}

func (h *CallbackHandler) handleStats(w http.ResponseWriter, r *http.Request) {
	var req CallbackRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	result, err := h.stats.OnStatsCallback(r.Context(), req.RequestID, req.Cleartexts, req.Proof)
	if err != nil {
		logFailure(r.Context(), h.logger, "stats callback rejected", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, result)
}
