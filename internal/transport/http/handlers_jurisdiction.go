package httptransport

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"taxlens/internal/fhe"
	"taxlens/internal/jurisdiction/models"
	jurisdictionservice "taxlens/internal/jurisdiction/service"
	"taxlens/pkg/platform/httputil"
)

type JurisdictionService interface {
	List(ctx context.Context) ([]*models.Counter, error)
	Get(ctx context.Context, name string) (*models.Counter, error)
	RequestStatsDecryption(ctx context.Context, name string) (fhe.RequestID, error)
}

// JurisdictionHandler serves the encrypted per-jurisdiction counters.
type JurisdictionHandler struct {
	jurisdictions JurisdictionService
	logger        *slog.Logger
}

func NewJurisdictionHandler(jurisdictions JurisdictionService, logger *slog.Logger) *JurisdictionHandler {
	return &JurisdictionHandler{jurisdictions: jurisdictions, logger: logger}
}

func (h *JurisdictionHandler) Register(r chi.Router) {
	r.Get("/jurisdictions", h.handleList)
	r.Get("/jurisdictions/{name}", h.handleGet)
	r.Post("/jurisdictions/{name}/stats", h.handleRequestStats)
}

type jurisdictionListResponse struct {
	Jurisdictions []*models.Counter `json:"jurisdictions"`
}

func (h *JurisdictionHandler) handleList(w http.ResponseWriter, r *http.Request) {
	counters, err := h.jurisdictions.List(r.Context())
	if err != nil {
		logFailure(r.Context(), h.logger, "failed to list jurisdictions", err)
		httputil.WriteError(w, err)
		return
	}
	if counters == nil {
		counters = []*models.Counter{}
	}
	httputil.WriteJSON(w, http.StatusOK, jurisdictionListResponse{Jurisdictions: counters})
}

func (h *JurisdictionHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	counter, err := h.jurisdictions.Get(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		logFailure(r.Context(), h.logger, "failed to load jurisdiction", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, counter)
}

func (h *JurisdictionHandler) handleRequestStats(w http.ResponseWriter, r *http.Request) {
	rid, err := h.jurisdictions.RequestStatsDecryption(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		logFailure(r.Context(), h.logger, "failed to request stats", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusAccepted, requestIDResponse{RequestID: rid})
}

var _ JurisdictionService = (*jurisdictionservice.Aggregator)(nil)
