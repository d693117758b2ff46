package httptransport

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"taxlens/internal/fhe"
	"taxlens/internal/profile/models"
	profileservice "taxlens/internal/profile/service"
	"taxlens/internal/recommend"
	dErrors "taxlens/pkg/domain-errors"
	"taxlens/pkg/platform/httputil"
	"taxlens/pkg/requestcontext"
)

type ProfileService interface {
	Create(ctx context.Context, req profileservice.CreateRequest) (*models.EncryptedProfile, error)
	Get(ctx context.Context, id models.ProfileID) (*models.EncryptedProfile, error)
	GetShadow(ctx context.Context, id models.ProfileID) (*models.DecryptedShadow, error)
}

type AnalysisService interface {
	RequestAnalysis(ctx context.Context, id models.ProfileID) (fhe.RequestID, error)
}

// ProfileHandler serves profile commands and queries.
type ProfileHandler struct {
	profiles ProfileService
	analysis AnalysisService
	policy   recommend.Policy
	logger   *slog.Logger
}

func NewProfileHandler(profiles ProfileService, analysis AnalysisService, policy recommend.Policy, logger *slog.Logger) *ProfileHandler {
	return &ProfileHandler{profiles: profiles, analysis: analysis, policy: policy, logger: logger}
}

func (h *ProfileHandler) Register(r chi.Router) {
	r.Post("/profiles", h.handleCreate)
	r.Get("/profiles/{id}", h.handleGet)
	r.Get("/profiles/{id}/shadow", h.handleGetShadow)
	r.Post("/profiles/{id}/analysis", h.handleRequestAnalysis)
	r.Post("/profiles/{id}/recommendations", h.handleRecommend)
}

type shadowResponse struct {
	*models.DecryptedShadow
	Status models.Status `json:"status"`
}

func (h *ProfileHandler) handleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req createProfileRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		h.logger.WarnContext(ctx, "invalid create profile request",
			"request_id", requestcontext.RequestID(ctx),
			"error", err.Error(),
		)
		httputil.WriteError(w, err)
		return
	}
	profile, err := h.profiles.Create(ctx, profileservice.CreateRequest(req))
	if err != nil {
		h.writeFailure(ctx, w, "failed to create profile", err)
		return
	}
	w.Header().Set("Location", "/profiles/"+profile.ID.String())
	httputil.WriteJSON(w, http.StatusCreated, profile)
}

func (h *ProfileHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := models.ParseProfileID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	profile, err := h.profiles.Get(r.Context(), id)
	if err != nil {
		h.writeFailure(r.Context(), w, "failed to load profile", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, profile)
}

func (h *ProfileHandler) handleGetShadow(w http.ResponseWriter, r *http.Request) {
	id, err := models.ParseProfileID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	shadow, err := h.profiles.GetShadow(r.Context(), id)
	if err != nil {
		h.writeFailure(r.Context(), w, "failed to load shadow", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, shadowResponse{DecryptedShadow: shadow, Status: shadow.Status()})
}

func (h *ProfileHandler) handleRequestAnalysis(w http.ResponseWriter, r *http.Request) {
	id, err := models.ParseProfileID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	rid, err := h.analysis.RequestAnalysis(r.Context(), id)
	if err != nil {
		h.writeFailure(r.Context(), w, "failed to request analysis", err)
		return
	}
	httputil.WriteJSON(w, http.StatusAccepted, requestIDResponse{RequestID: rid})
}

func (h *ProfileHandler) handleRecommend(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := models.ParseProfileID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	var req recommendRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	shadow, err := h.profiles.GetShadow(ctx, id)
	if err != nil {
		h.writeFailure(ctx, w, "failed to load shadow", err)
		return
	}
	options, err := recommend.Recommend(shadow, req.Options, h.policy)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, recommendResponse{Options: options})
}

func (h *ProfileHandler) writeFailure(ctx context.Context, w http.ResponseWriter, msg string, err error) {
	logFailure(ctx, h.logger, msg, err)
	httputil.WriteError(w, err)
}

// logFailure logs internal errors at Error and domain rejections at Info.
func logFailure(ctx context.Context, logger *slog.Logger, msg string, err error) {
	level := slog.LevelInfo
	if dErrors.CodeOf(err) == dErrors.CodeInternal {
		level = slog.LevelError
	}
	logger.Log(ctx, level, msg,
		"request_id", requestcontext.RequestID(ctx),
		"code", dErrors.CodeOf(err),
		"error", err.Error(),
	)
}
