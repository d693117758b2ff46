package httptransport

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"taxlens/internal/fhe"
	"taxlens/internal/platform/middleware"
	dErrors "taxlens/pkg/domain-errors"
	"taxlens/pkg/platform/httputil"
)

// Encryptor stands in for the client-side encryption SDK.
type Encryptor interface {
	Encrypt(v fhe.Word) (fhe.Handle, error)
}

// DevHandler exposes encryption against the in-process engine so a client
// without the SDK can produce handles. Only mounted outside production.
type DevHandler struct {
	encryptor  Encryptor
	adminToken string
	logger     *slog.Logger
}

func NewDevHandler(encryptor Encryptor, adminToken string, logger *slog.Logger) *DevHandler {
	return &DevHandler{encryptor: encryptor, adminToken: adminToken, logger: logger}
}

func (h *DevHandler) Register(r chi.Router) {
	r.With(middleware.RequireAdminToken(h.adminToken, h.logger)).Post("/dev/encrypt", h.handleEncrypt)
}

func (h *DevHandler) handleEncrypt(w http.ResponseWriter, r *http.Request) {
	var req encryptRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	var word fhe.Word
	switch {
	case req.Text != nil && req.Uint == nil:
		w2, err := fhe.StringWord(*req.Text)
		if err != nil {
			httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeValidation, "text does not fit one ciphertext word"))
			return
		}
		word = w2
	case req.Uint != nil && req.Text == nil:
		word = fhe.Uint64Word(*req.Uint)
	default:
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "exactly one of text or uint is required"))
		return
	}
	handle, err := h.encryptor.Encrypt(word)
	if err != nil {
		logFailure(r.Context(), h.logger, "failed to encrypt", err)
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "failed to encrypt"))
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, encryptResponse{Handle: handle})
}
