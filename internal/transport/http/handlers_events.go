package httptransport

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"taxlens/internal/events"
	dErrors "taxlens/pkg/domain-errors"
	"taxlens/pkg/platform/httputil"
)

const maxEventPage = 1000

type EventLog interface {
	List(f events.Filter) []events.Event
}

// EventHandler exposes the in-process event history to UIs.
type EventHandler struct {
	log EventLog
}

func NewEventHandler(log EventLog) *EventHandler {
	return &EventHandler{log: log}
}

func (h *EventHandler) Register(r chi.Router) {
	r.Get("/events", h.handleList)
}

type eventListResponse struct {
	Events []events.Event `json:"events"`
}

func (h *EventHandler) handleList(w http.ResponseWriter, r *http.Request) {
	filter := events.Filter{Type: events.Type(r.URL.Query().Get("type")), Limit: 100}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 || limit > maxEventPage {
			httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "limit must be between 1 and 1000"))
			return
		}
		filter.Limit = limit
	}
	httputil.WriteJSON(w, http.StatusOK, eventListResponse{Events: h.log.List(filter)})
}
