package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/snarg/orac-stt/internal/supervisor"
)

// ModelsResponse is the body for GET /admin/models.
type ModelsResponse struct {
	Available           []string `json:"available"`
	Active              string   `json:"active"`
	State               string   `json:"state"`
	RestartCount        int64    `json:"restart_count"`
	ConsecutiveFailures int      `json:"consecutive_failures"`
}

// AdminModelsHandler lists and switches the active Whisper model, and
// exposes the supervisor's restart/failure counters. Per spec.md §4.3, a
// model swap always goes through the supervisor's restart path — this
// handler never touches the engine process directly.
type AdminModelsHandler struct {
	sup *supervisor.Supervisor
	log zerolog.Logger
}

// NewAdminModelsHandler creates a handler bound to the supervisor.
func NewAdminModelsHandler(sup *supervisor.Supervisor, log zerolog.Logger) *AdminModelsHandler {
	return &AdminModelsHandler{sup: sup, log: log.With().Str("handler", "admin_models").Logger()}
}

// Routes registers the admin models endpoints.
func (h *AdminModelsHandler) Routes(r chi.Router) {
	r.Get("/", h.List)
	r.Post("/select", h.Select)
	r.Post("/restart", h.Restart)
}

// List handles GET /admin/models.
func (h *AdminModelsHandler) List(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, ModelsResponse{
		Available:           supervisor.KnownModels(),
		State:               h.sup.StateString(),
		RestartCount:        h.sup.RestartCount(),
		ConsecutiveFailures: h.sup.ConsecutiveFailures(),
	})
}

// Select handles POST /admin/models/select: swaps the active model via a
// full supervisor restart. Blocks for the duration of the restart (bounded
// by the configured start deadline).
func (h *AdminModelsHandler) Select(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name string `json:"name"`
	}
	if err := DecodeJSON(r, &body); err != nil {
		WriteErrorWithCode(w, http.StatusBadRequest, ErrInvalidBody, err.Error())
		return
	}

	if err := h.sup.SwapModel(r.Context(), body.Name); err != nil {
		WriteErrorWithCode(w, http.StatusBadRequest, ErrConfigInvalid, err.Error())
		return
	}

	WriteJSON(w, http.StatusOK, map[string]string{"state": h.sup.StateString()})
}

// Restart handles POST /admin/models/restart: forces a supervisor restart
// cycle with the currently-active model.
func (h *AdminModelsHandler) Restart(w http.ResponseWriter, r *http.Request) {
	if err := h.sup.Restart(r.Context(), "admin-requested restart"); err != nil {
		WriteErrorWithCode(w, http.StatusInternalServerError, ErrInternal, err.Error())
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{"state": h.sup.StateString()})
}
