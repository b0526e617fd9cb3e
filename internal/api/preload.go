package api

import (
	"net/http"

	"github.com/rs/zerolog"

	"github.com/snarg/orac-stt/internal/supervisor"
)

// PreloadResponse is the body for POST /stt/v1/preload.
type PreloadResponse struct {
	LoadTimeSeconds float64 `json:"load_time_seconds"`
	Error           string  `json:"error,omitempty"`
}

// PreloadHandler forces the Whisper engine to warm up via the supervisor.
type PreloadHandler struct {
	sup *supervisor.Supervisor
	log zerolog.Logger
}

// NewPreloadHandler creates a handler bound to the supervisor.
func NewPreloadHandler(sup *supervisor.Supervisor, log zerolog.Logger) *PreloadHandler {
	return &PreloadHandler{sup: sup, log: log.With().Str("handler", "preload").Logger()}
}

// ServeHTTP handles POST /stt/v1/preload.
func (h *PreloadHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	elapsed, err := h.sup.Preload(r.Context())
	if err != nil {
		h.log.Warn().Err(err).Msg("preload failed")
		WriteJSON(w, http.StatusOK, PreloadResponse{LoadTimeSeconds: elapsed.Seconds(), Error: err.Error()})
		return
	}
	WriteJSON(w, http.StatusOK, PreloadResponse{LoadTimeSeconds: elapsed.Seconds()})
}
