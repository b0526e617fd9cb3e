package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/snarg/orac-stt/internal/coreclient"
	"github.com/snarg/orac-stt/internal/settings"
)

// ConfigResponse is the body for GET /admin/config/orac-core.
type ConfigResponse struct {
	CoreURL        string  `json:"orac_core_url"`
	CoreTimeoutSec float64 `json:"orac_core_timeout_s"`
}

// ConfigTestResponse is the body for POST /admin/config/orac-core/test.
type ConfigTestResponse struct {
	Reachable bool   `json:"reachable"`
	Error     string `json:"error,omitempty"`
}

// AdminConfigHandler manages the default orac-core URL and its connectivity
// test, backed by C10's settings store.
type AdminConfigHandler struct {
	store *settings.Store
	log   zerolog.Logger
}

// NewAdminConfigHandler creates a handler bound to the settings store.
func NewAdminConfigHandler(store *settings.Store, log zerolog.Logger) *AdminConfigHandler {
	return &AdminConfigHandler{store: store, log: log.With().Str("handler", "admin_config").Logger()}
}

// Routes registers the admin config endpoints.
func (h *AdminConfigHandler) Routes(r chi.Router) {
	r.Get("/orac-core", h.Get)
	r.Post("/orac-core", h.Set)
	r.Post("/orac-core/test", h.Test)
}

// Get handles GET /admin/config/orac-core.
func (h *AdminConfigHandler) Get(w http.ResponseWriter, r *http.Request) {
	s := h.store.Get()
	WriteJSON(w, http.StatusOK, ConfigResponse{CoreURL: s.CoreURL, CoreTimeoutSec: s.CoreTimeoutSec})
}

// Set handles POST /admin/config/orac-core: updates the default Core URL
// and/or timeout. Both fields are optional; only supplied, non-zero fields
// are applied. Changes are written to the settings store only; the Core
// client pool used for forwarding reads the stored URL at process start.
func (h *AdminConfigHandler) Set(w http.ResponseWriter, r *http.Request) {
	var body struct {
		CoreURL        string  `json:"orac_core_url"`
		CoreTimeoutSec float64 `json:"orac_core_timeout_s"`
	}
	if err := DecodeJSON(r, &body); err != nil {
		WriteErrorWithCode(w, http.StatusBadRequest, ErrInvalidBody, err.Error())
		return
	}

	if body.CoreURL != "" {
		if err := h.store.SetCoreURL(body.CoreURL); err != nil {
			WriteErrorWithCode(w, http.StatusBadRequest, ErrConfigInvalid, err.Error())
			return
		}
	}
	if body.CoreTimeoutSec > 0 {
		if err := h.store.SetCoreTimeout(body.CoreTimeoutSec); err != nil {
			WriteErrorWithCode(w, http.StatusBadRequest, ErrConfigInvalid, err.Error())
			return
		}
	}

	s := h.store.Get()
	WriteJSON(w, http.StatusOK, ConfigResponse{CoreURL: s.CoreURL, CoreTimeoutSec: s.CoreTimeoutSec})
}

// Test handles POST /admin/config/orac-core/test: issues a live health
// check against the configured Core URL and reports reachability.
func (h *AdminConfigHandler) Test(w http.ResponseWriter, r *http.Request) {
	s := h.store.Get()
	timeout := time.Duration(s.CoreTimeoutSec * float64(time.Second))
	client := coreclient.New(s.CoreURL, timeout, h.log)
	defer client.Close()

	if err := client.Health(r.Context()); err != nil {
		WriteJSON(w, http.StatusOK, ConfigTestResponse{Reachable: false, Error: err.Error()})
		return
	}
	WriteJSON(w, http.StatusOK, ConfigTestResponse{Reachable: true})
}
