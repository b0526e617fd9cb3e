package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/snarg/orac-stt/internal/topics"
)

// AdminTopicsHandler exposes CRUD and per-topic config overrides over the
// topic registry (C4).
type AdminTopicsHandler struct {
	reg *topics.Registry
	log zerolog.Logger
}

// NewAdminTopicsHandler creates a handler bound to the topic registry.
func NewAdminTopicsHandler(reg *topics.Registry, log zerolog.Logger) *AdminTopicsHandler {
	return &AdminTopicsHandler{reg: reg, log: log.With().Str("handler", "admin_topics").Logger()}
}

// Routes registers the admin topics endpoints.
func (h *AdminTopicsHandler) Routes(r chi.Router) {
	r.Get("/", h.List)
	r.Post("/{name}/core-url", h.SetCoreURL)
	r.Post("/{name}/wake-words", h.SetWakeWords)
	r.Delete("/{name}", h.Delete)
}

// List handles GET /admin/topics: every registered topic.
func (h *AdminTopicsHandler) List(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, h.reg.GetAll())
}

// SetCoreURL handles POST /admin/topics/{name}/core-url: sets or clears
// (empty string) a topic's Core URL override.
func (h *AdminTopicsHandler) SetCoreURL(w http.ResponseWriter, r *http.Request) {
	name := PathParam(r, "name")
	if !topics.ValidName(name) {
		WriteErrorWithCode(w, http.StatusBadRequest, ErrConfigInvalid, "invalid topic name")
		return
	}

	var body struct {
		CoreURL string `json:"core_url"`
	}
	if err := DecodeJSON(r, &body); err != nil {
		WriteErrorWithCode(w, http.StatusBadRequest, ErrInvalidBody, err.Error())
		return
	}

	h.reg.SetCoreURL(name, body.CoreURL)
	WriteJSON(w, http.StatusOK, map[string]string{"name": name, "core_url": body.CoreURL})
}

// SetWakeWords handles POST /admin/topics/{name}/wake-words: sets the
// comma-separated wake-word strip list for a topic.
func (h *AdminTopicsHandler) SetWakeWords(w http.ResponseWriter, r *http.Request) {
	name := PathParam(r, "name")
	if !topics.ValidName(name) {
		WriteErrorWithCode(w, http.StatusBadRequest, ErrConfigInvalid, "invalid topic name")
		return
	}

	var body struct {
		WakeWords string `json:"wake_words_to_strip"`
	}
	if err := DecodeJSON(r, &body); err != nil {
		WriteErrorWithCode(w, http.StatusBadRequest, ErrInvalidBody, err.Error())
		return
	}

	h.reg.SetWakeWordsToStrip(name, body.WakeWords)
	WriteJSON(w, http.StatusOK, map[string]string{"name": name, "wake_words_to_strip": body.WakeWords})
}

// Delete handles DELETE /admin/topics/{name}.
func (h *AdminTopicsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	name := PathParam(r, "name")
	h.reg.Remove(name)
	w.WriteHeader(http.StatusNoContent)
}
