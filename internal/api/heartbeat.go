package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/snarg/orac-stt/internal/heartbeat"
)

// heartbeatModelRequest mirrors one entry of the wire-format "models" array.
type heartbeatModelRequest struct {
	Topic         string     `json:"topic"`
	WakeWord      string     `json:"wake_word"`
	Status        string     `json:"status"`
	LastTriggered *time.Time `json:"last_triggered"`
	TriggerCount  int        `json:"trigger_count"`
}

// heartbeatRequest is the wire format described in spec.md §6.
type heartbeatRequest struct {
	Source     string                  `json:"source"`
	InstanceID string                  `json:"instance_id"`
	Timestamp  time.Time               `json:"timestamp"`
	Models     []heartbeatModelRequest `json:"models"`
}

// HeartbeatResponse is the wire format for POST /stt/v1/heartbeat.
type HeartbeatResponse struct {
	Status          string  `json:"status"`
	Message         *string `json:"message"`
	TopicsProcessed int     `json:"topics_processed"`
}

// HeartbeatHandler serves the edge-facing heartbeat endpoints, backed by
// C6's in-process aggregator.
type HeartbeatHandler struct {
	agg *heartbeat.Aggregator
	log zerolog.Logger
}

// NewHeartbeatHandler creates a handler bound to the heartbeat aggregator.
func NewHeartbeatHandler(agg *heartbeat.Aggregator, log zerolog.Logger) *HeartbeatHandler {
	return &HeartbeatHandler{agg: agg, log: log.With().Str("handler", "heartbeat").Logger()}
}

// Routes registers the heartbeat endpoints.
func (h *HeartbeatHandler) Routes(r chi.Router) {
	r.Post("/", h.Process)
	r.Get("/status", h.Status)
}

// Process handles POST /stt/v1/heartbeat.
func (h *HeartbeatHandler) Process(w http.ResponseWriter, r *http.Request) {
	var body heartbeatRequest
	if err := DecodeJSON(r, &body); err != nil {
		WriteErrorWithCode(w, http.StatusBadRequest, ErrInvalidBody, err.Error())
		return
	}

	models := make([]heartbeat.ModelStatus, 0, len(body.Models))
	for _, m := range body.Models {
		models = append(models, heartbeat.ModelStatus{
			Topic:         m.Topic,
			WakeWord:      m.WakeWord,
			Status:        m.Status,
			LastTriggered: m.LastTriggered,
			TriggerCount:  m.TriggerCount,
		})
	}

	h.agg.Process(r.Context(), heartbeat.Request{
		Source:     body.Source,
		InstanceID: body.InstanceID,
		Timestamp:  body.Timestamp,
		Models:     models,
	})

	WriteJSON(w, http.StatusOK, HeartbeatResponse{
		Status:          "ok",
		TopicsProcessed: len(models),
	})
}

// Status handles GET /stt/v1/heartbeat/status: an aggregator snapshot.
func (h *HeartbeatHandler) Status(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, h.agg.Status())
}
