package api

import (
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/snarg/orac-stt/internal/audio"
	"github.com/snarg/orac-stt/internal/orchestrator"
	"github.com/snarg/orac-stt/internal/topics"
)

const maxUploadBytes = 10 << 20 // 10 MiB, comfortably above a 15s 16kHz mono WAV

// UploadResponse is the body returned for a successful (or silently-empty)
// transcription. Per spec.md §7, engine failures still return 200 with a
// zero-valued body — the producer must never retry on 5xx.
type UploadResponse struct {
	Text           string  `json:"text"`
	Confidence     float64 `json:"confidence"`
	Language       *string `json:"language"`
	Duration       float64 `json:"duration"`
	ProcessingTime float64 `json:"processing_time"`
}

// UploadHandler handles the single WAV-upload transcription contract.
type UploadHandler struct {
	orch            *orchestrator.Orchestrator
	preprocessAudio bool
	log             zerolog.Logger
}

// NewUploadHandler creates a new upload handler. preprocessAudio mirrors
// PREPROCESS_AUDIO: when set, uploaded WAVs are run through sox (if
// installed) before C1's unconditional in-process resample.
func NewUploadHandler(orch *orchestrator.Orchestrator, preprocessAudio bool, log zerolog.Logger) *UploadHandler {
	return &UploadHandler{orch: orch, preprocessAudio: preprocessAudio, log: log.With().Str("handler", "upload").Logger()}
}

// Routes registers the upload endpoints, with and without a path topic.
func (h *UploadHandler) Routes(r chi.Router) {
	r.Post("/stream", h.Upload)
	r.Post("/stream/{topic}", h.Upload)
}

// Upload handles POST /stt/v1/stream[/{topic}]: multipart field "file" is a
// WAV (16kHz mono, <=15s), with optional language/task/forward_to_core query
// params and wake-word/recording-end passthrough headers.
func (h *UploadHandler) Upload(w http.ResponseWriter, r *http.Request) {
	file, _, err := r.FormFile("file")
	if err != nil {
		WriteErrorWithCode(w, http.StatusBadRequest, ErrInvalidBody, "missing \"file\" form field: "+err.Error())
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxUploadBytes+1))
	if err != nil {
		WriteErrorWithCode(w, http.StatusBadRequest, ErrInvalidBody, "failed to read upload: "+err.Error())
		return
	}
	if len(data) > maxUploadBytes {
		WriteErrorWithCode(w, http.StatusBadRequest, ErrInvalidBody, "upload exceeds maximum size")
		return
	}

	data = audio.PreprocessWAV(r.Context(), data, h.preprocessAudio)

	samples, err := audio.LoadWAV(data)
	if err != nil {
		WriteErrorWithCode(w, http.StatusBadRequest, ErrInvalidBody, "invalid WAV: "+err.Error())
		return
	}

	topicName := topics.NormalizeForForward(PathParam(r, "topic"))

	language, _ := QueryString(r, "language")
	forward := QueryBool(r, "forward_to_core", true)

	start := time.Now()
	result, _ := h.orch.Transcribe(r.Context(), orchestrator.Request{
		Samples:          samples,
		Topic:            topicName,
		Language:         language,
		ForwardToCore:    forward,
		WakeWordTime:     r.Header.Get("X-Wake-Word-Time"),
		RecordingEndTime: r.Header.Get("X-Recording-End-Time"),
	})

	resp := UploadResponse{
		Duration:       float64(len(samples)) / float64(audio.SampleRate),
		ProcessingTime: time.Since(start).Seconds(),
	}
	switch result.Kind {
	case orchestrator.KindOk:
		resp.Text = result.Text
		resp.Confidence = result.Confidence
		if result.Language != "" {
			lang := result.Language
			resp.Language = &lang
		}
	case orchestrator.KindEmpty:
		// text/confidence stay zero-valued.
	case orchestrator.KindFailed:
		h.log.Warn().Str("kind", result.FailureKind).Str("message", result.FailureMessage).Msg("transcription failed")
		// still 200: the producer must never retry on a failed engine call.
	}

	WriteJSON(w, http.StatusOK, resp)
}
