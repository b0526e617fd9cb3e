package api

import (
	"encoding/json"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/snarg/orac-stt/internal/audio"
	"github.com/snarg/orac-stt/internal/orchestrator"
	"github.com/snarg/orac-stt/internal/topics"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = (wsPongWait * 9) / 10
	wsMaxMessage = 1 << 20 // 1 MiB per frame
)

// audioFormat picks how an incoming binary frame is interpreted. Edge
// producers negotiate this once via the "format" query parameter; everything
// after that is raw PCM.
type audioFormat int

const (
	formatInt16 audioFormat = iota
	formatFloat32
)

// controlMessage is a text-frame control message per spec.md §4.9: a `type`
// discriminant with type-specific optional fields.
type controlMessage struct {
	Type         string `json:"type"`
	WakeWordTime string `json:"wake_word_time"`
}

type pongMessage struct {
	Type string `json:"type"`
}

// StreamHandler upgrades to a WebSocket, accumulates one utterance of PCM
// audio per connection, and replies with exactly one final JSON result
// before closing. Per spec.md §6 this endpoint never streams partial
// results: one connection is one utterance.
type StreamHandler struct {
	orch           *orchestrator.Orchestrator
	thresholdMS    int
	activeSessions int64
	log            zerolog.Logger
	upgrader       websocket.Upgrader
}

// NewStreamHandler creates a handler bound to the orchestrator. thresholdMS
// is the minimum accumulated audio, in milliseconds, before the connection's
// buffer is considered ready to transcribe.
func NewStreamHandler(orch *orchestrator.Orchestrator, thresholdMS int, log zerolog.Logger) *StreamHandler {
	return &StreamHandler{
		orch:        orch,
		thresholdMS: thresholdMS,
		log:         log.With().Str("handler", "stream_ws").Logger(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// ActiveStreamSessions satisfies metrics.SessionStats.
func (h *StreamHandler) ActiveStreamSessions() int {
	return int(atomic.LoadInt64(&h.activeSessions))
}

// ServeHTTP handles GET /stt/v1/ws/stream/{topic}.
func (h *StreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	topicName := topics.NormalizeForForward(PathParam(r, "topic"))
	language, _ := QueryString(r, "language")
	forward := QueryBool(r, "forward_to_core", true)
	format := formatInt16
	if f, ok := QueryString(r, "format"); ok && f == "float32" {
		format = formatFloat32
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	sessionID := uuid.NewString()
	sessionLog := h.log.With().Str("session_id", sessionID).Str("topic", topicName).Logger()
	sessionLog.Debug().Msg("stream session opened")
	defer sessionLog.Debug().Msg("stream session closed")

	atomic.AddInt64(&h.activeSessions, 1)
	defer atomic.AddInt64(&h.activeSessions, -1)

	buf := audio.NewStreamBuffer(h.thresholdMS)
	conn.SetReadLimit(wsMaxMessage)
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	stopPing := make(chan struct{})
	go h.pingLoop(conn, stopPing)
	defer close(stopPing)

	var wakeWordTime string

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			sessionLog.Debug().Err(err).Msg("websocket read ended")
			return
		}

		switch msgType {
		case websocket.BinaryMessage:
			switch format {
			case formatFloat32:
				buf.AppendFloat32(data)
			default:
				buf.AppendInt16(data)
			}
		case websocket.TextMessage:
			var ctrl controlMessage
			if err := json.Unmarshal(data, &ctrl); err != nil {
				sessionLog.Warn().Err(err).Msg("discarding malformed control message")
				continue
			}
			switch ctrl.Type {
			case "config":
				wakeWordTime = ctrl.WakeWordTime
			case "ping":
				_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
				if err := conn.WriteJSON(pongMessage{Type: "pong"}); err != nil {
					sessionLog.Debug().Err(err).Msg("failed to write pong")
					return
				}
			case "end":
				h.finish(r, conn, sessionLog, buf, topicName, language, forward, wakeWordTime)
				return
			default:
				sessionLog.Info().Str("type", ctrl.Type).Msg("ignoring unknown control message type")
			}
		case websocket.CloseMessage:
			return
		}

		if buf.Ready() {
			h.finish(r, conn, sessionLog, buf, topicName, language, forward, wakeWordTime)
			return
		}
	}
}

// finish runs the shared transcription pipeline once and writes the single
// terminal JSON frame the spec promises, regardless of outcome.
func (h *StreamHandler) finish(r *http.Request, conn *websocket.Conn, log zerolog.Logger, buf *audio.StreamBuffer, topicName, language string, forward bool, wakeWordTime string) {
	samples := buf.Prepare()
	start := time.Now()

	result, _ := h.orch.Transcribe(r.Context(), orchestrator.Request{
		Samples:       samples,
		Topic:         topicName,
		Language:      language,
		ForwardToCore: forward,
		Streaming:     true,
		WakeWordTime:  wakeWordTime,
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
	case orchestrator.KindFailed:
		log.Warn().Str("kind", result.FailureKind).Str("message", result.FailureMessage).Msg("streaming transcription failed")
	}

	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	if err := conn.WriteJSON(resp); err != nil {
		log.Warn().Err(err).Msg("failed to write final websocket frame")
		return
	}
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(wsWriteWait))
}

func (h *StreamHandler) pingLoop(conn *websocket.Conn, stop <-chan struct{}) {
	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
