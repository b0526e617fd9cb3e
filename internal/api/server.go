package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/snarg/orac-stt/internal/config"
	"github.com/snarg/orac-stt/internal/heartbeat"
	"github.com/snarg/orac-stt/internal/metrics"
	"github.com/snarg/orac-stt/internal/orchestrator"
	"github.com/snarg/orac-stt/internal/settings"
	"github.com/snarg/orac-stt/internal/supervisor"
	"github.com/snarg/orac-stt/internal/topics"
)

// Server wraps the chi router and http.Server for orac-stt's edge (C9).
type Server struct {
	http   *http.Server
	log    zerolog.Logger
	stream *StreamHandler
}

// ServerOptions wires the already-constructed components (C1-C8, C10) into
// the HTTP/WebSocket edge.
type ServerOptions struct {
	Config       *config.Config
	Orchestrator *orchestrator.Orchestrator
	Supervisor   *supervisor.Supervisor
	Topics       *topics.Registry
	Heartbeat    *heartbeat.Aggregator
	Settings     *settings.Store

	Version   string
	StartTime time.Time
	Log       zerolog.Logger
}

// NewServer builds the chi router and http.Server for every endpoint in
// spec.md §6.
func NewServer(opts ServerOptions) *Server {
	r := chi.NewRouter()

	var corsOrigins []string
	if opts.Config.CORSOrigins != "" {
		for _, o := range strings.Split(opts.Config.CORSOrigins, ",") {
			if s := strings.TrimSpace(o); s != "" {
				corsOrigins = append(corsOrigins, s)
			}
		}
	}

	r.Use(RequestID)
	r.Use(CORSWithOrigins(corsOrigins))
	r.Use(RateLimiter(opts.Config.RateLimitRPS, opts.Config.RateLimitBurst))
	r.Use(Recoverer)
	r.Use(Logger(opts.Log))

	streamHandler := NewStreamHandler(opts.Orchestrator, opts.Config.StreamThresholdMS, opts.Log)

	health := NewHealthHandler(opts.Supervisor, opts.Version, opts.StartTime)
	r.Get("/health", health.ServeHTTP)
	r.Get("/health/live", health.Live)
	r.Get("/health/ready", health.Ready)

	if opts.Config.MetricsEnabled {
		collector := metrics.NewCollector(opts.Supervisor, streamHandler, opts.Heartbeat)
		prometheus.MustRegister(collector)
		r.Get("/metrics", promhttp.Handler().ServeHTTP)
	}

	// The streaming WebSocket is long-lived and carries its own framing, so
	// it sits outside the body-size/response-timeout group below.
	r.Get("/stt/v1/ws/stream/{topic}", streamHandler.ServeHTTP)

	r.Group(func(r chi.Router) {
		r.Use(MaxBodySize(15 << 20)) // 15 MB: comfortably above a 15s 16kHz mono WAV
		if opts.Config.MetricsEnabled {
			r.Use(metrics.InstrumentHandler)
		}
		r.Use(ResponseTimeout(opts.Config.WriteTimeout))

		r.Route("/stt/v1", func(r chi.Router) {
			NewUploadHandler(opts.Orchestrator, opts.Config.PreprocessAudio, opts.Log).Routes(r)
			r.Post("/preload", NewPreloadHandler(opts.Supervisor, opts.Log).ServeHTTP)
			r.Get("/health", health.EngineHealth)
			r.Route("/heartbeat", func(r chi.Router) {
				NewHeartbeatHandler(opts.Heartbeat, opts.Log).Routes(r)
			})
		})

		r.Route("/admin/topics", func(r chi.Router) {
			NewAdminTopicsHandler(opts.Topics, opts.Log).Routes(r)
		})
		r.Route("/admin/config", func(r chi.Router) {
			NewAdminConfigHandler(opts.Settings, opts.Log).Routes(r)
		})
		r.Route("/admin/models", func(r chi.Router) {
			NewAdminModelsHandler(opts.Supervisor, opts.Log).Routes(r)
		})
	})

	srv := &http.Server{
		Addr:         opts.Config.HTTPAddr,
		Handler:      r,
		ReadTimeout:  opts.Config.ReadTimeout,
		IdleTimeout:  opts.Config.IdleTimeout,
		WriteTimeout: 0, // the WebSocket stream is long-lived; handlers bound their own work
	}

	return &Server{
		http:   srv,
		log:    opts.Log,
		stream: streamHandler,
	}
}

func (s *Server) Start() error {
	s.log.Info().Str("addr", s.http.Addr).Msg("http server starting")
	err := s.http.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("http server shutting down")
	return s.http.Shutdown(ctx)
}
