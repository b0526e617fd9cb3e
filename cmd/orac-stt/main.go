package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/snarg/orac-stt/internal/api"
	"github.com/snarg/orac-stt/internal/audiosnap"
	"github.com/snarg/orac-stt/internal/config"
	"github.com/snarg/orac-stt/internal/coreclient"
	"github.com/snarg/orac-stt/internal/heartbeat"
	"github.com/snarg/orac-stt/internal/history"
	"github.com/snarg/orac-stt/internal/orchestrator"
	"github.com/snarg/orac-stt/internal/settings"
	"github.com/snarg/orac-stt/internal/supervisor"
	"github.com/snarg/orac-stt/internal/topics"
)

// version, commit, and buildTime are injected at build time via ldflags.
var (
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"
)

func main() {
	var overrides config.Overrides
	var showVersion bool
	flag.StringVar(&overrides.EnvFile, "env-file", "", "Path to .env file (default: .env)")
	flag.StringVar(&overrides.HTTPAddr, "listen", "", "HTTP listen address (overrides HTTP_ADDR)")
	flag.StringVar(&overrides.LogLevel, "log-level", "", "Log level: debug, info, warn, error (overrides LOG_LEVEL)")
	flag.StringVar(&overrides.CoreURL, "core-url", "", "Default orac-core base URL (overrides CORE_URL)")
	flag.StringVar(&overrides.DataDir, "data-dir", "", "Data directory for topics/settings/snapshots (overrides DATA_DIR)")
	flag.StringVar(&overrides.ModelDir, "model-dir", "", "Whisper model directory (overrides MODEL_DIR)")
	flag.StringVar(&overrides.ModelName, "model", "", "Whisper model name (overrides MODEL_NAME)")
	flag.BoolVar(&showVersion, "version", false, "Print version and exit")
	flag.Parse()

	if showVersion {
		fmt.Printf("%s (commit=%s, built=%s)\n", version, commit, buildTime)
		os.Exit(0)
	}

	startTime := time.Now()

	cfg, err := config.Load(overrides)
	if err != nil {
		early := zerolog.New(os.Stderr).With().Timestamp().Logger()
		early.Fatal().Err(err).Msg("failed to load config")
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	log := zerolog.New(os.Stdout).With().Timestamp().Logger().Level(level)
	log.Info().
		Str("version", version).
		Str("commit", commit).
		Str("built", buildTime).
		Str("log_level", level.String()).
		Msg("orac-stt starting")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		log.Fatal().Err(err).Str("data_dir", cfg.DataDir).Msg("failed to create data directory")
	}

	// C8: debug audio snapshot ring.
	snapshots := audiosnap.New(cfg.DebugRecordingsDir, cfg.DebugRecordingCap, log)

	// C4: topic registry, persisted to TopicsFile.
	registry := topics.New(cfg.TopicsFile, log)

	// C5: in-memory command history.
	hist := history.New(cfg.HistoryCapacity)

	// C7: Core client pool, default URL from config.
	corePool := coreclient.NewPool(cfg.CoreURL, cfg.CoreTimeout, log.With().Str("component", "coreclient").Logger())

	// C10: runtime-mutable settings (default Core URL / timeout), seeded
	// from config. The stored Core URL is applied to the pool once, here at
	// startup; later changes through the admin endpoint are persisted but do
	// not reach the pool until the next start. The pool keeps cfg.CoreTimeout;
	// the stored timeout is not applied to it.
	settingsStore := settings.New(cfg.SettingsFile, settings.Settings{
		CoreURL:        cfg.CoreURL,
		CoreTimeoutSec: cfg.CoreTimeout.Seconds(),
	}, log)
	loaded := settingsStore.Get()
	corePool.SetDefaultURL(loaded.CoreURL)

	// C2/C3: Whisper engine supervisor.
	sup := supervisor.New(supervisor.Config{
		Binary:         cfg.WhisperBinary,
		ModelDir:       cfg.ModelDir,
		ModelName:      cfg.ModelName,
		Host:           cfg.WhisperServerHost,
		Port:           cfg.WhisperServerPort,
		Prompt:         cfg.WhisperPrompt,
		PIDFile:        filepath.Join(cfg.DataDir, "whisper-server.pid"),
		StartDeadline:  cfg.SupervisorStartDeadline,
		HealthInterval: cfg.SupervisorHealthInterval,
		FailThreshold:  cfg.SupervisorFailureThreshold,
		StopGrace:      cfg.SupervisorStopGrace,
	}, log)

	if err := sup.Start(ctx); err != nil {
		log.Error().Err(err).Msg("whisper engine failed to start; continuing degraded, health checks will retry")
	}
	go sup.RunHealthLoop(ctx)

	// C6: heartbeat aggregator.
	hb := heartbeat.New(cfg.HeartbeatTTL, cfg.HeartbeatInterval, registry, corePool, log)
	go runCleanupLoop(ctx, hb, cfg.HeartbeatInterval)

	// C8: transcription orchestrator, the pipeline shared by upload and
	// streaming edges.
	orch := orchestrator.New(sup.TranscribeClient(), snapshots, hist, registry, corePool, log)

	// C9: HTTP/WebSocket edge.
	httpLog := log.With().Str("component", "http").Logger()
	srv := api.NewServer(api.ServerOptions{
		Config:       cfg,
		Orchestrator: orch,
		Supervisor:   sup,
		Topics:       registry,
		Heartbeat:    hb,
		Settings:     settingsStore,
		Version:      fmt.Sprintf("%s (commit=%s, built=%s)", version, commit, buildTime),
		StartTime:    startTime,
		Log:          httpLog,
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	log.Info().
		Str("listen", cfg.HTTPAddr).
		Str("version", version).
		Dur("startup_ms", time.Since(startTime)).
		Msg("orac-stt ready")

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			log.Error().Err(err).Msg("http server error")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http server shutdown error")
	}
	sup.Stop()

	log.Info().Msg("orac-stt stopped")
}

// runCleanupLoop periodically evicts heartbeat instance records past their
// TTL; the aggregator itself only removes them on demand via CleanupStale.
func runCleanupLoop(ctx context.Context, hb *heartbeat.Aggregator, interval time.Duration) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			hb.CleanupStale()
		}
	}
}
