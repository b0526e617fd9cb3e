// Package supervisor owns the whisper-server subprocess: starting it,
// polling its health, restarting it on failure, and swapping models on
// operator command. It is the only thing in the process allowed to touch
// the engine's os/exec.Cmd.
package supervisor

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/snarg/orac-stt/internal/whisperclient"
)

// Config is the subset of process configuration the supervisor needs.
type Config struct {
	Binary         string
	ModelDir       string
	ModelName      string
	Host           string
	Port           int
	Prompt         string
	PIDFile        string
	StartDeadline  time.Duration
	HealthInterval time.Duration
	FailThreshold  int
	StopGrace      time.Duration
}

// ExitFunc is called when a restart's Start fails; overridable in tests.
type ExitFunc func(code int)

// healthProbeTimeout bounds the supervisor's own health() polling per
// spec.md §4.2; it must never leak into real transcription calls, which get
// their own client with engineTranscribeTimeout instead.
const healthProbeTimeout = 5 * time.Second

// engineTranscribeTimeout is the default transcribe() timeout from
// spec.md §4.2, applied to the client the orchestrator uses for real work.
const engineTranscribeTimeout = 30 * time.Second

// Supervisor runs the state machine described in spec.md's whisper
// supervisor contract: Stopped -> Starting -> Ready -> Unhealthy ->
// Restarting -> Ready|Failed.
type Supervisor struct {
	mu    sync.Mutex
	cfg   Config
	state State
	cmd   *exec.Cmd
	model string

	consecutiveFailures int
	restartCount        int64 // atomic
	everReady           bool

	healthClient     *whisperclient.Client // 5s timeout: startup/periodic probes only
	transcribeClient *whisperclient.Client // 30s timeout: the orchestrator's real inference calls
	log              zerolog.Logger

	exit     ExitFunc
	stopCh   chan struct{}
	stopOnce sync.Once
}

// New creates a Supervisor bound to cfg. Both whisper clients (health-probe
// and transcribe) are built from cfg.Host/Port.
func New(cfg Config, log zerolog.Logger) *Supervisor {
	if cfg.FailThreshold < 1 {
		cfg.FailThreshold = 2
	}
	if cfg.StartDeadline <= 0 {
		cfg.StartDeadline = 60 * time.Second
	}
	if cfg.HealthInterval <= 0 {
		cfg.HealthInterval = 60 * time.Second
	}
	if cfg.StopGrace <= 0 {
		cfg.StopGrace = 5 * time.Second
	}

	baseURL := fmt.Sprintf("http://%s:%d", cfg.Host, cfg.Port)
	return &Supervisor{
		cfg:              cfg,
		state:            Stopped,
		model:            cfg.ModelName,
		healthClient:     whisperclient.New(baseURL, healthProbeTimeout),
		transcribeClient: whisperclient.New(baseURL, engineTranscribeTimeout),
		log:              log.With().Str("component", "supervisor").Logger(),
		exit:             os.Exit,
		stopCh:           make(chan struct{}),
	}
}

// TranscribeClient exposes the 30s-timeout whisper client so the
// orchestrator (C8) can run real inference without being capped by the
// supervisor's own 5s health-probe budget.
func (s *Supervisor) TranscribeClient() *whisperclient.Client { return s.transcribeClient }

// StateCode satisfies metrics.EngineStats.
func (s *Supervisor) StateCode() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int(s.state)
}

// RestartCount satisfies metrics.EngineStats.
func (s *Supervisor) RestartCount() int64 { return atomic.LoadInt64(&s.restartCount) }

// ConsecutiveFailures satisfies metrics.EngineStats.
func (s *Supervisor) ConsecutiveFailures() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.consecutiveFailures
}

// State returns the current lifecycle state.
func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// EverReady reports whether the engine has reached Ready at least once,
// used to gate the readiness probe.
func (s *Supervisor) EverReady() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.everReady
}

// StateString satisfies api.EngineStatus.
func (s *Supervisor) StateString() string {
	return s.State().String()
}

// Start adopts any orphaned engine process found at the configured PID file,
// then launches a fresh engine and waits up to cfg.StartDeadline for it to
// report healthy.
func (s *Supervisor) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.startLocked(ctx)
}

func (s *Supervisor) startLocked(ctx context.Context) error {
	s.adoptOrphanLocked()

	s.state = Starting

	path, err := resolveModelPath(s.cfg.ModelDir, s.model)
	if err != nil {
		s.state = Failed
		return fmt.Errorf("resolve model: %w", err)
	}

	args := []string{
		"--model", path,
		"--host", s.cfg.Host,
		"--port", strconv.Itoa(s.cfg.Port),
		"--language", "en",
		"--no-timestamps",
	}
	if s.cfg.Prompt != "" {
		args = append(args, "--prompt", s.cfg.Prompt)
	}

	s.log.Info().Str("model", s.model).Str("path", path).Msg("starting whisper engine")

	cmd := exec.Command(s.cfg.Binary, args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		s.state = Failed
		return fmt.Errorf("start whisper engine: %w", err)
	}
	s.cmd = cmd
	s.writePIDFileLocked(cmd.Process.Pid)

	if s.healthClient.WaitReady(ctx, s.cfg.StartDeadline) {
		s.state = Ready
		s.everReady = true
		s.consecutiveFailures = 0
		s.log.Info().Msg("whisper engine ready")
		return nil
	}

	s.log.Error().Dur("deadline", s.cfg.StartDeadline).Msg("whisper engine failed to become ready in time")
	s.killLocked()
	s.state = Failed
	return fmt.Errorf("whisper engine did not become ready within %s", s.cfg.StartDeadline)
}

// adoptOrphanLocked kills any process recorded in the PID file from a
// previous run before a new engine is spawned. Must be called with mu held.
func (s *Supervisor) adoptOrphanLocked() {
	if s.cfg.PIDFile == "" {
		return
	}
	data, err := os.ReadFile(s.cfg.PIDFile)
	if err != nil {
		return
	}
	pid, err := strconv.Atoi(string(data))
	if err != nil || pid <= 0 {
		return
	}
	if err := syscall.Kill(pid, 0); err != nil {
		// not running; stale pidfile
		os.Remove(s.cfg.PIDFile)
		return
	}
	s.log.Warn().Int("pid", pid).Msg("adopting orphaned whisper engine process; killing before restart")
	_ = syscall.Kill(pid, syscall.SIGTERM)
	time.Sleep(200 * time.Millisecond)
	_ = syscall.Kill(pid, syscall.SIGKILL)
	os.Remove(s.cfg.PIDFile)
}

func (s *Supervisor) writePIDFileLocked(pid int) {
	if s.cfg.PIDFile == "" {
		return
	}
	if err := os.WriteFile(s.cfg.PIDFile, []byte(strconv.Itoa(pid)), 0o644); err != nil {
		s.log.Warn().Err(err).Msg("failed to write pid file")
	}
}

// killLocked forcibly terminates the current engine process, if any. Must be
// called with mu held.
func (s *Supervisor) killLocked() {
	if s.cmd == nil || s.cmd.Process == nil {
		return
	}
	_ = s.cmd.Process.Kill()
	_, _ = s.cmd.Process.Wait()
	s.cmd = nil
	if s.cfg.PIDFile != "" {
		os.Remove(s.cfg.PIDFile)
	}
}

// stopGracefullyLocked sends SIGTERM, waits up to StopGrace, then SIGKILLs.
// Must be called with mu held.
func (s *Supervisor) stopGracefullyLocked() {
	if s.cmd == nil || s.cmd.Process == nil {
		return
	}
	_ = s.cmd.Process.Signal(syscall.SIGTERM)

	done := make(chan struct{})
	go func() {
		s.cmd.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(s.cfg.StopGrace):
		_ = s.cmd.Process.Kill()
		<-done
	}
	s.cmd = nil
	if s.cfg.PIDFile != "" {
		os.Remove(s.cfg.PIDFile)
	}
}

// Restart stops the current engine (SIGTERM then SIGKILL after StopGrace)
// and starts a fresh one. reason is logged. If the restarted Start fails,
// the whole process is forced to exit non-zero so an orchestrator can
// restart the pod.
func (s *Supervisor) Restart(ctx context.Context, reason string) error {
	s.mu.Lock()
	s.state = Restarting
	s.log.Warn().Str("reason", reason).Msg("restarting whisper engine")
	s.stopGracefullyLocked()
	atomic.AddInt64(&s.restartCount, 1)
	err := s.startLocked(ctx)
	s.mu.Unlock()

	if err != nil {
		s.log.Error().Err(err).Msg("restart failed; exiting process")
		s.exit(1)
	}
	return err
}

// SwapModel changes the active model. An out-of-process engine requires a
// full restart, which SwapModel performs synchronously before returning the
// outcome; callers such as the admin model-select handler block until it
// completes. No separate "restart required" status is reported.
func (s *Supervisor) SwapModel(ctx context.Context, name string) error {
	s.mu.Lock()
	if _, err := resolveModelPath(s.cfg.ModelDir, name); err != nil {
		s.mu.Unlock()
		return err
	}
	s.model = name
	s.mu.Unlock()
	return s.Restart(ctx, "model swap to "+name)
}

// RunHealthLoop polls the engine at cfg.HealthInterval until ctx is done.
// The loop is a no-op while the supervisor is Starting or Restarting.
func (s *Supervisor) RunHealthLoop(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.HealthInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.checkHealthOnce(ctx)
		}
	}
}

func (s *Supervisor) checkHealthOnce(ctx context.Context) {
	s.mu.Lock()
	if s.state == Starting || s.state == Restarting {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	err := s.healthClient.Health(ctx)

	s.mu.Lock()
	if err == nil {
		s.consecutiveFailures = 0
		if s.state != Ready {
			s.state = Ready
			s.everReady = true
			s.log.Info().Msg("whisper engine recovered")
		}
		s.mu.Unlock()
		return
	}

	s.consecutiveFailures++
	s.log.Warn().Err(err).Int("consecutive_failures", s.consecutiveFailures).Msg("whisper engine health check failed")
	if s.consecutiveFailures >= s.cfg.FailThreshold {
		s.mu.Unlock()
		s.Restart(ctx, "health check failure threshold reached")
		return
	}
	s.state = Unhealthy
	s.mu.Unlock()
}

// Preload forces the engine to do one throwaway inference so any lazy
// model-loading cost is paid up front rather than on the first real
// request. Returns the elapsed wall time.
func (s *Supervisor) Preload(ctx context.Context) (time.Duration, error) {
	silence := make([]float32, 1600) // 100ms at 16kHz
	start := time.Now()
	_, err := s.transcribeClient.Transcribe(ctx, silence, 16000, "en")
	return time.Since(start), err
}

// Stop terminates the health loop and the engine process.
func (s *Supervisor) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopGracefullyLocked()
	s.state = Stopped
}
