package supervisor

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveModelPath(t *testing.T) {
	p, err := resolveModelPath("/models", "base.en")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/models", "ggml-base.en.bin"), p)

	_, err = resolveModelPath("/models", "not-a-model")
	assert.Error(t, err)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "ready", Ready.String())
	assert.Equal(t, "restarting", Restarting.String())
	assert.Equal(t, "unknown", State(99).String())
}

// fakeEngineScript writes a tiny shell script that listens as a sleeper
// process so Start/Restart/Stop have a real PID to signal, while the actual
// health probe is served by a separate httptest server whose port the
// supervisor is pointed at via cfg.Host/Port.
func fakeEngineScript(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "fake-whisper-server")
	script := "#!/bin/sh\ntrap 'exit 0' TERM\nwhile true; do sleep 1; done\n"
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	return path
}

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}

func TestSupervisorStartBecomesReady(t *testing.T) {
	healthy := true
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if healthy {
			w.WriteHeader(http.StatusOK)
		} else {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
	}))
	defer srv.Close()

	host, portStr, err := net.SplitHostPort(srv.Listener.Addr().String())
	require.NoError(t, err)
	var port int
	fmt.Sscanf(portStr, "%d", &port)

	modelDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(modelDir, "ggml-base.en.bin"), []byte("fake"), 0o644))

	sup := New(Config{
		Binary:         fakeEngineScript(t),
		ModelDir:       modelDir,
		ModelName:      "base.en",
		Host:           host,
		Port:           port,
		StartDeadline:  3 * time.Second,
		HealthInterval: time.Hour,
		FailThreshold:  2,
		StopGrace:      2 * time.Second,
		PIDFile:        filepath.Join(t.TempDir(), "whisper.pid"),
	}, zerolog.Nop())

	require.NoError(t, sup.Start(context.Background()))
	assert.Equal(t, Ready, sup.State())

	sup.Stop()
	assert.Equal(t, Stopped, sup.State())
}

func TestSupervisorStartFailsWhenNeverReady(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()
	host, portStr, _ := net.SplitHostPort(srv.Listener.Addr().String())
	var port int
	fmt.Sscanf(portStr, "%d", &port)

	modelDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(modelDir, "ggml-base.en.bin"), []byte("fake"), 0o644))

	sup := New(Config{
		Binary:        fakeEngineScript(t),
		ModelDir:      modelDir,
		ModelName:     "base.en",
		Host:          host,
		Port:          port,
		StartDeadline: 500 * time.Millisecond,
		PIDFile:       filepath.Join(t.TempDir(), "whisper.pid"),
	}, zerolog.Nop())

	err := sup.Start(context.Background())
	assert.Error(t, err)
	assert.Equal(t, Failed, sup.State())
}

func TestSupervisorHealthLoopRestartsAfterThreshold(t *testing.T) {
	healthy := true
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if healthy {
			w.WriteHeader(http.StatusOK)
		} else {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
	}))
	defer srv.Close()
	host, portStr, _ := net.SplitHostPort(srv.Listener.Addr().String())
	var port int
	fmt.Sscanf(portStr, "%d", &port)

	modelDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(modelDir, "ggml-base.en.bin"), []byte("fake"), 0o644))

	sup := New(Config{
		Binary:         fakeEngineScript(t),
		ModelDir:       modelDir,
		ModelName:      "base.en",
		Host:           host,
		Port:           port,
		StartDeadline:  2 * time.Second,
		HealthInterval: 50 * time.Millisecond,
		FailThreshold:  2,
		StopGrace:      time.Second,
		PIDFile:        filepath.Join(t.TempDir(), "whisper.pid"),
	}, zerolog.Nop())

	require.NoError(t, sup.Start(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	go sup.RunHealthLoop(ctx)

	healthy = false
	time.Sleep(250 * time.Millisecond)
	healthy = true
	time.Sleep(3 * time.Second)

	assert.GreaterOrEqual(t, sup.RestartCount(), int64(1))
	cancel()
	sup.Stop()
}

func TestSwapModelRejectsUnknownName(t *testing.T) {
	sup := New(Config{
		Binary:    fakeEngineScript(t),
		ModelDir:  t.TempDir(),
		ModelName: "base.en",
		Host:      "127.0.0.1",
		Port:      freePort(t),
	}, zerolog.Nop())

	err := sup.SwapModel(context.Background(), "no-such-model")
	assert.Error(t, err)
}
