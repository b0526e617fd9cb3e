package api

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeEngineStatus struct {
	state               string
	everReady           bool
	restartCount        int64
	consecutiveFailures int
}

func (f *fakeEngineStatus) StateString() string      { return f.state }
func (f *fakeEngineStatus) EverReady() bool          { return f.everReady }
func (f *fakeEngineStatus) RestartCount() int64      { return f.restartCount }
func (f *fakeEngineStatus) ConsecutiveFailures() int { return f.consecutiveFailures }

func TestHealthHandlerReady(t *testing.T) {
	engine := &fakeEngineStatus{state: "ready", everReady: true}
	h := NewHealthHandler(engine, "v1.0.0", time.Now())

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/health", nil)
	h.ServeHTTP(rec, req)

	assert.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"healthy"`)
	assert.Contains(t, rec.Body.String(), `"whisper_server":"ready"`)
}

func TestHealthHandlerUnhealthyWhenStopped(t *testing.T) {
	engine := &fakeEngineStatus{state: "stopped"}
	h := NewHealthHandler(engine, "v1.0.0", time.Now())

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/health", nil)
	h.ServeHTTP(rec, req)

	assert.Equal(t, 503, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"unhealthy"`)
}

func TestHealthHandlerDegradedWhenRestarting(t *testing.T) {
	engine := &fakeEngineStatus{state: "restarting", everReady: true}
	h := NewHealthHandler(engine, "v1.0.0", time.Now())

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/health", nil)
	h.ServeHTTP(rec, req)

	assert.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"degraded"`)
}

func TestHealthHandlerLiveAlwaysOK(t *testing.T) {
	engine := &fakeEngineStatus{state: "failed"}
	h := NewHealthHandler(engine, "v1.0.0", time.Now())

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/health/live", nil)
	h.Live(rec, req)

	assert.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"alive"`)
}

func TestHealthHandlerReadyGateOnEverReady(t *testing.T) {
	engine := &fakeEngineStatus{state: "starting", everReady: false}
	h := NewHealthHandler(engine, "v1.0.0", time.Now())

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/health/ready", nil)
	h.Ready(rec, req)
	assert.Equal(t, 503, rec.Code)

	engine.everReady = true
	rec2 := httptest.NewRecorder()
	h.Ready(rec2, req)
	assert.Equal(t, 200, rec2.Code)
}

func TestEngineHealthReportsRestartCounters(t *testing.T) {
	engine := &fakeEngineStatus{state: "unhealthy", restartCount: 3, consecutiveFailures: 2}
	h := NewHealthHandler(engine, "v1.0.0", time.Now())

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/stt/v1/health", nil)
	h.EngineHealth(rec, req)

	assert.Equal(t, 503, rec.Code)
	assert.Contains(t, rec.Body.String(), `"restart_count":3`)
	assert.Contains(t, rec.Body.String(), `"consecutive_failures":2`)
}
