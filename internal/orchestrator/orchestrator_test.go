package orchestrator

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snarg/orac-stt/internal/audiosnap"
	"github.com/snarg/orac-stt/internal/coreclient"
	"github.com/snarg/orac-stt/internal/history"
	"github.com/snarg/orac-stt/internal/topics"
	"github.com/snarg/orac-stt/internal/whisperclient"
)

type fakeEngine struct {
	result *whisperclient.Result
	err    error
}

func (f *fakeEngine) Transcribe(ctx context.Context, samples []float32, sampleRate int, language string) (*whisperclient.Result, error) {
	return f.result, f.err
}

func newTestOrchestrator(t *testing.T, engine Transcriber, coreURL string) (*Orchestrator, *history.Ring, *topics.Registry) {
	t.Helper()
	snap := audiosnap.New(t.TempDir(), 5, zerolog.Nop())
	hist := history.New(5)
	reg := topics.New(filepath.Join(t.TempDir(), "topics.yaml"), zerolog.Nop())
	pool := coreclient.NewPool(coreURL, time.Second, zerolog.Nop())
	return New(engine, snap, hist, reg, pool, zerolog.Nop()), hist, reg
}

func TestTranscribeSuccessForwardsAndRecordsHistory(t *testing.T) {
	var gotPrompt string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		gotPrompt, _ = body["prompt"].(string)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	engine := &fakeEngine{result: &whisperclient.Result{Text: "hey computer turn on the lights", Confidence: 0.95, Language: "en"}}
	o, hist, _ := newTestOrchestrator(t, engine, srv.URL)

	res, cmd := o.Transcribe(context.Background(), Request{
		Samples:       make([]float32, 16000),
		Topic:         "kitchen",
		ForwardToCore: true,
	})

	assert.True(t, res.Success())
	assert.Equal(t, "hey computer turn on the lights", res.Text)
	assert.False(t, cmd.Error)

	require.Eventually(t, func() bool { return gotPrompt != "" }, time.Second, 10*time.Millisecond)
	assert.Equal(t, "hey computer turn on the lights", gotPrompt)
	assert.Len(t, hist.List(0), 1)
}

func TestTranscribeEmptyTextDoesNotForward(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	engine := &fakeEngine{result: &whisperclient.Result{Text: ""}}
	o, _, _ := newTestOrchestrator(t, engine, srv.URL)

	res, cmd := o.Transcribe(context.Background(), Request{Samples: make([]float32, 1600), Topic: "kitchen", ForwardToCore: true})
	assert.Equal(t, KindEmpty, res.Kind)
	assert.False(t, cmd.Error)

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 0, hits)
}

func TestTranscribeEngineFailureRecordsBracketedCommand(t *testing.T) {
	engine := &fakeEngine{err: &whisperclient.EngineDown{Op: "transcribe"}}
	o, hist, _ := newTestOrchestrator(t, engine, "http://127.0.0.1:1")

	res, cmd := o.Transcribe(context.Background(), Request{Samples: make([]float32, 1600), Topic: "kitchen", ForwardToCore: true})
	assert.Equal(t, KindFailed, res.Kind)
	assert.True(t, cmd.Error)
	assert.Contains(t, cmd.Text, "[Transcription Failed:")
	assert.Len(t, hist.List(0), 1)
}

func TestTranscribeWakeWordStripSuppressesEmptyResidue(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	engine := &fakeEngine{result: &whisperclient.Result{Text: "hey computer", Confidence: 0.9}}
	o, _, reg := newTestOrchestrator(t, engine, srv.URL)
	reg.SetWakeWordsToStrip("kitchen", "hey computer")

	o.Transcribe(context.Background(), Request{Samples: make([]float32, 1600), Topic: "kitchen", ForwardToCore: true})

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 0, hits)
}

func TestTranscribeForwardToCoreFalseSuppressesForward(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	engine := &fakeEngine{result: &whisperclient.Result{Text: "turn on the lights", Confidence: 0.9}}
	o, _, _ := newTestOrchestrator(t, engine, srv.URL)

	o.Transcribe(context.Background(), Request{Samples: make([]float32, 1600), Topic: "kitchen", ForwardToCore: false})

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 0, hits)
}
