package coreclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestForwardTranscriptionPostsExpectedShape(t *testing.T) {
	var gotPath string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second, zerolog.Nop())
	c.ForwardTranscription(context.Background(), "kitchen", "turn on the lights", TranscriptionMetadata{Confidence: 0.95})

	assert.Equal(t, "/v1/generate/kitchen", gotPath)
	assert.Equal(t, "turn on the lights", gotBody["prompt"])
	assert.Equal(t, false, gotBody["stream"])
	meta := gotBody["metadata"].(map[string]any)
	assert.Equal(t, "orac_stt", meta["source"])
}

func TestForwardTranscriptionReturnsErrorOnNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second, zerolog.Nop())
	err := c.ForwardTranscription(context.Background(), "kitchen", "hi", TranscriptionMetadata{})
	assert.Error(t, err)
}

func TestForwardTranscriptionReturnsErrorOnConnectionRefused(t *testing.T) {
	c := New("http://127.0.0.1:1", 200*time.Millisecond, zerolog.Nop())
	err := c.ForwardTranscription(context.Background(), "kitchen", "hi", TranscriptionMetadata{})
	assert.Error(t, err)
}

func TestForwardHeartbeatPostsBatch(t *testing.T) {
	var gotBody HeartbeatBatch
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/topics/heartbeat", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second, zerolog.Nop())
	c.ForwardHeartbeat(context.Background(), HeartbeatBatch{
		Source:     "orac_stt",
		InstanceID: "inst-1",
		Topics:     []TopicHeartbeat{{Topic: "kitchen", Status: "active"}},
	})

	assert.Equal(t, "inst-1", gotBody.InstanceID)
	require.Len(t, gotBody.Topics, 1)
	assert.Equal(t, "kitchen", gotBody.Topics[0].Topic)
}

func TestHealthRequiresRunningStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"status": "running"})
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second, zerolog.Nop())
	assert.NoError(t, c.Health(context.Background()))
}

func TestHealthRejectsNonRunningStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"status": "degraded"})
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second, zerolog.Nop())
	assert.Error(t, c.Health(context.Background()))
}

func TestPoolReusesClientsPerURL(t *testing.T) {
	pool := NewPool("http://default:8000", time.Second, zerolog.Nop())
	a := pool.Get("")
	b := pool.Get("")
	assert.Same(t, a, b)

	override := pool.Get("http://override:8000")
	assert.NotSame(t, a, override)
}
