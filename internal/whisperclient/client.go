// Package whisperclient is the one-shot HTTP client for the Whisper
// inference engine: WAV in, text out, plus the health probe the supervisor
// polls during startup and its periodic health loop.
package whisperclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/snarg/orac-stt/internal/audio"
)

// Client talks to a single Whisper engine instance over localhost HTTP.
type Client struct {
	baseURL string
	http    *http.Client
	timeout time.Duration
}

// New creates a client bound to the engine's base URL (e.g. http://127.0.0.1:8178).
func New(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		timeout: timeout,
	}
}

// Result is the outcome of a successful Transcribe call.
type Result struct {
	Text             string
	Confidence       float64
	Language         string
	InferenceSeconds float64
}

type inferenceResponse struct {
	Text     string `json:"text"`
	Language string `json:"language"`
}

// Transcribe serializes samples into a WAV payload and POSTs it to
// {engine}/inference as multipart form `file`, with response_format=json and
// an optional language field. Confidence is synthesized (0.95 for non-empty
// text, 0 otherwise) since the engine itself does not return one — it is a
// liveness signal, not a probability.
func (c *Client) Transcribe(ctx context.Context, samples []float32, sampleRate int, language string) (*Result, error) {
	wavBytes := audio.EncodeWAV(samples)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", "utterance.wav")
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(wavBytes); err != nil {
		return nil, fmt.Errorf("write wav payload: %w", err)
	}
	mw.WriteField("response_format", "json")
	if language != "" {
		mw.WriteField("language", language)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("close multipart writer: %w", err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, c.baseURL+"/inference", &body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	start := time.Now()
	resp, err := c.http.Do(req)
	elapsed := time.Since(start).Seconds()
	if err != nil {
		return nil, classify(err, "transcribe")
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &EngineError{Op: "transcribe", Status: resp.StatusCode, Body: string(respBody)}
	}

	var parsed inferenceResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("decode inference response: %w", err)
	}

	confidence := 0.0
	if parsed.Text != "" {
		confidence = 0.95
	}

	return &Result{
		Text:             parsed.Text,
		Confidence:       confidence,
		Language:         parsed.Language,
		InferenceSeconds: elapsed,
	}, nil
}

// Health performs a 5-second-bounded GET against the engine root; 200 means
// healthy.
func (c *Client) Health(ctx context.Context) error {
	reqCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, c.baseURL+"/", nil)
	if err != nil {
		return fmt.Errorf("create health request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return classify(err, "health")
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return &EngineError{Op: "health", Status: resp.StatusCode}
	}
	return nil
}

// WaitReady polls Health every second until it succeeds or deadline elapses,
// returning true on success.
func (c *Client) WaitReady(ctx context.Context, deadline time.Duration) bool {
	timeoutCtx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	if c.Health(timeoutCtx) == nil {
		return true
	}
	for {
		select {
		case <-timeoutCtx.Done():
			return false
		case <-ticker.C:
			if c.Health(timeoutCtx) == nil {
				return true
			}
		}
	}
}

func classify(err error, op string) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &EngineTimeout{Op: op}
	}
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &EngineTimeout{Op: op}
	}
	return &EngineDown{Op: op, Err: err}
}
