// Package coreclient is the outbound HTTP client for orac-core (C7): fire-
// and-forget transcription forwarding, batched heartbeat forwarding, and a
// health probe, one client per Core base URL.
package coreclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Client talks to a single orac-core base URL.
type Client struct {
	baseURL string
	http    *http.Client
	timeout time.Duration
	log     zerolog.Logger
}

// New creates a client bound to baseURL with the given per-request timeout.
func New(baseURL string, timeout time.Duration, log zerolog.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		timeout: timeout,
		log:     log.With().Str("component", "coreclient").Str("core_url", baseURL).Logger(),
	}
}

// TranscriptionMetadata is the forwarded payload's metadata block.
type TranscriptionMetadata struct {
	Confidence      float64 `json:"confidence"`
	Language        string  `json:"language,omitempty"`
	Duration        float64 `json:"duration"`
	ProcessingTime  float64 `json:"processing_time"`
	STTStartTime    string  `json:"stt_start_time,omitempty"`
	STTEndTime      string  `json:"stt_end_time,omitempty"`
	Streaming       bool    `json:"streaming"`
	WakeWordTime    string  `json:"wake_word_time,omitempty"`
	RecordingEnd    string  `json:"recording_end_time,omitempty"`
	Source          string  `json:"source"`
	Timestamp       string  `json:"timestamp"`
}

type generateRequest struct {
	Prompt   string                `json:"prompt"`
	Stream   bool                  `json:"stream"`
	Metadata TranscriptionMetadata `json:"metadata"`
}

// ForwardTranscription POSTs the text to /v1/generate/{topic}. It is
// fire-and-forget in spirit: callers invoke it from a goroutine and are
// expected to ignore the returned error for control flow (it's logged here
// either way) — it exists only so callers can label a forwards-total
// metric without duplicating the log line's classification.
func (c *Client) ForwardTranscription(ctx context.Context, topic, text string, meta TranscriptionMetadata) error {
	meta.Source = "orac_stt"
	if meta.Timestamp == "" {
		meta.Timestamp = time.Now().UTC().Format(time.RFC3339)
	}

	body, err := json.Marshal(generateRequest{Prompt: text, Stream: false, Metadata: meta})
	if err != nil {
		c.log.Error().Err(err).Msg("failed to marshal forward-transcription request")
		return err
	}

	reqCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	url := fmt.Sprintf("%s/v1/generate/%s", c.baseURL, topic)
	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		c.log.Error().Err(err).Msg("failed to build forward-transcription request")
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Warn().Err(err).Str("topic", topic).Msg("forward transcription failed")
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.log.Warn().Int("status", resp.StatusCode).Str("topic", topic).Msg("core rejected forwarded transcription")
		return fmt.Errorf("core returned status %d", resp.StatusCode)
	}
	return nil
}

// TopicHeartbeat is one model's status within a forwarded heartbeat batch.
type TopicHeartbeat struct {
	Topic         string  `json:"topic"`
	WakeWord      string  `json:"wake_word,omitempty"`
	Status        string  `json:"status"`
	LastTriggered *string `json:"last_triggered,omitempty"`
	TriggerCount  int     `json:"trigger_count"`
}

// HeartbeatBatch is the request body for /v1/topics/heartbeat.
type HeartbeatBatch struct {
	Source         string           `json:"source"`
	UpstreamSource string           `json:"upstream_source,omitempty"`
	InstanceID     string           `json:"instance_id"`
	Timestamp      string           `json:"timestamp"`
	Topics         []TopicHeartbeat `json:"topics"`
}

// ForwardHeartbeat POSTs a batched heartbeat to /v1/topics/heartbeat;
// failures are logged and swallowed by the caller, which only consults the
// returned error to label a metric.
func (c *Client) ForwardHeartbeat(ctx context.Context, batch HeartbeatBatch) error {
	body, err := json.Marshal(batch)
	if err != nil {
		c.log.Error().Err(err).Msg("failed to marshal heartbeat batch")
		return err
	}

	reqCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, c.baseURL+"/v1/topics/heartbeat", bytes.NewReader(body))
	if err != nil {
		c.log.Error().Err(err).Msg("failed to build heartbeat request")
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Warn().Err(err).Msg("forward heartbeat failed")
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.log.Warn().Int("status", resp.StatusCode).Msg("core rejected forwarded heartbeat")
		return fmt.Errorf("core returned status %d", resp.StatusCode)
	}
	return nil
}

type statusResponse struct {
	Status string `json:"status"`
}

// Health GETs /v1/status and reports healthy only when the body's status
// field is exactly "running".
func (c *Client) Health(ctx context.Context) error {
	reqCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, c.baseURL+"/v1/status", nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("core status returned %d", resp.StatusCode)
	}
	var parsed statusResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return fmt.Errorf("decode core status: %w", err)
	}
	if parsed.Status != "running" {
		return fmt.Errorf("core status is %q, not running", parsed.Status)
	}
	return nil
}

// Close releases HTTP resources. Idempotent.
func (c *Client) Close() {
	c.http.CloseIdleConnections()
}

// Pool is a process-scoped registry of Clients keyed by base URL: a client
// is created on first use of a URL (default or override) and cached for the
// pool's lifetime.
type Pool struct {
	mu         sync.Mutex
	timeout    time.Duration
	log        zerolog.Logger
	defaultURL string
	clients    map[string]*Client
}

// NewPool creates a pool whose default client targets defaultURL.
func NewPool(defaultURL string, timeout time.Duration, log zerolog.Logger) *Pool {
	return &Pool{
		timeout:    timeout,
		log:        log,
		defaultURL: defaultURL,
		clients:    make(map[string]*Client),
	}
}

// Get returns the client for url, creating one if needed. Pass "" to get
// the pool's default client.
func (p *Pool) Get(url string) *Client {
	if url == "" {
		url = p.defaultURL
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if c, ok := p.clients[url]; ok {
		return c
	}
	c := New(url, p.timeout, p.log)
	p.clients[url] = c
	return c
}

// SetDefaultURL updates the default base URL used when Get("") is called.
func (p *Pool) SetDefaultURL(url string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.defaultURL = url
}
