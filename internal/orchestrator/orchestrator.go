// Package orchestrator is the transcription pipeline (C8): the single code
// path shared by the upload and streaming edges, from prepared PCM samples
// through transcription, history, wake-word stripping, and fire-and-forget
// forwarding to orac-core.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/snarg/orac-stt/internal/audio"
	"github.com/snarg/orac-stt/internal/audiosnap"
	"github.com/snarg/orac-stt/internal/coreclient"
	"github.com/snarg/orac-stt/internal/history"
	"github.com/snarg/orac-stt/internal/metrics"
	"github.com/snarg/orac-stt/internal/topics"
	"github.com/snarg/orac-stt/internal/whisperclient"
)

// Transcriber is the subset of whisperclient.Client the orchestrator needs;
// an interface so tests can fake the engine.
type Transcriber interface {
	Transcribe(ctx context.Context, samples []float32, sampleRate int, language string) (*whisperclient.Result, error)
}

const transcribeTimeout = 30 * time.Second

// Request describes one utterance ready for the pipeline. Samples must
// already be prepared (clamped, resampled to 16kHz mono) by the caller —
// upload and streaming edges differ only in how they produce Samples.
type Request struct {
	Samples          []float32
	Topic            string
	Language         string
	ForwardToCore    bool
	Streaming        bool
	WakeWordTime     string
	RecordingEndTime string
}

// Orchestrator wires C8's snapshot ring, C2/C3's engine, C4's topic
// registry, C5's history, and C7's Core client pool into the single
// transcription pipeline spec.md describes.
type Orchestrator struct {
	engine   Transcriber
	snapshot *audiosnap.Ring
	history  *history.Ring
	topics   *topics.Registry
	corePool *coreclient.Pool
	log      zerolog.Logger
}

// New builds an Orchestrator from its already-constructed components.
func New(engine Transcriber, snapshot *audiosnap.Ring, hist *history.Ring, reg *topics.Registry, corePool *coreclient.Pool, log zerolog.Logger) *Orchestrator {
	return &Orchestrator{
		engine:   engine,
		snapshot: snapshot,
		history:  hist,
		topics:   reg,
		corePool: corePool,
		log:      log.With().Str("component", "orchestrator").Logger(),
	}
}

// Transcribe runs the full pipeline for one utterance and returns both the
// caller-facing Result and the Command recorded in history.
func (o *Orchestrator) Transcribe(ctx context.Context, req Request) (Result, history.Command) {
	start := time.Now()
	topic := topics.NormalizeForForward(req.Topic)

	// Step 2: snapshot the prepared samples before we know the outcome.
	wavBytes := audio.EncodeWAV(req.Samples)
	snapshotPath, err := o.snapshot.Save(wavBytes, topic)
	if err != nil {
		o.log.Warn().Err(err).Msg("failed to write debug snapshot")
	}

	audioSeconds := float64(len(req.Samples)) / float64(audio.SampleRate)
	metrics.AudioDuration.WithLabelValues(topic).Observe(audioSeconds)

	// Step 3: transcribe.
	transcribeCtx, cancel := context.WithTimeout(ctx, transcribeTimeout)
	defer cancel()

	engineResult, engineErr := o.engine.Transcribe(transcribeCtx, req.Samples, audio.SampleRate, req.Language)
	processingTime := time.Since(start)

	var result Result
	switch {
	case engineErr != nil:
		result = Failed(failureKind(engineErr), engineErr.Error())
		metrics.TranscriptionsTotal.WithLabelValues(topic, "failed").Inc()
	case engineResult.Text == "":
		result = Empty()
		metrics.TranscriptionsTotal.WithLabelValues(topic, "empty").Inc()
		metrics.InferenceDuration.WithLabelValues(topic).Observe(engineResult.InferenceSeconds)
	default:
		result = Ok(engineResult.Text, engineResult.Confidence, engineResult.Language)
		metrics.TranscriptionsTotal.WithLabelValues(topic, "success").Inc()
		metrics.InferenceDuration.WithLabelValues(topic).Observe(engineResult.InferenceSeconds)
	}

	// Step 4: history, regardless of outcome.
	cmd := o.recordHistory(result, topic, snapshotPath, processingTime)

	// Steps 5-8: forward decision, wake-word strip, enrich, forward.
	if o.shouldForward(result, req.ForwardToCore) {
		o.forward(ctx, topic, result, req, processingTime, start)
	} else if req.ForwardToCore {
		metrics.ForwardsTotal.WithLabelValues("suppressed").Inc()
	}

	return result, cmd
}

func (o *Orchestrator) recordHistory(result Result, topic, snapshotPath string, processingTime time.Duration) history.Command {
	cmd := history.Command{
		Topic:          topic,
		SnapshotPath:   snapshotPath,
		ProcessingTime: processingTime,
	}
	switch result.Kind {
	case KindOk:
		cmd.Text = result.Text
		cmd.Confidence = result.Confidence
		cmd.Language = result.Language
	case KindEmpty:
		cmd.Text = ""
	case KindFailed:
		cmd.Text = fmt.Sprintf("[Transcription Failed: %s]", result.FailureMessage)
		cmd.Error = true
	}
	return o.history.Add(cmd)
}

// shouldForward implements spec.md §4.8 step 5.
func (o *Orchestrator) shouldForward(result Result, forwardRequested bool) bool {
	if !forwardRequested || result.Kind != KindOk {
		return false
	}
	text := strings.TrimSpace(result.Text)
	return text != "" && !strings.HasPrefix(text, "[")
}

func (o *Orchestrator) forward(ctx context.Context, topic string, result Result, req Request, processingTime time.Duration, start time.Time) {
	stripped := topics.StripWakeWords(result.Text, o.topics.WakeWordsToStrip(topic))
	if strings.TrimSpace(stripped) == "" {
		metrics.ForwardsTotal.WithLabelValues("suppressed").Inc()
		return
	}

	meta := coreclient.TranscriptionMetadata{
		Confidence:     result.Confidence,
		Language:       result.Language,
		Duration:       float64(len(req.Samples)) / float64(audio.SampleRate),
		ProcessingTime: processingTime.Seconds(),
		STTStartTime:   start.UTC().Format(time.RFC3339Nano),
		STTEndTime:     time.Now().UTC().Format(time.RFC3339Nano),
		Streaming:      req.Streaming,
		WakeWordTime:   req.WakeWordTime,
		RecordingEnd:   req.RecordingEndTime,
	}

	client := o.corePool.Get(o.topics.GetCoreURL(topic))
	go func() {
		label := "ok"
		if err := client.ForwardTranscription(context.WithoutCancel(ctx), topic, stripped, meta); err != nil {
			label = "failed"
		}
		metrics.ForwardsTotal.WithLabelValues(label).Inc()
	}()
}

func failureKind(err error) string {
	var timeout *whisperclient.EngineTimeout
	var down *whisperclient.EngineDown
	var engErr *whisperclient.EngineError
	switch {
	case errors.As(err, &timeout):
		return "engine_timeout"
	case errors.As(err, &down):
		return "engine_down"
	case errors.As(err, &engErr):
		return "engine_error"
	default:
		return "unknown"
	}
}
