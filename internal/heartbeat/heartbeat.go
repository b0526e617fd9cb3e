// Package heartbeat is the heartbeat aggregator (C6): tracks per-instance
// wake-word model status, auto-registers topics into the registry, and
// periodically batches active models into forwarded heartbeats for
// orac-core, grouped by each topic's effective Core URL.
package heartbeat

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/snarg/orac-stt/internal/coreclient"
	"github.com/snarg/orac-stt/internal/metrics"
	"github.com/snarg/orac-stt/internal/topics"
)

// ModelStatus is one wake-word model's reported state within a heartbeat.
type ModelStatus struct {
	Topic         string
	WakeWord      string
	Status        string // "active" | "inactive"
	LastTriggered *time.Time
	TriggerCount  int
}

// Request is a single instance's heartbeat payload.
type Request struct {
	Source     string
	InstanceID string
	Timestamp  time.Time
	Models     []ModelStatus
}

type instanceRecord struct {
	source     string
	receivedAt time.Time
	models     []ModelStatus
}

// Status is a point-in-time snapshot for the status() operation.
type Status struct {
	InstanceCount int
	Instances     []InstanceAge
	ActiveModels  int
	InactiveModels int
}

// InstanceAge reports one instance's age and staleness for the status view.
type InstanceAge struct {
	InstanceID string
	Age        time.Duration
	Stale      bool
}

// Aggregator is the heartbeat state machine described in spec.md §4.6.
type Aggregator struct {
	mu        sync.Mutex
	instances map[string]instanceRecord

	ttl             time.Duration
	forwardInterval time.Duration
	lastForward     time.Time
	forwardSem      chan struct{} // size-1 semaphore: at most one cycle in flight

	registry *topics.Registry
	corePool *coreclient.Pool
	log      zerolog.Logger

	instanceIDSeed string // this process's own identity when forwarding batched heartbeats upstream
}

// New creates an aggregator bound to a topic registry and Core client pool.
func New(ttl, forwardInterval time.Duration, registry *topics.Registry, corePool *coreclient.Pool, log zerolog.Logger) *Aggregator {
	return &Aggregator{
		instances:       make(map[string]instanceRecord),
		ttl:             ttl,
		forwardInterval: forwardInterval,
		forwardSem:      make(chan struct{}, 1),
		registry:        registry,
		corePool:        corePool,
		log:             log.With().Str("component", "heartbeat").Logger(),
		instanceIDSeed:  uuid.NewString(),
	}
}

// Process upserts the instance record, auto-registers every named topic
// (carrying the model's wake word as metadata), and — if any model is
// active and the forward interval has elapsed — kicks off a forward cycle
// in the background.
func (a *Aggregator) Process(ctx context.Context, req Request) {
	metrics.HeartbeatsTotal.Inc()
	now := time.Now()

	a.mu.Lock()
	a.instances[req.InstanceID] = instanceRecord{
		source:     req.Source,
		receivedAt: now,
		models:     req.Models,
	}
	shouldForward := false
	if time.Since(a.lastForward) > a.forwardInterval {
		for _, m := range req.Models {
			if m.Status == "active" {
				shouldForward = true
				break
			}
		}
	}
	a.mu.Unlock()

	for _, m := range req.Models {
		a.registry.AutoRegister(topics.NormalizeForForward(m.Topic), map[string]string{"wake_word": m.WakeWord})
	}

	if shouldForward {
		go a.runForwardCycle(context.WithoutCancel(ctx))
	}
}

// Status returns an instance-count/age/staleness snapshot.
func (a *Aggregator) Status() Status {
	a.mu.Lock()
	defer a.mu.Unlock()

	st := Status{InstanceCount: len(a.instances)}
	for id, rec := range a.instances {
		age := time.Since(rec.receivedAt)
		st.Instances = append(st.Instances, InstanceAge{
			InstanceID: id,
			Age:        age,
			Stale:      age > a.ttl,
		})
		for _, m := range rec.models {
			if m.Status == "active" {
				st.ActiveModels++
			} else {
				st.InactiveModels++
			}
		}
	}
	return st
}

// InstanceCount satisfies metrics.HeartbeatStats.
func (a *Aggregator) InstanceCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.instances)
}

// CleanupStale removes instance records older than the configured TTL.
func (a *Aggregator) CleanupStale() {
	a.mu.Lock()
	defer a.mu.Unlock()
	for id, rec := range a.instances {
		if time.Since(rec.receivedAt) > a.ttl {
			delete(a.instances, id)
		}
	}
}

// runForwardCycle executes the 6-step forward cycle from spec.md §4.6. At
// most one cycle runs at a time; a cycle already in flight causes this call
// to return immediately without forwarding.
func (a *Aggregator) runForwardCycle(ctx context.Context) {
	select {
	case a.forwardSem <- struct{}{}:
	default:
		return
	}
	defer func() { <-a.forwardSem }()

	a.mu.Lock()
	var names []string
	topicHeartbeats := make(map[string]coreclient.TopicHeartbeat)
	for id, rec := range a.instances {
		if time.Since(rec.receivedAt) > a.ttl {
			a.log.Info().Str("instance_id", id).Msg("dropping stale instance from forward cycle")
			continue
		}
		for _, m := range rec.models {
			if m.Status != "active" {
				continue
			}
			topic := topics.NormalizeForForward(m.Topic)
			names = append(names, topic)
			var lastTriggered *string
			if m.LastTriggered != nil {
				s := m.LastTriggered.UTC().Format(time.RFC3339)
				lastTriggered = &s
			}
			topicHeartbeats[topic] = coreclient.TopicHeartbeat{
				Topic:         topic,
				WakeWord:      m.WakeWord,
				Status:        "active",
				LastTriggered: lastTriggered,
				TriggerCount:  m.TriggerCount,
			}
		}
	}
	a.mu.Unlock()

	groups := a.registry.GroupByCoreURL(names)

	for url, groupNames := range groups {
		var batchTopics []coreclient.TopicHeartbeat
		for _, n := range groupNames {
			if th, ok := topicHeartbeats[n]; ok {
				batchTopics = append(batchTopics, th)
			}
		}
		if len(batchTopics) == 0 {
			continue
		}
		client := a.corePool.Get(url)
		label := "ok"
		if err := client.ForwardHeartbeat(ctx, coreclient.HeartbeatBatch{
			Source:     "orac_stt",
			InstanceID: a.instanceIDSeed,
			Timestamp:  time.Now().UTC().Format(time.RFC3339),
			Topics:     batchTopics,
		}); err != nil {
			label = "failed"
		}
		metrics.HeartbeatForwardCycles.WithLabelValues(label).Inc()
	}

	a.mu.Lock()
	a.lastForward = time.Now()
	a.mu.Unlock()
}
