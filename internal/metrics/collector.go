package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// EngineStats exposes the Whisper supervisor's live state for the scrape-time
// gauges. Implemented by internal/supervisor.Supervisor.
type EngineStats interface {
	StateCode() int // 0 Stopped,1 Starting,2 Ready,3 Unhealthy,4 Restarting,5 Failed
	RestartCount() int64
	ConsecutiveFailures() int
}

// SessionStats exposes counts the HTTP/WebSocket edge tracks.
type SessionStats interface {
	ActiveStreamSessions() int
}

// HeartbeatStats exposes the heartbeat aggregator's live instance count.
type HeartbeatStats interface {
	InstanceCount() int
}

// Collector implements prometheus.Collector to read live gauges at scrape time.
type Collector struct {
	engine    EngineStats
	sessions  SessionStats
	heartbeat HeartbeatStats

	engineState     *prometheus.Desc
	restartCount    *prometheus.Desc
	consecutiveFail *prometheus.Desc
	activeSessions  *prometheus.Desc
	instanceCount   *prometheus.Desc
}

// NewCollector creates a collector that reads live state at scrape time.
// Any argument may be nil; the corresponding gauges report 0.
func NewCollector(engine EngineStats, sessions SessionStats, heartbeat HeartbeatStats) *Collector {
	return &Collector{
		engine:    engine,
		sessions:  sessions,
		heartbeat: heartbeat,
		engineState: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "engine", "state"),
			"Whisper supervisor state (0=Stopped,1=Starting,2=Ready,3=Unhealthy,4=Restarting,5=Failed).",
			nil, nil,
		),
		restartCount: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "engine", "restart_count"),
			"Total restarts performed by the supervisor since process start.",
			nil, nil,
		),
		consecutiveFail: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "engine", "consecutive_failures"),
			"Current consecutive health-probe failure count.",
			nil, nil,
		),
		activeSessions: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "active_stream_sessions"),
			"Current number of open WebSocket streaming sessions.",
			nil, nil,
		),
		instanceCount: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "heartbeat", "instances"),
			"Current number of live edge-producer instances held by the heartbeat aggregator.",
			nil, nil,
		),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.engineState
	ch <- c.restartCount
	ch <- c.consecutiveFail
	ch <- c.activeSessions
	ch <- c.instanceCount
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	if c.engine != nil {
		ch <- prometheus.MustNewConstMetric(c.engineState, prometheus.GaugeValue, float64(c.engine.StateCode()))
		ch <- prometheus.MustNewConstMetric(c.restartCount, prometheus.GaugeValue, float64(c.engine.RestartCount()))
		ch <- prometheus.MustNewConstMetric(c.consecutiveFail, prometheus.GaugeValue, float64(c.engine.ConsecutiveFailures()))
	} else {
		ch <- prometheus.MustNewConstMetric(c.engineState, prometheus.GaugeValue, 0)
		ch <- prometheus.MustNewConstMetric(c.restartCount, prometheus.GaugeValue, 0)
		ch <- prometheus.MustNewConstMetric(c.consecutiveFail, prometheus.GaugeValue, 0)
	}

	if c.sessions != nil {
		ch <- prometheus.MustNewConstMetric(c.activeSessions, prometheus.GaugeValue, float64(c.sessions.ActiveStreamSessions()))
	} else {
		ch <- prometheus.MustNewConstMetric(c.activeSessions, prometheus.GaugeValue, 0)
	}

	if c.heartbeat != nil {
		ch <- prometheus.MustNewConstMetric(c.instanceCount, prometheus.GaugeValue, float64(c.heartbeat.InstanceCount()))
	} else {
		ch <- prometheus.MustNewConstMetric(c.instanceCount, prometheus.GaugeValue, 0)
	}
}
