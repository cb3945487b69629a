// Package metrics exports pipeline counters via Prometheus, fed from the event bus
package metrics

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/umputun/discovery/pkg/events"
)

// Metrics owns the discovery collectors and its own registry
type Metrics struct {
	registry *prometheus.Registry

	runs         *prometheus.CounterVec
	items        *prometheus.CounterVec
	scores       *prometheus.CounterVec
	scoringFails *prometheus.CounterVec
	pending      *prometheus.GaugeVec
	health       *prometheus.GaugeVec
	activeTasks  prometheus.Gauge

	mu           sync.Mutex
	sourceHealth map[int64]string
}

// New makes metrics and registers the collectors in a fresh registry
func New() (*Metrics, error) {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "discovery_ingest_runs_total",
			Help: "Completed ingest runs partitioned by status and source type.",
		}, []string{"status", "source_type"}),
		items: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "discovery_items_total",
			Help: "Fetched items partitioned by persistence result.",
		}, []string{"result"}),
		scores: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "discovery_scores_total",
			Help: "Scored items partitioned by status outcome.",
		}, []string{"outcome"}),
		scoringFails: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "discovery_scoring_failures_total",
			Help: "Failed scoring calls partitioned by error code.",
		}, []string{"code"}),
		pending: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "discovery_pending_items",
			Help: "Items waiting for scoring per client, as of the last backlog check.",
		}, []string{"client"}),
		health: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "discovery_sources_by_health",
			Help: "Number of observed sources per health status.",
		}, []string{"status"}),
		activeTasks: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "discovery_active_tasks",
			Help: "Source processing tasks currently in flight.",
		}),
		sourceHealth: map[int64]string{},
	}

	for _, c := range []prometheus.Collector{m.runs, m.items, m.scores, m.scoringFails, m.pending, m.health, m.activeTasks} {
		if err := m.registry.Register(c); err != nil {
			return nil, fmt.Errorf("register discovery collector: %w", err)
		}
	}
	return m, nil
}

// Attach subscribes metrics to the bus, returns the unsubscribe function
func (m *Metrics) Attach(bus *events.Bus) func() {
	return bus.Subscribe(m.Consume, events.IngestionCompleted, events.IngestionFailed, events.SourceHealth,
		events.ScoreComplete, events.ScoringFailed, events.QueueUpdated)
}

// Consume updates collectors from a single event
func (m *Metrics) Consume(_ context.Context, evt events.Event) {
	switch evt.Type {
	case events.IngestionCompleted, events.IngestionFailed:
		status := "succeeded"
		if evt.Type == events.IngestionFailed {
			status = "failed"
		}
		m.runs.WithLabelValues(status, label(evt.Payload, "sourceType")).Inc()
		m.items.WithLabelValues("inserted").Add(number(evt.Payload, "inserted"))
		m.items.WithLabelValues("duplicate").Add(number(evt.Payload, "duplicates"))
		m.items.WithLabelValues("skipped").Add(number(evt.Payload, "skipped"))
	case events.SourceHealth:
		m.observeHealth(evt.SourceID, label(evt.Payload, "status"))
	case events.ScoreComplete:
		m.scores.WithLabelValues("scored").Add(number(evt.Payload, "scored"))
		m.scores.WithLabelValues("suppressed").Add(number(evt.Payload, "suppressed"))
	case events.ScoringFailed:
		m.scoringFails.WithLabelValues(label(evt.Payload, "code")).Inc()
	case events.QueueUpdated:
		if _, ok := evt.Payload["pending"]; ok {
			m.pending.WithLabelValues(evt.ClientID).Set(number(evt.Payload, "pending"))
		}
	}
}

// TaskStarted increments the in-flight tasks gauge
func (m *Metrics) TaskStarted() { m.activeTasks.Inc() }

// TaskDone decrements the in-flight tasks gauge
func (m *Metrics) TaskDone() { m.activeTasks.Dec() }

// Handler returns the http handler exposing the registry
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry, used by tests and for extra collectors
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) observeHealth(sourceID int64, status string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if prev, ok := m.sourceHealth[sourceID]; ok {
		if prev == status {
			return
		}
		m.health.WithLabelValues(prev).Dec()
	}
	m.sourceHealth[sourceID] = status
	m.health.WithLabelValues(status).Inc()
}

func label(payload map[string]any, key string) string {
	if v, ok := payload[key]; ok {
		if s := fmt.Sprint(v); s != "" {
			return s
		}
	}
	return "unknown"
}

func number(payload map[string]any, key string) float64 {
	switch v := payload[key].(type) {
	case int:
		return float64(v)
	case int64:
		return float64(v)
	case float64:
		return v
	default:
		return 0
	}
}
