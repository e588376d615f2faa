// Package metrics tracks publish and consume statistics and exposes them as
// Prometheus collectors.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Consume outcomes recorded per delivery.
const (
	OutcomeOK        = "ok"
	OutcomeHandler   = "handler_error"
	OutcomeMalformed = "malformed"
	OutcomeUnhandled = "unhandled"
)

// Metrics tracks event flow statistics.
type Metrics struct {
	mu sync.RWMutex

	// Per-stream counts
	streamCounts map[string]*StreamMetrics

	// Prometheus collectors
	publishedTotal       *prometheus.CounterVec
	publishFailuresTotal *prometheus.CounterVec
	consumedTotal        *prometheus.CounterVec
	reclaimedTotal       *prometheus.CounterVec
	publishSeconds       *prometheus.HistogramVec
	handleSeconds        *prometheus.HistogramVec

	registerer prometheus.Registerer
	registered bool
}

// StreamMetrics holds counts for a single stream.
type StreamMetrics struct {
	Published       uint64    `json:"published"`
	PublishFailures uint64    `json:"publish_failures"`
	Consumed        uint64    `json:"consumed"`
	HandlerFailures uint64    `json:"handler_failures"`
	Malformed       uint64    `json:"malformed"`
	Unhandled       uint64    `json:"unhandled"`
	Reclaimed       uint64    `json:"reclaimed"`
	LastUpdatedAt   time.Time `json:"last_updated_at"`
}

// Snapshot provides a point-in-time view across all streams.
type Snapshot struct {
	TotalPublished uint64                    `json:"total_published"`
	TotalConsumed  uint64                    `json:"total_consumed"`
	TotalReclaimed uint64                    `json:"total_reclaimed"`
	StreamMetrics  map[string]*StreamMetrics `json:"stream_metrics"`
	CollectedAt    time.Time                 `json:"collected_at"`
}

func newCounterVec(name, help string, labels []string) *prometheus.CounterVec {
	return prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "eventwire",
			Subsystem: "events",
			Name:      name,
			Help:      help,
		},
		labels,
	)
}

func newHistogramVec(name, help string, buckets []float64, labels []string) *prometheus.HistogramVec {
	return prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "eventwire",
			Subsystem: "events",
			Name:      name,
			Help:      help,
			Buckets:   buckets,
		},
		labels,
	)
}

// New creates a metrics collector. A nil registerer falls back to the
// Prometheus default.
func New(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &Metrics{
		streamCounts:         make(map[string]*StreamMetrics),
		registerer:           registerer,
		publishedTotal:       newCounterVec("published_total", "Total number of events appended to a stream", []string{"stream", "event_type"}),
		publishFailuresTotal: newCounterVec("publish_failures_total", "Total number of publish attempts that failed", []string{"stream", "event_type"}),
		consumedTotal:        newCounterVec("consumed_total", "Total number of deliveries processed, by outcome", []string{"stream", "group", "outcome"}),
		reclaimedTotal:       newCounterVec("reclaimed_total", "Total number of pending entries taken over from idle consumers", []string{"stream", "group"}),
		publishSeconds:       newHistogramVec("publish_seconds", "Time spent appending an event to the broker", []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5}, []string{"stream"}),
		handleSeconds:        newHistogramVec("handle_seconds", "Time spent in the event handler per delivery", []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10}, []string{"stream", "group"}),
	}
}

// Register registers the Prometheus collectors. Safe to call multiple times.
func (m *Metrics) Register() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.registered {
		return nil
	}

	collectors := []prometheus.Collector{
		m.publishedTotal,
		m.publishFailuresTotal,
		m.consumedTotal,
		m.reclaimedTotal,
		m.publishSeconds,
		m.handleSeconds,
	}

	for _, c := range collectors {
		if err := m.registerer.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				return err
			}
		}
	}

	m.registered = true
	return nil
}

// RecordPublished records a successful append.
func (m *Metrics) RecordPublished(stream, eventType string, elapsed time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	counts := m.getOrCreateStreamMetrics(stream)
	counts.Published++
	counts.LastUpdatedAt = time.Now()

	m.publishedTotal.WithLabelValues(stream, eventType).Inc()
	m.publishSeconds.WithLabelValues(stream).Observe(elapsed.Seconds())
}

// RecordPublishFailure records an append that errored.
func (m *Metrics) RecordPublishFailure(stream, eventType string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	counts := m.getOrCreateStreamMetrics(stream)
	counts.PublishFailures++
	counts.LastUpdatedAt = time.Now()

	m.publishFailuresTotal.WithLabelValues(stream, eventType).Inc()
}

// RecordConsumed records one processed delivery with its outcome.
func (m *Metrics) RecordConsumed(stream, group, outcome string, elapsed time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	counts := m.getOrCreateStreamMetrics(stream)
	counts.Consumed++
	switch outcome {
	case OutcomeHandler:
		counts.HandlerFailures++
	case OutcomeMalformed:
		counts.Malformed++
	case OutcomeUnhandled:
		counts.Unhandled++
	}
	counts.LastUpdatedAt = time.Now()

	m.consumedTotal.WithLabelValues(stream, group, outcome).Inc()
	m.handleSeconds.WithLabelValues(stream, group).Observe(elapsed.Seconds())
}

// RecordReclaimed records entries taken over during a recovery pass.
func (m *Metrics) RecordReclaimed(stream, group string, count int) {
	if count <= 0 {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	counts := m.getOrCreateStreamMetrics(stream)
	counts.Reclaimed += uint64(count)
	counts.LastUpdatedAt = time.Now()

	m.reclaimedTotal.WithLabelValues(stream, group).Add(float64(count))
}

// GetSnapshot returns a point-in-time snapshot of all stream metrics.
func (m *Metrics) GetSnapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snapshot := Snapshot{
		StreamMetrics: make(map[string]*StreamMetrics),
		CollectedAt:   time.Now(),
	}

	for stream, counts := range m.streamCounts {
		countsCopy := *counts
		snapshot.StreamMetrics[stream] = &countsCopy
		snapshot.TotalPublished += counts.Published
		snapshot.TotalConsumed += counts.Consumed
		snapshot.TotalReclaimed += counts.Reclaimed
	}

	return snapshot
}

// GetStreamMetrics returns counts for a specific stream, nil if the stream
// has never been touched.
func (m *Metrics) GetStreamMetrics(stream string) *StreamMetrics {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if counts, ok := m.streamCounts[stream]; ok {
		countsCopy := *counts
		return &countsCopy
	}
	return nil
}

func (m *Metrics) getOrCreateStreamMetrics(stream string) *StreamMetrics {
	if counts, ok := m.streamCounts[stream]; ok {
		return counts
	}
	counts := &StreamMetrics{}
	m.streamCounts[stream] = counts
	return counts
}

// Reset resets all metrics (useful for testing).
func (m *Metrics) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.streamCounts = make(map[string]*StreamMetrics)
	m.publishedTotal.Reset()
	m.publishFailuresTotal.Reset()
	m.consumedTotal.Reset()
	m.reclaimedTotal.Reset()
	m.publishSeconds.Reset()
	m.handleSeconds.Reset()
}
