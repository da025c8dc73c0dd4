// Package metrics exposes pipeline counters to Prometheus.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "secureflow"

// Collector records ingestion and scoring activity. A nil *Collector is a
// valid no-op.
type Collector struct {
	ingestions      *prometheus.CounterVec
	scoringFailures *prometheus.CounterVec
	recordsScored   prometheus.Counter
	activeThreats   prometheus.Gauge
	scoringDuration prometheus.Histogram
	sessions        prometheus.Gauge
}

// New creates a Collector and registers it with reg.
func New(reg prometheus.Registerer) *Collector {
	c := &Collector{
		ingestions: prometheus.NewCounterVec(
			prometheus.CounterOpts{Namespace: namespace, Subsystem: "ingest", Name: "total", Help: "Ingestion calls by outcome."},
			[]string{"outcome"},
		),
		scoringFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{Namespace: namespace, Subsystem: "scoring", Name: "failures_total", Help: "Failed scoring runs by reason."},
			[]string{"reason"},
		),
		recordsScored: prometheus.NewCounter(
			prometheus.CounterOpts{Namespace: namespace, Subsystem: "scoring", Name: "records_total", Help: "Records labeled by the scoring engine."},
		),
		activeThreats: prometheus.NewGauge(
			prometheus.GaugeOpts{Namespace: namespace, Subsystem: "scoring", Name: "active_threats", Help: "Threat-labeled records in the most recently scored batch."},
		),
		scoringDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "scoring",
				Name:      "duration_seconds",
				Help:      "Model fit and labeling time per batch.",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
		),
		sessions: prometheus.NewGauge(
			prometheus.GaugeOpts{Namespace: namespace, Name: "sessions_open", Help: "Open sessions."},
		),
	}

	reg.MustRegister(c.ingestions, c.scoringFailures, c.recordsScored, c.activeThreats, c.scoringDuration, c.sessions)
	return c
}

// ObserveIngest counts an ingestion outcome.
func (c *Collector) ObserveIngest(outcome string) {
	if c == nil {
		return
	}
	c.ingestions.WithLabelValues(outcome).Inc()
}

// ObserveScore records a successful scoring run.
func (c *Collector) ObserveScore(d time.Duration, records, threats int) {
	if c == nil {
		return
	}
	c.scoringDuration.Observe(d.Seconds())
	c.recordsScored.Add(float64(records))
	c.activeThreats.Set(float64(threats))
}

// ObserveScoringFailure counts a failed scoring run.
func (c *Collector) ObserveScoringFailure(reason string) {
	if c == nil {
		return
	}
	c.scoringFailures.WithLabelValues(reason).Inc()
}

// SessionOpened increments the open session gauge.
func (c *Collector) SessionOpened() {
	if c == nil {
		return
	}
	c.sessions.Inc()
}

// SessionClosed decrements the open session gauge.
func (c *Collector) SessionClosed() {
	if c == nil {
		return
	}
	c.sessions.Dec()
}
