// Package metrics exposes Prometheus counters for the schedule engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Collector holds the engine's counters. A nil *Collector is valid and
// records nothing, so the scheduler can run without metrics wired.
type Collector struct {
	rollovers        *prometheus.CounterVec
	eventsCompleted  prometheus.Counter
	eventsMissed     prometheus.Counter
	snapshotFailures prometheus.Counter
	archiveSkipped   prometheus.Counter
}

// NewCollector registers the engine metrics with reg (the default registerer
// when nil).
func NewCollector(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	c := &Collector{
		rollovers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "titra_rollovers_total",
			Help: "Daily rollover activations by detected state",
		}, []string{"state"}),
		eventsCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "titra_events_completed_total",
			Help: "Schedule events completed by the user",
		}),
		eventsMissed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "titra_events_missed_total",
			Help: "Schedule events archived as missed during rollover",
		}),
		snapshotFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "titra_snapshot_failures_total",
			Help: "Working-set snapshot reads discarded as corrupt",
		}),
		archiveSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "titra_archive_skipped_records_total",
			Help: "Malformed archive rows skipped during reads",
		}),
	}
	reg.MustRegister(c.rollovers, c.eventsCompleted, c.eventsMissed, c.snapshotFailures, c.archiveSkipped)
	return c
}

// RecordRollover counts one activation in the given state (fresh, same_day,
// stale).
func (c *Collector) RecordRollover(state string) {
	if c == nil {
		return
	}
	c.rollovers.WithLabelValues(state).Inc()
}

func (c *Collector) RecordCompleted() {
	if c == nil {
		return
	}
	c.eventsCompleted.Inc()
}

func (c *Collector) RecordMissed(n int) {
	if c == nil {
		return
	}
	c.eventsMissed.Add(float64(n))
}

func (c *Collector) RecordSnapshotFailure() {
	if c == nil {
		return
	}
	c.snapshotFailures.Inc()
}

func (c *Collector) RecordArchiveSkipped(n int) {
	if c == nil || n <= 0 {
		return
	}
	c.archiveSkipped.Add(float64(n))
}
