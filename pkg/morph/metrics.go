package morph

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

// Stats are the engine's activity counters. They're plain atomics rather
// than prometheus counters directly so Engine has no registry dependency;
// Collector below adapts a Stats into one for callers that want to expose
// it.
type Stats struct {
	attempted     atomic.Int64
	applied       atomic.Int64
	skippedLocked atomic.Int64
	dropped       atomic.Int64
}

// StatsSnapshot is a point-in-time copy of Stats.
type StatsSnapshot struct {
	Attempted     int64
	Applied       int64
	SkippedLocked int64
	Dropped       int64
}

func (s *Stats) snapshot() StatsSnapshot {
	return StatsSnapshot{
		Attempted:     s.attempted.Load(),
		Applied:       s.applied.Load(),
		SkippedLocked: s.skippedLocked.Load(),
		Dropped:       s.dropped.Load(),
	}
}

var (
	morphAttemptedDesc = prometheus.NewDesc(
		"lindex_morph_attempted_total", "Leaf morphs attempted.", nil, nil)
	morphAppliedDesc = prometheus.NewDesc(
		"lindex_morph_applied_total", "Leaf morphs that completed and swapped in a new leaf.", nil, nil)
	morphSkippedDesc = prometheus.NewDesc(
		"lindex_morph_skipped_locked_total", "Morph judgments skipped because the leaf's node lock was held.", nil, nil)
	morphDroppedDesc = prometheus.NewDesc(
		"lindex_morph_dropped_total", "Background morph jobs dropped because the queue was full.", nil, nil)
)

// Collector adapts an Engine's Stats into a prometheus.Collector, for a
// caller to register alongside the rest of the index's metrics.
type Collector struct {
	engine *Engine
}

// NewCollector wraps e for registration with a prometheus.Registerer.
func NewCollector(e *Engine) *Collector {
	return &Collector{engine: e}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- morphAttemptedDesc
	ch <- morphAppliedDesc
	ch <- morphSkippedDesc
	ch <- morphDroppedDesc
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	s := c.engine.Stats()
	ch <- prometheus.MustNewConstMetric(morphAttemptedDesc, prometheus.CounterValue, float64(s.Attempted))
	ch <- prometheus.MustNewConstMetric(morphAppliedDesc, prometheus.CounterValue, float64(s.Applied))
	ch <- prometheus.MustNewConstMetric(morphSkippedDesc, prometheus.CounterValue, float64(s.SkippedLocked))
	ch <- prometheus.MustNewConstMetric(morphDroppedDesc, prometheus.CounterValue, float64(s.Dropped))
}
