package lindex

import (
	"github.com/prometheus/client_golang/prometheus"

	"lindex/pkg/morph"
)

var (
	keyCountDesc = prometheus.NewDesc(
		"lindex_key_count", "Number of live keys the index believes it holds.", nil, nil)
	splitTotalDesc = prometheus.NewDesc(
		"lindex_split_total", "Total leaf splits performed.", nil, nil)
	epochPendingDesc = prometheus.NewDesc(
		"lindex_epoch_pending", "Retired nodes awaiting epoch reclamation.", nil, nil)
)

// collector adapts Index.Stats() and the morph engine's own collector into
// one prometheus.Collector, the same registration-time composition
// cc-backend uses for its exported server metrics.
type collector struct {
	idx   *Index
	morph *morph.Collector
}

func (c *collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- keyCountDesc
	ch <- splitTotalDesc
	ch <- epochPendingDesc
	c.morph.Describe(ch)
}

func (c *collector) Collect(ch chan<- prometheus.Metric) {
	s := c.idx.Stats()
	ch <- prometheus.MustNewConstMetric(keyCountDesc, prometheus.GaugeValue, float64(s.KeyCount))
	ch <- prometheus.MustNewConstMetric(splitTotalDesc, prometheus.CounterValue, float64(s.SplitCount))
	ch <- prometheus.MustNewConstMetric(epochPendingDesc, prometheus.GaugeValue, float64(s.EpochPending))
	c.morph.Collect(ch)
}
