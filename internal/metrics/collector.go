// Package metrics exports engine activity as Prometheus collectors
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/standardbeagle/lexmark/internal/scheduler"
)

// Collector implements scheduler.Observer and records engine counters
type Collector struct {
	units         *prometheus.CounterVec
	leaves        prometheus.Counter
	annotations   prometheus.Counter
	evictions     *prometheus.CounterVec
	batchDuration prometheus.Histogram
	liveAnns      prometheus.Gauge
	poolEvents    *prometheus.CounterVec
	rehighlights  prometheus.Counter
}

var _ scheduler.Observer = (*Collector)(nil)

// NewCollector creates unregistered collectors
func NewCollector() *Collector {
	return &Collector{
		units: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lexmark_units_total",
			Help: "Processing units by final state",
		}, []string{"state", "kind"}),
		leaves: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lexmark_leaves_scanned_total",
			Help: "Text leaves scanned against the dictionary",
		}),
		annotations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lexmark_annotations_rendered_total",
			Help: "Annotations rendered",
		}),
		evictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lexmark_cache_evictions_total",
			Help: "Entries evicted from bounded caches",
		}, []string{"cache"}),
		batchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "lexmark_batch_duration_seconds",
			Help:    "Time spent in one scheduler batch",
			Buckets: []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25},
		}),
		liveAnns: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "lexmark_annotations_live",
			Help: "Annotations currently in the document",
		}),
		poolEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lexmark_pool_events_total",
			Help: "Annotation pool activity",
		}, []string{"event"}),
		rehighlights: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lexmark_rehighlights_total",
			Help: "Full rebuilds started",
		}),
	}
}

// Register adds every collector to reg
func (c *Collector) Register(reg prometheus.Registerer) error {
	for _, col := range []prometheus.Collector{
		c.units, c.leaves, c.annotations, c.evictions,
		c.batchDuration, c.liveAnns, c.poolEvents, c.rehighlights,
	} {
		if err := reg.Register(col); err != nil {
			return err
		}
	}
	return nil
}

// UnitFinished implements scheduler.Observer
func (c *Collector) UnitFinished(u *scheduler.Unit) {
	kind := "incremental"
	if u.Full {
		kind = "full"
	}
	c.units.WithLabelValues(u.State.String(), kind).Inc()
	c.leaves.Add(float64(u.Leaves))
	c.annotations.Add(float64(u.Annotations))
}

// BatchFinished implements scheduler.Observer
func (c *Collector) BatchFinished(_ int, elapsed time.Duration) {
	c.batchDuration.Observe(elapsed.Seconds())
}

// CacheEvicted implements scheduler.Observer
func (c *Collector) CacheEvicted(name string, evicted int) {
	c.evictions.WithLabelValues(name).Add(float64(evicted))
}

// SetLiveAnnotations records the size of the annotation registry
func (c *Collector) SetLiveAnnotations(n int) {
	c.liveAnns.Set(float64(n))
}

// PoolDelta records pool activity since the previous call
func (c *Collector) PoolDelta(reuses, discards int64) {
	if reuses > 0 {
		c.poolEvents.WithLabelValues("reuse").Add(float64(reuses))
	}
	if discards > 0 {
		c.poolEvents.WithLabelValues("discard").Add(float64(discards))
	}
}

// Rehighlight counts a full rebuild
func (c *Collector) Rehighlight() {
	c.rehighlights.Inc()
}
