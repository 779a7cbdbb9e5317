package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/puzpuzpuz/xsync/v3"
)

// Counters holds the engine's cumulative operation counters. They are
// observability data only and never drive control flow.
type Counters struct {
	hitsShared *xsync.Counter
	hitsLocal  *xsync.Counter
	misses     *xsync.Counter
	writes     *xsync.Counter
	clears     *xsync.Counter
	errors     *xsync.Counter
}

func newCounters() *Counters {
	return &Counters{
		hitsShared: xsync.NewCounter(),
		hitsLocal:  xsync.NewCounter(),
		misses:     xsync.NewCounter(),
		writes:     xsync.NewCounter(),
		clears:     xsync.NewCounter(),
		errors:     xsync.NewCounter(),
	}
}

// CountersSnapshot is a point-in-time copy of the engine counters.
type CountersSnapshot struct {
	HitsShared int64
	HitsLocal  int64
	Misses     int64
	Writes     int64
	Clears     int64
	Errors     int64
}

// Snapshot returns a consistent-enough copy for external inspection.
func (c *Counters) Snapshot() CountersSnapshot {
	return CountersSnapshot{
		HitsShared: c.hitsShared.Value(),
		HitsLocal:  c.hitsLocal.Value(),
		Misses:     c.misses.Value(),
		Writes:     c.writes.Value(),
		Clears:     c.clears.Value(),
		Errors:     c.errors.Value(),
	}
}

var (
	descHits = prometheus.NewDesc(
		"kythia_cache_hits_total",
		"Cache hits, split by serving backend.",
		[]string{"backend"}, nil,
	)
	descMisses = prometheus.NewDesc(
		"kythia_cache_misses_total",
		"Cache misses that reached the repository.",
		nil, nil,
	)
	descWrites = prometheus.NewDesc(
		"kythia_cache_writes_total",
		"Entries written back to a cache backend.",
		nil, nil,
	)
	descClears = prometheus.NewDesc(
		"kythia_cache_clears_total",
		"Invalidation operations (tag or prefix).",
		nil, nil,
	)
	descErrors = prometheus.NewDesc(
		"kythia_cache_errors_total",
		"Swallowed cache-subsystem errors.",
		nil, nil,
	)
	descState = prometheus.NewDesc(
		"kythia_cache_connection_state",
		"Current connection state; 1 for the active state label.",
		[]string{"state"}, nil,
	)
)

// Collector exposes an Engine's counters and connection state to Prometheus.
type Collector struct {
	engine *Engine
}

// NewCollector wraps the engine for metrics scraping.
func NewCollector(e *Engine) *Collector {
	return &Collector{engine: e}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- descHits
	ch <- descMisses
	ch <- descWrites
	ch <- descClears
	ch <- descErrors
	ch <- descState
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	snap := c.engine.Counters().Snapshot()
	ch <- prometheus.MustNewConstMetric(descHits, prometheus.CounterValue, float64(snap.HitsShared), "shared")
	ch <- prometheus.MustNewConstMetric(descHits, prometheus.CounterValue, float64(snap.HitsLocal), "local")
	ch <- prometheus.MustNewConstMetric(descMisses, prometheus.CounterValue, float64(snap.Misses))
	ch <- prometheus.MustNewConstMetric(descWrites, prometheus.CounterValue, float64(snap.Writes))
	ch <- prometheus.MustNewConstMetric(descClears, prometheus.CounterValue, float64(snap.Clears))
	ch <- prometheus.MustNewConstMetric(descErrors, prometheus.CounterValue, float64(snap.Errors))

	current := c.engine.State()
	for _, state := range []ConnectionState{StateConnected, StateDisconnectedFallback, StateDisconnectedStrict} {
		v := 0.0
		if state == current {
			v = 1.0
		}
		ch <- prometheus.MustNewConstMetric(descState, prometheus.GaugeValue, v, string(state))
	}
}
