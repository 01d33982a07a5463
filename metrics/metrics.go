// Package metrics provides optional Prometheus instrumentation for a
// Database. A nil *Recorder is always safe to call methods on (they become
// no-ops), so callers that do not care about metrics never need to check
// for nil themselves.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var registerOnce sync.Once

// Recorder holds the Prometheus collectors registered for one process.
// Collectors are package-level and registered at most once (mirroring the
// sync.Once-guarded prometheus.MustRegister pattern used for block
// allocator metrics in the wider ecosystem), so creating multiple Recorders
// in the same process is safe.
type Recorder struct {
	allocations   prometheus.Counter
	releases      prometheus.Counter
	flushes       prometheus.Counter
	compactions   prometheus.Counter
	bytesReclaimed prometheus.Counter
	committedHoles prometheus.Gauge
	pendingHoles   prometheus.Gauge
}

var (
	allocationsMetric = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "anydb",
		Subsystem: "freespace",
		Name:      "allocations_total",
		Help:      "Number of times the free-space map satisfied an allocate() call.",
	})
	releasesMetric = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "anydb",
		Subsystem: "freespace",
		Name:      "releases_total",
		Help:      "Number of times a byte range was released to the free-space map.",
	})
	flushesMetric = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "anydb",
		Subsystem: "database",
		Name:      "flushes_total",
		Help:      "Number of completed Database.Flush calls.",
	})
	compactionsMetric = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "anydb",
		Subsystem: "database",
		Name:      "compactions_total",
		Help:      "Number of completed Database.Compact calls.",
	})
	bytesReclaimedMetric = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "anydb",
		Subsystem: "database",
		Name:      "bytes_reclaimed_total",
		Help:      "Total bytes punched out of the data file by Compact.",
	})
	committedHolesMetric = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "anydb",
		Subsystem: "freespace",
		Name:      "committed_holes",
		Help:      "Current number of committed (reusable) holes.",
	})
	pendingHolesMetric = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "anydb",
		Subsystem: "freespace",
		Name:      "pending_holes",
		Help:      "Current number of pending (not yet flushed) holes.",
	})
)

// New returns a Recorder that reports into the default Prometheus registry,
// registering the collectors on first use.
func New() *Recorder {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			allocationsMetric, releasesMetric, flushesMetric,
			compactionsMetric, bytesReclaimedMetric,
			committedHolesMetric, pendingHolesMetric,
		)
	})
	return &Recorder{
		allocations:    allocationsMetric,
		releases:       releasesMetric,
		flushes:        flushesMetric,
		compactions:    compactionsMetric,
		bytesReclaimed: bytesReclaimedMetric,
		committedHoles: committedHolesMetric,
		pendingHoles:   pendingHolesMetric,
	}
}

func (r *Recorder) Allocation() {
	if r == nil {
		return
	}
	r.allocations.Inc()
}

func (r *Recorder) Release() {
	if r == nil {
		return
	}
	r.releases.Inc()
}

func (r *Recorder) Flush() {
	if r == nil {
		return
	}
	r.flushes.Inc()
}

func (r *Recorder) Compaction(bytesReclaimed int64) {
	if r == nil {
		return
	}
	r.compactions.Inc()
	r.bytesReclaimed.Add(float64(bytesReclaimed))
}

func (r *Recorder) SetHoleCounts(committed, pending int) {
	if r == nil {
		return
	}
	r.committedHoles.Set(float64(committed))
	r.pendingHoles.Set(float64(pending))
}
