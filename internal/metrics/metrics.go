// Package metrics registers the prometheus counters and gauges that
// cmd/vdo's stats and dump-work-queues messages render (spec §6, "Admin
// interface"; SPEC_FULL.md §3, "Metrics surface").
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry bundles every metric one VDO instance exposes. Callers register
// it with a prometheus.Registerer at startup; tests typically use a fresh
// prometheus.NewRegistry() instead of the global DefaultRegisterer so
// parallel tests don't collide on metric names.
type Registry struct {
	DataWrites   prometheus.Counter
	DataReads    prometheus.Counter
	DedupeHits   prometheus.Counter
	DedupeMisses prometheus.Counter
	ZeroWrites   prometheus.Counter

	LogicalBlocksUsed  prometheus.Gauge
	PhysicalBlocksUsed prometheus.Gauge
	PhysicalBlocksFree prometheus.Gauge

	SlabsRecovering prometheus.Gauge
	ReadOnly        prometheus.Gauge

	WorkQueueDepth *prometheus.GaugeVec
}

// NewRegistry constructs a Registry and registers every metric with reg.
func NewRegistry(reg prometheus.Registerer) *Registry {
	r := &Registry{
		DataWrites: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "vdo", Name: "data_writes_total", Help: "Total host write I/Os processed.",
		}),
		DataReads: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "vdo", Name: "data_reads_total", Help: "Total host read I/Os processed.",
		}),
		DedupeHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "vdo", Name: "dedupe_hits_total", Help: "Writes that shared an existing physical block.",
		}),
		DedupeMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "vdo", Name: "dedupe_misses_total", Help: "Writes that allocated a fresh physical block.",
		}),
		ZeroWrites: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "vdo", Name: "zero_writes_total", Help: "Writes elided to the shared zero block.",
		}),
		LogicalBlocksUsed: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "vdo", Name: "logical_blocks_used", Help: "Logical blocks currently mapped.",
		}),
		PhysicalBlocksUsed: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "vdo", Name: "physical_blocks_used", Help: "Physical blocks currently allocated from the depot.",
		}),
		PhysicalBlocksFree: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "vdo", Name: "physical_blocks_free", Help: "Physical blocks still free across all slabs.",
		}),
		SlabsRecovering: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "vdo", Name: "slabs_recovering", Help: "Slabs currently in the scrubbing state.",
		}),
		ReadOnly: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "vdo", Name: "read_only", Help: "1 if the device has entered read-only mode, else 0.",
		}),
		WorkQueueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "vdo", Name: "work_queue_depth", Help: "Pending items on each named work queue (dump-work-queues).",
		}, []string{"queue"}),
	}
	reg.MustRegister(
		r.DataWrites, r.DataReads, r.DedupeHits, r.DedupeMisses, r.ZeroWrites,
		r.LogicalBlocksUsed, r.PhysicalBlocksUsed, r.PhysicalBlocksFree,
		r.SlabsRecovering, r.ReadOnly, r.WorkQueueDepth,
	)
	return r
}

// RecordWrite updates the write-path counters for one completed data-vio
// write: exactly one of deduped or zeroBlock should be true, or neither for
// a fresh allocation.
func (r *Registry) RecordWrite(deduped, zeroBlock bool) {
	r.DataWrites.Inc()
	switch {
	case zeroBlock:
		r.ZeroWrites.Inc()
	case deduped:
		r.DedupeHits.Inc()
	default:
		r.DedupeMisses.Inc()
	}
}

// SetWorkQueueDepth reports queue's current pending-item count, for
// dump-work-queues.
func (r *Registry) SetWorkQueueDepth(queue string, depth int) {
	r.WorkQueueDepth.WithLabelValues(queue).Set(float64(depth))
}
