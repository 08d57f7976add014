package metrics

import (
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	lastProcessedBlock = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "didindexor_last_processed_block",
			Help: "The checkpoint block: every registry event up to it is applied",
		},
	)

	indexerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "didindexor_indexer_state",
			Help: "1 for the current indexer state, 0 for the others",
		},
		[]string{"state"},
	)

	batches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "didindexor_batches_total",
			Help: "Number of processed batches by outcome",
		},
		[]string{"outcome"},
	)

	batchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "didindexor_batch_duration_seconds",
			Help:    "Time taken to fetch, verify and apply one batch",
			Buckets: prometheus.DefBuckets,
		},
	)

	blocksProcessed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "didindexor_blocks_processed_total",
			Help: "Total number of blocks covered by committed batches",
		},
	)

	eventsApplied = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "didindexor_events_total",
			Help: "Registry events handled by kind and status (applied, faulted, replayed)",
		},
		[]string{"kind", "status"},
	)

	consistencyFaults = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "didindexor_consistency_faults_total",
			Help: "Consistency faults recorded by reason",
		},
		[]string{"reason"},
	)

	decodeSkips = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "didindexor_unknown_events_total",
			Help: "Logs skipped because their signature is not a registry event",
		},
	)

	rollbacks = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "didindexor_reorg_rollbacks_total",
			Help: "Number of projection rollbacks performed after a reorg",
		},
	)

	uptime = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "didindexor_uptime_seconds",
			Help: "Application uptime in seconds",
		},
	)

	componentHealth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "didindexor_component_health",
			Help: "Component health status (1=healthy, 0=unhealthy)",
		},
		[]string{"component"},
	)

	goroutines = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "didindexor_goroutines",
			Help: "Number of active goroutines",
		},
	)

	memoryUsage = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "didindexor_memory_usage_bytes",
			Help: "Memory usage statistics",
		},
		[]string{"type"},
	)

	startTime = time.Now()
)

// IndexerStates lists the label values of the indexer state gauge.
var IndexerStates = []string{"idle", "running", "failed"}

func LastProcessedBlockSet(blockNum uint64) {
	lastProcessedBlock.Set(float64(blockNum))
}

func IndexerStateSet(state string) {
	for _, s := range IndexerStates {
		v := 0.0
		if s == state {
			v = 1
		}
		indexerState.WithLabelValues(s).Set(v)
	}
}

func BatchLog(outcome string, duration time.Duration, blocks uint64) {
	batches.WithLabelValues(outcome).Inc()
	batchDuration.Observe(duration.Seconds())
	blocksProcessed.Add(float64(blocks))
}

func EventInc(kind, status string) {
	eventsApplied.WithLabelValues(kind, status).Inc()
}

func ConsistencyFaultInc(reason string) {
	consistencyFaults.WithLabelValues(reason).Inc()
}

func UnknownEventInc() {
	decodeSkips.Inc()
}

func RollbackInc() {
	rollbacks.Inc()
}

func ComponentHealthSet(component string, healthy bool) {
	v := 1.0
	if !healthy {
		v = 0
	}
	componentHealth.WithLabelValues(component).Set(v)
}

// UpdateSystemMetrics refreshes runtime gauges.
func UpdateSystemMetrics() {
	uptime.Set(time.Since(startTime).Seconds())
	goroutines.Set(float64(runtime.NumGoroutine()))

	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	memoryUsage.WithLabelValues("alloc").Set(float64(m.Alloc))
	memoryUsage.WithLabelValues("total_alloc").Set(float64(m.TotalAlloc))
	memoryUsage.WithLabelValues("sys").Set(float64(m.Sys))
	memoryUsage.WithLabelValues("heap_inuse").Set(float64(m.HeapInuse))
}
