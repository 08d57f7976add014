package db

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	maintenanceRuns = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "didindexor_maintenance_runs_total",
			Help: "Total number of maintenance operations",
		},
	)

	maintenanceOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "didindexor_maintenance_outcomes_total",
			Help: "Total number of maintenance operations by outcome",
		},
		[]string{"status"},
	)

	maintenanceDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "didindexor_maintenance_duration_seconds",
			Help:    "Duration of maintenance operations",
			Buckets: prometheus.DefBuckets,
		},
	)

	maintenanceLastRun = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "didindexor_maintenance_last_run_timestamp",
			Help: "Unix timestamp of last maintenance run",
		},
	)

	maintenanceSpaceReclaimed = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "didindexor_maintenance_space_reclaimed_bytes",
			Help: "Bytes reclaimed by last maintenance operation",
		},
	)

	walCheckpoints = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "didindexor_wal_checkpoint_total",
			Help: "Total number of WAL checkpoint operations",
		},
		[]string{"mode"},
	)

	vacuumRuns = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "didindexor_vacuum_total",
			Help: "Total number of VACUUM operations",
		},
	)

	dbSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "didindexor_db_size_bytes",
			Help: "Database size in bytes including WAL and shared memory files",
		},
	)
)

func maintenanceRunsInc() {
	maintenanceRuns.Inc()
}

func maintenanceDurationLog(duration time.Duration) {
	maintenanceDuration.Observe(duration.Seconds())
	maintenanceLastRun.Set(float64(time.Now().UTC().Unix()))
}

func maintenanceOutcomeInc(err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	maintenanceOutcomes.WithLabelValues(status).Inc()
}

func maintenanceSpaceReclaimedLog(bytesReclaimed int64) {
	maintenanceSpaceReclaimed.Set(float64(bytesReclaimed))
}

func walCheckpointInc(mode string) {
	walCheckpoints.WithLabelValues(mode).Inc()
}

// VacuumRunsInc counts a completed VACUUM.
func VacuumRunsInc() {
	vacuumRuns.Inc()
}

// DBSizeLog records the current database size.
func DBSizeLog(sizeBytes int64) {
	dbSize.Set(float64(sizeBytes))
}
