package fetcher

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	confirmedHead = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "didindexor_confirmed_head_block",
			Help: "Highest block eligible for indexing under the configured finality",
		},
	)

	rangeSplits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "didindexor_log_range_splits_total",
			Help: "Number of times a log range was shrunk because the provider returned too many results",
		},
	)

	logsFetched = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "didindexor_logs_fetched_total",
			Help: "Number of registry logs fetched",
		},
	)
)

func confirmedHeadSet(blockNum uint64) {
	confirmedHead.Set(float64(blockNum))
}

func rangeSplitInc() {
	rangeSplits.Inc()
}

func logsFetchedAdd(n int) {
	logsFetched.Add(float64(n))
}
