package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// jobsTotal counts summary job transitions.
	// Labels: status (submitted, completed, failed, cancelled)
	jobsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "hopstats",
		Subsystem: "jobs",
		Name:      "total",
		Help:      "Summary job transitions by status",
	}, []string{"status"})

	// jobDuration measures the aggregation time of completed jobs
	jobDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "hopstats",
		Subsystem: "jobs",
		Name:      "duration_seconds",
		Help:      "Aggregation time of completed summary jobs",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 30},
	})

	extractedRecords = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "hopstats",
		Subsystem: "extraction",
		Name:      "records_total",
		Help:      "RunRecords produced by synchronous extractions",
	})
)

func recordJob(status string) {
	jobsTotal.WithLabelValues(status).Inc()
}
