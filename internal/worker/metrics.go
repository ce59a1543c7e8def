package worker

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	executionsClaimed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "nodeflow",
		Subsystem: "processor",
		Name:      "executions_claimed_total",
		Help:      "Executions claimed by this processor.",
	})

	claimConflicts = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "nodeflow",
		Subsystem: "processor",
		Name:      "claim_conflicts_total",
		Help:      "Claims lost to another processor.",
	})

	executionsFinished = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "nodeflow",
		Subsystem: "processor",
		Name:      "executions_finished_total",
		Help:      "Executions finalized, by terminal status.",
	}, []string{"status"})

	stepsPersisted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "nodeflow",
		Subsystem: "processor",
		Name:      "steps_persisted_total",
		Help:      "Execution steps written, by status.",
	}, []string{"status"})

	staleSwept = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "nodeflow",
		Subsystem: "processor",
		Name:      "stale_executions_total",
		Help:      "Running executions failed by the stale sweep.",
	})

	executionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "nodeflow",
		Subsystem: "processor",
		Name:      "execution_duration_seconds",
		Help:      "Wall time from claim to finish.",
		Buckets:   prometheus.ExponentialBuckets(0.01, 4, 10),
	})
)
