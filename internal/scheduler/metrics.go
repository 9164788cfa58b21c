package scheduler

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	tasksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "transcription_tasks_total",
			Help: "Total finished transcription tasks by terminal outcome.",
		},
		[]string{"status"}, // status: completed, failed, canceled, timeout
	)

	queueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "transcription_queue_depth",
			Help: "Tasks currently waiting in the dispatch queue.",
		},
	)

	tasksRunning = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "transcription_tasks_running",
			Help: "Tasks currently occupying a worker slot.",
		},
	)

	recoveredTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "transcription_recovered_total",
			Help: "Tasks touched by startup recovery by outcome.",
		},
		[]string{"outcome"}, // outcome: interrupted, requeued, dropped
	)
)

func recordOutcome(status string) {
	tasksTotal.WithLabelValues(status).Inc()
}
