package reasoning

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	outcomeSuccess = "success"
	outcomeError   = "error"
)

var (
	runsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ragcore",
			Subsystem: "reasoning",
			Name:      "runs_total",
			Help:      "Reasoning pipeline runs, by outcome.",
		},
		[]string{"outcome"},
	)

	stepsPerRun = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "ragcore",
			Subsystem: "reasoning",
			Name:      "steps",
			Help:      "Steps recorded per reasoning run.",
			Buckets:   prometheus.LinearBuckets(1, 1, 8),
		},
	)
)
