package controller

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type metrics struct {
	executedPrimitives prometheus.Counter
	completedMM        prometheus.Counter
	queueDepth         prometheus.Gauge
	stateTransitions   *prometheus.CounterVec
	pipelineErrors     prometheus.Counter
}

func newMetrics(reg prometheus.Registerer) *metrics {
	return &metrics{
		executedPrimitives: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Namespace: "cnc",
			Name:      "executed_primitives_total",
			Help:      "Motion primitives handed to the executor.",
		}),
		completedMM: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Namespace: "cnc",
			Name:      "completed_motion_mm_total",
			Help:      "Cumulative executed motion length in millimeters.",
		}),
		queueDepth: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Namespace: "cnc",
			Name:      "ready_queue_depth",
			Help:      "Primitives buffered ahead of the executor.",
		}),
		stateTransitions: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: "cnc",
			Name:      "state_transitions_total",
			Help:      "Controller state transitions.",
		}, []string{"from", "to"}),
		pipelineErrors: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Namespace: "cnc",
			Name:      "pipeline_errors_total",
			Help:      "Fail-fast pipeline errors.",
		}),
	}
}
