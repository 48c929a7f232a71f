package xcu

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics is the prometheus instrumentation shared by the CUs of one device.
// All metrics are labeled by CU ("kernel:index"), completions also by
// terminal state.
type Metrics struct {
	queueDepth *prometheus.GaugeVec
	completed  *prometheus.CounterVec
	badState   *prometheus.GaugeVec
}

// NewMetrics builds and registers the CU metric set. A nil registerer
// registers nothing, which suits tests.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		queueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "xrt",
			Subsystem: "cu",
			Name:      "queue_depth",
			Help:      "Commands currently held in each CU queue.",
		}, []string{"cu", "queue"}),
		completed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "xrt",
			Subsystem: "cu",
			Name:      "commands_total",
			Help:      "Commands retired per CU, by terminal state.",
		}, []string{"cu", "state"}),
		badState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "xrt",
			Subsystem: "cu",
			Name:      "bad_state",
			Help:      "1 while the CU is in the unrecoverable-fault state.",
		}, []string{"cu"}),
	}
	if reg != nil {
		reg.MustRegister(m.queueDepth, m.completed, m.badState)
	}
	return m
}
