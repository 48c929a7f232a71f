package kds

import (
	"github.com/prometheus/client_golang/prometheus"
)

type schedMetrics struct {
	submitted prometheus.Counter
	rejected  prometheus.Counter
}

func newSchedMetrics(reg prometheus.Registerer, s *Sched) *schedMetrics {
	m := &schedMetrics{
		submitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "xrt",
			Subsystem: "kds",
			Name:      "commands_submitted_total",
			Help:      "Commands accepted by the gateway.",
		}),
		rejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "xrt",
			Subsystem: "kds",
			Name:      "commands_rejected_total",
			Help:      "Submissions rejected at admission.",
		}),
	}
	liveClients := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "xrt",
		Subsystem: "kds",
		Name:      "live_clients",
		Help:      "Clients holding at least one open context.",
	}, func() float64 { return float64(len(s.LiveClients())) })
	if reg != nil {
		reg.MustRegister(m.submitted, m.rejected, liveClients)
	}
	return m
}
