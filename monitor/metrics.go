package monitor

import "github.com/prometheus/client_golang/prometheus"

const namespace = "hyperlight_js"

var monitorTerminationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Name:      "monitor_terminations_total",
	Help:      "Guest calls terminated by a monitor, labeled by the monitor that fired.",
}, []string{"monitor_type"})

func init() {
	prometheus.MustRegister(monitorTerminationsTotal)
}

// RecordTermination increments monitor-terminations-total for the
// monitor that won a race, per spec.md §4.2 step 5.
func RecordTermination(monitorType string) {
	monitorTerminationsTotal.WithLabelValues(monitorType).Inc()
}
