package sandbox

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "hyperlight_js"

var (
	callsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "event_handler_calls_total",
		Help:      "Handler invocations, labeled by handler name and terminal outcome.",
	}, []string{"handler", "outcome"})

	callDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "event_handler_call_duration_seconds",
		Help:      "Wall-clock duration of handler invocations, labeled by terminal outcome.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"outcome"})
)

func init() {
	prometheus.MustRegister(callsTotal, callDuration)
}

// recordCallMetrics records the terminal outcome and wall-clock
// duration of one CallHandler invocation. outcome is one of "ok",
// "cancelled", "guest-abort", "stack-overflow", or "internal".
func recordCallMetrics(handler, outcome string, d time.Duration) {
	callsTotal.WithLabelValues(handler, outcome).Inc()
	callDuration.WithLabelValues(outcome).Observe(d.Seconds())
}
