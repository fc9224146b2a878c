// ABOUTME: Prometheus metrics for remote agent API calls
// ABOUTME: Counts calls by path and status and observes their latency

package agentapi

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	callsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agentchat_agent_calls_total",
			Help: "Total remote agent API calls",
		},
		[]string{"path", "status"},
	)

	callDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "agentchat_agent_call_duration_seconds",
			Help:    "Remote agent API call duration",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"path"},
	)
)

func observeCall(path string, status int, d time.Duration) {
	callsTotal.WithLabelValues(path, statusLabel(status)).Inc()
	callDuration.WithLabelValues(path).Observe(d.Seconds())
}
