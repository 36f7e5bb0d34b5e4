package httpapi

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "role_gateway",
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "role_gateway",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"method", "path"},
	)

	httpRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "role_gateway",
			Name:      "http_requests_in_flight",
			Help:      "Number of HTTP requests currently being processed",
		},
	)

	roleResolutions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "role_gateway",
			Name:      "role_resolutions_total",
			Help:      "Role resolutions by role and outcome",
		},
		[]string{"role", "result"}, // result: granted, denied, error
	)
)

func observeResolution(role string, granted bool, err error) {
	result := "denied"
	switch {
	case err != nil:
		result = "error"
	case granted:
		result = "granted"
	}
	roleResolutions.WithLabelValues(role, result).Inc()
}
