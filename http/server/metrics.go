package server

import (
	"net/http"
	"strconv"

	"github.com/felixge/httpsnoop"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "go_extask_http_requests_total",
		Help: "Total number of HTTP requests, handled by the server.",
	}, []string{"method", "pattern", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "go_extask_http_request_duration_seconds",
		Help:    "Duration of HTTP requests, including long polling.",
		Buckets: []float64{0.005, 0.025, 0.1, 0.5, 1, 5, 15, 30, 60},
	}, []string{"method", "pattern"})
)

// metricsHandler records request metrics, labeled with the pattern of the matched route.
// It must directly wrap the mux, since the pattern is set on the request by the mux.
type metricsHandler struct {
	handler http.Handler
}

func (h *metricsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	m := httpsnoop.CaptureMetrics(h.handler, w, r)

	pattern := r.Pattern
	if pattern == "" || pattern == "/" {
		pattern = "unmatched"
	}

	httpRequestsTotal.WithLabelValues(r.Method, pattern, strconv.Itoa(m.Code)).Inc()
	httpRequestDuration.WithLabelValues(r.Method, pattern).Observe(m.Duration.Seconds())
}
