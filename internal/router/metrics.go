package router

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "HTTP requests by server, route pattern and status code.",
	}, []string{"server", "route", "code"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency by server and route pattern.",
		Buckets: prometheus.DefBuckets,
	}, []string{"server", "route"})
)

// MetricsMiddleware records request count and latency. The route label is the
// ServeMux pattern that matched, so it must wrap the mux without replacing
// the *http.Request on the way in.
func MetricsMiddleware(server string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			lrw := &loggingResponseWriter{ResponseWriter: w}
			next.ServeHTTP(lrw, r)
			route := r.Pattern
			if route == "" {
				route = "unmatched"
			}
			requestsTotal.WithLabelValues(server, route, strconv.Itoa(lrw.statusCode())).Inc()
			requestDuration.WithLabelValues(server, route).Observe(time.Since(start).Seconds())
		})
	}
}
