package obs

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "http_in_flight_requests",
		Help: "In-flight HTTP requests.",
	})

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	credentialIssued = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "crew_credentials_issued_total",
		Help: "Credential bundles generated by onboarding transitions.",
	})
)

// Init registers service metrics with the default registry.
func Init() {
	prometheus.MustRegister(httpInFlight, httpRequestsTotal, httpRequestDuration, credentialIssued)
}

// Handler exposes the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// CredentialIssued counts one generated credential bundle.
func CredentialIssued() {
	credentialIssued.Inc()
}

// Instrument wraps a handler with RPS, latency and in-flight metrics.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httpInFlight.Inc()
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, code: 200}
		next.ServeHTTP(sw, r)

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(sw.code)
		path := CanonicalPath(r.URL.Path)

		httpRequestDuration.WithLabelValues(r.Method, path, status).Observe(duration)
		httpRequestsTotal.WithLabelValues(r.Method, path, status).Inc()
		httpInFlight.Dec()
	})
}

// resourceRoots are the collections served under /v1/<root>/<id>.
var resourceRoots = map[string]bool{
	"crew":         true,
	"companies":    true,
	"ships":        true,
	"certificates": true,
	"incidents":    true,
	"assessments":  true,
	"activity":     true,
}

// CanonicalPath folds row ids out of a request path so metric label
// cardinality stays bounded. Unknown shapes pass through unchanged.
func CanonicalPath(path string) string {
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	if path == "" {
		return "/"
	}
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) < 3 || parts[0] != "v1" || !resourceRoots[parts[1]] {
		return path
	}
	// /v1/crew/status is an operation, not a row.
	if parts[1] == "crew" && parts[2] == "status" {
		return path
	}
	switch len(parts) {
	case 3:
		return "/v1/" + parts[1] + "/:id"
	case 4:
		if parts[1] == "crew" && parts[3] == "password" {
			return "/v1/crew/:id/password"
		}
	}
	return path
}

// statusWriter captures the response code for labeling.
type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}
