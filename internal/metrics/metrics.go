// ABOUTME: Prometheus instruments for backend requests and query cache events.
// ABOUTME: Optionally serves /metrics for long-running modes such as the MCP server.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Cache event labels.
const (
	CacheHit        = "hit"
	CacheMiss       = "miss"
	CacheShared     = "shared"
	CacheInvalidate = "invalidate"
	CacheRefetch    = "refetch"
	CacheEvict      = "evict"
)

var (
	Requests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "backstage_api_requests_total",
		Help: "Backend requests by endpoint and status code (0 for transport failures)",
	}, []string{"endpoint", "status"})
	RequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "backstage_api_request_duration_seconds",
		Help:    "Backend request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"endpoint"})
	CacheEvents = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "backstage_cache_events_total",
		Help: "Query cache events by endpoint",
	}, []string{"endpoint", "event"})
	SessionWrites = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "backstage_session_writes_total",
		Help: "Session persistence attempts by outcome",
	}, []string{"outcome"})
)

func init() {
	prometheus.MustRegister(Requests, RequestDuration, CacheEvents, SessionWrites)
}

// ObserveRequest records one backend call.
func ObserveRequest(endpoint string, status int, start time.Time) {
	Requests.WithLabelValues(endpoint, strconv.Itoa(status)).Inc()
	RequestDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
}

// IncCache counts a cache event for an endpoint.
func IncCache(endpoint, event string) {
	CacheEvents.WithLabelValues(endpoint, event).Inc()
}

// IncSessionWrite counts a session persistence attempt.
func IncSessionWrite(err error) {
	if err != nil {
		SessionWrites.WithLabelValues("error").Inc()
		return
	}
	SessionWrites.WithLabelValues("ok").Inc()
}

// Handler returns the HTTP handler serving /metrics and /health.
func Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	return mux
}

// StartServer serves Handler on addr in the background. An empty addr is a no-op.
// The returned function shuts the listener down.
func StartServer(addr string) func() {
	if addr == "" {
		return func() {}
	}
	srv := &http.Server{Addr: addr, Handler: Handler(), ReadHeaderTimeout: 5 * time.Second}
	go func() { _ = srv.ListenAndServe() }()
	return func() { _ = srv.Close() }
}
