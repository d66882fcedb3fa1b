package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// CacheOperation identifies the cache method being instrumented.
type CacheOperation string

const (
	// CacheOperationLookup records session cache lookup calls.
	CacheOperationLookup CacheOperation = "lookup"
	// CacheOperationStore records session cache store attempts.
	CacheOperationStore CacheOperation = "store"
)

// CacheLookupOutcome captures the result of a cache lookup.
type CacheLookupOutcome string

const (
	// CacheLookupHit indicates the lookup reused a cached session.
	CacheLookupHit CacheLookupOutcome = "hit"
	// CacheLookupMiss indicates no cached session was present.
	CacheLookupMiss CacheLookupOutcome = "miss"
	// CacheLookupError indicates the lookup failed due to an error.
	CacheLookupError CacheLookupOutcome = "error"
)

// CacheStoreOutcome captures the result of a cache store attempt.
type CacheStoreOutcome string

const (
	// CacheStoreStored indicates the session cache entry was persisted.
	CacheStoreStored CacheStoreOutcome = "stored"
	// CacheStoreError indicates the store operation failed.
	CacheStoreError CacheStoreOutcome = "error"
)

// IdentityOutcome captures the result of a call to the identity service.
type IdentityOutcome string

const (
	// IdentityResolved indicates the identity service returned a session.
	IdentityResolved IdentityOutcome = "resolved"
	// IdentityError indicates the identity service call failed.
	IdentityError IdentityOutcome = "error"
)

// Recorder publishes Prometheus metrics for pipeline activity.
type Recorder struct {
	gatherer prometheus.Gatherer
	handler  http.Handler

	authRequests *prometheus.CounterVec
	authLatency  *prometheus.HistogramVec

	cacheOperations *prometheus.CounterVec
	cacheLatency    *prometheus.HistogramVec

	identityCalls   *prometheus.CounterVec
	identityLatency *prometheus.HistogramVec

	ruleReloads *prometheus.CounterVec
}

// NewRecorder constructs a Prometheus-backed Recorder. When reg is nil a dedicated
// registry is created so multiple recorders can coexist without conflicting with
// the global default registerer.
func NewRecorder(reg *prometheus.Registry) *Recorder {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	reg.MustRegister(
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)

	authRequests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "authgate",
		Subsystem: "auth",
		Name:      "requests_total",
		Help:      "Total /auth requests processed by the pipeline.",
	}, []string{"endpoint", "outcome", "status_code", "from_cache"})

	authLatency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "authgate",
		Subsystem: "auth",
		Name:      "request_duration_seconds",
		Help:      "Latency distribution for completed /auth requests.",
		Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
	}, []string{"endpoint", "outcome"})

	cacheOperations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "authgate",
		Subsystem: "cache",
		Name:      "operations_total",
		Help:      "Session cache operations executed by the pipeline.",
	}, []string{"endpoint", "operation", "result"})

	cacheLatency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "authgate",
		Subsystem: "cache",
		Name:      "operation_duration_seconds",
		Help:      "Latency distribution for session cache operations.",
		Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5},
	}, []string{"endpoint", "operation", "result"})

	identityCalls := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "authgate",
		Subsystem: "identity",
		Name:      "calls_total",
		Help:      "Calls made to the external identity service to resolve a session.",
	}, []string{"result"})

	identityLatency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "authgate",
		Subsystem: "identity",
		Name:      "call_duration_seconds",
		Help:      "Latency distribution for identity service calls.",
		Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
	}, []string{"result"})

	ruleReloads := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "authgate",
		Subsystem: "rules",
		Name:      "reloads_total",
		Help:      "Rule table reload attempts, by result.",
	}, []string{"result"})

	reg.MustRegister(authRequests, authLatency, cacheOperations, cacheLatency, identityCalls, identityLatency, ruleReloads)

	handler := promhttp.HandlerFor(reg, promhttp.HandlerOpts{})

	return &Recorder{
		gatherer:        reg,
		handler:         handler,
		authRequests:    authRequests,
		authLatency:     authLatency,
		cacheOperations: cacheOperations,
		cacheLatency:    cacheLatency,
		identityCalls:   identityCalls,
		identityLatency: identityLatency,
		ruleReloads:     ruleReloads,
	}
}

// Handler exposes the Prometheus HTTP handler for the recorder's registry.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "metrics unavailable", http.StatusServiceUnavailable)
		})
	}
	return r.handler
}

// Gatherer returns the underlying Prometheus gatherer for tests and advanced
// integrations.
func (r *Recorder) Gatherer() prometheus.Gatherer {
	if r == nil {
		return prometheus.NewRegistry()
	}
	return r.gatherer
}

// ObserveAuth records the outcome and latency for a completed /auth request.
func (r *Recorder) ObserveAuth(endpoint, outcome string, statusCode int, fromCache bool, duration time.Duration) {
	if r == nil {
		return
	}
	endpointLabel := normalizeLabel(endpoint)
	outcomeLabel := normalizeLabel(outcome)
	statusLabel := strconv.Itoa(statusCode)
	if statusCode <= 0 {
		statusLabel = "unknown"
	}
	cacheLabel := "false"
	if fromCache {
		cacheLabel = "true"
	}
	r.authRequests.WithLabelValues(endpointLabel, outcomeLabel, statusLabel, cacheLabel).Inc()
	r.authLatency.WithLabelValues(endpointLabel, outcomeLabel).Observe(duration.Seconds())
}

// ObserveCacheLookup records the result of a cache lookup.
func (r *Recorder) ObserveCacheLookup(endpoint string, result CacheLookupOutcome, duration time.Duration) {
	if r == nil {
		return
	}
	endpointLabel := normalizeLabel(endpoint)
	resultLabel := string(result)
	if resultLabel == "" {
		resultLabel = string(CacheLookupMiss)
	}
	r.observeCache(endpointLabel, CacheOperationLookup, resultLabel, duration)
}

// ObserveCacheStore records the result of a cache store attempt.
func (r *Recorder) ObserveCacheStore(endpoint string, result CacheStoreOutcome, duration time.Duration) {
	if r == nil {
		return
	}
	endpointLabel := normalizeLabel(endpoint)
	resultLabel := string(result)
	if resultLabel == "" {
		resultLabel = string(CacheStoreError)
	}
	r.observeCache(endpointLabel, CacheOperationStore, resultLabel, duration)
}

func (r *Recorder) observeCache(endpoint string, operation CacheOperation, result string, duration time.Duration) {
	opLabel := string(operation)
	if opLabel == "" {
		opLabel = string(CacheOperationLookup)
	}
	resLabel := normalizeLabel(result)
	r.cacheOperations.WithLabelValues(endpoint, opLabel, resLabel).Inc()
	r.cacheLatency.WithLabelValues(endpoint, opLabel, resLabel).Observe(duration.Seconds())
}

// ObserveIdentity records the result and latency of a call to the identity
// service.
func (r *Recorder) ObserveIdentity(result IdentityOutcome, duration time.Duration) {
	if r == nil {
		return
	}
	resultLabel := string(result)
	if resultLabel == "" {
		resultLabel = string(IdentityError)
	}
	r.identityCalls.WithLabelValues(resultLabel).Inc()
	r.identityLatency.WithLabelValues(resultLabel).Observe(duration.Seconds())
}

// ObserveRuleReload records the outcome of a rule table reload attempt.
func (r *Recorder) ObserveRuleReload(ok bool) {
	if r == nil {
		return
	}
	result := "success"
	if !ok {
		result = "error"
	}
	r.ruleReloads.WithLabelValues(result).Inc()
}

func normalizeLabel(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return "unknown"
	}
	return trimmed
}
