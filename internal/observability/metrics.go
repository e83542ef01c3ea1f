package observability

import (
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/yungbote/branchgraph/internal/platform/logger"
)

const namespace = "branchgraph"

type Metrics struct {
	registry *prometheus.Registry

	apiRequests *prometheus.CounterVec
	apiLatency  *prometheus.HistogramVec
	apiInflight prometheus.Gauge

	aggregateLatency   *prometheus.HistogramVec
	aggregateConflicts *prometheus.CounterVec
	aggregateRetries   *prometheus.CounterVec
	aggregateAttempts  *prometheus.HistogramVec

	mergeEdges      *prometheus.CounterVec
	diffPaths       *prometheus.HistogramVec
	branchEvents    *prometheus.CounterVec
	reconcileChange *prometheus.CounterVec
}

var (
	initOnce sync.Once
	instance *Metrics
)

func Enabled() bool {
	v := strings.TrimSpace(os.Getenv("METRICS_ENABLED"))
	if v == "" {
		return false
	}
	return strings.EqualFold(v, "true") || v == "1" || strings.EqualFold(v, "yes")
}

func Current() *Metrics {
	return instance
}

// Init builds the process-wide metrics once. It returns nil when metrics are
// disabled; every method is a no-op on a nil receiver.
func Init(log *logger.Logger) *Metrics {
	if !Enabled() {
		return nil
	}
	initOnce.Do(func() {
		instance = New()
		if log != nil {
			log.Info("prometheus metrics initialized")
		}
	})
	return instance
}

// New builds metrics on a private registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		apiRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "api", Name: "requests_total",
			Help: "Total API requests by method/route/status.",
		}, []string{"method", "route", "status"}),
		apiLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "api", Name: "request_duration_seconds",
			Help:    "API request latency in seconds by method/route/status.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		}, []string{"method", "route", "status"}),
		apiInflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "api", Name: "inflight_requests",
			Help: "In-flight API requests.",
		}),
		aggregateLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "aggregate", Name: "operation_duration_seconds",
			Help:    "Graph write operation latency by operation/status.",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"op", "status"}),
		aggregateConflicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "aggregate", Name: "conflicts_total",
			Help: "Graph writes rejected by a concurrency conflict.",
		}, []string{"op"}),
		aggregateRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "aggregate", Name: "retries_total",
			Help: "Graph write retries after a transient store failure, by the code that caused them.",
		}, []string{"op", "code"}),
		aggregateAttempts: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "aggregate", Name: "transaction_attempts",
			Help:    "Transactions attempted per graph write.",
			Buckets: []float64{1, 2, 3, 5, 8},
		}, []string{"op"}),
		mergeEdges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "merge", Name: "edges_total",
			Help: "Edges written by merges, by action (created, closed, skipped).",
		}, []string{"action"}),
		diffPaths: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "diff", Name: "modified_paths",
			Help:    "Modified paths found per branch scan.",
			Buckets: prometheus.ExponentialBuckets(1, 4, 8),
		}, []string{"branch_kind"}),
		branchEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "branch", Name: "events_total",
			Help: "Branch lifecycle events by type.",
		}, []string{"type"}),
		reconcileChange: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "relationship", Name: "changes_total",
			Help: "Relationship reconciliation outcomes by action.",
		}, []string{"action"}),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.apiRequests, m.apiLatency, m.apiInflight,
		m.aggregateLatency, m.aggregateConflicts, m.aggregateRetries, m.aggregateAttempts,
		m.mergeEdges, m.diffPaths, m.branchEvents, m.reconcileChange,
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) ObserveAPI(method, route, status string, dur time.Duration) {
	if m == nil {
		return
	}
	if method == "" {
		method = "UNKNOWN"
	}
	if route == "" {
		route = "unknown"
	}
	if status == "" {
		status = "0"
	}
	m.apiRequests.WithLabelValues(method, route, status).Inc()
	m.apiLatency.WithLabelValues(method, route, status).Observe(dur.Seconds())
}

func (m *Metrics) ApiInflightInc() {
	if m == nil {
		return
	}
	m.apiInflight.Inc()
}

func (m *Metrics) ApiInflightDec() {
	if m == nil {
		return
	}
	m.apiInflight.Dec()
}

func (m *Metrics) ObserveAggregateOperation(op, status string, dur time.Duration) {
	if m == nil {
		return
	}
	m.aggregateLatency.WithLabelValues(op, status).Observe(dur.Seconds())
}

func (m *Metrics) IncAggregateConflict(op string) {
	if m == nil {
		return
	}
	m.aggregateConflicts.WithLabelValues(op).Inc()
}

func (m *Metrics) IncAggregateRetry(op, code string) {
	if m == nil {
		return
	}
	m.aggregateRetries.WithLabelValues(op, code).Inc()
}

func (m *Metrics) ObserveAggregateAttempts(op string, attempts int) {
	if m == nil {
		return
	}
	m.aggregateAttempts.WithLabelValues(op).Observe(float64(attempts))
}

func (m *Metrics) AddMergeEdges(created, closed, skipped int) {
	if m == nil {
		return
	}
	m.mergeEdges.WithLabelValues("created").Add(float64(created))
	m.mergeEdges.WithLabelValues("closed").Add(float64(closed))
	m.mergeEdges.WithLabelValues("skipped").Add(float64(skipped))
}

func (m *Metrics) ObserveDiffPaths(branchKind string, n int) {
	if m == nil {
		return
	}
	m.diffPaths.WithLabelValues(branchKind).Observe(float64(n))
}

func (m *Metrics) IncBranchEvent(eventType string) {
	if m == nil {
		return
	}
	m.branchEvents.WithLabelValues(eventType).Inc()
}

func (m *Metrics) AddReconcile(created, removed, updated int) {
	if m == nil {
		return
	}
	m.reconcileChange.WithLabelValues("created").Add(float64(created))
	m.reconcileChange.WithLabelValues("removed").Add(float64(removed))
	m.reconcileChange.WithLabelValues("updated").Add(float64(updated))
}
