package observability

import (
	"database/sql"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics.
// All Record*/Observe* helpers are safe to call on a nil *Metrics.
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPResponseSize    *prometheus.HistogramVec

	// Workflow metrics
	TaskTransitionsTotal *prometheus.CounterVec
	TasksCreatedTotal    prometheus.Counter

	// Authorization metrics
	AuthzDenialsTotal  *prometheus.CounterVec
	LoginAttemptsTotal *prometheus.CounterVec

	// Identity cache metrics
	CacheHitsTotal          *prometheus.CounterVec
	CacheMissesTotal        *prometheus.CounterVec
	CacheInvalidationsTotal *prometheus.CounterVec

	// Blob storage metrics
	StorageOperationsTotal   *prometheus.CounterVec
	StorageOperationDuration *prometheus.HistogramVec

	// Notification metrics
	NotificationsTotal *prometheus.CounterVec

	// Database metrics
	DBConnectionsOpen  prometheus.Gauge
	DBConnectionsInUse prometheus.Gauge
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "taskflow_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "taskflow_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		HTTPResponseSize: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "taskflow_http_response_size_bytes",
				Help:    "HTTP response size in bytes",
				Buckets: prometheus.ExponentialBuckets(100, 10, 6),
			},
			[]string{"method", "route"},
		),

		TaskTransitionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "taskflow_task_transitions_total",
				Help: "Task workflow transitions by action and result",
			},
			[]string{"action", "result"},
		),
		TasksCreatedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "taskflow_tasks_created_total",
				Help: "Total number of tasks created",
			},
		),

		AuthzDenialsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "taskflow_authz_denials_total",
				Help: "Requests rejected by the authorization guard",
			},
			[]string{"requirement"},
		),
		LoginAttemptsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "taskflow_login_attempts_total",
				Help: "Login attempts by result",
			},
			[]string{"result"},
		),

		CacheHitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "taskflow_cache_hits_total",
				Help: "Total number of cache hits",
			},
			[]string{"cache_type"},
		),
		CacheMissesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "taskflow_cache_misses_total",
				Help: "Total number of cache misses",
			},
			[]string{"cache_type"},
		),
		CacheInvalidationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "taskflow_cache_invalidations_total",
				Help: "Identity cache invalidations by scope",
			},
			[]string{"scope"},
		),

		StorageOperationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "taskflow_storage_operations_total",
				Help: "Total number of blob storage operations",
			},
			[]string{"operation", "backend", "status"},
		),
		StorageOperationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "taskflow_storage_operation_duration_seconds",
				Help:    "Blob storage operation duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation", "backend"},
		),

		NotificationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "taskflow_notifications_total",
				Help: "Outbound notifications by event type and result",
			},
			[]string{"event", "result"},
		),

		DBConnectionsOpen: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "taskflow_db_connections_open",
				Help: "Number of open database connections",
			},
		),
		DBConnectionsInUse: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "taskflow_db_connections_in_use",
				Help: "Number of database connections in use",
			},
		),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPResponseSize,
		m.TaskTransitionsTotal,
		m.TasksCreatedTotal,
		m.AuthzDenialsTotal,
		m.LoginAttemptsTotal,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.CacheInvalidationsTotal,
		m.StorageOperationsTotal,
		m.StorageOperationDuration,
		m.NotificationsTotal,
		m.DBConnectionsOpen,
		m.DBConnectionsInUse,
	)

	return m
}

// RecordTransition counts a workflow action with result "ok" or the error kind
func (m *Metrics) RecordTransition(action, result string) {
	if m == nil {
		return
	}
	m.TaskTransitionsTotal.WithLabelValues(action, result).Inc()
}

func (m *Metrics) RecordTaskCreated() {
	if m == nil {
		return
	}
	m.TasksCreatedTotal.Inc()
}

func (m *Metrics) RecordDenial(requirement string) {
	if m == nil {
		return
	}
	m.AuthzDenialsTotal.WithLabelValues(requirement).Inc()
}

func (m *Metrics) RecordLogin(result string) {
	if m == nil {
		return
	}
	m.LoginAttemptsTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) RecordCacheLookup(cacheType string, hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.CacheHitsTotal.WithLabelValues(cacheType).Inc()
		return
	}
	m.CacheMissesTotal.WithLabelValues(cacheType).Inc()
}

func (m *Metrics) RecordInvalidation(scope string) {
	if m == nil {
		return
	}
	m.CacheInvalidationsTotal.WithLabelValues(scope).Inc()
}

func (m *Metrics) ObserveStorage(operation, backend string, start time.Time, err error) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	m.StorageOperationsTotal.WithLabelValues(operation, backend, status).Inc()
	m.StorageOperationDuration.WithLabelValues(operation, backend).Observe(time.Since(start).Seconds())
}

func (m *Metrics) RecordNotification(event, result string) {
	if m == nil {
		return
	}
	m.NotificationsTotal.WithLabelValues(event, result).Inc()
}

// responseWriter wraps http.ResponseWriter to capture status code and size
type responseWriter struct {
	http.ResponseWriter
	statusCode   int
	bytesWritten int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.bytesWritten += n
	return n, err
}

// routeLabel uses the mux route template so ids do not explode label cardinality
func routeLabel(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return "unmatched"
}

// HTTPMetricsMiddleware instruments HTTP requests with Prometheus metrics.
// It must be installed with router.Use so the matched route is available.
func HTTPMetricsMiddleware(metrics *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			rw := &responseWriter{
				ResponseWriter: w,
				statusCode:     http.StatusOK,
			}

			next.ServeHTTP(rw, r)

			route := routeLabel(r)
			status := strconv.Itoa(rw.statusCode)

			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, route, status).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
			metrics.HTTPResponseSize.WithLabelValues(r.Method, route).Observe(float64(rw.bytesWritten))
		})
	}
}

// UpdateDBStats copies connection pool stats into the database gauges
func (m *Metrics) UpdateDBStats(stats sql.DBStats) {
	if m == nil {
		return
	}
	m.DBConnectionsOpen.Set(float64(stats.OpenConnections))
	m.DBConnectionsInUse.Set(float64(stats.InUse))
}

// RegisterMetricsEndpoint registers the /metrics endpoint
func RegisterMetricsEndpoint(router *mux.Router, registry *prometheus.Registry) {
	router.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{})).Methods("GET")
}
