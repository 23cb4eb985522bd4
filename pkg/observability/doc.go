// Package observability provides structured logging, Prometheus metrics,
// OpenTelemetry tracing, health checks and graceful shutdown.
//
// # Structured Logging
//
//	logger := observability.NewLogger(observability.InfoLevel, os.Stdout)
//	logger.WithField("task_id", task.TaskID).Info("task submitted")
//
// Request-scoped loggers are stored in the context by the HTTP logging
// middleware and retrieved with FromContext, which adds request_id and user_id.
//
// # Prometheus Metrics
//
//	registry := prometheus.NewRegistry()
//	metrics := observability.NewMetrics(registry)
//	metrics.RecordTransition("approve", "ok")
//
// Metrics helpers are nil-safe so components can be built without metrics in tests.
//
// # Tracing
//
// InitOTel installs global providers exporting over OTLP/gRPC. StartSpan and
// EndSpan wrap the global tracer; without InitOTel they are no-ops.
//
// # Health
//
// HealthChecker serves /health, /health/live and /health/ready. The database
// is required, Redis only degrades readiness.
package observability
