// Package observability provides structured logging, Prometheus metrics,
// OpenTelemetry tracing and health checks for gatehouse.
//
// # Logging
//
// Loggers are logrus JSON loggers:
//
//	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)
//	observability.FromContext(ctx, logger).WithField("tenant_id", 7).Info("decision")
//
// # Metrics
//
// Metrics are registered on a caller supplied registry. All Record* helpers
// accept a nil *Metrics so components can run without instrumentation:
//
//	metrics := observability.NewMetrics(registry)
//	metrics.RecordDecision("user", "allowed", elapsed)
//
// # Health Checks
//
//	checker := observability.NewHealthChecker(db, redisClient, version)
//	observability.RegisterHealthRoutes(router, checker)
//
// The database is required for readiness; Redis only degrades it, because
// cache failures fall back to recomputing from the database.
package observability
