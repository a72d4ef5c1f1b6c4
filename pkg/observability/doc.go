// Package observability provides structured JSON logging and Prometheus
// metrics for the core services.
//
// Create a logger:
//
//	logger := observability.NewLogger(observability.InfoLevel, os.Stdout)
//	logger.WithField("tenant_id", id).Info("payment recorded")
//
// Register metrics once at startup:
//
//	metrics := observability.NewMetrics(prometheus.NewRegistry())
//	metrics.PaymentsRecordedTotal.WithLabelValues("CASH").Inc()
package observability
