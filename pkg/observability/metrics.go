package observability

import (
	"database/sql"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"net/http"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// Auth metrics
	LoginAttemptsTotal   *prometheus.CounterVec // labels: outcome
	TokenRefreshesTotal  *prometheus.CounterVec // labels: outcome
	SessionsRevokedTotal prometheus.Counter
	SessionsSweptTotal   prometheus.Counter

	// RBAC metrics
	PermissionDenialsTotal  *prometheus.CounterVec // labels: permission
	PermissionResolvesTotal prometheus.Counter

	// Finance metrics
	PaymentsRecordedTotal *prometheus.CounterVec // labels: provider
	PaymentsRejectedTotal *prometheus.CounterVec // labels: reason
	InvoicesCreatedTotal  *prometheus.CounterVec // labels: type

	// Enrollment metrics
	EnrollmentTransitionsTotal *prometheus.CounterVec // labels: to_status
	EnrollmentGuardFailsTotal  *prometheus.CounterVec // labels: transition

	// Audit metrics
	AuditEventsTotal        prometheus.Counter
	AuditEventsDroppedTotal prometheus.Counter
	AuditQueueDepth         prometheus.Gauge

	// Database metrics
	DBConnectionsActive prometheus.Gauge
	DBConnectionsIdle   prometheus.Gauge
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		LoginAttemptsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "shule_login_attempts_total",
				Help: "Total login attempts by outcome",
			},
			[]string{"outcome"},
		),
		TokenRefreshesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "shule_token_refreshes_total",
				Help: "Total refresh-token rotations by outcome",
			},
			[]string{"outcome"},
		),
		SessionsRevokedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "shule_sessions_revoked_total",
				Help: "Total sessions revoked by logout",
			},
		),
		SessionsSweptTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "shule_sessions_swept_total",
				Help: "Total expired sessions removed by the sweep job",
			},
		),
		PermissionDenialsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "shule_permission_denials_total",
				Help: "Total authorization guard denials by permission code",
			},
			[]string{"permission"},
		),
		PermissionResolvesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "shule_permission_resolves_total",
				Help: "Total effective-permission resolutions",
			},
		),
		PaymentsRecordedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "shule_payments_recorded_total",
				Help: "Total payments recorded by provider",
			},
			[]string{"provider"},
		),
		PaymentsRejectedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "shule_payments_rejected_total",
				Help: "Total payment recordings rejected by reason",
			},
			[]string{"reason"},
		),
		InvoicesCreatedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "shule_invoices_created_total",
				Help: "Total invoices created by type",
			},
			[]string{"type"},
		),
		EnrollmentTransitionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "shule_enrollment_transitions_total",
				Help: "Total successful enrollment transitions by target status",
			},
			[]string{"to_status"},
		),
		EnrollmentGuardFailsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "shule_enrollment_guard_fails_total",
				Help: "Total enrollment transition guard failures",
			},
			[]string{"transition"},
		),
		AuditEventsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "shule_audit_events_total",
				Help: "Total audit events dispatched",
			},
		),
		AuditEventsDroppedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "shule_audit_events_dropped_total",
				Help: "Total audit events dropped due to a full queue",
			},
		),
		AuditQueueDepth: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "shule_audit_queue_depth",
				Help: "Current depth of the audit dispatch queue",
			},
		),
		DBConnectionsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "shule_db_connections_active",
				Help: "Active database connections",
			},
		),
		DBConnectionsIdle: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "shule_db_connections_idle",
				Help: "Idle database connections",
			},
		),
	}

	registry.MustRegister(
		m.LoginAttemptsTotal,
		m.TokenRefreshesTotal,
		m.SessionsRevokedTotal,
		m.SessionsSweptTotal,
		m.PermissionDenialsTotal,
		m.PermissionResolvesTotal,
		m.PaymentsRecordedTotal,
		m.PaymentsRejectedTotal,
		m.InvoicesCreatedTotal,
		m.EnrollmentTransitionsTotal,
		m.EnrollmentGuardFailsTotal,
		m.AuditEventsTotal,
		m.AuditEventsDroppedTotal,
		m.AuditQueueDepth,
		m.DBConnectionsActive,
		m.DBConnectionsIdle,
	)

	return m
}

// UpdateDBStats copies sql.DB pool statistics into the gauges.
func (m *Metrics) UpdateDBStats(db *sql.DB) {
	stats := db.Stats()
	m.DBConnectionsActive.Set(float64(stats.InUse))
	m.DBConnectionsIdle.Set(float64(stats.Idle))
}

// Handler returns an HTTP handler serving the registry.
func Handler(registry *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
