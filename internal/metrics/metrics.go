package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	WorkflowTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kadmin_workflow_transitions_total",
			Help: "Document workflow actions by action and result.",
		},
		[]string{"action", "result"},
	)

	AuditRecords = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kadmin_audit_records_total",
			Help: "Audit records written by action.",
		},
		[]string{"action"},
	)

	AuditWriteFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "kadmin_audit_write_failures_total",
		Help: "Audit writes that failed and rolled back their transaction.",
	})

	AlertsRaised = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kadmin_alerts_raised_total",
			Help: "Security alerts raised by severity.",
		},
		[]string{"severity"},
	)

	AlertEventsDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "kadmin_alert_events_dropped_total",
		Help: "Audit events dropped because the alert queue was full.",
	})

	SessionValidations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kadmin_session_validations_total",
			Help: "Session validations by result.",
		},
		[]string{"result"},
	)
)

func init() {
	prometheus.MustRegister(
		WorkflowTransitions,
		AuditRecords,
		AuditWriteFailures,
		AlertsRaised,
		AlertEventsDropped,
		SessionValidations,
	)
}

func Handler() http.Handler {
	return promhttp.Handler()
}
