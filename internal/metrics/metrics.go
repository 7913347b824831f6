package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the API's Prometheus collectors. A nil *Metrics is a no-op.
type Metrics struct {
	AuditWrites        prometheus.Counter
	AuditWriteFailures prometheus.Counter
	DocumentsIngested  *prometheus.CounterVec
	ClinicalAlerts     *prometheus.CounterVec
	RateLimited        prometheus.Counter
}

// New registers the collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		AuditWrites: factory.NewCounter(prometheus.CounterOpts{
			Name: "sofia_audit_writes_total",
			Help: "Total number of audit entries persisted",
		}),
		AuditWriteFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "sofia_audit_write_failures_total",
			Help: "Total number of audit entries that could not be persisted",
		}),
		DocumentsIngested: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "sofia_documents_ingested_total",
			Help: "Total number of documents ingested by document type",
		}, []string{"document_type"}),
		ClinicalAlerts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "sofia_clinical_alerts_total",
			Help: "Total number of clinical alerts raised by priority",
		}, []string{"priority"}),
		RateLimited: factory.NewCounter(prometheus.CounterOpts{
			Name: "sofia_rate_limited_requests_total",
			Help: "Total number of requests rejected by the rate limiter",
		}),
	}
}

func (m *Metrics) IncAuditWrites() {
	if m == nil {
		return
	}
	m.AuditWrites.Inc()
}

func (m *Metrics) IncAuditWriteFailures() {
	if m == nil {
		return
	}
	m.AuditWriteFailures.Inc()
}

func (m *Metrics) IncDocumentsIngested(documentType string) {
	if m == nil {
		return
	}
	m.DocumentsIngested.WithLabelValues(documentType).Inc()
}

func (m *Metrics) IncClinicalAlerts(priority string) {
	if m == nil {
		return
	}
	m.ClinicalAlerts.WithLabelValues(priority).Inc()
}

func (m *Metrics) IncRateLimited() {
	if m == nil {
		return
	}
	m.RateLimited.Inc()
}
