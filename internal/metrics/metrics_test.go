package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func counterValue(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	var total float64
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			total += m.GetCounter().GetValue()
		}
	}
	return total
}

func TestCountersRegisterOnPrivateRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	m.IncAuditWrites()
	m.IncAuditWriteFailures()
	m.IncAuditWriteFailures()
	m.IncDocumentsIngested("pdf")

	if got := counterValue(t, reg, "sofia_audit_write_failures_total"); got != 2 {
		t.Fatalf("audit failures = %v", got)
	}
	if got := counterValue(t, reg, "sofia_documents_ingested_total"); got != 1 {
		t.Fatalf("documents = %v", got)
	}

	// A second registry must not collide with the first.
	_ = New(prometheus.NewRegistry())
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.IncAuditWrites()
	m.IncAuditWriteFailures()
	m.IncDocumentsIngested("text")
	m.IncClinicalAlerts("high")
	m.IncRateLimited()
}
