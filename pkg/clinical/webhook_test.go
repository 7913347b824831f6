package clinical

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"sofia/pkg/domain"
)

func TestNewAlertFromSafetyEvent(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	alert := NewAlert("alert-1", domain.SafetyEvent{
		ID:       "ev-1",
		UserID:   "u1",
		Severity: domain.SeverityCritical,
		Context:  "mentioned self harm",
	}, now)

	if alert.AlertType != AlertTypeSafetyTrigger || alert.Priority != domain.SeverityCritical {
		t.Fatalf("unexpected alert %+v", alert)
	}
	if alert.Message != "User requires immediate clinical attention. Context: mentioned self harm" {
		t.Fatalf("message = %q", alert.Message)
	}
	if alert.SafetyEventID != "ev-1" || !alert.CreatedAt.Equal(now) || alert.Acknowledged {
		t.Fatalf("unexpected alert %+v", alert)
	}
}

func TestWebhookNotifierPostsPayload(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("content type = %q", ct)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	fixed := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	n := NewWebhookNotifier(srv.URL, WithHTTPClient(srv.Client()), WithClock(func() time.Time { return fixed }))
	err := n.Notify(context.Background(), domain.ClinicalAlert{
		ID:       "alert-1",
		UserID:   "u1",
		Priority: domain.SeverityHigh,
		Context:  "ctx",
	})
	if err != nil {
		t.Fatalf("notify: %v", err)
	}
	want := map[string]any{
		"alertId":   "alert-1",
		"userId":    "u1",
		"priority":  "high",
		"context":   "ctx",
		"timestamp": "2026-03-01T09:00:00Z",
	}
	for k, v := range want {
		if got[k] != v {
			t.Fatalf("payload[%s] = %v, want %v", k, got[k], v)
		}
	}
}

func TestWebhookNotifierReportsHTTPErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(srv.URL, WithHTTPClient(srv.Client()))
	if err := n.Notify(context.Background(), domain.ClinicalAlert{ID: "a"}); err == nil {
		t.Fatalf("expected error for 502")
	}
	if calls.Load() != 1 {
		t.Fatalf("calls = %d", calls.Load())
	}
}

func TestWebhookNotifierRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(srv.URL, WithHTTPClient(srv.Client()), WithRetries(2, time.Millisecond))
	if err := n.Notify(context.Background(), domain.ClinicalAlert{ID: "a"}); err != nil {
		t.Fatalf("expected delivery after retries: %v", err)
	}
	if calls.Load() != 3 {
		t.Fatalf("calls = %d", calls.Load())
	}
}

func TestWebhookNotifierGivesUpAfterRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(srv.URL, WithHTTPClient(srv.Client()), WithRetries(1, time.Millisecond))
	if err := n.Notify(context.Background(), domain.ClinicalAlert{ID: "a"}); err == nil {
		t.Fatalf("expected error once retries are exhausted")
	}
	if calls.Load() != 2 {
		t.Fatalf("calls = %d", calls.Load())
	}
}

func TestWebhookNotifierDisabledWithoutURL(t *testing.T) {
	n := NewWebhookNotifier("  ")
	if n != nil {
		t.Fatalf("expected nil notifier")
	}
	if err := n.Notify(context.Background(), domain.ClinicalAlert{}); err != nil {
		t.Fatalf("nil notifier must be a no-op: %v", err)
	}
}
