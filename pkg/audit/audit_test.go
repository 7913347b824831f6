package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"sofia/pkg/domain"
)

type memoryWriter struct {
	mu      sync.Mutex
	entries []domain.AuditEntry
	err     error
	panics  bool
}

func (w *memoryWriter) CreateAuditEntry(ctx context.Context, e domain.AuditEntry) error {
	if w.panics {
		panic("boom")
	}
	if w.err != nil {
		return w.err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.entries = append(w.entries, e)
	return nil
}

func (w *memoryWriter) all() []domain.AuditEntry {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]domain.AuditEntry(nil), w.entries...)
}

type countingMetrics struct {
	writes   atomic.Int64
	failures atomic.Int64
}

func (c *countingMetrics) IncAuditWrites()        { c.writes.Add(1) }
func (c *countingMetrics) IncAuditWriteFailures() { c.failures.Add(1) }

func sequentialIDs() func() string {
	var n atomic.Int64
	return func() string { return fmt.Sprintf("audit-%d", n.Add(1)) }
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func TestRecordStampsTimestampAndUserAgent(t *testing.T) {
	w := &memoryWriter{}
	fixed := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	rec := NewRecorder(w, sequentialIDs(), WithClock(func() time.Time { return fixed }))

	rec.Record(context.Background(), Entry{
		UserID:       "u1",
		Action:       "USER_LOGIN",
		ResourceType: "users",
		ResourceID:   "u1",
		IPAddress:    "203.0.113.7",
		UserAgent:    "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		Metadata:     map[string]any{"source": "test"},
	})
	rec.Wait()

	entries := w.all()
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	got := entries[0]
	if got.ID != "audit-1" || got.Action != "USER_LOGIN" || !got.CreatedAt.Equal(fixed) {
		t.Fatalf("unexpected entry %+v", got)
	}
	var meta map[string]any
	if err := json.Unmarshal(got.Metadata, &meta); err != nil {
		t.Fatalf("decode metadata: %v", err)
	}
	if meta["timestamp"] != fixed.Format(time.RFC3339Nano) {
		t.Fatalf("timestamp = %v", meta["timestamp"])
	}
	if meta["source"] != "test" {
		t.Fatalf("caller metadata lost: %v", meta)
	}
	if meta["browser"] != "Chrome" || meta["os"] == "" || meta["mobile"] != false {
		t.Fatalf("unexpected user agent metadata: %v", meta)
	}
}

func TestRecordSurvivesCanceledCaller(t *testing.T) {
	w := &memoryWriter{}
	rec := NewRecorder(w, sequentialIDs())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	rec.Record(ctx, Entry{Action: "X", ResourceType: "y"})
	rec.Wait()
	if len(w.all()) != 1 {
		t.Fatalf("write should not inherit caller cancellation")
	}
}

func TestRecordSwallowsFailuresAndCountsThem(t *testing.T) {
	counter := &countingMetrics{}
	w := &memoryWriter{err: errors.New("db down")}
	rec := NewRecorder(w, sequentialIDs(), WithCounter(counter), WithLogger(quietLogger()))
	rec.Record(context.Background(), Entry{Action: "X", ResourceType: "y"})
	rec.Record(context.Background(), Entry{Action: "X", ResourceType: "y"})
	rec.Wait()
	if counter.failures.Load() != 2 || counter.writes.Load() != 0 {
		t.Fatalf("failures=%d writes=%d", counter.failures.Load(), counter.writes.Load())
	}

	panicking := NewRecorder(&memoryWriter{panics: true}, sequentialIDs(), WithCounter(counter), WithLogger(quietLogger()))
	panicking.Record(context.Background(), Entry{Action: "X", ResourceType: "y"})
	panicking.Wait()
	if counter.failures.Load() != 3 {
		t.Fatalf("panic should count as failure, failures=%d", counter.failures.Load())
	}
}

func TestNilRecorderIsNoop(t *testing.T) {
	var rec *Recorder
	rec.Record(context.Background(), Entry{Action: "X"})
	rec.Wait()
}

func newRouter(i *Interceptor, status int, labels ...string) http.Handler {
	r := chi.NewRouter()
	mws := make([]func(http.Handler) http.Handler, 0, len(labels))
	for _, label := range labels {
		mws = append(mws, i.Middleware(label))
	}
	r.With(mws...).Post("/api/documents/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(status)
		_, _ = w.Write([]byte(`{"ok":true}`))
	})
	return r
}

func actorFromHeader(r *http.Request) string { return r.Header.Get("X-Test-User") }

func TestInterceptorAuditsEachSuccessfulResponse(t *testing.T) {
	w := &memoryWriter{}
	rec := NewRecorder(w, sequentialIDs())
	h := newRouter(NewInterceptor(rec, actorFromHeader, nil), http.StatusOK, "document_management")

	const n = 3
	for i := 0; i < n; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/documents/doc-7", nil)
		req.Header.Set("X-Test-User", "u1")
		resp := httptest.NewRecorder()
		h.ServeHTTP(resp, req)
		if resp.Code != http.StatusOK {
			t.Fatalf("status = %d", resp.Code)
		}
	}
	rec.Wait()

	entries := w.all()
	if len(entries) != n {
		t.Fatalf("expected %d entries, got %d", n, len(entries))
	}
	e := entries[0]
	if e.UserID != "u1" || e.Action != "document_management" {
		t.Fatalf("unexpected entry %+v", e)
	}
	if e.ResourceType != "POST /api/documents/{id}" || e.ResourceID != "doc-7" {
		t.Fatalf("unexpected resource %q %q", e.ResourceType, e.ResourceID)
	}
}

func TestInterceptorSkipsErrorResponses(t *testing.T) {
	w := &memoryWriter{}
	rec := NewRecorder(w, sequentialIDs())
	h := newRouter(NewInterceptor(rec, actorFromHeader, nil), http.StatusBadRequest, "document_management")

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/documents/doc-7", nil))
	rec.Wait()
	if len(w.all()) != 0 {
		t.Fatalf("non-2xx responses must not be audited")
	}
}

func TestInterceptorFailureLeavesResponseUntouched(t *testing.T) {
	rec := NewRecorder(&memoryWriter{err: errors.New("db down")}, sequentialIDs(), WithLogger(quietLogger()))
	h := newRouter(NewInterceptor(rec, actorFromHeader, nil), http.StatusCreated, "document_upload")

	resp := httptest.NewRecorder()
	h.ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/api/documents/doc-7", nil))
	rec.Wait()
	if resp.Code != http.StatusCreated || resp.Body.String() != `{"ok":true}` {
		t.Fatalf("response altered: %d %q", resp.Code, resp.Body.String())
	}
}

func TestComposedInterceptorsEachRecord(t *testing.T) {
	w := &memoryWriter{}
	rec := NewRecorder(w, sequentialIDs())
	h := newRouter(NewInterceptor(rec, actorFromHeader, nil), http.StatusOK, "document_management", "profile_change")

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/documents/doc-7", nil))
	rec.Wait()

	entries := w.all()
	if len(entries) != 2 {
		t.Fatalf("expected one entry per interceptor, got %d", len(entries))
	}
	labels := map[string]bool{entries[0].Action: true, entries[1].Action: true}
	if !labels["document_management"] || !labels["profile_change"] {
		t.Fatalf("unexpected labels %v", labels)
	}
}
