package syncqueue

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

func endpoints(t *testing.T, q *Queue) string {
	t.Helper()
	entries, err := q.Entries()
	if err != nil {
		t.Fatalf("entries: %v", err)
	}
	var names []string
	for _, e := range entries {
		names = append(names, e.Endpoint)
	}
	return strings.Join(names, ",")
}

func mustEnqueue(t *testing.T, q *Queue, endpoint string) {
	t.Helper()
	if _, err := q.Enqueue(Entry{Endpoint: endpoint, Method: "POST"}); err != nil {
		t.Fatalf("enqueue %s: %v", endpoint, err)
	}
}

func TestReplayFIFOKeepsFailedEntryInPlace(t *testing.T) {
	q := New("api", &MemoryPersister{})
	mustEnqueue(t, q, "/goals")
	mustEnqueue(t, q, "/feedback")
	mustEnqueue(t, q, "/story-chapters")

	var order []string
	report, err := q.Replay(context.Background(), func(_ context.Context, e Entry) error {
		order = append(order, e.Endpoint)
		if e.Endpoint == "/feedback" {
			// Arrives while the pass is running.
			mustEnqueue(t, q, "/safety-events")
			return errors.New("503 from server")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if strings.Join(order, ",") != "/goals,/feedback,/story-chapters" {
		t.Fatalf("delivery order = %v", order)
	}
	if report.Processed != 2 || report.Failed != 1 || report.Remaining != 2 {
		t.Fatalf("report = %+v", report)
	}
	if got := endpoints(t, q); got != "/feedback,/safety-events" {
		t.Fatalf("queue after pass = %s", got)
	}
}

func TestReplaySkipsAuthCallsAndDropsAuthFailures(t *testing.T) {
	q := New("api", &MemoryPersister{})
	mustEnqueue(t, q, AuthEndpoint)
	mustEnqueue(t, q, "/goals")
	mustEnqueue(t, q, "/feedback")

	var delivered []string
	report, err := q.Replay(context.Background(), func(_ context.Context, e Entry) error {
		delivered = append(delivered, e.Endpoint)
		if e.Endpoint == "/goals" {
			return fmt.Errorf("POST /goals: %w", ErrAuthRequired)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if strings.Join(delivered, ",") != "/goals,/feedback" {
		t.Fatalf("auth call must never be delivered: %v", delivered)
	}
	if report.Skipped != 1 || report.Dropped != 1 || report.Processed != 1 || report.Remaining != 0 {
		t.Fatalf("report = %+v", report)
	}
}

func TestReplayAttemptsEachEntryOncePerPass(t *testing.T) {
	q := New("api", &MemoryPersister{})
	mustEnqueue(t, q, "/goals")

	calls := 0
	for pass := 0; pass < 3; pass++ {
		if _, err := q.Replay(context.Background(), func(context.Context, Entry) error {
			calls++
			return errors.New("offline")
		}); err != nil {
			t.Fatalf("replay: %v", err)
		}
	}
	if calls != 3 {
		t.Fatalf("calls = %d, want one per pass", calls)
	}
	if n, _ := q.Len(); n != 1 {
		t.Fatalf("len = %d", n)
	}
}

func TestReplayGuardRejectsConcurrentPass(t *testing.T) {
	q := New("api", &MemoryPersister{})
	mustEnqueue(t, q, "/goals")

	entered := make(chan struct{})
	release := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, _ = q.Replay(context.Background(), func(context.Context, Entry) error {
			close(entered)
			<-release
			return nil
		})
	}()
	<-entered

	if _, err := q.Replay(context.Background(), func(context.Context, Entry) error { return nil }); !errors.Is(err, ErrReplayInProgress) {
		t.Fatalf("expected ErrReplayInProgress, got %v", err)
	}
	close(release)
	wg.Wait()

	if n, _ := q.Len(); n != 0 {
		t.Fatalf("len = %d", n)
	}
	if _, err := q.Replay(context.Background(), func(context.Context, Entry) error { return nil }); err != nil {
		t.Fatalf("guard must be released after a pass: %v", err)
	}
}

func TestReplayStopsOnCanceledContext(t *testing.T) {
	q := New("api", &MemoryPersister{})
	mustEnqueue(t, q, "/goals")
	mustEnqueue(t, q, "/feedback")

	ctx, cancel := context.WithCancel(context.Background())
	report, err := q.Replay(ctx, func(context.Context, Entry) error {
		cancel()
		return nil
	})
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if report.Processed != 1 || report.Remaining != 1 {
		t.Fatalf("report = %+v", report)
	}
	if got := endpoints(t, q); got != "/feedback" {
		t.Fatalf("queue = %s", got)
	}
}

func TestWithDropOnOverridesClassification(t *testing.T) {
	errUnknown := errors.New("unknown type")
	q := New("data", &MemoryPersister{}, WithDropOn(func(err error) bool {
		return errors.Is(err, errUnknown)
	}))
	if _, err := q.Enqueue(Entry{Type: "mystery"}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	report, _ := q.Replay(context.Background(), func(context.Context, Entry) error { return errUnknown })
	if report.Dropped != 1 || report.Remaining != 0 {
		t.Fatalf("report = %+v", report)
	}
}

func TestFilePersisterSurvivesRestart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "api-queue.json")
	q := New("api", NewFilePersister(path))
	mustEnqueue(t, q, "/goals")
	if n, err := q.Enqueue(Entry{Endpoint: "/feedback", Method: "POST", Payload: []byte(`{"feedbackText":"hi"}`)}); err != nil || n != 2 {
		t.Fatalf("enqueue: n=%d err=%v", n, err)
	}

	reopened := New("api", NewFilePersister(path))
	entries, err := reopened.Entries()
	if err != nil {
		t.Fatalf("entries: %v", err)
	}
	if len(entries) != 2 || entries[1].Endpoint != "/feedback" || string(entries[1].Payload) != `{"feedbackText":"hi"}` {
		t.Fatalf("entries = %+v", entries)
	}
	if entries[0].ID == "" || entries[0].Timestamp.IsZero() {
		t.Fatalf("enqueue must stamp id and timestamp: %+v", entries[0])
	}

	files, _ := os.ReadDir(filepath.Dir(path))
	if len(files) != 1 {
		t.Fatalf("temporary files left behind: %v", files)
	}
}

func TestFilePersisterMissingFileIsEmpty(t *testing.T) {
	p := NewFilePersister(filepath.Join(t.TempDir(), "none.json"))
	entries, err := p.Load()
	if err != nil || len(entries) != 0 {
		t.Fatalf("entries=%v err=%v", entries, err)
	}
}

func TestFilePersisterRejectsCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "q.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := NewFilePersister(path).Load(); err == nil {
		t.Fatalf("expected decode error")
	}
}
