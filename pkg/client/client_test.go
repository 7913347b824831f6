package client

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

type fakeAPI struct {
	mu       sync.Mutex
	requests []string
	bodies   []string
	auth     []string
	fail     map[string]int // "METHOD /path" -> status
}

func (f *fakeAPI) setFail(route string, status int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail == nil {
		f.fail = map[string]int{}
	}
	if status == 0 {
		delete(f.fail, route)
		return
	}
	f.fail[route] = status
}

func (f *fakeAPI) seen() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.requests...)
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	route := r.Method + " " + strings.TrimPrefix(r.URL.Path, "/api")
	body, _ := io.ReadAll(r.Body)

	f.mu.Lock()
	f.requests = append(f.requests, route)
	f.bodies = append(f.bodies, string(body))
	f.auth = append(f.auth, r.Header.Get("Authorization"))
	status := f.fail[route]
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if status != 0 {
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "boom", "code": "TEST_FAILURE"})
		return
	}
	switch route {
	case "POST /users/auth":
		_ = json.NewEncoder(w).Encode(map[string]any{
			"token": "tok-1",
			"user":  map[string]any{"id": "u1", "name": "Alice"},
		})
	default:
		_ = json.NewEncoder(w).Encode(map[string]any{"id": "x"})
	}
}

func newTestClient(t *testing.T) (*Client, *fakeAPI, *httptest.Server) {
	t.Helper()
	api := &fakeAPI{}
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)
	c, err := New(Config{BaseURL: srv.URL + "/api/", HTTPClient: srv.Client(), StateDir: t.TempDir()})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return c, api, srv
}

func TestNewRequiresBaseURL(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatalf("expected error")
	}
}

func TestAuthenticateStoresTokenAndUser(t *testing.T) {
	c, api, _ := newTestClient(t)
	res, err := c.Authenticate(context.Background(), "Alice", 70)
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if res.Token != "tok-1" || !c.IsAuthenticated() {
		t.Fatalf("token not stored: %+v", res)
	}
	if u, ok := c.CurrentUser(); !ok || u.Name != "Alice" {
		t.Fatalf("current user = %+v", u)
	}
	if _, err := c.Profile(context.Background()); err != nil {
		t.Fatalf("profile: %v", err)
	}
	api.mu.Lock()
	defer api.mu.Unlock()
	if strings.TrimSpace(api.bodies[0]) != `{"age":70,"name":"Alice"}` {
		t.Fatalf("auth body = %s", api.bodies[0])
	}
	if api.auth[1] != "Bearer tok-1" {
		t.Fatalf("authorization = %q", api.auth[1])
	}
}

func TestCallClassifiesErrors(t *testing.T) {
	c, api, srv := newTestClient(t)
	c.SetToken("tok-1")

	api.setFail("GET /users/profile", http.StatusUnauthorized)
	if _, err := c.Profile(context.Background()); !errors.Is(err, ErrAuthRequired) {
		t.Fatalf("expected ErrAuthRequired, got %v", err)
	}
	if c.IsAuthenticated() {
		t.Fatalf("401 must clear the token")
	}

	api.setFail("GET /users/profile", http.StatusInternalServerError)
	_, err := c.Profile(context.Background())
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != 500 || apiErr.Message != "boom" || apiErr.Code != "TEST_FAILURE" {
		t.Fatalf("expected APIError, got %v", err)
	}

	srv.Close()
	_, err = c.Profile(context.Background())
	var netErr *NetworkError
	if !errors.As(err, &netErr) {
		t.Fatalf("expected NetworkError, got %v", err)
	}
}

func TestOfflineCallsReplayInOrderAndKeepFailures(t *testing.T) {
	c, api, _ := newTestClient(t)
	c.SetToken("tok-1")
	ctx := context.Background()

	c.SetOnline(false)
	for i, call := range []func() (*Queued, error){
		func() (*Queued, error) { return c.CallWithOfflineSupport(ctx, http.MethodPost, "/goals", map[string]string{"goal": "walk"}, nil) },
		func() (*Queued, error) { return c.CallWithOfflineSupport(ctx, http.MethodPost, "/feedback", map[string]string{"feedbackText": "hi"}, nil) },
		func() (*Queued, error) { return c.CallWithOfflineSupport(ctx, http.MethodPost, "/story-chapters", nil, nil) },
	} {
		queued, err := call()
		if err != nil || queued == nil || queued.Status != StatusQueuedOffline || queued.QueueLength != i+1 {
			t.Fatalf("call %d: queued=%+v err=%v", i, queued, err)
		}
	}
	if len(api.seen()) != 0 {
		t.Fatalf("nothing should reach the server while offline")
	}

	api.setFail("POST /feedback", http.StatusServiceUnavailable)
	c.SetOnline(true)
	report, err := c.Sync(ctx)
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if got := strings.Join(api.seen(), ","); got != "POST /goals,POST /feedback,POST /story-chapters" {
		t.Fatalf("replay order = %s", got)
	}
	if report.API.Processed != 2 || report.API.Failed != 1 {
		t.Fatalf("report = %+v", report)
	}
	entries, _ := c.apiQueue.Entries()
	if len(entries) != 1 || entries[0].Endpoint != "/feedback" || string(entries[0].Payload) != `{"feedbackText":"hi"}` {
		t.Fatalf("remaining = %+v", entries)
	}

	api.mu.Lock()
	firstBody := strings.TrimSpace(api.bodies[0])
	api.mu.Unlock()
	if firstBody != `{"goal":"walk"}` {
		t.Fatalf("replayed body = %s", firstBody)
	}
}

func TestNetworkFailureQueuesCall(t *testing.T) {
	c, _, srv := newTestClient(t)
	srv.Close()
	queued, err := c.CreateGoal(context.Background(), goalFixture())
	if err != nil || queued == nil {
		t.Fatalf("expected queued call, got queued=%v err=%v", queued, err)
	}
	status, _ := c.QueueStatus()
	if status.APIRequests != 1 || status.Total != 1 {
		t.Fatalf("status = %+v", status)
	}
}

func TestAPIErrorIsNotQueued(t *testing.T) {
	c, api, _ := newTestClient(t)
	api.setFail("POST /goals", http.StatusBadRequest)
	queued, err := c.CreateGoal(context.Background(), goalFixture())
	if queued != nil || err == nil {
		t.Fatalf("validation failures must surface, queued=%v err=%v", queued, err)
	}
}

func TestSaveDataFallsBackToDataQueue(t *testing.T) {
	c, api, _ := newTestClient(t)
	ctx := context.Background()
	api.setFail("POST /goals", http.StatusInternalServerError)

	if err := c.SaveData(ctx, DataGoal, map[string]string{"goal": "walk"}); err != nil {
		t.Fatalf("save data: %v", err)
	}
	if err := c.SaveData(ctx, "mystery", nil); !errors.Is(err, ErrUnknownDataType) {
		t.Fatalf("expected ErrUnknownDataType, got %v", err)
	}
	status, _ := c.QueueStatus()
	if status.DataItems != 1 || status.APIRequests != 0 {
		t.Fatalf("status = %+v", status)
	}

	api.setFail("POST /goals", 0)
	report, err := c.Sync(ctx)
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if report.Data.Processed != 1 || report.Data.Remaining != 0 {
		t.Fatalf("report = %+v", report)
	}
}

func TestQueuedAuthCallIsSkipped(t *testing.T) {
	c, api, _ := newTestClient(t)
	c.SetOnline(false)
	if _, err := c.CallWithOfflineSupport(context.Background(), http.MethodPost, "/users/auth", map[string]string{"name": "A"}, nil); err != nil {
		t.Fatalf("queue auth: %v", err)
	}
	c.SetOnline(true)
	report, err := c.Sync(context.Background())
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if report.API.Skipped != 1 || len(api.seen()) != 0 {
		t.Fatalf("auth call replayed: report=%+v seen=%v", report, api.seen())
	}
}

func TestRunSyncsOnReconnect(t *testing.T) {
	c, api, _ := newTestClient(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c.SetOnline(false)
	if _, err := c.CreateGoal(ctx, goalFixture()); err != nil {
		t.Fatalf("queue: %v", err)
	}
	go c.Run(ctx)
	c.SetOnline(true)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if n, _ := c.apiQueue.Len(); n == 0 && len(api.seen()) == 1 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("queue was not replayed after reconnect, seen=%v", api.seen())
}
