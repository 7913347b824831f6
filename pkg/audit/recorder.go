package audit

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/mssola/useragent"
	"sofia/pkg/domain"
)

const defaultWriteTimeout = 5 * time.Second

// Writer persists audit rows.
type Writer interface {
	CreateAuditEntry(ctx context.Context, e domain.AuditEntry) error
}

// FailureCounter counts audit writes that did not persist.
type FailureCounter interface {
	IncAuditWrites()
	IncAuditWriteFailures()
}

// Entry is one auditable action. UserID and ResourceID are optional.
type Entry struct {
	UserID       string
	Action       string
	ResourceType string
	ResourceID   string
	IPAddress    string
	UserAgent    string
	Metadata     map[string]any
}

// Recorder writes audit entries without blocking or failing the caller.
type Recorder struct {
	w       Writer
	logger  *slog.Logger
	counter FailureCounter
	timeout time.Duration
	now     func() time.Time
	newID   func() string

	wg sync.WaitGroup
}

type Option func(*Recorder)

func WithLogger(logger *slog.Logger) Option {
	return func(r *Recorder) { r.logger = logger }
}

func WithCounter(c FailureCounter) Option {
	return func(r *Recorder) { r.counter = c }
}

func WithTimeout(d time.Duration) Option {
	return func(r *Recorder) { r.timeout = d }
}

func WithClock(now func() time.Time) Option {
	return func(r *Recorder) { r.now = now }
}

func WithIDFunc(fn func() string) Option {
	return func(r *Recorder) { r.newID = fn }
}

// NewRecorder creates a recorder on top of w.
func NewRecorder(w Writer, newID func() string, opts ...Option) *Recorder {
	r := &Recorder{
		w:       w,
		logger:  slog.Default(),
		timeout: defaultWriteTimeout,
		now:     time.Now,
		newID:   newID,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// Record schedules e for persistence and returns immediately. Write errors are
// logged and counted; they never reach the caller.
func (r *Recorder) Record(ctx context.Context, e Entry) {
	if r == nil || r.w == nil {
		return
	}
	entry := r.build(e)
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer cancel()
		defer func() {
			if p := recover(); p != nil {
				r.fail(ctx, entry, slog.Any("panic", p))
			}
		}()
		if err := r.w.CreateAuditEntry(ctx, entry); err != nil {
			r.fail(ctx, entry, slog.String("error", err.Error()))
			return
		}
		if r.counter != nil {
			r.counter.IncAuditWrites()
		}
	}()
}

// Wait blocks until every scheduled write has finished.
func (r *Recorder) Wait() {
	if r == nil {
		return
	}
	r.wg.Wait()
}

func (r *Recorder) fail(ctx context.Context, entry domain.AuditEntry, cause slog.Attr) {
	if r.counter != nil {
		r.counter.IncAuditWriteFailures()
	}
	r.logger.LogAttrs(ctx, slog.LevelError, "audit write failed",
		slog.String("action", entry.Action),
		slog.String("resource_type", entry.ResourceType),
		slog.String("user_id", entry.UserID),
		cause,
	)
}

func (r *Recorder) build(e Entry) domain.AuditEntry {
	now := r.now().UTC()
	meta := make(map[string]any, len(e.Metadata)+4)
	for k, v := range e.Metadata {
		meta[k] = v
	}
	meta["timestamp"] = now.Format(time.RFC3339Nano)
	if e.UserAgent != "" {
		ua := useragent.New(e.UserAgent)
		browser, version := ua.Browser()
		meta["browser"] = browser
		meta["browserVersion"] = version
		meta["os"] = ua.OS()
		meta["mobile"] = ua.Mobile()
		meta["bot"] = ua.Bot()
	}
	raw, err := json.Marshal(meta)
	if err != nil {
		raw = []byte(`{}`)
	}
	return domain.AuditEntry{
		ID:           r.newID(),
		UserID:       e.UserID,
		Action:       e.Action,
		ResourceType: e.ResourceType,
		ResourceID:   e.ResourceID,
		IPAddress:    e.IPAddress,
		UserAgent:    e.UserAgent,
		Metadata:     raw,
		CreatedAt:    now,
	}
}
