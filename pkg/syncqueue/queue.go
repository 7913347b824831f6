package syncqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// AuthEndpoint is never replayed: tokens are issued fresh after reconnecting.
const AuthEndpoint = "/users/auth"

var (
	ErrReplayInProgress = errors.New("replay already in progress")
	// ErrAuthRequired marks a replay failure that retrying cannot fix.
	ErrAuthRequired = errors.New("authentication required")
)

// Entry is one pending call or data mutation. API entries carry Endpoint and
// Method; data entries carry Type.
type Entry struct {
	ID        string          `json:"id"`
	Endpoint  string          `json:"endpoint,omitempty"`
	Method    string          `json:"method,omitempty"`
	Type      string          `json:"type,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// Handler delivers one entry during replay.
type Handler func(ctx context.Context, e Entry) error

// Report counts what a replay pass did with the snapshot it processed.
type Report struct {
	Processed int `json:"processed"`
	Skipped   int `json:"skipped"`
	Dropped   int `json:"dropped"`
	Failed    int `json:"failed"`
	Remaining int `json:"remaining"`
}

// Queue is a durable FIFO of entries waiting for connectivity. Mutations
// reload the persisted state under the lock, so several Queue values sharing
// a Persister in one process stay consistent.
type Queue struct {
	name      string
	persister Persister
	logger    *slog.Logger
	now       func() time.Time
	newID     func() string
	dropOn    func(error) bool

	mu        sync.Mutex
	replaying atomic.Bool
}

type Option func(*Queue)

func WithLogger(logger *slog.Logger) Option {
	return func(q *Queue) { q.logger = logger }
}

func WithClock(now func() time.Time) Option {
	return func(q *Queue) { q.now = now }
}

func WithIDFunc(newID func() string) Option {
	return func(q *Queue) { q.newID = newID }
}

// WithDropOn decides which replay failures remove the entry instead of
// keeping it for the next pass.
func WithDropOn(fn func(error) bool) Option {
	return func(q *Queue) { q.dropOn = fn }
}

func isAuthFailure(err error) bool {
	return errors.Is(err, ErrAuthRequired)
}

func New(name string, p Persister, opts ...Option) *Queue {
	q := &Queue{
		name:      name,
		persister: p,
		logger:    slog.Default(),
		now:       time.Now,
		newID:     uuid.NewString,
		dropOn:    isAuthFailure,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

func (q *Queue) Name() string { return q.name }

// Enqueue appends e and returns the new queue length. ID and Timestamp are
// filled in when empty.
func (q *Queue) Enqueue(e Entry) (int, error) {
	if e.ID == "" {
		e.ID = q.newID()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = q.now().UTC()
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	entries, err := q.persister.Load()
	if err != nil {
		return 0, fmt.Errorf("load %s queue: %w", q.name, err)
	}
	entries = append(entries, e)
	if err := q.persister.Save(entries); err != nil {
		return 0, fmt.Errorf("save %s queue: %w", q.name, err)
	}
	return len(entries), nil
}

func (q *Queue) Entries() ([]Entry, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.persister.Load()
}

func (q *Queue) Len() (int, error) {
	entries, err := q.Entries()
	return len(entries), err
}

// Replay attempts every entry of the current snapshot once, in order.
// Successful, skipped and dropped entries are removed; other failures stay
// queued in place. Entries enqueued during the pass are kept after them.
func (q *Queue) Replay(ctx context.Context, deliver Handler) (Report, error) {
	if !q.replaying.CompareAndSwap(false, true) {
		return Report{}, ErrReplayInProgress
	}
	defer q.replaying.Store(false)

	snapshot, err := q.Entries()
	if err != nil {
		return Report{}, fmt.Errorf("load %s queue: %w", q.name, err)
	}

	var report Report
	done := make(map[string]struct{}, len(snapshot))
	for _, e := range snapshot {
		if ctx.Err() != nil {
			break
		}
		if e.Endpoint == AuthEndpoint {
			report.Skipped++
			done[e.ID] = struct{}{}
			continue
		}
		err := deliver(ctx, e)
		switch {
		case err == nil:
			report.Processed++
			done[e.ID] = struct{}{}
		case q.dropOn != nil && q.dropOn(err):
			report.Dropped++
			done[e.ID] = struct{}{}
			q.logger.WarnContext(ctx, "queued entry dropped",
				slog.String("queue", q.name),
				slog.String("entry_id", e.ID),
				slog.String("error", err.Error()),
			)
		default:
			report.Failed++
			q.logger.InfoContext(ctx, "queued entry kept for retry",
				slog.String("queue", q.name),
				slog.String("entry_id", e.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	remaining, err := q.remove(done)
	if err != nil {
		return report, err
	}
	report.Remaining = remaining
	return report, nil
}

func (q *Queue) remove(ids map[string]struct{}) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	current, err := q.persister.Load()
	if err != nil {
		return 0, fmt.Errorf("reload %s queue: %w", q.name, err)
	}
	if len(ids) == 0 {
		return len(current), nil
	}
	kept := make([]Entry, 0, len(current))
	for _, e := range current {
		if _, ok := ids[e.ID]; !ok {
			kept = append(kept, e)
		}
	}
	if err := q.persister.Save(kept); err != nil {
		return 0, fmt.Errorf("save %s queue: %w", q.name, err)
	}
	return len(kept), nil
}
