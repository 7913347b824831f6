package store

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"sofia/pkg/domain"
)

// MemoryStore keeps every table in-process. It backs tests and local runs
// without a database.
type MemoryStore struct {
	mu sync.RWMutex

	users         map[string]domain.User
	aboutMe       map[string]domain.AboutMeProfile // key: user ID
	history       []domain.ProfileVariableHistory
	goals         []domain.Goal
	concerns      map[string]domain.Concern
	values        map[string]domain.Value
	topics        map[string]domain.EducationTopic
	chapters      []domain.StoryChapter
	sessions      map[string]domain.Session
	feedback      []domain.Feedback
	safetyEvents  map[string]domain.SafetyEvent
	alerts        map[string]domain.ClinicalAlert
	documents     map[string]domain.Document
	notifications map[string]domain.Notification
	audit         []domain.AuditEntry
}

// NewMemoryStore initializes an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:         make(map[string]domain.User),
		aboutMe:       make(map[string]domain.AboutMeProfile),
		concerns:      make(map[string]domain.Concern),
		values:        make(map[string]domain.Value),
		topics:        make(map[string]domain.EducationTopic),
		sessions:      make(map[string]domain.Session),
		safetyEvents:  make(map[string]domain.SafetyEvent),
		alerts:        make(map[string]domain.ClinicalAlert),
		documents:     make(map[string]domain.Document),
		notifications: make(map[string]domain.Notification),
	}
}

func (m *MemoryStore) Ping(context.Context) error { return nil }

func (m *MemoryStore) CreateUser(_ context.Context, u domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.users {
		if existing.ID == u.ID || existing.Name == u.Name {
			return ErrConflict
		}
	}
	m.users[u.ID] = u
	return nil
}

func (m *MemoryStore) GetUserByID(_ context.Context, id string) (domain.User, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	return u, ok, nil
}

func (m *MemoryStore) GetUserByName(_ context.Context, name string) (domain.User, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var (
		found domain.User
		ok    bool
	)
	for _, u := range m.users {
		if u.Name != name {
			continue
		}
		if !ok || u.RegistrationDate.Before(found.RegistrationDate) {
			found, ok = u, true
		}
	}
	return found, ok, nil
}

func (m *MemoryStore) TouchUser(_ context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[id]; ok {
		u.LastVisit = at.UTC()
		m.users[id] = u
	}
	return nil
}

func (m *MemoryStore) IncrementUserSessions(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[id]; ok {
		u.TotalSessions++
		m.users[id] = u
	}
	return nil
}

func (m *MemoryStore) GetAboutMe(_ context.Context, userID string) (domain.AboutMeProfile, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.aboutMe[userID]
	return p, ok, nil
}

func (m *MemoryStore) SaveAboutMe(_ context.Context, p domain.AboutMeProfile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.aboutMe[p.UserID]; ok {
		p.ID = existing.ID
	}
	m.aboutMe[p.UserID] = p
	return nil
}

func (m *MemoryStore) AppendProfileHistory(_ context.Context, entries ...domain.ProfileVariableHistory) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.history = append(m.history, entries...)
	return nil
}

func (m *MemoryStore) ListProfileHistory(_ context.Context, f domain.HistoryFilter) ([]domain.ProfileVariableHistory, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.ProfileVariableHistory, 0)
	for _, h := range m.history {
		if h.UserID != f.UserID {
			continue
		}
		if f.VariableName != "" && h.VariableName != f.VariableName {
			continue
		}
		if f.Source != "" && h.Source != f.Source {
			continue
		}
		out = append(out, h)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	return truncate(out, historyLimit(f.Limit)), nil
}

func (m *MemoryStore) CreateGoal(_ context.Context, g domain.Goal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.goals = append(m.goals, g)
	return nil
}

func (m *MemoryStore) ListGoals(_ context.Context, userID string) ([]domain.Goal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return newestFirst(filterOwned(m.goals, userID, func(g domain.Goal) string { return g.UserID }),
		func(g domain.Goal) time.Time { return g.CreatedAt }), nil
}

func (m *MemoryStore) SaveConcern(_ context.Context, c domain.Concern) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.concerns[c.ID] = c
	return nil
}

func (m *MemoryStore) ListConcerns(_ context.Context, userID string) ([]domain.Concern, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return newestFirst(filterOwned(mapValues(m.concerns), userID, func(c domain.Concern) string { return c.UserID }),
		func(c domain.Concern) time.Time { return c.CreatedAt }), nil
}

func (m *MemoryStore) SaveValue(_ context.Context, v domain.Value) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[v.ID] = v
	return nil
}

func (m *MemoryStore) ListValues(_ context.Context, userID string) ([]domain.Value, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return newestFirst(filterOwned(mapValues(m.values), userID, func(v domain.Value) string { return v.UserID }),
		func(v domain.Value) time.Time { return v.CreatedAt }), nil
}

func (m *MemoryStore) SaveEducationTopic(_ context.Context, t domain.EducationTopic) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.topics[t.ID] = t
	return nil
}

func (m *MemoryStore) ListEducationTopics(_ context.Context, userID string) ([]domain.EducationTopic, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return newestFirst(filterOwned(mapValues(m.topics), userID, func(t domain.EducationTopic) string { return t.UserID }),
		func(t domain.EducationTopic) time.Time { return t.CreatedAt }), nil
}

func (m *MemoryStore) CreateStoryChapter(_ context.Context, c domain.StoryChapter) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.chapters = append(m.chapters, c)
	return nil
}

func (m *MemoryStore) ListStoryChapters(_ context.Context, userID string) ([]domain.StoryChapter, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return newestFirst(filterOwned(m.chapters, userID, func(c domain.StoryChapter) string { return c.UserID }),
		func(c domain.StoryChapter) time.Time { return c.CreatedAt }), nil
}

func (m *MemoryStore) CreateSession(_ context.Context, s domain.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s.ConversationLog = nil
	m.sessions[s.ID] = s
	return nil
}

func (m *MemoryStore) UpdateSession(_ context.Context, s domain.Session) (domain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	current, ok := m.sessions[s.ID]
	if !ok || current.UserID != s.UserID {
		return domain.Session{}, ErrNotFound
	}
	current.DurationMinutes = s.DurationMinutes
	current.MainTopics = slices.Clone(nonNilStrings(s.MainTopics))
	current.SealedLog = s.SealedLog
	current.UpdatedAt = s.UpdatedAt.UTC()
	m.sessions[s.ID] = current
	return current, nil
}

func (m *MemoryStore) CreateFeedback(_ context.Context, f domain.Feedback) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.feedback = append(m.feedback, f)
	return nil
}

func (m *MemoryStore) ListUnreviewedFeedback(context.Context) ([]domain.Feedback, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.Feedback, 0)
	for _, f := range m.feedback {
		if !f.IsReviewed {
			out = append(out, f)
		}
	}
	return newestFirst(out, func(f domain.Feedback) time.Time { return f.CreatedAt }), nil
}

func (m *MemoryStore) CreateSafetyEvent(_ context.Context, e domain.SafetyEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.safetyEvents[e.ID] = e
	return nil
}

func (m *MemoryStore) CreateClinicalAlert(_ context.Context, a domain.ClinicalAlert) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.alerts[a.ID] = a
	return nil
}

func (m *MemoryStore) ListPendingClinicalAlerts(context.Context) ([]domain.ClinicalAlert, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.ClinicalAlert, 0)
	for _, a := range m.alerts {
		if a.Acknowledged {
			continue
		}
		a.UserName = m.users[a.UserID].Name
		a.Context = m.safetyEvents[a.SafetyEventID].Context
		out = append(out, a)
	}
	sort.SliceStable(out, func(i, j int) bool {
		ri, rj := out[i].Priority.Rank(), out[j].Priority.Rank()
		if ri != rj {
			return ri > rj
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (m *MemoryStore) AcknowledgeClinicalAlert(_ context.Context, id, by string, at time.Time) (domain.ClinicalAlert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.alerts[id]
	if !ok {
		return domain.ClinicalAlert{}, ErrNotFound
	}
	if !a.Acknowledged {
		at = at.UTC()
		a.Acknowledged = true
		a.AcknowledgedAt = &at
		a.AcknowledgedBy = by
		m.alerts[id] = a
	}
	return a, nil
}

func (m *MemoryStore) SaveDocument(_ context.Context, d domain.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.documents[d.ID] = d
	return nil
}

func (m *MemoryStore) GetDocument(_ context.Context, id string) (domain.Document, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.documents[id]
	return d, ok, nil
}

func (m *MemoryStore) ListDocumentsByUser(_ context.Context, userID string) ([]domain.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return newestFirst(filterOwned(mapValues(m.documents), userID, func(d domain.Document) string { return d.UserID }),
		func(d domain.Document) time.Time { return d.UploadTimestamp }), nil
}

func (m *MemoryStore) MarkDocumentApplied(_ context.Context, id, userID string, applied int, at time.Time) (domain.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.documents[id]
	if !ok || d.UserID != userID {
		return domain.Document{}, ErrNotFound
	}
	at = at.UTC()
	d.AppliedCount = applied
	d.ProcessedTimestamp = &at
	m.documents[id] = d
	return d, nil
}

func (m *MemoryStore) CreateNotification(_ context.Context, n domain.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.notifications[n.ID]; ok {
		return ErrConflict
	}
	m.notifications[n.ID] = n
	return nil
}

func (m *MemoryStore) SaveDocumentWithNotification(_ context.Context, d domain.Document, n domain.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.notifications[n.ID]; ok {
		return ErrConflict
	}
	m.documents[d.ID] = d
	m.notifications[n.ID] = n
	return nil
}

func (m *MemoryStore) ListPendingNotifications(_ context.Context, userID string) ([]domain.Notification, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.Notification, 0)
	for _, n := range m.notifications {
		if n.UserID == userID && !n.Delivered {
			out = append(out, n)
		}
	}
	return newestFirst(out, func(n domain.Notification) time.Time { return n.CreatedAt }), nil
}

func (m *MemoryStore) MarkNotificationDelivered(_ context.Context, id, userID string, at time.Time) (domain.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.notifications[id]
	if !ok || n.UserID != userID {
		return domain.Notification{}, ErrNotFound
	}
	if !n.Delivered {
		at = at.UTC()
		n.Delivered = true
		n.DeliveredAt = &at
		m.notifications[id] = n
	}
	return n, nil
}

func (m *MemoryStore) CreateAuditEntry(_ context.Context, e domain.AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.audit = append(m.audit, e)
	return nil
}

func (m *MemoryStore) ListAuditTrail(_ context.Context, f domain.AuditFilter) ([]domain.AuditEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.AuditEntry, 0)
	for _, e := range m.audit {
		if e.UserID != f.UserID {
			continue
		}
		if !f.Start.IsZero() && e.CreatedAt.Before(f.Start) {
			continue
		}
		if !f.End.IsZero() && e.CreatedAt.After(f.End) {
			continue
		}
		e.UserName = m.users[e.UserID].Name
		out = append(out, e)
	}
	out = newestFirst(out, func(e domain.AuditEntry) time.Time { return e.CreatedAt })
	return truncate(out, auditLimit(f.Limit)), nil
}

// AuditEntries returns every audit row in insertion order.
func (m *MemoryStore) AuditEntries() []domain.AuditEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.audit)
}

func filterOwned[T any](items []T, userID string, owner func(T) string) []T {
	out := make([]T, 0)
	for _, item := range items {
		if owner(item) == userID {
			out = append(out, item)
		}
	}
	return out
}

func newestFirst[T any](items []T, at func(T) time.Time) []T {
	sort.SliceStable(items, func(i, j int) bool { return at(items[i]).After(at(items[j])) })
	return items
}

func mapValues[K comparable, V any](m map[K]V) []V {
	out := make([]V, 0, len(m))
	for _, v := range m {
		out = append(out, v)
	}
	return out
}

func truncate[T any](items []T, limit int) []T {
	if limit > 0 && len(items) > limit {
		return items[:limit]
	}
	return items
}
