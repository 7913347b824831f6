package store

import (
	"context"
	"errors"
	"time"

	"sofia/pkg/domain"
)

const (
	DefaultAuditLimit   = 100
	DefaultHistoryLimit = 50
)

var (
	// ErrNotFound is returned when a row is absent or owned by another user.
	ErrNotFound = errors.New("record not found")
	// ErrConflict is returned when a unique key such as a user name is already taken.
	ErrConflict = errors.New("record already exists")
)

// Store is the persistence gateway used by the API.
type Store interface {
	// users
	CreateUser(ctx context.Context, u domain.User) error
	GetUserByID(ctx context.Context, id string) (domain.User, bool, error)
	GetUserByName(ctx context.Context, name string) (domain.User, bool, error)
	TouchUser(ctx context.Context, id string, at time.Time) error
	IncrementUserSessions(ctx context.Context, id string) error

	// about me + history
	GetAboutMe(ctx context.Context, userID string) (domain.AboutMeProfile, bool, error)
	SaveAboutMe(ctx context.Context, p domain.AboutMeProfile) error
	AppendProfileHistory(ctx context.Context, entries ...domain.ProfileVariableHistory) error
	ListProfileHistory(ctx context.Context, f domain.HistoryFilter) ([]domain.ProfileVariableHistory, error)

	// profile items
	CreateGoal(ctx context.Context, g domain.Goal) error
	ListGoals(ctx context.Context, userID string) ([]domain.Goal, error)
	SaveConcern(ctx context.Context, c domain.Concern) error
	ListConcerns(ctx context.Context, userID string) ([]domain.Concern, error)
	SaveValue(ctx context.Context, v domain.Value) error
	ListValues(ctx context.Context, userID string) ([]domain.Value, error)
	SaveEducationTopic(ctx context.Context, t domain.EducationTopic) error
	ListEducationTopics(ctx context.Context, userID string) ([]domain.EducationTopic, error)
	CreateStoryChapter(ctx context.Context, c domain.StoryChapter) error
	ListStoryChapters(ctx context.Context, userID string) ([]domain.StoryChapter, error)

	// sessions
	CreateSession(ctx context.Context, s domain.Session) error
	UpdateSession(ctx context.Context, s domain.Session) (domain.Session, error)

	// feedback
	CreateFeedback(ctx context.Context, f domain.Feedback) error
	ListUnreviewedFeedback(ctx context.Context) ([]domain.Feedback, error)

	// safety
	CreateSafetyEvent(ctx context.Context, e domain.SafetyEvent) error
	CreateClinicalAlert(ctx context.Context, a domain.ClinicalAlert) error
	ListPendingClinicalAlerts(ctx context.Context) ([]domain.ClinicalAlert, error)
	AcknowledgeClinicalAlert(ctx context.Context, id, by string, at time.Time) (domain.ClinicalAlert, error)

	// documents + notifications
	SaveDocument(ctx context.Context, d domain.Document) error
	GetDocument(ctx context.Context, id string) (domain.Document, bool, error)
	ListDocumentsByUser(ctx context.Context, userID string) ([]domain.Document, error)
	MarkDocumentApplied(ctx context.Context, id, userID string, applied int, at time.Time) (domain.Document, error)
	CreateNotification(ctx context.Context, n domain.Notification) error
	SaveDocumentWithNotification(ctx context.Context, d domain.Document, n domain.Notification) error
	ListPendingNotifications(ctx context.Context, userID string) ([]domain.Notification, error)
	MarkNotificationDelivered(ctx context.Context, id, userID string, at time.Time) (domain.Notification, error)

	// audit
	CreateAuditEntry(ctx context.Context, e domain.AuditEntry) error
	ListAuditTrail(ctx context.Context, f domain.AuditFilter) ([]domain.AuditEntry, error)

	Ping(ctx context.Context) error
}

func auditLimit(limit int) int {
	if limit <= 0 {
		return DefaultAuditLimit
	}
	return limit
}

func historyLimit(limit int) int {
	if limit <= 0 {
		return DefaultHistoryLimit
	}
	return limit
}

var (
	_ Store = (*GormStore)(nil)
	_ Store = (*MemoryStore)(nil)
)
