package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
	"sofia/pkg/domain"
)

const migrateLockID int64 = 50714157

type GormStoreOptions struct {
	Dialector gorm.Dialector
	LogLevel  gormlogger.LogLevel
}

type GormStoreOption func(*GormStoreOptions)

// WithDialector overrides the Postgres dialector, e.g. with SQLite in tests.
func WithDialector(d gorm.Dialector) GormStoreOption {
	return func(opts *GormStoreOptions) {
		opts.Dialector = d
	}
}

// WithLogLevel sets the GORM logger level. Defaults to Warn.
func WithLogLevel(level gormlogger.LogLevel) GormStoreOption {
	return func(opts *GormStoreOptions) {
		opts.LogLevel = level
	}
}

// GormStore implements Store using GORM + Postgres.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore opens the DB and runs auto-migrations.
func NewGormStore(dsn string, options ...GormStoreOption) (*GormStore, error) {
	opts := GormStoreOptions{LogLevel: gormlogger.Warn}
	for _, option := range options {
		if option != nil {
			option(&opts)
		}
	}
	dialector := opts.Dialector
	if dialector == nil {
		dialector = postgres.Open(dsn)
	}

	gormLog := gormlogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  opts.LogLevel,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	db, err := gorm.Open(dialector, &gorm.Config{Logger: gormLog, TranslateError: true})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := withMigrationLock(db, func(tx *gorm.DB) error {
		if err := tx.AutoMigrate(
			&UserModel{},
			&AboutMeProfileModel{},
			&ProfileVariableHistoryModel{},
			&DocumentModel{},
			&NotificationModel{},
			&SessionModel{},
			&GoalModel{},
			&ConcernModel{},
			&ValueModel{},
			&EducationTopicModel{},
			&StoryChapterModel{},
			&FeedbackModel{},
			&SafetyEventModel{},
			&ClinicalAlertModel{},
			&AuditEntryModel{},
		); err != nil {
			return fmt.Errorf("auto migrate: %w", err)
		}
		return nil
	}); err != nil {
		return nil, err
	}
	return &GormStore{db: db}, nil
}

// withMigrationLock serializes migrations across replicas on Postgres.
func withMigrationLock(db *gorm.DB, fn func(*gorm.DB) error) error {
	if db.Dialector.Name() != "postgres" {
		return fn(db)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("get sql db: %w", err)
	}
	conn, err := sqlDB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("open sql conn: %w", err)
	}
	defer conn.Close()
	if err := execAdvisory(ctx, conn, "SELECT pg_advisory_lock($1)", migrateLockID); err != nil {
		return fmt.Errorf("acquire migrate lock: %w", err)
	}
	defer func() {
		_ = execAdvisory(ctx, conn, "SELECT pg_advisory_unlock($1)", migrateLockID)
	}()
	return fn(db)
}

func execAdvisory(ctx context.Context, conn *sql.Conn, query string, lockID int64) error {
	_, err := conn.ExecContext(ctx, query, lockID)
	return err
}

// Close releases the underlying connection pool.
func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Ping checks database reachability.
func (s *GormStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// CreateUser inserts a new user. A taken name returns ErrConflict.
func (s *GormStore) CreateUser(ctx context.Context, u domain.User) error {
	model := userToModel(u)
	return conflictErr(s.db.WithContext(ctx).Create(&model).Error)
}

// GetUserByID returns a user by ID.
func (s *GormStore) GetUserByID(ctx context.Context, id string) (domain.User, bool, error) {
	var model UserModel
	if err := s.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.User{}, false, nil
		}
		return domain.User{}, false, err
	}
	return userFromModel(model), true, nil
}

// GetUserByName returns the earliest registered user with that name.
func (s *GormStore) GetUserByName(ctx context.Context, name string) (domain.User, bool, error) {
	var model UserModel
	if err := s.db.WithContext(ctx).Where("name = ?", name).Order("registration_date ASC").First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.User{}, false, nil
		}
		return domain.User{}, false, err
	}
	return userFromModel(model), true, nil
}

// TouchUser records a new visit.
func (s *GormStore) TouchUser(ctx context.Context, id string, at time.Time) error {
	return s.db.WithContext(ctx).Model(&UserModel{}).Where("id = ?", id).
		Update("last_visit", at.UTC()).Error
}

// IncrementUserSessions bumps the user's session counter.
func (s *GormStore) IncrementUserSessions(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Model(&UserModel{}).Where("id = ?", id).
		UpdateColumn("total_sessions", gorm.Expr("total_sessions + ?", 1)).Error
}

// GetAboutMe returns the user's About Me profile.
func (s *GormStore) GetAboutMe(ctx context.Context, userID string) (domain.AboutMeProfile, bool, error) {
	var model AboutMeProfileModel
	if err := s.db.WithContext(ctx).First(&model, "user_id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.AboutMeProfile{}, false, nil
		}
		return domain.AboutMeProfile{}, false, err
	}
	return aboutMeFromModel(model), true, nil
}

// SaveAboutMe inserts or replaces the user's About Me profile.
func (s *GormStore) SaveAboutMe(ctx context.Context, p domain.AboutMeProfile) error {
	model := aboutMeToModel(p)
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"best_life_elements", "concerns", "confidence_level", "confidence_timestamp",
			"user_defined_next_steps", "profile_completeness", "updated_at",
		}),
	}).Create(&model).Error
}

// AppendProfileHistory records profile variable changes in one transaction.
func (s *GormStore) AppendProfileHistory(ctx context.Context, entries ...domain.ProfileVariableHistory) error {
	if len(entries) == 0 {
		return nil
	}
	models := make([]ProfileVariableHistoryModel, 0, len(entries))
	for _, e := range entries {
		models = append(models, historyToModel(e))
	}
	return s.db.WithContext(ctx).Create(&models).Error
}

// ListProfileHistory returns history rows newest first.
func (s *GormStore) ListProfileHistory(ctx context.Context, f domain.HistoryFilter) ([]domain.ProfileVariableHistory, error) {
	query := s.db.WithContext(ctx).Where("user_id = ?", f.UserID)
	if f.VariableName != "" {
		query = query.Where("variable_name = ?", f.VariableName)
	}
	if f.Source != "" {
		query = query.Where("source = ?", f.Source)
	}
	var models []ProfileVariableHistoryModel
	if err := query.Order("timestamp DESC").Limit(historyLimit(f.Limit)).Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]domain.ProfileVariableHistory, 0, len(models))
	for _, m := range models {
		out = append(out, historyFromModel(m))
	}
	return out, nil
}

// CreateGoal inserts a goal.
func (s *GormStore) CreateGoal(ctx context.Context, g domain.Goal) error {
	model := goalToModel(g)
	return s.db.WithContext(ctx).Create(&model).Error
}

// ListGoals returns a user's goals newest first.
func (s *GormStore) ListGoals(ctx context.Context, userID string) ([]domain.Goal, error) {
	var models []GoalModel
	if err := s.byUserNewestFirst(ctx, userID).Find(&models).Error; err != nil {
		return nil, err
	}
	return mapSlice(models, goalFromModel), nil
}

func (s *GormStore) SaveConcern(ctx context.Context, c domain.Concern) error {
	model := concernToModel(c)
	return s.db.WithContext(ctx).Save(&model).Error
}

func (s *GormStore) ListConcerns(ctx context.Context, userID string) ([]domain.Concern, error) {
	var models []ConcernModel
	if err := s.byUserNewestFirst(ctx, userID).Find(&models).Error; err != nil {
		return nil, err
	}
	return mapSlice(models, concernFromModel), nil
}

func (s *GormStore) SaveValue(ctx context.Context, v domain.Value) error {
	model := valueToModel(v)
	return s.db.WithContext(ctx).Save(&model).Error
}

func (s *GormStore) ListValues(ctx context.Context, userID string) ([]domain.Value, error) {
	var models []ValueModel
	if err := s.byUserNewestFirst(ctx, userID).Find(&models).Error; err != nil {
		return nil, err
	}
	return mapSlice(models, valueFromModel), nil
}

func (s *GormStore) SaveEducationTopic(ctx context.Context, t domain.EducationTopic) error {
	model := educationTopicToModel(t)
	return s.db.WithContext(ctx).Save(&model).Error
}

func (s *GormStore) ListEducationTopics(ctx context.Context, userID string) ([]domain.EducationTopic, error) {
	var models []EducationTopicModel
	if err := s.byUserNewestFirst(ctx, userID).Find(&models).Error; err != nil {
		return nil, err
	}
	return mapSlice(models, educationTopicFromModel), nil
}

// CreateStoryChapter inserts a story chapter.
func (s *GormStore) CreateStoryChapter(ctx context.Context, c domain.StoryChapter) error {
	model := chapterToModel(c)
	return s.db.WithContext(ctx).Create(&model).Error
}

// ListStoryChapters returns a user's chapters newest first.
func (s *GormStore) ListStoryChapters(ctx context.Context, userID string) ([]domain.StoryChapter, error) {
	var models []StoryChapterModel
	if err := s.byUserNewestFirst(ctx, userID).Find(&models).Error; err != nil {
		return nil, err
	}
	return mapSlice(models, chapterFromModel), nil
}

func (s *GormStore) byUserNewestFirst(ctx context.Context, userID string) *gorm.DB {
	return s.db.WithContext(ctx).Where("user_id = ?", userID).Order("created_at DESC")
}

// CreateSession inserts a session.
func (s *GormStore) CreateSession(ctx context.Context, sess domain.Session) error {
	model := sessionToModel(sess)
	return s.db.WithContext(ctx).Create(&model).Error
}

// UpdateSession updates duration, topics and transcript of a session owned by sess.UserID.
func (s *GormStore) UpdateSession(ctx context.Context, sess domain.Session) (domain.Session, error) {
	var out domain.Session
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var model SessionModel
		if err := tx.First(&model, "id = ? AND user_id = ?", sess.ID, sess.UserID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		model.DurationMinutes = sess.DurationMinutes
		model.MainTopics = toJSON(nonNilStrings(sess.MainTopics))
		model.ConversationLog = sess.SealedLog
		model.UpdatedAt = sess.UpdatedAt.UTC()
		if err := tx.Save(&model).Error; err != nil {
			return err
		}
		out = sessionFromModel(model)
		return nil
	})
	return out, err
}

// CreateFeedback inserts a feedback row.
func (s *GormStore) CreateFeedback(ctx context.Context, f domain.Feedback) error {
	model := feedbackToModel(f)
	return s.db.WithContext(ctx).Create(&model).Error
}

// ListUnreviewedFeedback returns unreviewed feedback newest first.
func (s *GormStore) ListUnreviewedFeedback(ctx context.Context) ([]domain.Feedback, error) {
	var models []FeedbackModel
	if err := s.db.WithContext(ctx).Where("is_reviewed = ?", false).Order("created_at DESC").Find(&models).Error; err != nil {
		return nil, err
	}
	return mapSlice(models, feedbackFromModel), nil
}

// CreateSafetyEvent inserts a safety event.
func (s *GormStore) CreateSafetyEvent(ctx context.Context, e domain.SafetyEvent) error {
	model := safetyEventToModel(e)
	return s.db.WithContext(ctx).Create(&model).Error
}

// CreateClinicalAlert inserts a clinical alert.
func (s *GormStore) CreateClinicalAlert(ctx context.Context, a domain.ClinicalAlert) error {
	model := alertToModel(a)
	return s.db.WithContext(ctx).Create(&model).Error
}

type alertRow struct {
	ClinicalAlertModel
	UserName string
	Context  string
}

// ListPendingClinicalAlerts returns unacknowledged alerts, highest priority first, then oldest first.
func (s *GormStore) ListPendingClinicalAlerts(ctx context.Context) ([]domain.ClinicalAlert, error) {
	var rows []alertRow
	if err := s.db.WithContext(ctx).Table("clinical_alert_models AS ca").
		Select("ca.*, COALESCE(u.name, '') AS user_name, COALESCE(se.context, '') AS context").
		Joins("LEFT JOIN user_models u ON u.id = ca.user_id").
		Joins("LEFT JOIN safety_event_models se ON se.id = ca.safety_event_id").
		Where("ca.acknowledged = ?", false).
		Order("ca.priority_rank DESC").
		Order("ca.created_at ASC").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]domain.ClinicalAlert, 0, len(rows))
	for _, row := range rows {
		alert := alertFromModel(row.ClinicalAlertModel)
		alert.UserName = row.UserName
		alert.Context = row.Context
		out = append(out, alert)
	}
	return out, nil
}

// AcknowledgeClinicalAlert marks an alert as handled. Repeated calls keep the first acknowledgment.
func (s *GormStore) AcknowledgeClinicalAlert(ctx context.Context, id, by string, at time.Time) (domain.ClinicalAlert, error) {
	var out domain.ClinicalAlert
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var model ClinicalAlertModel
		if err := tx.First(&model, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		if !model.Acknowledged {
			at = at.UTC()
			model.Acknowledged = true
			model.AcknowledgedAt = &at
			model.AcknowledgedBy = by
			if err := tx.Save(&model).Error; err != nil {
				return err
			}
		}
		out = alertFromModel(model)
		return nil
	})
	return out, err
}

// SaveDocument inserts or replaces a document.
func (s *GormStore) SaveDocument(ctx context.Context, d domain.Document) error {
	model := documentToModel(d)
	return s.db.WithContext(ctx).Save(&model).Error
}

// GetDocument returns a document by ID.
func (s *GormStore) GetDocument(ctx context.Context, id string) (domain.Document, bool, error) {
	var model DocumentModel
	if err := s.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Document{}, false, nil
		}
		return domain.Document{}, false, err
	}
	return documentFromModel(model), true, nil
}

// ListDocumentsByUser returns a user's documents newest first.
func (s *GormStore) ListDocumentsByUser(ctx context.Context, userID string) ([]domain.Document, error) {
	var models []DocumentModel
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).Order("upload_timestamp DESC").Find(&models).Error; err != nil {
		return nil, err
	}
	return mapSlice(models, documentFromModel), nil
}

// MarkDocumentApplied records how many extracted items were applied to the profile.
func (s *GormStore) MarkDocumentApplied(ctx context.Context, id, userID string, applied int, at time.Time) (domain.Document, error) {
	var out domain.Document
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var model DocumentModel
		if err := tx.First(&model, "id = ? AND user_id = ?", id, userID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		at = at.UTC()
		model.AppliedCount = applied
		model.ProcessedTimestamp = &at
		if err := tx.Save(&model).Error; err != nil {
			return err
		}
		out = documentFromModel(model)
		return nil
	})
	return out, err
}

// CreateNotification inserts a notification.
func (s *GormStore) CreateNotification(ctx context.Context, n domain.Notification) error {
	model := notificationToModel(n)
	return conflictErr(s.db.WithContext(ctx).Create(&model).Error)
}

// SaveDocumentWithNotification stores an ingested document and its
// notification in one transaction.
func (s *GormStore) SaveDocumentWithNotification(ctx context.Context, d domain.Document, n domain.Notification) error {
	doc := documentToModel(d)
	note := notificationToModel(n)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Save(&doc).Error; err != nil {
			return err
		}
		return tx.Create(&note).Error
	})
	return conflictErr(err)
}

func conflictErr(err error) error {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return fmt.Errorf("%w: %v", ErrConflict, err)
	}
	return err
}

// ListPendingNotifications returns undelivered notifications newest first.
func (s *GormStore) ListPendingNotifications(ctx context.Context, userID string) ([]domain.Notification, error) {
	var models []NotificationModel
	if err := s.db.WithContext(ctx).
		Where("user_id = ? AND delivered = ?", userID, false).
		Order("created_at DESC").
		Find(&models).Error; err != nil {
		return nil, err
	}
	return mapSlice(models, notificationFromModel), nil
}

// MarkNotificationDelivered flags a notification as delivered. Already delivered
// notifications are returned unchanged.
func (s *GormStore) MarkNotificationDelivered(ctx context.Context, id, userID string, at time.Time) (domain.Notification, error) {
	var out domain.Notification
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var model NotificationModel
		if err := tx.First(&model, "id = ? AND user_id = ?", id, userID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		if !model.Delivered {
			at = at.UTC()
			model.Delivered = true
			model.DeliveredAt = &at
			if err := tx.Save(&model).Error; err != nil {
				return err
			}
		}
		out = notificationFromModel(model)
		return nil
	})
	return out, err
}

// CreateAuditEntry appends an audit row.
func (s *GormStore) CreateAuditEntry(ctx context.Context, e domain.AuditEntry) error {
	model := auditToModel(e)
	return s.db.WithContext(ctx).Create(&model).Error
}

type auditRow struct {
	AuditEntryModel
	UserName string
}

// ListAuditTrail returns a user's audit rows newest first, joined with the user name.
func (s *GormStore) ListAuditTrail(ctx context.Context, f domain.AuditFilter) ([]domain.AuditEntry, error) {
	query := s.db.WithContext(ctx).Table("audit_entry_models AS a").
		Select("a.*, COALESCE(u.name, '') AS user_name").
		Joins("LEFT JOIN user_models u ON u.id = a.user_id").
		Where("a.user_id = ?", f.UserID)
	if !f.Start.IsZero() {
		query = query.Where("a.created_at >= ?", f.Start.UTC())
	}
	if !f.End.IsZero() {
		query = query.Where("a.created_at <= ?", f.End.UTC())
	}
	var rows []auditRow
	if err := query.Order("a.created_at DESC").Limit(auditLimit(f.Limit)).Scan(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]domain.AuditEntry, 0, len(rows))
	for _, row := range rows {
		entry := auditFromModel(row.AuditEntryModel)
		entry.UserName = row.UserName
		out = append(out, entry)
	}
	return out, nil
}

func mapSlice[M, D any](models []M, fn func(M) D) []D {
	out := make([]D, 0, len(models))
	for _, m := range models {
		out = append(out, fn(m))
	}
	return out
}
