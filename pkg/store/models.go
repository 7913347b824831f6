package store

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

// GORM models used for persistence.
type UserModel struct {
	ID               string `gorm:"primaryKey"`
	Name             string `gorm:"not null;uniqueIndex"`
	Age              int
	Role             string    `gorm:"not null"`
	IsActive         bool      `gorm:"not null"`
	RegistrationDate time.Time `gorm:"not null"`
	LastVisit        time.Time `gorm:"not null"`
	TotalSessions    int       `gorm:"not null"`
}

type AboutMeProfileModel struct {
	ID                   string `gorm:"primaryKey"`
	UserID               string `gorm:"not null;uniqueIndex"`
	BestLifeElements     datatypes.JSON
	Concerns             datatypes.JSON
	ConfidenceLevel      string
	ConfidenceTimestamp  *time.Time
	UserDefinedNextSteps datatypes.JSON
	ProfileCompleteness  int       `gorm:"not null"`
	UpdatedAt            time.Time `gorm:"not null"`
}

type ProfileVariableHistoryModel struct {
	ID            string `gorm:"primaryKey"`
	UserID        string `gorm:"not null;index"`
	VariableName  string `gorm:"not null;index"`
	VariableValue string `gorm:"type:text"`
	PreviousValue string `gorm:"type:text"`
	Source        string `gorm:"index"`
	SourceDetails datatypes.JSON
	Timestamp     time.Time `gorm:"not null;index"`
}

type DocumentModel struct {
	ID                 string `gorm:"primaryKey"`
	UserID             string `gorm:"not null;index"`
	Filename           string `gorm:"not null"`
	FileType           string
	FileSize           int64
	UploadTimestamp    time.Time `gorm:"not null;index"`
	DocumentType       string    `gorm:"not null"`
	ExtractedCount     int
	AppliedCount       int
	ProcessedTimestamp *time.Time
	Metadata           datatypes.JSON
}

type NotificationModel struct {
	ID          string `gorm:"primaryKey"`
	DocumentID  string `gorm:"not null;index"`
	UserID      string `gorm:"not null;index"`
	Message     string `gorm:"type:text;not null"`
	Delivered   bool   `gorm:"not null;index"`
	DeliveredAt *time.Time
	CreatedAt   time.Time `gorm:"not null;index"`
}

type SessionModel struct {
	ID              string    `gorm:"primaryKey"`
	UserID          string    `gorm:"not null;index"`
	StartedAt       time.Time `gorm:"not null"`
	DurationMinutes int
	MainTopics      datatypes.JSON
	ConversationLog string    `gorm:"type:text"`
	UpdatedAt       time.Time `gorm:"not null"`
}

type GoalModel struct {
	ID                     string `gorm:"primaryKey"`
	UserID                 string `gorm:"not null;index"`
	Goal                   string `gorm:"type:text;not null"`
	Description            string `gorm:"type:text"`
	Confidence             int
	Status                 string `gorm:"not null"`
	LinkedBestLifeElements datatypes.JSON
	UserNote               string
	LastEdited             *time.Time
	CreatedAt              time.Time `gorm:"not null;index"`
}

type ConcernModel struct {
	ID         string `gorm:"primaryKey"`
	UserID     string `gorm:"not null;index"`
	Concern    string `gorm:"type:text;not null"`
	Severity   string
	Context    string `gorm:"type:text"`
	UserNote   string
	LastEdited *time.Time
	CreatedAt  time.Time `gorm:"not null;index"`
}

type ValueModel struct {
	ID         string `gorm:"primaryKey"`
	UserID     string `gorm:"not null;index"`
	Value      string `gorm:"not null"`
	Importance int
	UserNote   string
	LastEdited *time.Time
	CreatedAt  time.Time `gorm:"not null;index"`
}

type EducationTopicModel struct {
	ID         string `gorm:"primaryKey"`
	UserID     string `gorm:"not null;index"`
	Topic      string `gorm:"not null"`
	Engagement string
	UserNote   string
	LastEdited *time.Time
	CreatedAt  time.Time `gorm:"not null;index"`
}

type StoryChapterModel struct {
	ID                     string `gorm:"primaryKey"`
	UserID                 string `gorm:"not null;index"`
	Title                  string `gorm:"not null"`
	Moment                 string `gorm:"type:text"`
	MoodArc                string
	Choices                string `gorm:"type:text"`
	Learning               string `gorm:"type:text"`
	LinkedBestLifeElements datatypes.JSON
	CreatedAt              time.Time `gorm:"not null;index"`
}

type FeedbackModel struct {
	ID                  string `gorm:"primaryKey"`
	UserID              string `gorm:"not null;index"`
	SessionID           string
	FeedbackText        string    `gorm:"type:text;not null"`
	ConversationContext string    `gorm:"type:text"`
	IsReviewed          bool      `gorm:"not null;index"`
	CreatedAt           time.Time `gorm:"not null;index"`
}

type SafetyEventModel struct {
	ID                string `gorm:"primaryKey"`
	UserID            string `gorm:"not null;index"`
	SessionID         string
	TriggerType       string `gorm:"not null"`
	Severity          string `gorm:"not null"`
	Keywords          datatypes.JSON
	Context           string    `gorm:"type:text"`
	ClinicianNotified bool      `gorm:"not null"`
	CreatedAt         time.Time `gorm:"not null"`
}

type ClinicalAlertModel struct {
	ID             string `gorm:"primaryKey"`
	UserID         string `gorm:"not null;index"`
	SafetyEventID  string `gorm:"index"`
	AlertType      string `gorm:"not null"`
	Priority       string `gorm:"not null"`
	PriorityRank   int    `gorm:"not null"`
	Message        string `gorm:"type:text;not null"`
	Acknowledged   bool   `gorm:"not null;index"`
	AcknowledgedAt *time.Time
	AcknowledgedBy string
	CreatedAt      time.Time `gorm:"not null"`
}

type AuditEntryModel struct {
	ID           string `gorm:"primaryKey"`
	UserID       string `gorm:"index"`
	Action       string `gorm:"not null;index"`
	ResourceType string `gorm:"not null"`
	ResourceID   string
	IPAddress    string
	UserAgent    string `gorm:"type:text"`
	Metadata     datatypes.JSON
	CreatedAt    time.Time `gorm:"not null;index"`
}

func toJSON(v any) datatypes.JSON {
	raw, err := json.Marshal(v)
	if err != nil {
		return datatypes.JSON("null")
	}
	return datatypes.JSON(raw)
}

func fromJSON[T any](raw datatypes.JSON) T {
	var out T
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &out)
	}
	return out
}

func rawJSON(raw datatypes.JSON) json.RawMessage {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	return json.RawMessage(raw)
}
