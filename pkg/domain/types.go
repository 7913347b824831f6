package domain

import (
	"encoding/json"
	"time"
)

type UserRole string

const (
	RoleUser  UserRole = "user"
	RoleAdmin UserRole = "admin"
)

type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Rank orders severities for alert priority; unknown values rank lowest.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 4
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	default:
		return 0
	}
}

// RequiresClinician reports whether a safety event of this severity raises a clinical alert.
func (s Severity) RequiresClinician() bool {
	return s == SeverityHigh || s == SeverityCritical
}

type DocumentType string

const (
	DocumentPDF     DocumentType = "pdf"
	DocumentText    DocumentType = "text"
	DocumentJSON    DocumentType = "json"
	DocumentUnknown DocumentType = "unknown"
)

type GoalStatus string

const (
	GoalActive    GoalStatus = "active"
	GoalCompleted GoalStatus = "completed"
	GoalPaused    GoalStatus = "paused"
)

type User struct {
	ID               string    `json:"id"`
	Name             string    `json:"name"`
	Age              int       `json:"age"`
	Role             UserRole  `json:"role"`
	IsActive         bool      `json:"isActive"`
	RegistrationDate time.Time `json:"registrationDate"`
	LastVisit        time.Time `json:"lastVisit"`
	TotalSessions    int       `json:"totalSessions"`
}

type BestLifeElement struct {
	Element     string `json:"element"`
	Description string `json:"description,omitempty"`
}

type ConcernItem struct {
	Concern     string `json:"concern"`
	Description string `json:"description,omitempty"`
}

type AboutMeProfile struct {
	ID                   string            `json:"id"`
	UserID               string            `json:"userId"`
	BestLifeElements     []BestLifeElement `json:"bestLifeElements"`
	Concerns             []ConcernItem     `json:"concerns"`
	ConfidenceLevel      string            `json:"confidenceLevel"`
	ConfidenceTimestamp  *time.Time        `json:"confidenceTimestamp,omitempty"`
	UserDefinedNextSteps []string          `json:"userDefinedNextSteps"`
	ProfileCompleteness  int               `json:"profileCompleteness"`
	UpdatedAt            time.Time         `json:"updatedAt"`
}

// Completeness scores how much of the About Me profile is filled in (0-100).
func Completeness(elements []BestLifeElement, concerns []ConcernItem, confidenceLevel string) int {
	score := 0
	if len(elements) > 0 {
		score += 40
	}
	if len(concerns) > 0 {
		score += 40
	}
	if confidenceLevel != "" {
		score += 20
	}
	return score
}

type ProfileVariableHistory struct {
	ID            string          `json:"id"`
	UserID        string          `json:"userId"`
	VariableName  string          `json:"variableName"`
	VariableValue string          `json:"variableValue"`
	PreviousValue string          `json:"previousValue"`
	Source        string          `json:"source"`
	SourceDetails json.RawMessage `json:"sourceDetails,omitempty"`
	Timestamp     time.Time       `json:"timestamp"`
}

type DocumentMetadata struct {
	OriginalName    string       `json:"originalName"`
	DocumentType    DocumentType `json:"documentType"`
	ExtractedText   string       `json:"extractedText"`
	StorageKey      string       `json:"storageKey,omitempty"`
	UploadedBy      string       `json:"uploadedBy,omitempty"`
	UploadTimestamp time.Time    `json:"uploadTimestamp"`
}

type Document struct {
	ID                 string           `json:"id"`
	UserID             string           `json:"userId"`
	Filename           string           `json:"filename"`
	FileType           string           `json:"fileType"`
	FileSize           int64            `json:"fileSize"`
	UploadTimestamp    time.Time        `json:"uploadTimestamp"`
	DocumentType       DocumentType     `json:"documentType"`
	ExtractedCount     int              `json:"extractedCount"`
	AppliedCount       int              `json:"appliedCount"`
	ProcessedTimestamp *time.Time       `json:"processedTimestamp,omitempty"`
	Metadata           DocumentMetadata `json:"metadata"`
}

type Notification struct {
	ID          string     `json:"id"`
	DocumentID  string     `json:"documentId"`
	UserID      string     `json:"userId"`
	Message     string     `json:"message"`
	Delivered   bool       `json:"isDelivered"`
	DeliveredAt *time.Time `json:"deliveredAt,omitempty"`
	CreatedAt   time.Time  `json:"timestamp"`
}

type Session struct {
	ID              string          `json:"id"`
	UserID          string          `json:"userId"`
	StartedAt       time.Time       `json:"startedAt"`
	DurationMinutes int             `json:"durationMinutes"`
	MainTopics      []string        `json:"mainTopics"`
	ConversationLog json.RawMessage `json:"conversationLog,omitempty"`
	UpdatedAt       time.Time       `json:"updatedAt"`

	// SealedLog is the encrypted form of ConversationLog as persisted.
	SealedLog string `json:"-"`
}

type Goal struct {
	ID                     string     `json:"id"`
	UserID                 string     `json:"userId"`
	Goal                   string     `json:"goal"`
	Description            string     `json:"description,omitempty"`
	Confidence             int        `json:"confidence"`
	Status                 GoalStatus `json:"status"`
	LinkedBestLifeElements []string   `json:"linkedBestLifeElements"`
	UserNote               string     `json:"userNote,omitempty"`
	LastEdited             *time.Time `json:"lastEdited,omitempty"`
	CreatedAt              time.Time  `json:"createdAt"`
}

type Concern struct {
	ID         string     `json:"id"`
	UserID     string     `json:"userId"`
	Concern    string     `json:"concern"`
	Severity   string     `json:"severity,omitempty"`
	Context    string     `json:"context,omitempty"`
	UserNote   string     `json:"userNote,omitempty"`
	LastEdited *time.Time `json:"lastEdited,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
}

type Value struct {
	ID         string     `json:"id"`
	UserID     string     `json:"userId"`
	Value      string     `json:"value"`
	Importance int        `json:"importance"`
	UserNote   string     `json:"userNote,omitempty"`
	LastEdited *time.Time `json:"lastEdited,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
}

type EducationTopic struct {
	ID         string     `json:"id"`
	UserID     string     `json:"userId"`
	Topic      string     `json:"topic"`
	Engagement string     `json:"engagement,omitempty"`
	UserNote   string     `json:"userNote,omitempty"`
	LastEdited *time.Time `json:"lastEdited,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
}

type StoryChapter struct {
	ID                     string    `json:"id"`
	UserID                 string    `json:"userId"`
	Title                  string    `json:"title"`
	Moment                 string    `json:"moment"`
	MoodArc                string    `json:"moodArc"`
	Choices                string    `json:"choices"`
	Learning               string    `json:"learning"`
	LinkedBestLifeElements []string  `json:"linkedBestLifeElements"`
	CreatedAt              time.Time `json:"createdAt"`
}

type Feedback struct {
	ID                  string    `json:"id"`
	UserID              string    `json:"userId"`
	SessionID           string    `json:"sessionId,omitempty"`
	FeedbackText        string    `json:"feedbackText"`
	ConversationContext string    `json:"conversationContext,omitempty"`
	IsReviewed          bool      `json:"isReviewed"`
	CreatedAt           time.Time `json:"createdAt"`
}

type SafetyEvent struct {
	ID                string    `json:"id"`
	UserID            string    `json:"userId"`
	SessionID         string    `json:"sessionId,omitempty"`
	TriggerType       string    `json:"triggerType"`
	Severity          Severity  `json:"severity"`
	Keywords          []string  `json:"keywords"`
	Context           string    `json:"context"`
	ClinicianNotified bool      `json:"clinicianNotified"`
	CreatedAt         time.Time `json:"createdAt"`
}

type ClinicalAlert struct {
	ID             string     `json:"id"`
	UserID         string     `json:"userId"`
	UserName       string     `json:"userName,omitempty"`
	SafetyEventID  string     `json:"safetyEventId"`
	AlertType      string     `json:"alertType"`
	Priority       Severity   `json:"priority"`
	Message        string     `json:"message"`
	Context        string     `json:"context,omitempty"`
	Acknowledged   bool       `json:"acknowledged"`
	AcknowledgedAt *time.Time `json:"acknowledgedAt,omitempty"`
	AcknowledgedBy string     `json:"acknowledgedBy,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
}

type AuditEntry struct {
	ID           string          `json:"id"`
	UserID       string          `json:"userId,omitempty"`
	UserName     string          `json:"userName,omitempty"`
	Action       string          `json:"action"`
	ResourceType string          `json:"resourceType"`
	ResourceID   string          `json:"resourceId,omitempty"`
	IPAddress    string          `json:"ipAddress"`
	UserAgent    string          `json:"userAgent"`
	Metadata     json.RawMessage `json:"metadata"`
	CreatedAt    time.Time       `json:"createdAt"`
}

// AuditFilter narrows an audit trail query. Zero times are unbounded.
type AuditFilter struct {
	UserID string
	Start  time.Time
	End    time.Time
	Limit  int
}

// HistoryFilter narrows a profile variable history query.
type HistoryFilter struct {
	UserID       string
	VariableName string
	Source       string
	Limit        int
}
