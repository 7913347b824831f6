package store

import (
	"encoding/json"

	"gorm.io/datatypes"
	"sofia/pkg/domain"
)

func userToModel(u domain.User) UserModel {
	return UserModel{
		ID:               u.ID,
		Name:             u.Name,
		Age:              u.Age,
		Role:             string(u.Role),
		IsActive:         u.IsActive,
		RegistrationDate: u.RegistrationDate.UTC(),
		LastVisit:        u.LastVisit.UTC(),
		TotalSessions:    u.TotalSessions,
	}
}

func userFromModel(m UserModel) domain.User {
	role := domain.UserRole(m.Role)
	if role == "" {
		role = domain.RoleUser
	}
	return domain.User{
		ID:               m.ID,
		Name:             m.Name,
		Age:              m.Age,
		Role:             role,
		IsActive:         m.IsActive,
		RegistrationDate: m.RegistrationDate,
		LastVisit:        m.LastVisit,
		TotalSessions:    m.TotalSessions,
	}
}

func aboutMeToModel(p domain.AboutMeProfile) AboutMeProfileModel {
	return AboutMeProfileModel{
		ID:                   p.ID,
		UserID:               p.UserID,
		BestLifeElements:     toJSON(nonNil(p.BestLifeElements)),
		Concerns:             toJSON(nonNil(p.Concerns)),
		ConfidenceLevel:      p.ConfidenceLevel,
		ConfidenceTimestamp:  p.ConfidenceTimestamp,
		UserDefinedNextSteps: toJSON(nonNilStrings(p.UserDefinedNextSteps)),
		ProfileCompleteness:  p.ProfileCompleteness,
		UpdatedAt:            p.UpdatedAt.UTC(),
	}
}

func aboutMeFromModel(m AboutMeProfileModel) domain.AboutMeProfile {
	return domain.AboutMeProfile{
		ID:                   m.ID,
		UserID:               m.UserID,
		BestLifeElements:     nonNil(fromJSON[[]domain.BestLifeElement](m.BestLifeElements)),
		Concerns:             nonNil(fromJSON[[]domain.ConcernItem](m.Concerns)),
		ConfidenceLevel:      m.ConfidenceLevel,
		ConfidenceTimestamp:  m.ConfidenceTimestamp,
		UserDefinedNextSteps: nonNilStrings(fromJSON[[]string](m.UserDefinedNextSteps)),
		ProfileCompleteness:  m.ProfileCompleteness,
		UpdatedAt:            m.UpdatedAt,
	}
}

func historyToModel(h domain.ProfileVariableHistory) ProfileVariableHistoryModel {
	return ProfileVariableHistoryModel{
		ID:            h.ID,
		UserID:        h.UserID,
		VariableName:  h.VariableName,
		VariableValue: h.VariableValue,
		PreviousValue: h.PreviousValue,
		Source:        h.Source,
		SourceDetails: objectJSON(h.SourceDetails),
		Timestamp:     h.Timestamp.UTC(),
	}
}

func historyFromModel(m ProfileVariableHistoryModel) domain.ProfileVariableHistory {
	return domain.ProfileVariableHistory{
		ID:            m.ID,
		UserID:        m.UserID,
		VariableName:  m.VariableName,
		VariableValue: m.VariableValue,
		PreviousValue: m.PreviousValue,
		Source:        m.Source,
		SourceDetails: rawJSON(m.SourceDetails),
		Timestamp:     m.Timestamp,
	}
}

func goalToModel(g domain.Goal) GoalModel {
	return GoalModel{
		ID:                     g.ID,
		UserID:                 g.UserID,
		Goal:                   g.Goal,
		Description:            g.Description,
		Confidence:             g.Confidence,
		Status:                 string(g.Status),
		LinkedBestLifeElements: toJSON(nonNilStrings(g.LinkedBestLifeElements)),
		UserNote:               g.UserNote,
		LastEdited:             g.LastEdited,
		CreatedAt:              g.CreatedAt.UTC(),
	}
}

func goalFromModel(m GoalModel) domain.Goal {
	return domain.Goal{
		ID:                     m.ID,
		UserID:                 m.UserID,
		Goal:                   m.Goal,
		Description:            m.Description,
		Confidence:             m.Confidence,
		Status:                 domain.GoalStatus(m.Status),
		LinkedBestLifeElements: nonNilStrings(fromJSON[[]string](m.LinkedBestLifeElements)),
		UserNote:               m.UserNote,
		LastEdited:             m.LastEdited,
		CreatedAt:              m.CreatedAt,
	}
}

func concernToModel(c domain.Concern) ConcernModel {
	return ConcernModel{
		ID:         c.ID,
		UserID:     c.UserID,
		Concern:    c.Concern,
		Severity:   c.Severity,
		Context:    c.Context,
		UserNote:   c.UserNote,
		LastEdited: c.LastEdited,
		CreatedAt:  c.CreatedAt.UTC(),
	}
}

func concernFromModel(m ConcernModel) domain.Concern {
	return domain.Concern{
		ID:         m.ID,
		UserID:     m.UserID,
		Concern:    m.Concern,
		Severity:   m.Severity,
		Context:    m.Context,
		UserNote:   m.UserNote,
		LastEdited: m.LastEdited,
		CreatedAt:  m.CreatedAt,
	}
}

func valueToModel(v domain.Value) ValueModel {
	return ValueModel{
		ID:         v.ID,
		UserID:     v.UserID,
		Value:      v.Value,
		Importance: v.Importance,
		UserNote:   v.UserNote,
		LastEdited: v.LastEdited,
		CreatedAt:  v.CreatedAt.UTC(),
	}
}

func valueFromModel(m ValueModel) domain.Value {
	return domain.Value{
		ID:         m.ID,
		UserID:     m.UserID,
		Value:      m.Value,
		Importance: m.Importance,
		UserNote:   m.UserNote,
		LastEdited: m.LastEdited,
		CreatedAt:  m.CreatedAt,
	}
}

func educationTopicToModel(t domain.EducationTopic) EducationTopicModel {
	return EducationTopicModel{
		ID:         t.ID,
		UserID:     t.UserID,
		Topic:      t.Topic,
		Engagement: t.Engagement,
		UserNote:   t.UserNote,
		LastEdited: t.LastEdited,
		CreatedAt:  t.CreatedAt.UTC(),
	}
}

func educationTopicFromModel(m EducationTopicModel) domain.EducationTopic {
	return domain.EducationTopic{
		ID:         m.ID,
		UserID:     m.UserID,
		Topic:      m.Topic,
		Engagement: m.Engagement,
		UserNote:   m.UserNote,
		LastEdited: m.LastEdited,
		CreatedAt:  m.CreatedAt,
	}
}

func chapterToModel(c domain.StoryChapter) StoryChapterModel {
	return StoryChapterModel{
		ID:                     c.ID,
		UserID:                 c.UserID,
		Title:                  c.Title,
		Moment:                 c.Moment,
		MoodArc:                c.MoodArc,
		Choices:                c.Choices,
		Learning:               c.Learning,
		LinkedBestLifeElements: toJSON(nonNilStrings(c.LinkedBestLifeElements)),
		CreatedAt:              c.CreatedAt.UTC(),
	}
}

func chapterFromModel(m StoryChapterModel) domain.StoryChapter {
	return domain.StoryChapter{
		ID:                     m.ID,
		UserID:                 m.UserID,
		Title:                  m.Title,
		Moment:                 m.Moment,
		MoodArc:                m.MoodArc,
		Choices:                m.Choices,
		Learning:               m.Learning,
		LinkedBestLifeElements: nonNilStrings(fromJSON[[]string](m.LinkedBestLifeElements)),
		CreatedAt:              m.CreatedAt,
	}
}

func sessionToModel(s domain.Session) SessionModel {
	return SessionModel{
		ID:              s.ID,
		UserID:          s.UserID,
		StartedAt:       s.StartedAt.UTC(),
		DurationMinutes: s.DurationMinutes,
		MainTopics:      toJSON(nonNilStrings(s.MainTopics)),
		ConversationLog: s.SealedLog,
		UpdatedAt:       s.UpdatedAt.UTC(),
	}
}

func sessionFromModel(m SessionModel) domain.Session {
	return domain.Session{
		ID:              m.ID,
		UserID:          m.UserID,
		StartedAt:       m.StartedAt,
		DurationMinutes: m.DurationMinutes,
		MainTopics:      nonNilStrings(fromJSON[[]string](m.MainTopics)),
		SealedLog:       m.ConversationLog,
		UpdatedAt:       m.UpdatedAt,
	}
}

func feedbackToModel(f domain.Feedback) FeedbackModel {
	return FeedbackModel{
		ID:                  f.ID,
		UserID:              f.UserID,
		SessionID:           f.SessionID,
		FeedbackText:        f.FeedbackText,
		ConversationContext: f.ConversationContext,
		IsReviewed:          f.IsReviewed,
		CreatedAt:           f.CreatedAt.UTC(),
	}
}

func feedbackFromModel(m FeedbackModel) domain.Feedback {
	return domain.Feedback{
		ID:                  m.ID,
		UserID:              m.UserID,
		SessionID:           m.SessionID,
		FeedbackText:        m.FeedbackText,
		ConversationContext: m.ConversationContext,
		IsReviewed:          m.IsReviewed,
		CreatedAt:           m.CreatedAt,
	}
}

func safetyEventToModel(e domain.SafetyEvent) SafetyEventModel {
	return SafetyEventModel{
		ID:                e.ID,
		UserID:            e.UserID,
		SessionID:         e.SessionID,
		TriggerType:       e.TriggerType,
		Severity:          string(e.Severity),
		Keywords:          toJSON(nonNilStrings(e.Keywords)),
		Context:           e.Context,
		ClinicianNotified: e.ClinicianNotified,
		CreatedAt:         e.CreatedAt.UTC(),
	}
}

func alertToModel(a domain.ClinicalAlert) ClinicalAlertModel {
	return ClinicalAlertModel{
		ID:             a.ID,
		UserID:         a.UserID,
		SafetyEventID:  a.SafetyEventID,
		AlertType:      a.AlertType,
		Priority:       string(a.Priority),
		PriorityRank:   a.Priority.Rank(),
		Message:        a.Message,
		Acknowledged:   a.Acknowledged,
		AcknowledgedAt: a.AcknowledgedAt,
		AcknowledgedBy: a.AcknowledgedBy,
		CreatedAt:      a.CreatedAt.UTC(),
	}
}

func alertFromModel(m ClinicalAlertModel) domain.ClinicalAlert {
	return domain.ClinicalAlert{
		ID:             m.ID,
		UserID:         m.UserID,
		SafetyEventID:  m.SafetyEventID,
		AlertType:      m.AlertType,
		Priority:       domain.Severity(m.Priority),
		Message:        m.Message,
		Acknowledged:   m.Acknowledged,
		AcknowledgedAt: m.AcknowledgedAt,
		AcknowledgedBy: m.AcknowledgedBy,
		CreatedAt:      m.CreatedAt,
	}
}

func documentToModel(d domain.Document) DocumentModel {
	return DocumentModel{
		ID:                 d.ID,
		UserID:             d.UserID,
		Filename:           d.Filename,
		FileType:           d.FileType,
		FileSize:           d.FileSize,
		UploadTimestamp:    d.UploadTimestamp.UTC(),
		DocumentType:       string(d.DocumentType),
		ExtractedCount:     d.ExtractedCount,
		AppliedCount:       d.AppliedCount,
		ProcessedTimestamp: d.ProcessedTimestamp,
		Metadata:           toJSON(d.Metadata),
	}
}

func documentFromModel(m DocumentModel) domain.Document {
	return domain.Document{
		ID:                 m.ID,
		UserID:             m.UserID,
		Filename:           m.Filename,
		FileType:           m.FileType,
		FileSize:           m.FileSize,
		UploadTimestamp:    m.UploadTimestamp,
		DocumentType:       domain.DocumentType(m.DocumentType),
		ExtractedCount:     m.ExtractedCount,
		AppliedCount:       m.AppliedCount,
		ProcessedTimestamp: m.ProcessedTimestamp,
		Metadata:           fromJSON[domain.DocumentMetadata](m.Metadata),
	}
}

func notificationToModel(n domain.Notification) NotificationModel {
	return NotificationModel{
		ID:          n.ID,
		DocumentID:  n.DocumentID,
		UserID:      n.UserID,
		Message:     n.Message,
		Delivered:   n.Delivered,
		DeliveredAt: n.DeliveredAt,
		CreatedAt:   n.CreatedAt.UTC(),
	}
}

func notificationFromModel(m NotificationModel) domain.Notification {
	return domain.Notification{
		ID:          m.ID,
		DocumentID:  m.DocumentID,
		UserID:      m.UserID,
		Message:     m.Message,
		Delivered:   m.Delivered,
		DeliveredAt: m.DeliveredAt,
		CreatedAt:   m.CreatedAt,
	}
}

func auditToModel(e domain.AuditEntry) AuditEntryModel {
	return AuditEntryModel{
		ID:           e.ID,
		UserID:       e.UserID,
		Action:       e.Action,
		ResourceType: e.ResourceType,
		ResourceID:   e.ResourceID,
		IPAddress:    e.IPAddress,
		UserAgent:    e.UserAgent,
		Metadata:     objectJSON(e.Metadata),
		CreatedAt:    e.CreatedAt.UTC(),
	}
}

func auditFromModel(m AuditEntryModel) domain.AuditEntry {
	return domain.AuditEntry{
		ID:           m.ID,
		UserID:       m.UserID,
		Action:       m.Action,
		ResourceType: m.ResourceType,
		ResourceID:   m.ResourceID,
		IPAddress:    m.IPAddress,
		UserAgent:    m.UserAgent,
		Metadata:     rawJSON(m.Metadata),
		CreatedAt:    m.CreatedAt,
	}
}

// objectJSON stores raw as-is, or an empty object when raw is blank or invalid.
func objectJSON(raw json.RawMessage) datatypes.JSON {
	if len(raw) == 0 || !json.Valid(raw) {
		return datatypes.JSON("{}")
	}
	return datatypes.JSON(raw)
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}

func nonNilStrings(items []string) []string {
	return nonNil(items)
}
