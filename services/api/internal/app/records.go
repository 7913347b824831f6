package app

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"sofia/pkg/domain"
	"sofia/pkg/store"
)

// SessionUpdate carries the fields a client may change on a session.
type SessionUpdate struct {
	DurationMinutes int             `json:"durationMinutes"`
	MainTopics      []string        `json:"mainTopics"`
	ConversationLog json.RawMessage `json:"conversationLog"`
}

type GoalInput struct {
	Goal                   string            `json:"goal"`
	Description            string            `json:"description"`
	Confidence             int               `json:"confidence"`
	Status                 domain.GoalStatus `json:"status"`
	LinkedBestLifeElements []string          `json:"linkedBestLifeElements"`
	UserNote               string            `json:"userNote"`
}

type ChapterInput struct {
	Title                  string   `json:"title"`
	Moment                 string   `json:"moment"`
	MoodArc                string   `json:"moodArc"`
	Choices                string   `json:"choices"`
	Learning               string   `json:"learning"`
	LinkedBestLifeElements []string `json:"linkedBestLifeElements"`
}

type FeedbackInput struct {
	SessionID           string `json:"sessionId"`
	FeedbackText        string `json:"feedbackText"`
	ConversationContext string `json:"conversationContext"`
}

// ProfileChangeInput is one externally tracked profile variable change.
type ProfileChangeInput struct {
	VariableName  string          `json:"variableName"`
	VariableValue string          `json:"variableValue"`
	PreviousValue string          `json:"previousValue"`
	Source        string          `json:"source"`
	SourceDetails json.RawMessage `json:"sourceDetails"`
}

// CreateSession starts a conversation session and bumps the user's session count.
func (a *App) CreateSession(ctx context.Context, userID string) (domain.Session, error) {
	now := a.timestamp()
	sess := domain.Session{
		ID:         a.newID(),
		UserID:     userID,
		StartedAt:  now,
		MainTopics: []string{},
		UpdatedAt:  now,
	}
	if err := a.store.CreateSession(ctx, sess); err != nil {
		return domain.Session{}, domain.Dependency("failed to create session", err)
	}
	if err := a.store.IncrementUserSessions(ctx, userID); err != nil {
		return domain.Session{}, domain.Dependency("failed to create session", err)
	}
	return sess, nil
}

// UpdateSession stores duration, topics and the encrypted transcript of a session owned by userID.
func (a *App) UpdateSession(ctx context.Context, userID, sessionID string, in SessionUpdate) (domain.Session, error) {
	if in.DurationMinutes < 0 {
		return domain.Session{}, domain.Validation("durationMinutes must not be negative")
	}
	var sealed string
	if len(in.ConversationLog) > 0 && string(in.ConversationLog) != "null" {
		var err error
		sealed, err = a.box.Seal(in.ConversationLog)
		if err != nil {
			return domain.Session{}, domain.Dependency("failed to update session", err)
		}
	}
	updated, err := a.store.UpdateSession(ctx, domain.Session{
		ID:              sessionID,
		UserID:          userID,
		DurationMinutes: in.DurationMinutes,
		MainTopics:      nonNil(in.MainTopics),
		SealedLog:       sealed,
		UpdatedAt:       a.timestamp(),
	})
	if errors.Is(err, store.ErrNotFound) {
		return domain.Session{}, domain.NotFound("session not found")
	}
	if err != nil {
		return domain.Session{}, domain.Dependency("failed to update session", err)
	}
	return a.openSession(updated)
}

func (a *App) openSession(sess domain.Session) (domain.Session, error) {
	if sess.SealedLog == "" {
		return sess, nil
	}
	plain, err := a.box.Open(sess.SealedLog)
	if err != nil {
		return domain.Session{}, domain.Dependency("failed to read session transcript", err)
	}
	sess.ConversationLog = json.RawMessage(plain)
	return sess, nil
}

func (a *App) CreateGoal(ctx context.Context, userID string, in GoalInput) (domain.Goal, error) {
	text := strings.TrimSpace(in.Goal)
	if text == "" {
		return domain.Goal{}, domain.Validation("goal is required")
	}
	status := in.Status
	switch status {
	case "":
		status = domain.GoalActive
	case domain.GoalActive, domain.GoalCompleted, domain.GoalPaused:
	default:
		return domain.Goal{}, domain.Validation("status must be active, completed or paused")
	}
	goal := domain.Goal{
		ID:                     a.newID(),
		UserID:                 userID,
		Goal:                   text,
		Description:            in.Description,
		Confidence:             in.Confidence,
		Status:                 status,
		LinkedBestLifeElements: nonNil(in.LinkedBestLifeElements),
		UserNote:               in.UserNote,
		CreatedAt:              a.timestamp(),
	}
	if err := a.store.CreateGoal(ctx, goal); err != nil {
		return domain.Goal{}, domain.Dependency("failed to create goal", err)
	}
	return goal, nil
}

func (a *App) CreateStoryChapter(ctx context.Context, userID string, in ChapterInput) (domain.StoryChapter, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return domain.StoryChapter{}, domain.Validation("title is required")
	}
	chapter := domain.StoryChapter{
		ID:                     a.newID(),
		UserID:                 userID,
		Title:                  title,
		Moment:                 in.Moment,
		MoodArc:                in.MoodArc,
		Choices:                in.Choices,
		Learning:               in.Learning,
		LinkedBestLifeElements: nonNil(in.LinkedBestLifeElements),
		CreatedAt:              a.timestamp(),
	}
	if err := a.store.CreateStoryChapter(ctx, chapter); err != nil {
		return domain.StoryChapter{}, domain.Dependency("failed to create story chapter", err)
	}
	return chapter, nil
}

func (a *App) SubmitFeedback(ctx context.Context, userID string, in FeedbackInput) (domain.Feedback, error) {
	text := strings.TrimSpace(in.FeedbackText)
	if text == "" {
		return domain.Feedback{}, domain.Validation("feedbackText is required")
	}
	fb := domain.Feedback{
		ID:                  a.newID(),
		UserID:              userID,
		SessionID:           in.SessionID,
		FeedbackText:        text,
		ConversationContext: in.ConversationContext,
		CreatedAt:           a.timestamp(),
	}
	if err := a.store.CreateFeedback(ctx, fb); err != nil {
		return domain.Feedback{}, domain.Dependency("failed to submit feedback", err)
	}
	return fb, nil
}

func (a *App) UnreviewedFeedback(ctx context.Context) ([]domain.Feedback, error) {
	items, err := a.store.ListUnreviewedFeedback(ctx)
	if err != nil {
		return nil, domain.Dependency("failed to fetch feedback", err)
	}
	return items, nil
}

// RecordProfileChange appends a client-reported profile variable change.
func (a *App) RecordProfileChange(ctx context.Context, userID string, in ProfileChangeInput) (domain.ProfileVariableHistory, error) {
	name := strings.TrimSpace(in.VariableName)
	if name == "" {
		return domain.ProfileVariableHistory{}, domain.Validation("variableName is required")
	}
	source := strings.TrimSpace(in.Source)
	if source == "" {
		source = historySourceManual
	}
	entry := domain.ProfileVariableHistory{
		ID:            a.newID(),
		UserID:        userID,
		VariableName:  name,
		VariableValue: in.VariableValue,
		PreviousValue: in.PreviousValue,
		Source:        source,
		SourceDetails: in.SourceDetails,
		Timestamp:     a.timestamp(),
	}
	if err := a.store.AppendProfileHistory(ctx, entry); err != nil {
		return domain.ProfileVariableHistory{}, domain.Dependency("failed to record profile change", err)
	}
	return entry, nil
}

// ProfileHistory lists a user's variable history, newest first.
func (a *App) ProfileHistory(ctx context.Context, actor domain.User, f domain.HistoryFilter) ([]domain.ProfileVariableHistory, error) {
	if err := authorizeSubject(actor, f.UserID); err != nil {
		return nil, err
	}
	if f.Limit <= 0 {
		f.Limit = store.DefaultHistoryLimit
	}
	items, err := a.store.ListProfileHistory(ctx, f)
	if err != nil {
		return nil, domain.Dependency("failed to fetch profile history", err)
	}
	return items, nil
}
