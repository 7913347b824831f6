package client

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"sofia/pkg/domain"
)

type AuthResponse struct {
	Token string      `json:"token"`
	User  domain.User `json:"user"`
}

// Profile is everything the API knows about the signed-in user.
type Profile struct {
	User            domain.User             `json:"user"`
	AboutMe         *domain.AboutMeProfile  `json:"aboutMe"`
	StoryChapters   []domain.StoryChapter   `json:"storyChapters"`
	Goals           []domain.Goal           `json:"goals"`
	Concerns        []domain.Concern        `json:"concerns"`
	Values          []domain.Value          `json:"values"`
	EducationTopics []domain.EducationTopic `json:"educationTopics"`
}

type UploadResponse struct {
	Success       bool                `json:"success"`
	Document      domain.Document     `json:"document"`
	Notification  domain.Notification `json:"notification"`
	ExtractedText string              `json:"extractedText"`
	Message       string              `json:"message"`
	DocumentType  domain.DocumentType `json:"documentType"`
}

// Authenticate signs in by name, creating the user on first use. A
// successful sign-in schedules a sync of anything queued while signed out.
func (c *Client) Authenticate(ctx context.Context, name string, age int) (AuthResponse, error) {
	var out AuthResponse
	body := map[string]any{"name": name, "age": age}
	if err := c.Call(ctx, http.MethodPost, "/users/auth", body, &out); err != nil {
		return AuthResponse{}, err
	}
	c.mu.Lock()
	c.token = out.Token
	user := out.User
	c.user = &user
	c.mu.Unlock()

	if c.online.Load() {
		c.scheduleSync()
	}
	return out, nil
}

func (c *Client) Profile(ctx context.Context) (Profile, error) {
	var out Profile
	err := c.Call(ctx, http.MethodGet, "/users/profile", nil, &out)
	return out, err
}

func (c *Client) CreateSession(ctx context.Context) (domain.Session, *Queued, error) {
	var out domain.Session
	queued, err := c.CallWithOfflineSupport(ctx, http.MethodPost, "/sessions", nil, &out)
	return out, queued, err
}

func (c *Client) UpdateSession(ctx context.Context, s domain.Session) (*Queued, error) {
	return c.CallWithOfflineSupport(ctx, http.MethodPut, "/sessions/"+url.PathEscape(s.ID), s, nil)
}

func (c *Client) UpdateAboutMe(ctx context.Context, p domain.AboutMeProfile) (*Queued, error) {
	return c.CallWithOfflineSupport(ctx, http.MethodPut, "/users/about-me", p, nil)
}

func (c *Client) CreateChapter(ctx context.Context, ch domain.StoryChapter) (*Queued, error) {
	return c.CallWithOfflineSupport(ctx, http.MethodPost, "/story-chapters", ch, nil)
}

func (c *Client) CreateGoal(ctx context.Context, g domain.Goal) (*Queued, error) {
	return c.CallWithOfflineSupport(ctx, http.MethodPost, "/goals", g, nil)
}

func (c *Client) SubmitFeedback(ctx context.Context, f domain.Feedback) (*Queued, error) {
	return c.CallWithOfflineSupport(ctx, http.MethodPost, "/feedback", f, nil)
}

func (c *Client) CreateSafetyEvent(ctx context.Context, ev domain.SafetyEvent) (*Queued, error) {
	return c.CallWithOfflineSupport(ctx, http.MethodPost, "/safety-events", ev, nil)
}

func (c *Client) TrackDocumentUpload(ctx context.Context, d domain.Document) (*Queued, error) {
	return c.CallWithOfflineSupport(ctx, http.MethodPost, "/document-uploads", d, nil)
}

func (c *Client) UpdateDocumentUpload(ctx context.Context, id string, appliedCount int) (*Queued, error) {
	body := map[string]int{"appliedCount": appliedCount}
	return c.CallWithOfflineSupport(ctx, http.MethodPut, "/document-uploads/"+url.PathEscape(id), body, nil)
}

func (c *Client) TrackProfileChange(ctx context.Context, h domain.ProfileVariableHistory) (*Queued, error) {
	return c.CallWithOfflineSupport(ctx, http.MethodPost, "/profile-history", h, nil)
}

// UploadDocument is never queued: the file is not kept client-side.
func (c *Client) UploadDocument(ctx context.Context, filename, contentType string, r io.Reader) (UploadResponse, error) {
	var out UploadResponse
	if err := c.upload(ctx, filename, contentType, r, &out); err != nil {
		return UploadResponse{}, fmt.Errorf("upload %s: %w", filename, err)
	}
	return out, nil
}

func (c *Client) DocumentContent(ctx context.Context, documentID string) (map[string]any, error) {
	var out map[string]any
	err := c.Call(ctx, http.MethodGet, "/documents/content/"+url.PathEscape(documentID), nil, &out)
	return out, err
}

func (c *Client) DocumentNotifications(ctx context.Context, userID string) ([]domain.Notification, error) {
	var out []domain.Notification
	err := c.Call(ctx, http.MethodGet, "/documents/notifications/"+url.PathEscape(userID), nil, &out)
	return out, err
}

func (c *Client) MarkNotificationDelivered(ctx context.Context, notificationID string) (domain.Notification, error) {
	var out domain.Notification
	err := c.Call(ctx, http.MethodPut, "/documents/notifications/"+url.PathEscape(notificationID)+"/delivered", nil, &out)
	return out, err
}
