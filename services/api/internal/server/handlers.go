package server

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"sofia/pkg/domain"
	"sofia/services/api/internal/app"
)

type authRequest struct {
	Name string `json:"name"`
	Age  int    `json:"age"`
}

func (s *Server) handleAuth(w http.ResponseWriter, r *http.Request) {
	var req authRequest
	if !decodeJSON(w, r, &req, false) {
		return
	}
	res, err := s.app.Authenticate(r.Context(), req.Name, req.Age)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	action := "USER_LOGIN"
	if res.Created {
		action = "USER_CREATED"
	}
	writeJSON(w, http.StatusOK, res)
	s.record(r, res.User.ID, action, "users", res.User.ID)
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r)
	profile, err := s.app.Profile(r.Context(), user.ID)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
	s.record(r, user.ID, "PROFILE_VIEWED", "users", user.ID)
}

func (s *Server) handleUpdateAboutMe(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r)
	var req app.AboutMeInput
	if !decodeJSON(w, r, &req, false) {
		return
	}
	profile, err := s.app.UpdateAboutMe(r.Context(), user.ID, req)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
	s.record(r, user.ID, "ABOUT_ME_UPDATED", "about_me_profiles", profile.ID)
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r)
	sess, err := s.app.CreateSession(r.Context(), user.ID)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
	s.record(r, user.ID, "SESSION_CREATED", "sessions", sess.ID)
}

func (s *Server) handleUpdateSession(w http.ResponseWriter, r *http.Request) {
	var req app.SessionUpdate
	if !decodeJSON(w, r, &req, false) {
		return
	}
	sess, err := s.app.UpdateSession(r.Context(), userFrom(r).ID, chi.URLParam(r, "id"), req)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) handleCreateGoal(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r)
	var req app.GoalInput
	if !decodeJSON(w, r, &req, false) {
		return
	}
	goal, err := s.app.CreateGoal(r.Context(), user.ID, req)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, goal)
	s.record(r, user.ID, "GOAL_CREATED", "goals", goal.ID)
}

func (s *Server) handleCreateChapter(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r)
	var req app.ChapterInput
	if !decodeJSON(w, r, &req, false) {
		return
	}
	chapter, err := s.app.CreateStoryChapter(r.Context(), user.ID, req)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, chapter)
	s.record(r, user.ID, "CHAPTER_CREATED", "story_chapters", chapter.ID)
}

func (s *Server) handleSubmitFeedback(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r)
	var req app.FeedbackInput
	if !decodeJSON(w, r, &req, false) {
		return
	}
	fb, err := s.app.SubmitFeedback(r.Context(), user.ID, req)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, fb)
	s.record(r, user.ID, "FEEDBACK_SUBMITTED", "feedback", fb.ID)
}

func (s *Server) handleUnreviewedFeedback(w http.ResponseWriter, r *http.Request) {
	items, err := s.app.UnreviewedFeedback(r.Context())
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (s *Server) handleCreateSafetyEvent(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r)
	var req app.SafetyEventInput
	if !decodeJSON(w, r, &req, false) {
		return
	}
	ev, err := s.app.CreateSafetyEvent(r.Context(), user, req)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ev)
	s.record(r, user.ID, "SAFETY_EVENT_CREATED", "safety_events", ev.ID)
}

func (s *Server) handleRecordProfileChange(w http.ResponseWriter, r *http.Request) {
	var req app.ProfileChangeInput
	if !decodeJSON(w, r, &req, false) {
		return
	}
	entry, err := s.app.RecordProfileChange(r.Context(), userFrom(r).ID, req)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (s *Server) handleProfileHistory(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, ok := parseLimit(q.Get("limit"))
	if !ok {
		writeError(w, http.StatusBadRequest, "limit must be a positive integer")
		return
	}
	items, err := s.app.ProfileHistory(r.Context(), userFrom(r), domain.HistoryFilter{
		UserID:       chi.URLParam(r, "id"),
		VariableName: strings.TrimSpace(q.Get("variableName")),
		Source:       strings.TrimSpace(q.Get("source")),
		Limit:        limit,
	})
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

// parseLimit accepts an empty value (meaning the default) or a positive integer.
func parseLimit(raw string) (int, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}
