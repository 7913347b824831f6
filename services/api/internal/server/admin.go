package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"sofia/pkg/domain"
)

type scoreRequest struct {
	Response string `json:"response"`
}

type topicRequest struct {
	Topic string `json:"topic"`
}

func (s *Server) handleScoreResponse(w http.ResponseWriter, r *http.Request) {
	var req scoreRequest
	if !decodeJSON(w, r, &req, false) {
		return
	}
	report, err := s.app.ScoreResponse(r.Context(), userFrom(r).ID, req.Response)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleValidateTopic(w http.ResponseWriter, r *http.Request) {
	var req topicRequest
	if !decodeJSON(w, r, &req, false) {
		return
	}
	res, err := s.app.ValidateTopic(r.Context(), userFrom(r).ID, req.Topic)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleConversationContext(w http.ResponseWriter, r *http.Request) {
	res, err := s.app.ConversationContext(r.Context(), userFrom(r).ID)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleAlignmentStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.app.AlignmentStats())
}

func (s *Server) handleAuditTrail(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	start, ok := parseDate(q.Get("startDate"))
	if !ok {
		writeError(w, http.StatusBadRequest, "startDate must be an ISO date")
		return
	}
	end, ok := parseDate(q.Get("endDate"))
	if !ok {
		writeError(w, http.StatusBadRequest, "endDate must be an ISO date")
		return
	}
	limit, ok := parseLimit(q.Get("limit"))
	if !ok {
		writeError(w, http.StatusBadRequest, "limit must be a positive integer")
		return
	}
	entries, err := s.app.AuditTrail(r.Context(), domain.AuditFilter{
		UserID: chi.URLParam(r, "id"),
		Start:  start,
		End:    end,
		Limit:  limit,
	})
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

// parseDate accepts RFC 3339 timestamps or plain dates; empty means unbounded.
func parseDate(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, true
	}
	for _, layout := range []string{time.RFC3339Nano, time.DateOnly} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

func (s *Server) handlePendingClinicalAlerts(w http.ResponseWriter, r *http.Request) {
	alerts, err := s.app.PendingClinicalAlerts(r.Context())
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, alerts)
}

func (s *Server) handleAcknowledgeClinicalAlert(w http.ResponseWriter, r *http.Request) {
	alert, err := s.app.AcknowledgeClinicalAlert(r.Context(), userFrom(r), chi.URLParam(r, "id"))
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, alert)
}
