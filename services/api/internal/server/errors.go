package server

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"sofia/internal/util"
	"sofia/pkg/domain"
)

const maxJSONBody = 1 << 20

var errAppRequired = errors.New("server: app is required")

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

type errorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	RequestID string `json:"requestId,omitempty"`
	Detail    string `json:"detail,omitempty"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeErrorDetail(w, status, msg, "")
}

func writeErrorDetail(w http.ResponseWriter, status int, msg, detail string) {
	writeJSON(w, status, errorResponse{
		Error:     msg,
		Code:      errorCodeFor(status, msg),
		RequestID: strings.TrimSpace(w.Header().Get("X-Request-Id")),
		Detail:    detail,
	})
}

// writeAppError maps an application error to its status. Dependency failures
// are logged, and their cause is echoed only outside production.
func (s *Server) writeAppError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(domain.KindOf(err))
	msg := domain.MessageOf(err)
	if status < http.StatusInternalServerError {
		writeError(w, status, msg)
		return
	}
	util.LoggerFromContext(r.Context()).ErrorContext(r.Context(), "request failed",
		slog.String("path", r.URL.Path),
		slog.String("error", err.Error()),
	)
	if s.production {
		writeError(w, status, msg)
		return
	}
	writeErrorDetail(w, status, msg, err.Error())
}

func statusFor(kind domain.ErrorKind) int {
	switch kind {
	case domain.KindValidation:
		return http.StatusBadRequest
	case domain.KindAuthentication:
		return http.StatusUnauthorized
	case domain.KindForbidden:
		return http.StatusForbidden
	case domain.KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// decodeJSON reads a JSON request body into dst. An empty body is allowed
// only when allowEmpty is set, leaving dst untouched.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any, allowEmpty bool) bool {
	err := json.NewDecoder(io.LimitReader(r.Body, maxJSONBody)).Decode(dst)
	if allowEmpty && errors.Is(err, io.EOF) {
		return true
	}
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

func methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func notFound(w http.ResponseWriter, msg string) {
	writeError(w, http.StatusNotFound, msg)
}

func errorCodeFor(status int, msg string) string {
	message := strings.ToLower(strings.TrimSpace(msg))
	switch {
	case message == "unauthorized", message == "invalid or expired token":
		return "AUTH_INVALID_TOKEN"
	case message == "forbidden":
		return "SOFIA_FORBIDDEN"
	case message == "name is required":
		return "AUTH_NAME_REQUIRED"
	case message == "too many requests":
		return "SYSTEM_RATE_LIMITED"
	case message == "no file uploaded":
		return "DOCUMENT_REQUIRED"
	case message == "file too large":
		return "DOCUMENT_TOO_LARGE"
	case strings.Contains(message, "files are allowed"):
		return "DOCUMENT_UNSUPPORTED_TYPE"
	case message == "invalid form data":
		return "DOCUMENT_INVALID_UPLOAD_FORM"
	case message == "document not found":
		return "DOCUMENT_NOT_FOUND"
	case message == "notification not found":
		return "NOTIFICATION_NOT_FOUND"
	case message == "session not found":
		return "SESSION_NOT_FOUND"
	case message == "clinical alert not found":
		return "CLINICAL_ALERT_NOT_FOUND"
	case message == "user not found":
		return "USER_NOT_FOUND"
	case message == "invalid json body":
		return "SOFIA_INVALID_REQUEST"
	case message == "method not allowed":
		return "SYSTEM_METHOD_NOT_ALLOWED"
	case message == "not found":
		return "SYSTEM_NOT_FOUND"
	}

	switch status {
	case http.StatusBadRequest:
		return "SOFIA_INVALID_REQUEST"
	case http.StatusUnauthorized:
		return "AUTH_INVALID_TOKEN"
	case http.StatusForbidden:
		return "SOFIA_FORBIDDEN"
	case http.StatusNotFound:
		return "SOFIA_NOT_FOUND"
	case http.StatusMethodNotAllowed:
		return "SYSTEM_METHOD_NOT_ALLOWED"
	case http.StatusTooManyRequests:
		return "SYSTEM_RATE_LIMITED"
	default:
		return "SYSTEM_INTERNAL_ERROR"
	}
}
