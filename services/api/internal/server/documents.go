package server

import (
	"errors"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"
	"sofia/pkg/docpipe"
	"sofia/services/api/internal/app"
)

const (
	multipartMemory   = 32 << 20
	multipartOverhead = 1 << 20
)

type uploadResponse struct {
	Success bool `json:"success"`
	docpipe.Result
}

type appliedRequest struct {
	AppliedCount int `json:"appliedCount"`
}

func (s *Server) handleTrackDocumentUpload(w http.ResponseWriter, r *http.Request) {
	var req app.DocumentUploadInput
	if !decodeJSON(w, r, &req, false) {
		return
	}
	doc, err := s.app.TrackDocumentUpload(r.Context(), userFrom(r).ID, req)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (s *Server) handleMarkDocumentApplied(w http.ResponseWriter, r *http.Request) {
	var req appliedRequest
	if !decodeJSON(w, r, &req, false) {
		return
	}
	doc, err := s.app.MarkDocumentApplied(r.Context(), userFrom(r).ID, chi.URLParam(r, "id"), req.AppliedCount)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := s.app.ListDocuments(r.Context(), userFrom(r), chi.URLParam(r, "id"))
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, docs)
}

// handleUploadDocument ingests the multipart field "document". Admins may pass
// userId to upload on behalf of another user.
func (s *Server) handleUploadDocument(w http.ResponseWriter, r *http.Request) {
	maxBytes := s.app.MaxUploadBytes()
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes+multipartOverhead)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			writeError(w, http.StatusBadRequest, "file too large")
		case errors.Is(err, http.ErrNotMultipart):
			writeError(w, http.StatusBadRequest, "No file uploaded")
		default:
			writeError(w, http.StatusBadRequest, "invalid form data")
		}
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("document")
	if err != nil {
		writeError(w, http.StatusBadRequest, "No file uploaded")
		return
	}
	defer file.Close()
	data, err := io.ReadAll(io.LimitReader(file, maxBytes+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid form data")
		return
	}

	ownerID := r.URL.Query().Get("userId")
	if ownerID == "" {
		ownerID = r.FormValue("userId")
	}
	res, err := s.app.UploadDocument(r.Context(), userFrom(r), app.UploadInput{
		OwnerID:  ownerID,
		Filename: header.Filename,
		MIMEType: uploadContentType(header.Header.Get("Content-Type"), header.Filename),
		Data:     data,
	})
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, uploadResponse{Success: true, Result: res})
}

// uploadContentType prefers the part's declared type and falls back to the extension.
func uploadContentType(declared, filename string) string {
	declared = strings.TrimSpace(declared)
	if declared != "" && declared != "application/octet-stream" {
		return declared
	}
	if byExt := mime.TypeByExtension(strings.ToLower(filepath.Ext(filename))); byExt != "" {
		return byExt
	}
	return declared
}

func (s *Server) handleDocumentContent(w http.ResponseWriter, r *http.Request) {
	content, err := s.app.DocumentContent(r.Context(), userFrom(r), chi.URLParam(r, "id"))
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, content)
}

func (s *Server) handlePendingNotifications(w http.ResponseWriter, r *http.Request) {
	items, err := s.app.PendingNotifications(r.Context(), userFrom(r), chi.URLParam(r, "id"))
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (s *Server) handleMarkNotificationDelivered(w http.ResponseWriter, r *http.Request) {
	n, err := s.app.MarkNotificationDelivered(r.Context(), userFrom(r).ID, chi.URLParam(r, "id"))
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, n)
}
