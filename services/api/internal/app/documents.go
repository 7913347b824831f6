package app

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"sofia/pkg/docpipe"
	"sofia/pkg/domain"
	"sofia/pkg/store"
)

// DocumentUploadInput tracks an upload that was processed client-side.
type DocumentUploadInput struct {
	Filename       string                  `json:"filename"`
	FileType       string                  `json:"fileType"`
	FileSize       int64                   `json:"fileSize"`
	ExtractedCount int                     `json:"extractedCount"`
	DocumentType   domain.DocumentType     `json:"documentType"`
	Metadata       domain.DocumentMetadata `json:"metadata"`
}

// UploadInput is a file received by the document upload endpoint.
type UploadInput struct {
	OwnerID  string
	Filename string
	MIMEType string
	Data     []byte
}

// DocumentContent is the readable view of a stored document.
type DocumentContent struct {
	ID              string              `json:"id"`
	Filename        string              `json:"filename"`
	FileType        string              `json:"fileType"`
	UploadTimestamp time.Time           `json:"uploadTimestamp"`
	ExtractedText   string              `json:"extractedText"`
	DocumentType    domain.DocumentType `json:"documentType"`
	FileSize        int64               `json:"fileSize"`
	DownloadURL     string              `json:"downloadUrl,omitempty"`
}

func (a *App) TrackDocumentUpload(ctx context.Context, userID string, in DocumentUploadInput) (domain.Document, error) {
	filename := strings.TrimSpace(in.Filename)
	if filename == "" {
		return domain.Document{}, domain.Validation("filename is required")
	}
	if in.FileSize < 0 || in.ExtractedCount < 0 {
		return domain.Document{}, domain.Validation("fileSize and extractedCount must not be negative")
	}
	docType := in.DocumentType
	if docType == "" {
		docType = docpipe.Classify(in.FileType)
	}
	now := a.timestamp()
	meta := in.Metadata
	meta.OriginalName = filename
	meta.DocumentType = docType
	meta.UploadTimestamp = now
	doc := domain.Document{
		ID:              a.newID(),
		UserID:          userID,
		Filename:        filename,
		FileType:        in.FileType,
		FileSize:        in.FileSize,
		UploadTimestamp: now,
		DocumentType:    docType,
		ExtractedCount:  in.ExtractedCount,
		Metadata:        meta,
	}
	if err := a.store.SaveDocument(ctx, doc); err != nil {
		return domain.Document{}, domain.Dependency("failed to track document upload", err)
	}
	return doc, nil
}

// MarkDocumentApplied records how many extracted items the user applied to their profile.
func (a *App) MarkDocumentApplied(ctx context.Context, userID, documentID string, applied int) (domain.Document, error) {
	if applied < 0 {
		return domain.Document{}, domain.Validation("appliedCount must not be negative")
	}
	doc, err := a.store.MarkDocumentApplied(ctx, documentID, userID, applied, a.timestamp())
	if errors.Is(err, store.ErrNotFound) {
		return domain.Document{}, domain.NotFound("document not found")
	}
	if err != nil {
		return domain.Document{}, domain.Dependency("failed to update document", err)
	}
	return doc, nil
}

func (a *App) ListDocuments(ctx context.Context, actor domain.User, userID string) ([]domain.Document, error) {
	if err := authorizeSubject(actor, userID); err != nil {
		return nil, err
	}
	docs, err := a.store.ListDocumentsByUser(ctx, userID)
	if err != nil {
		return nil, domain.Dependency("failed to fetch documents", err)
	}
	return docs, nil
}

// UploadDocument runs a received file through the ingestion pipeline. Admins
// may upload on behalf of another user, in which case the notification names them.
func (a *App) UploadDocument(ctx context.Context, actor domain.User, in UploadInput) (docpipe.Result, error) {
	owner := strings.TrimSpace(in.OwnerID)
	uploadedBy := ""
	if owner == "" || owner == actor.ID {
		owner = actor.ID
	} else {
		if actor.Role != domain.RoleAdmin {
			return docpipe.Result{}, domain.Forbidden("forbidden")
		}
		if _, ok, err := a.store.GetUserByID(ctx, owner); err != nil {
			return docpipe.Result{}, domain.Dependency("failed to process document", err)
		} else if !ok {
			return docpipe.Result{}, domain.NotFound("user not found")
		}
		uploadedBy = actor.Name
	}

	res, err := a.pipeline.Ingest(ctx, docpipe.Upload{
		UserID:     owner,
		UploadedBy: uploadedBy,
		Filename:   in.Filename,
		MIMEType:   in.MIMEType,
		Data:       in.Data,
	})
	switch {
	case errors.Is(err, docpipe.ErrTooLarge), errors.Is(err, docpipe.ErrUnsupportedType):
		return docpipe.Result{}, domain.Validation(err.Error())
	case err != nil:
		return docpipe.Result{}, domain.Dependency("failed to process document", err)
	}
	return res, nil
}

// DocumentContent returns the extracted text of a document owned by the actor.
// Documents of other users are reported as missing unless the actor is an admin.
func (a *App) DocumentContent(ctx context.Context, actor domain.User, documentID string) (DocumentContent, error) {
	doc, ok, err := a.store.GetDocument(ctx, documentID)
	if err != nil {
		return DocumentContent{}, domain.Dependency("failed to fetch document", err)
	}
	if !ok || (doc.UserID != actor.ID && actor.Role != domain.RoleAdmin) {
		return DocumentContent{}, domain.NotFound("Document not found")
	}
	out := DocumentContent{
		ID:              doc.ID,
		Filename:        doc.Filename,
		FileType:        doc.FileType,
		UploadTimestamp: doc.UploadTimestamp,
		ExtractedText:   doc.Metadata.ExtractedText,
		DocumentType:    doc.DocumentType,
		FileSize:        doc.FileSize,
	}
	if a.archive != nil && doc.Metadata.StorageKey != "" {
		url, err := a.archive.PresignGet(ctx, doc.Metadata.StorageKey, presignExpiry)
		if err != nil {
			a.logger.WarnContext(ctx, "document presign failed",
				slog.String("document_id", doc.ID),
				slog.String("error", err.Error()),
			)
		} else {
			out.DownloadURL = url
		}
	}
	return out, nil
}

func (a *App) PendingNotifications(ctx context.Context, actor domain.User, userID string) ([]domain.Notification, error) {
	if err := authorizeSubject(actor, userID); err != nil {
		return nil, err
	}
	items, err := a.store.ListPendingNotifications(ctx, userID)
	if err != nil {
		return nil, domain.Dependency("failed to fetch notifications", err)
	}
	return items, nil
}

func (a *App) MarkNotificationDelivered(ctx context.Context, userID, notificationID string) (domain.Notification, error) {
	n, err := a.store.MarkNotificationDelivered(ctx, notificationID, userID, a.timestamp())
	if errors.Is(err, store.ErrNotFound) {
		return domain.Notification{}, domain.NotFound("notification not found")
	}
	if err != nil {
		return domain.Notification{}, domain.Dependency("failed to update notification", err)
	}
	return n, nil
}
