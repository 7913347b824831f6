package docpipe

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"sofia/pkg/domain"
	"sofia/pkg/storage"
)

const (
	DefaultMaxBytes = 10 << 20
	DefaultUploader = "Your provider"
	previewRunes    = 500
	archiveTimeout  = 10 * time.Second
)

var (
	ErrTooLarge        = errors.New("file too large")
	ErrUnsupportedType = errors.New("only PDF, text, and JSON files are allowed")
)

// Sink stores an ingested document together with its notification. Either
// both are stored or neither is.
type Sink interface {
	SaveDocumentWithNotification(ctx context.Context, d domain.Document, n domain.Notification) error
}

// DocumentCounter counts ingested documents by type.
type DocumentCounter interface {
	IncDocumentsIngested(documentType string)
}

// Upload is one received file.
type Upload struct {
	UserID     string
	UploadedBy string
	Filename   string
	MIMEType   string
	Data       []byte
}

// Result describes a completed ingestion.
type Result struct {
	Document     domain.Document     `json:"document"`
	Notification domain.Notification `json:"notification"`
	Preview      string              `json:"extractedText"`
	Message      string              `json:"message"`
	DocumentType domain.DocumentType `json:"documentType"`
}

// Pipeline runs received → classified → extracted → stored → notified.
type Pipeline struct {
	sink     Sink
	archive  storage.Archive
	counter  DocumentCounter
	logger   *slog.Logger
	maxBytes int64
	now      func() time.Time
	newID    func() string
}

type Option func(*Pipeline)

// WithArchive keeps the raw bytes in object storage.
func WithArchive(a storage.Archive) Option {
	return func(p *Pipeline) { p.archive = a }
}

func WithCounter(c DocumentCounter) Option {
	return func(p *Pipeline) { p.counter = c }
}

func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) { p.logger = logger }
}

func WithMaxBytes(n int64) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.maxBytes = n
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

// New builds a pipeline writing to sink.
func New(sink Sink, newID func() string, opts ...Option) *Pipeline {
	p := &Pipeline{
		sink:     sink,
		logger:   slog.Default(),
		maxBytes: DefaultMaxBytes,
		now:      time.Now,
		newID:    newID,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p
}

// MaxBytes is the largest accepted payload.
func (p *Pipeline) MaxBytes() int64 {
	return p.maxBytes
}

// Ingest processes one upload. Extraction failures are soft; storage failures are returned.
func (p *Pipeline) Ingest(ctx context.Context, up Upload) (Result, error) {
	if strings.TrimSpace(up.UserID) == "" {
		return Result{}, errors.New("upload owner is required")
	}
	if int64(len(up.Data)) > p.maxBytes {
		return Result{}, ErrTooLarge
	}
	mt, ok := mediaType(up.MIMEType)
	if !ok || !accepted(mt) {
		return Result{}, ErrUnsupportedType
	}

	docType := Classify(mt)
	text := extract(docType, mt, up.Data)

	now := p.now().UTC()
	docID := p.newID()
	filename := strings.TrimSpace(up.Filename)
	if filename == "" {
		filename = "document"
	}
	doc := domain.Document{
		ID:              docID,
		UserID:          up.UserID,
		Filename:        filename,
		FileType:        mt,
		FileSize:        int64(len(up.Data)),
		UploadTimestamp: now,
		DocumentType:    docType,
		Metadata: domain.DocumentMetadata{
			OriginalName:    up.Filename,
			DocumentType:    docType,
			ExtractedText:   text,
			UploadedBy:      up.UploadedBy,
			UploadTimestamp: now,
		},
	}
	if text != "" {
		doc.ExtractedCount = 1
	}

	doc.Metadata.StorageKey = p.archiveRaw(ctx, doc, up.Data)

	uploader := strings.TrimSpace(up.UploadedBy)
	if uploader == "" {
		uploader = DefaultUploader
	}
	note := domain.Notification{
		ID:         p.newID(),
		DocumentID: docID,
		UserID:     up.UserID,
		Message:    fmt.Sprintf("%s has uploaded a new document: %s", uploader, filename),
		CreatedAt:  now,
	}
	if err := p.sink.SaveDocumentWithNotification(ctx, doc, note); err != nil {
		p.discardRaw(ctx, doc.Metadata.StorageKey)
		return Result{}, fmt.Errorf("store document: %w", err)
	}

	if p.counter != nil {
		p.counter.IncDocumentsIngested(string(docType))
	}
	return Result{
		Document:     doc,
		Notification: note,
		Preview:      Preview(text),
		Message:      fmt.Sprintf("Document uploaded and processed successfully. %d characters extracted.", utf8.RuneCountInString(text)),
		DocumentType: docType,
	}, nil
}

// Preview returns the first 500 characters of text, with "..." when truncated.
func Preview(text string) string {
	if utf8.RuneCountInString(text) <= previewRunes {
		return text
	}
	runes := []rune(text)
	return string(runes[:previewRunes]) + "..."
}

// archiveRaw stores the raw upload and returns its key, or "" when archiving
// is disabled or fails.
func (p *Pipeline) archiveRaw(ctx context.Context, doc domain.Document, data []byte) string {
	if p.archive == nil {
		return ""
	}
	key := storage.DocumentKey(doc.UserID, doc.ID, doc.Filename)
	ctx, cancel := context.WithTimeout(ctx, archiveTimeout)
	defer cancel()
	if err := p.archive.Put(ctx, key, bytes.NewReader(data), int64(len(data)), doc.FileType); err != nil {
		p.logger.WarnContext(ctx, "document archive failed",
			slog.String("document_id", doc.ID),
			slog.String("error", err.Error()),
		)
		return ""
	}
	return key
}

func (p *Pipeline) discardRaw(ctx context.Context, key string) {
	if p.archive == nil || key == "" {
		return
	}
	if err := p.archive.Delete(context.WithoutCancel(ctx), key); err != nil {
		p.logger.WarnContext(ctx, "document archive cleanup failed",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
	}
}
