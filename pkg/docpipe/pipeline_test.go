package docpipe

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"sofia/pkg/domain"
	"sofia/pkg/store"
)

func idSeq() func() string {
	n := 0
	var mu sync.Mutex
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("id-%d", n)
	}
}

type fakeArchive struct {
	mu      sync.Mutex
	objects map[string][]byte
	putErr  error
	deleted []string
}

func newFakeArchive() *fakeArchive {
	return &fakeArchive{objects: make(map[string][]byte)}
}

func (a *fakeArchive) Put(_ context.Context, key string, r io.Reader, _ int64, _ string) error {
	if a.putErr != nil {
		return a.putErr
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.objects[key] = data
	return nil
}

func (a *fakeArchive) PresignGet(_ context.Context, key string, _ time.Duration) (string, error) {
	return "https://archive.test/" + key, nil
}

func (a *fakeArchive) Delete(_ context.Context, key string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.objects, key)
	a.deleted = append(a.deleted, key)
	return nil
}

type failingSink struct {
	err error
}

func (s failingSink) SaveDocumentWithNotification(context.Context, domain.Document, domain.Notification) error {
	return s.err
}

var quiet = slog.New(slog.NewJSONHandler(io.Discard, nil))

func TestIngestTextUploadCreatesDocumentAndNotification(t *testing.T) {
	sink := store.NewMemoryStore()
	p := New(sink, idSeq())

	res, err := p.Ingest(context.Background(), Upload{
		UserID:   "u1",
		Filename: "notes.txt",
		MIMEType: "text/plain; charset=utf-8",
		Data:     []byte("Hello"),
	})
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if res.DocumentType != domain.DocumentText {
		t.Fatalf("document type = %s", res.DocumentType)
	}
	if res.Document.Metadata.ExtractedText != "Hello" || res.Document.ExtractedCount != 1 {
		t.Fatalf("unexpected document %+v", res.Document)
	}
	if res.Document.FileType != "text/plain" {
		t.Fatalf("file type = %q", res.Document.FileType)
	}
	if res.Preview != "Hello" {
		t.Fatalf("preview = %q", res.Preview)
	}
	if res.Notification.Message != "Your provider has uploaded a new document: notes.txt" {
		t.Fatalf("message = %q", res.Notification.Message)
	}
	if res.Notification.Delivered {
		t.Fatalf("notification must start undelivered")
	}

	pending, err := sink.ListPendingNotifications(context.Background(), "u1")
	if err != nil || len(pending) != 1 || pending[0].DocumentID != res.Document.ID {
		t.Fatalf("pending = %+v err=%v", pending, err)
	}
	stored, ok, _ := sink.GetDocument(context.Background(), res.Document.ID)
	if !ok || stored.Metadata.ExtractedText != "Hello" {
		t.Fatalf("stored document = %+v", stored)
	}
}

func TestIngestClassifiesByMediaType(t *testing.T) {
	cases := []struct {
		mime string
		want domain.DocumentType
	}{
		{"application/pdf", domain.DocumentPDF},
		{"application/json", domain.DocumentJSON},
		{"text/markdown", domain.DocumentText},
		{"TEXT/CSV", domain.DocumentText},
		{"image/png", domain.DocumentUnknown},
	}
	for _, tc := range cases {
		mt, ok := mediaType(tc.mime)
		if !ok {
			t.Fatalf("parse %q failed", tc.mime)
		}
		if got := Classify(mt); got != tc.want {
			t.Fatalf("Classify(%q) = %s, want %s", tc.mime, got, tc.want)
		}
	}
}

func TestIngestRejectsUnsupportedAndOversized(t *testing.T) {
	sink := store.NewMemoryStore()
	p := New(sink, idSeq(), WithMaxBytes(8))

	if _, err := p.Ingest(context.Background(), Upload{UserID: "u1", Filename: "a.png", MIMEType: "image/png", Data: []byte("x")}); !errors.Is(err, ErrUnsupportedType) {
		t.Fatalf("expected ErrUnsupportedType, got %v", err)
	}
	if _, err := p.Ingest(context.Background(), Upload{UserID: "u1", Filename: "a.txt", MIMEType: "", Data: []byte("x")}); !errors.Is(err, ErrUnsupportedType) {
		t.Fatalf("expected ErrUnsupportedType for missing type, got %v", err)
	}
	if _, err := p.Ingest(context.Background(), Upload{UserID: "u1", Filename: "a.txt", MIMEType: "text/plain", Data: []byte("123456789")}); !errors.Is(err, ErrTooLarge) {
		t.Fatalf("expected ErrTooLarge, got %v", err)
	}
	pending, _ := sink.ListPendingNotifications(context.Background(), "u1")
	if len(pending) != 0 {
		t.Fatalf("rejected uploads must not notify")
	}
}

func TestIngestDefaultLimitIsTenMiB(t *testing.T) {
	p := New(store.NewMemoryStore(), idSeq())
	if p.MaxBytes() != 10*1024*1024 {
		t.Fatalf("max bytes = %d", p.MaxBytes())
	}
	big := bytes.Repeat([]byte("a"), 10*1024*1024+1)
	if _, err := p.Ingest(context.Background(), Upload{UserID: "u1", Filename: "big.txt", MIMEType: "text/plain", Data: big}); !errors.Is(err, ErrTooLarge) {
		t.Fatalf("expected ErrTooLarge, got %v", err)
	}
}

func TestIngestPDFFailureIsSoft(t *testing.T) {
	sink := store.NewMemoryStore()
	p := New(sink, idSeq())
	res, err := p.Ingest(context.Background(), Upload{UserID: "u1", Filename: "scan.pdf", MIMEType: "application/pdf", Data: []byte("definitely not a pdf")})
	if err != nil {
		t.Fatalf("extraction failure must not abort: %v", err)
	}
	if !strings.HasPrefix(res.Document.Metadata.ExtractedText, "PDF processing failed: ") {
		t.Fatalf("extracted text = %q", res.Document.Metadata.ExtractedText)
	}
	if res.DocumentType != domain.DocumentPDF {
		t.Fatalf("document type = %s", res.DocumentType)
	}
	if res.Notification.ID == "" {
		t.Fatalf("expected notification")
	}
}

func TestIngestEmptyPayloadExtractsNothing(t *testing.T) {
	p := New(store.NewMemoryStore(), idSeq())
	res, err := p.Ingest(context.Background(), Upload{UserID: "u1", Filename: "empty.txt", MIMEType: "text/plain"})
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if res.Document.ExtractedCount != 0 || res.Document.FileSize != 0 {
		t.Fatalf("unexpected document %+v", res.Document)
	}
	if res.Message != "Document uploaded and processed successfully. 0 characters extracted." {
		t.Fatalf("message = %q", res.Message)
	}
}

func TestIngestHTMLKeepsVisibleText(t *testing.T) {
	p := New(store.NewMemoryStore(), idSeq())
	res, err := p.Ingest(context.Background(), Upload{
		UserID:   "u1",
		Filename: "plan.html",
		MIMEType: "text/html",
		Data:     []byte(`<html><head><style>p{}</style></head><body><p>Care plan</p><script>x()</script><p>Walk daily</p></body></html>`),
	})
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if got := res.Document.Metadata.ExtractedText; got != "Care plan Walk daily" {
		t.Fatalf("extracted text = %q", got)
	}
}

func TestIngestUsesUploaderName(t *testing.T) {
	p := New(store.NewMemoryStore(), idSeq())
	res, err := p.Ingest(context.Background(), Upload{UserID: "u1", UploadedBy: "Dr. Rivera", Filename: "plan.json", MIMEType: "application/json", Data: []byte(`{"a":1}`)})
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if res.Notification.Message != "Dr. Rivera has uploaded a new document: plan.json" {
		t.Fatalf("message = %q", res.Notification.Message)
	}
}

func TestPreviewTruncatesAtFiveHundredRunes(t *testing.T) {
	long := strings.Repeat("é", 501)
	got := Preview(long)
	if !strings.HasSuffix(got, "...") || len([]rune(got)) != 503 {
		t.Fatalf("unexpected preview length %d", len([]rune(got)))
	}
	exact := strings.Repeat("a", 500)
	if Preview(exact) != exact {
		t.Fatalf("500 runes must not be truncated")
	}
}

func TestIngestArchivesRawBytes(t *testing.T) {
	archive := newFakeArchive()
	p := New(store.NewMemoryStore(), idSeq(), WithArchive(archive))
	res, err := p.Ingest(context.Background(), Upload{UserID: "u1", Filename: "notes.txt", MIMEType: "text/plain", Data: []byte("Hello")})
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	key := res.Document.Metadata.StorageKey
	if key != "documents/u1/"+res.Document.ID+"/notes.txt" {
		t.Fatalf("storage key = %q", key)
	}
	if string(archive.objects[key]) != "Hello" {
		t.Fatalf("archived bytes = %q", archive.objects[key])
	}
}

func TestIngestArchiveFailureIsNotFatal(t *testing.T) {
	archive := newFakeArchive()
	archive.putErr = errors.New("bucket gone")
	p := New(store.NewMemoryStore(), idSeq(), WithArchive(archive), WithLogger(quiet))
	res, err := p.Ingest(context.Background(), Upload{UserID: "u1", Filename: "notes.txt", MIMEType: "text/plain", Data: []byte("Hello")})
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if res.Document.Metadata.StorageKey != "" {
		t.Fatalf("expected no storage key, got %q", res.Document.Metadata.StorageKey)
	}
}

func TestIngestStorageFailureCleansArchive(t *testing.T) {
	archive := newFakeArchive()
	p := New(failingSink{err: errors.New("db down")}, idSeq(), WithArchive(archive), WithLogger(quiet))
	if _, err := p.Ingest(context.Background(), Upload{UserID: "u1", Filename: "notes.txt", MIMEType: "text/plain", Data: []byte("Hello")}); err == nil {
		t.Fatalf("expected storage failure")
	}
	if len(archive.deleted) != 1 || len(archive.objects) != 0 {
		t.Fatalf("expected archived object to be removed, deleted=%v", archive.deleted)
	}
}

func TestIngestNotificationFailureLeavesNoDocument(t *testing.T) {
	sink := store.NewMemoryStore()
	ctx := context.Background()
	// id-2 is the notification id the pipeline will generate.
	if err := sink.CreateNotification(ctx, domain.Notification{ID: "id-2", DocumentID: "other", UserID: "u1", Message: "x"}); err != nil {
		t.Fatalf("seed notification: %v", err)
	}
	archive := newFakeArchive()
	p := New(sink, idSeq(), WithArchive(archive), WithLogger(quiet))

	_, err := p.Ingest(ctx, Upload{UserID: "u1", Filename: "notes.txt", MIMEType: "text/plain", Data: []byte("Hello")})
	if !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	docs, err := sink.ListDocumentsByUser(ctx, "u1")
	if err != nil {
		t.Fatalf("list documents: %v", err)
	}
	if len(docs) != 0 {
		t.Fatalf("failed upload left %d document(s) behind", len(docs))
	}
	pending, _ := sink.ListPendingNotifications(ctx, "u1")
	if len(pending) != 1 || pending[0].DocumentID != "other" {
		t.Fatalf("expected only the seeded notification, got %+v", pending)
	}
	if len(archive.deleted) != 1 || len(archive.objects) != 0 {
		t.Fatalf("expected archived object to be removed, deleted=%v", archive.deleted)
	}
}
