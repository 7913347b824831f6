package docpipe

import (
	"mime"
	"strings"

	"sofia/pkg/domain"
)

// mediaType strips parameters such as "; charset=utf-8" and lowercases the type.
func mediaType(contentType string) (string, bool) {
	mt, _, err := mime.ParseMediaType(strings.TrimSpace(contentType))
	if err != nil || mt == "" {
		return "", false
	}
	return strings.ToLower(mt), true
}

// accepted reports whether uploads of this media type are ingested.
func accepted(mt string) bool {
	return mt == "application/pdf" || mt == "application/json" || strings.HasPrefix(mt, "text/")
}

// Classify maps a media type to a document type.
func Classify(mt string) domain.DocumentType {
	switch {
	case mt == "application/pdf":
		return domain.DocumentPDF
	case mt == "application/json":
		return domain.DocumentJSON
	case strings.HasPrefix(mt, "text/"):
		return domain.DocumentText
	default:
		return domain.DocumentUnknown
	}
}
