package storage

import "testing"

func TestDocumentKey(t *testing.T) {
	cases := []struct {
		name     string
		filename string
		want     string
	}{
		{"plain", "notes.txt", "documents/u1/d1/notes.txt"},
		{"spaces", "my notes (1).pdf", "documents/u1/d1/my_notes_1_.pdf"},
		{"traversal", "../../etc/passwd", "documents/u1/d1/passwd"},
		{"windows path", `C:\Users\a\report.json`, "documents/u1/d1/report.json"},
		{"empty", "", "documents/u1/d1/document"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := DocumentKey("u1", "d1", tc.filename); got != tc.want {
				t.Fatalf("DocumentKey(%q) = %q, want %q", tc.filename, got, tc.want)
			}
		})
	}
}
