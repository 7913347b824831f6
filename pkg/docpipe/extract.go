package docpipe

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
	"golang.org/x/net/html"
	"sofia/pkg/domain"
)

// extract returns the text of data. A failure is reported in-band as
// "<Kind> processing failed: <detail>" and never aborts ingestion.
func extract(docType domain.DocumentType, mt string, data []byte) string {
	switch docType {
	case domain.DocumentPDF:
		text, err := extractPDF(data)
		if err != nil {
			return "PDF processing failed: " + err.Error()
		}
		return text
	case domain.DocumentText, domain.DocumentJSON:
		if mt == "text/html" {
			text, err := extractHTML(data)
			if err != nil {
				return "Text processing failed: " + err.Error()
			}
			return text
		}
		return strings.ToValidUTF8(string(data), "\uFFFD")
	default:
		return ""
	}
}

func extractPDF(data []byte) (text string, err error) {
	defer func() {
		if p := recover(); p != nil {
			text, err = "", fmt.Errorf("malformed pdf: %v", p)
		}
	}()
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", err
	}
	var buf strings.Builder
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		pageText, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		if buf.Len() > 0 {
			buf.WriteString("\n")
		}
		buf.WriteString(strings.TrimSpace(pageText))
	}
	return strings.ToValidUTF8(buf.String(), ""), nil
}

func extractHTML(data []byte) (string, error) {
	doc, err := html.Parse(bytes.NewReader(data))
	if err != nil {
		return "", err
	}
	var buf strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && (n.Data == "script" || n.Data == "style") {
			return
		}
		if n.Type == html.TextNode {
			buf.WriteString(n.Data)
			buf.WriteString(" ")
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(doc)
	return strings.Join(strings.Fields(strings.ToValidUTF8(buf.String(), "")), " "), nil
}
