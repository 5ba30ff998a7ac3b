package extract

import (
	"bytes"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	pdf "github.com/ledongthuc/pdf"
)

var tagPattern = regexp.MustCompile(`(?s)<[^>]*>`)

// Text extracts plain text from a document payload. The true type is
// sniffed from the bytes rather than trusted from the upload metadata.
// Supported: PDF, HTML, plain text and markdown.
func Text(data []byte) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("empty document")
	}

	detected := mimetype.Detect(data)

	switch {
	case detected.Is("application/pdf"):
		return fromPDF(data)
	case detected.Is("text/html"):
		return fromHTML(string(data)), nil
	case strings.HasPrefix(detected.String(), "text/"):
		return collapseWhitespace(string(data)), nil
	default:
		return "", fmt.Errorf("unsupported document type %s", detected.String())
	}
}

// Supported reports whether a payload of the given detected MIME type
// can yield text.
func Supported(mime string) bool {
	return mime == "application/pdf" || mime == "text/html" || strings.HasPrefix(mime, "text/")
}

func fromPDF(data []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("pdf reader: %w", err)
	}

	plain, err := reader.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("pdf plaintext: %w", err)
	}

	content, err := io.ReadAll(plain)
	if err != nil {
		return "", fmt.Errorf("pdf read: %w", err)
	}

	text := collapseWhitespace(string(content))
	if text == "" {
		return "", fmt.Errorf("pdf contains no extractable text")
	}

	return text, nil
}

func fromHTML(s string) string {
	s = tagPattern.ReplaceAllString(s, " ")
	s = strings.ReplaceAll(s, "&nbsp;", " ")
	s = strings.ReplaceAll(s, "&amp;", "&")
	s = strings.ReplaceAll(s, "&lt;", "<")
	s = strings.ReplaceAll(s, "&gt;", ">")
	return collapseWhitespace(s)
}

func collapseWhitespace(s string) string {
	s = strings.ReplaceAll(s, " ", " ")
	return strings.Join(strings.Fields(s), " ")
}
