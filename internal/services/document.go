package services

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"unicode"

	"github.com/ledongthuc/pdf"
)

// MinDocumentChars is the least amount of non-space text a document must
// yield to be turned into a mind map.
const MinDocumentChars = 50

var pdfMagic = []byte("%PDF-")

// Document is the extracted text of an upload and the SHA-256 of its bytes.
type Document struct {
	Text        string
	ContentHash string
}

// DocumentExtractor turns uploaded PDF bytes into plain text.
type DocumentExtractor struct{}

func NewDocumentExtractor() *DocumentExtractor {
	return &DocumentExtractor{}
}

// Extract reads every page of the PDF in data. Unreadable files and files
// with fewer than MinDocumentChars characters of text yield a
// PreconditionError.
func (e *DocumentExtractor) Extract(data []byte) (*Document, error) {
	if !bytes.HasPrefix(bytes.TrimLeft(data, " \t\r\n"), pdfMagic) {
		return nil, &PreconditionError{Message: "The file is not a valid PDF document"}
	}

	text, err := extractPDFText(data)
	if err != nil {
		return nil, &PreconditionError{Message: fmt.Sprintf("Could not read the PDF: %v", err)}
	}

	if countNonSpace(text) < MinDocumentChars {
		return nil, &PreconditionError{
			Message: "The PDF does not contain enough extractable text. Make sure it contains real text, not only scanned images.",
		}
	}

	return &Document{Text: text, ContentHash: ContentHash(data)}, nil
}

// ContentHash is the hex SHA-256 of data.
func ContentHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func extractPDFText(data []byte) (text string, err error) {
	// the pdf package panics on some malformed inputs
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("malformed pdf: %v", r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", err
	}

	var b strings.Builder
	for pageIndex := 1; pageIndex <= reader.NumPage(); pageIndex++ {
		page := reader.Page(pageIndex)
		if page.V.IsNull() {
			continue
		}

		content, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		if strings.TrimSpace(content) == "" {
			continue
		}
		b.WriteString(content)
		b.WriteString("\n\n")
	}

	return normalizeExtractedText(b.String()), nil
}

func countNonSpace(s string) int {
	n := 0
	for _, r := range s {
		if !unicode.IsSpace(r) {
			n++
		}
	}
	return n
}

func normalizeExtractedText(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")

	var buf strings.Builder
	emptyCount := 0
	for _, line := range strings.Split(s, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			emptyCount++
			if emptyCount > 1 {
				continue
			}
			buf.WriteString("\n")
			continue
		}
		emptyCount = 0
		buf.WriteString(trimmed)
		buf.WriteString("\n")
	}

	return strings.TrimSpace(buf.String())
}
