// Package document implements the creation-time upload acceptance policy:
// size and MIME type limits, filename presence and, for PDFs, a structural
// parse so corrupt files are rejected before any provider round trip.
package document

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/hupe1980/chatrelay/core"
)

// MaxFileSize is the upload size ceiling.
const MaxFileSize = 10 << 20 // 10 MiB

// MIME types accepted for cached documents.
const (
	MimePDF      = "application/pdf"
	MimeText     = "text/plain"
	MimeMarkdown = "text/markdown"
)

var allowedMimeTypes = map[string]bool{
	MimePDF:      true,
	MimeText:     true,
	MimeMarkdown: true,
}

// AllowedMimeTypes lists the accepted MIME types in a stable order.
func AllowedMimeTypes() []string {
	return []string{MimePDF, MimeText, MimeMarkdown}
}

// Validate applies the upload acceptance policy and builds the retained
// Document. Violations are reported as *core.ValidationError naming the
// violated constraint. For PDFs the bytes are parsed to reject corrupt files
// and record the page count.
func Validate(filename, contentType string, content []byte) (*core.Document, error) {
	if filename == "" {
		return nil, core.Validationf("file name is required")
	}

	if int64(len(content)) > MaxFileSize {
		return nil, core.Validationf("file size exceeds maximum allowed size of %dMB", MaxFileSize/1024/1024)
	}

	if !allowedMimeTypes[contentType] {
		return nil, core.Validationf("file type %s is not supported, allowed types: %s", contentType, strings.Join(AllowedMimeTypes(), ", "))
	}

	doc := &core.Document{
		Filename:    filename,
		ContentType: contentType,
		Size:        int64(len(content)),
		Content:     content,
	}

	if contentType == MimePDF {
		pages, err := inspectPDF(content)
		if err != nil {
			return nil, core.Validationf("file %s is not a readable PDF: %v", filename, err)
		}
		doc.Pages = pages
	}

	return doc, nil
}

// inspectPDF parses the document structure and returns the page count.
func inspectPDF(content []byte) (int, error) {
	reader, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return 0, err
	}
	pages := reader.NumPage()
	if pages < 1 {
		return 0, fmt.Errorf("document has no pages")
	}
	return pages, nil
}
