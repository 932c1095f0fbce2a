// Package extract converts raw source-document bytes into normalized text
// plus structural metadata. Markdown and plain text pass through with
// newline normalization; PDFs are extracted page by page so search results
// can be traced back to a page.
package extract

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

var (
	// ErrUnsupportedFormat is returned for mime types the extractor cannot
	// handle. The processor treats it as a permanent failure.
	ErrUnsupportedFormat = errors.New("unsupported content format")

	// ErrCorruptContent is returned when the bytes cannot be decoded at all.
	ErrCorruptContent = errors.New("corrupt content")
)

// PageBoundary records where one page of a paginated format starts and ends
// in the normalized text.
type PageBoundary struct {
	Page  int // 1-based
	Start int
	End   int
}

// Result is the normalized output of extraction.
type Result struct {
	// Text is the normalized document text. All chunk offsets refer to it.
	Text string

	// Pages is non-empty only for paginated formats (PDF).
	Pages []PageBoundary
}

// PageFor returns the 1-based page containing offset, or 0 when the document
// is not paginated.
func (r *Result) PageFor(offset int) int {
	for _, p := range r.Pages {
		if offset >= p.Start && offset < p.End {
			return p.Page
		}
	}
	return 0
}

// Extract normalizes raw bytes according to the mime type.
func Extract(data []byte, mimeType string) (*Result, error) {
	switch {
	case mimeType == "application/pdf":
		return extractPDF(data)
	case mimeType == "" || strings.HasPrefix(mimeType, "text/"):
		return extractText(data)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, mimeType)
	}
}

// extractText handles markdown and plain text. Content passes through with
// CRLF normalization; invalid UTF-8 is rejected rather than silently mangled.
func extractText(data []byte) (*Result, error) {
	if !utf8.Valid(data) {
		return nil, fmt.Errorf("%w: invalid UTF-8", ErrCorruptContent)
	}
	text := strings.ReplaceAll(string(data), "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	return &Result{Text: text}, nil
}
