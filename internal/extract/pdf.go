package extract

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

// extractPDF extracts per-page text and records page boundaries in the
// normalized output so offsets can be mapped back to a page image.
func extractPDF(data []byte) (*Result, error) {
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: open PDF: %v", ErrCorruptContent, err)
	}

	var buf strings.Builder
	var pages []PageBoundary

	numPages := r.NumPage()
	for i := 1; i <= numPages; i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("extract page %d: %w", i, err)
		}
		text = strings.ReplaceAll(text, "\r\n", "\n")

		start := buf.Len()
		buf.WriteString(text)
		pages = append(pages, PageBoundary{Page: i, Start: start, End: buf.Len()})

		if i < numPages {
			// Page break doubles as a paragraph boundary for the chunker.
			buf.WriteString("\n\n")
		}
	}

	return &Result{Text: buf.String(), Pages: pages}, nil
}
