package textextract

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/ledongthuc/pdf"
)

type ExtractedText struct {
	Content string
	// Pages is the document's page count; PagesRead how many were inspected.
	Pages     int
	PagesRead int
}

// PDF extracts the embedded text of every page.
func PDF(data []byte) (*ExtractedText, error) {
	return PDFPrefix(data, 0)
}

// PDFPrefix extracts text from at most maxPages leading pages; maxPages <= 0
// reads the whole document. Pages whose content cannot be decoded are skipped.
func PDFPrefix(data []byte, maxPages int) (result *ExtractedText, err error) {
	// the parser panics on some malformed inputs
	defer func() {
		if r := recover(); r != nil {
			result, err = nil, fmt.Errorf("parse PDF: %v", r)
		}
	}()
	return extractPDF(bytes.NewReader(data), int64(len(data)), maxPages)
}

func extractPDF(data io.ReaderAt, size int64, maxPages int) (*ExtractedText, error) {
	reader, err := pdf.NewReader(data, size)
	if err != nil {
		return nil, fmt.Errorf("open PDF: %w", err)
	}

	numPages := reader.NumPage()
	limit := numPages
	if maxPages > 0 && maxPages < numPages {
		limit = maxPages
	}

	var buf strings.Builder
	for i := 1; i <= limit; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		buf.WriteString(text)
		buf.WriteString("\n")
	}

	return &ExtractedText{
		Content:   buf.String(),
		Pages:     numPages,
		PagesRead: limit,
	}, nil
}

// HasText reports whether any of the first maxPages pages carry
// non-whitespace embedded text. Unparseable input counts as no text.
func HasText(data []byte, maxPages int) bool {
	res, err := PDFPrefix(data, maxPages)
	if err != nil {
		return false
	}
	return strings.TrimSpace(res.Content) != ""
}
