package extract

import (
	"bytes"
	"context"
	"fmt"

	"code.sajari.com/docconv"

	"github.com/nikhilbhutani/docingest/pkg/textextract"
)

// LocalPDF reads embedded PDF text in process.
type LocalPDF struct{}

func (LocalPDF) Name() string { return "local-pdf" }

func (LocalPDF) Submit(ctx context.Context, data []byte) (string, error) {
	return bounded(ctx, func() (string, error) {
		res, err := textextract.PDF(data)
		if err != nil {
			return "", err
		}
		return res.Content, nil
	})
}

// Docconv converts PDFs through docconv's pdftotext bridge.
type Docconv struct{}

func (Docconv) Name() string { return "docconv" }

func (Docconv) Submit(ctx context.Context, data []byte) (string, error) {
	return bounded(ctx, func() (string, error) {
		res, err := docconv.Convert(bytes.NewReader(data), "application/pdf", false)
		if err != nil {
			return "", fmt.Errorf("docconv convert: %w", err)
		}
		return res.Body, nil
	})
}
