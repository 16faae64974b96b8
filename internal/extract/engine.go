package extract

import (
	"context"
	"fmt"
	"time"

	"github.com/nikhilbhutani/docingest/internal/config"
	"github.com/nikhilbhutani/docingest/internal/models"
	"github.com/nikhilbhutani/docingest/pkg/textextract"
)

// Engine maps (bytes, declared type) to text. It has no side effects beyond
// calling its backends.
type Engine struct {
	text *Chain
	ocr  *Chain
	// hasText reports embedded text on the first n pages of a PDF.
	hasText func(data []byte, pages int) bool
}

func NewEngine(text, ocr *Chain) *Engine {
	return &Engine{text: text, ocr: ocr, hasText: textextract.HasText}
}

// NewDefaultEngine wires the configured local, conversion and OCR backends.
func NewDefaultEngine(cfg config.ExtractConfig) (*Engine, error) {
	var local Backend
	switch cfg.LocalEngine {
	case "pdf", "":
		local = LocalPDF{}
	case "docconv":
		local = Docconv{}
	default:
		return nil, fmt.Errorf("unknown local text engine %q", cfg.LocalEngine)
	}

	text := NewChain("text",
		Stage{Backend: local, Timeout: cfg.LocalTextTimeout},
		Stage{Backend: NewTika(cfg.TikaURL), Timeout: cfg.TikaTimeout},
	)
	ocr := NewChain("ocr",
		Stage{Backend: NewPaddleOCR(cfg.PaddleOCRURL), Timeout: cfg.PaddleOCRTimeout},
		Stage{Backend: NewOCRService(cfg.TesseractCmd), Timeout: cfg.TesseractTimeout},
	)
	return NewEngine(text, ocr), nil
}

// Extract picks the OCR chain for scanned and image documents and the text
// chain otherwise.
func (e *Engine) Extract(ctx context.Context, data []byte, declared models.DocType) Result {
	start := time.Now()
	chain := e.text
	if declared.NeedsOCR() {
		chain = e.ocr
	}
	res := chain.Run(ctx, data)
	logExtraction(chain.Name(), res, time.Since(start))
	return res
}

// IsScanned reports whether a PDF lacks embedded text in its first pages.
// A parse that fails or outlives ctx counts as scanned.
func (e *Engine) IsScanned(ctx context.Context, data []byte, pages int) bool {
	if pages < 1 {
		pages = 1
	}
	found, err := bounded(ctx, func() (string, error) {
		if e.hasText(data, pages) {
			return "text", nil
		}
		return "", nil
	})
	return err != nil || found == ""
}
