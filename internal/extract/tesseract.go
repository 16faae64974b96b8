package extract

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// OCRService runs the tesseract binary. PDF input is split into its page
// images first; other input is handed to tesseract as is.
type OCRService struct {
	tesseractPath string
	lang          string
}

func NewOCRService(cmd string) *OCRService {
	if cmd == "" {
		cmd = "tesseract"
	}
	path, _ := exec.LookPath(cmd)
	if path == "" {
		path = cmd
	}
	return &OCRService{tesseractPath: path, lang: "eng"}
}

func (o *OCRService) Name() string { return "tesseract" }

func (o *OCRService) IsAvailable() bool {
	cmd := exec.Command(o.tesseractPath, "--version")
	return cmd.Run() == nil
}

func (o *OCRService) Submit(ctx context.Context, data []byte) (string, error) {
	if !isPDF(data) {
		return o.recognize(ctx, data, "img")
	}

	images, err := PageImages(data)
	if err != nil {
		return "", err
	}
	var pages []string
	for _, img := range images {
		text, err := o.recognize(ctx, img.Data, img.FileType)
		if err != nil {
			return "", fmt.Errorf("page %d: %w", img.Page, err)
		}
		if text != "" {
			pages = append(pages, text)
		}
	}
	return strings.Join(pages, "\n"), nil
}

func (o *OCRService) recognize(ctx context.Context, image []byte, ext string) (string, error) {
	f, err := os.CreateTemp("", "ocr-*."+ext)
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(f.Name())

	if _, err := f.Write(image); err != nil {
		f.Close()
		return "", fmt.Errorf("write temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close temp file: %w", err)
	}

	cmd := exec.CommandContext(ctx, o.tesseractPath, f.Name(), "stdout", "-l", o.lang)
	output, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("tesseract OCR: %w", err)
	}
	return strings.TrimSpace(string(output)), nil
}

func isPDF(data []byte) bool {
	return bytes.HasPrefix(data, []byte("%PDF-"))
}
