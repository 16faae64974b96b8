package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
)

// PaddleOCR calls an OCR service that accepts a multipart upload and
// answers {"text": "..."}.
type PaddleOCR struct {
	url        string
	httpClient *http.Client
}

func NewPaddleOCR(url string) *PaddleOCR {
	return &PaddleOCR{url: strings.TrimRight(url, "/"), httpClient: &http.Client{}}
}

func (p *PaddleOCR) Name() string { return "paddleocr" }

type paddleResponse struct {
	Text string `json:"text"`
}

func (p *PaddleOCR) Submit(ctx context.Context, data []byte) (string, error) {
	if p.url == "" {
		return "", fmt.Errorf("paddleocr URL not configured")
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", "document")
	if err != nil {
		return "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return "", fmt.Errorf("write form file: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("close multipart: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, &body)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("paddleocr request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", fmt.Errorf("read paddleocr response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("paddleocr error (status %d): %s", resp.StatusCode, truncate(string(raw), 200))
	}

	var out paddleResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("decode paddleocr response: %w", err)
	}
	return out.Text, nil
}
