package extract

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// maxResponseBytes caps what a remote extraction service may return.
const maxResponseBytes = 64 << 20

// Tika submits documents to an Apache Tika server and reads plain text back.
type Tika struct {
	baseURL    string
	httpClient *http.Client
}

func NewTika(baseURL string) *Tika {
	return &Tika{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{},
	}
}

func (t *Tika) Name() string { return "tika" }

func (t *Tika) Submit(ctx context.Context, data []byte) (string, error) {
	if t.baseURL == "" {
		return "", fmt.Errorf("tika URL not configured")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, t.baseURL+"/tika", bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "text/plain")
	req.Header.Set("Content-Type", "application/pdf")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("tika request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", fmt.Errorf("read tika response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("tika error (status %d): %s", resp.StatusCode, truncate(string(body), 200))
	}
	return string(body), nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
