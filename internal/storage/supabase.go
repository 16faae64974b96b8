package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

type SupabaseStorage struct {
	baseURL    string
	serviceKey string
	httpClient *http.Client
}

func NewSupabaseStorage(supabaseURL, serviceKey string) *SupabaseStorage {
	return &SupabaseStorage{
		baseURL:    supabaseURL + "/storage/v1",
		serviceKey: serviceKey,
		httpClient: &http.Client{Timeout: 2 * time.Minute},
	}
}

func (s *SupabaseStorage) Scheme() string { return "supabase" }

func (s *SupabaseStorage) objectURL(loc Location) string {
	return fmt.Sprintf("%s/object/%s/%s", s.baseURL, loc.Bucket, loc.Key)
}

func (s *SupabaseStorage) do(req *http.Request) (*http.Response, error) {
	req.Header.Set("Authorization", "Bearer "+s.serviceKey)
	return s.httpClient.Do(req)
}

func (s *SupabaseStorage) Get(ctx context.Context, loc Location) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.objectURL(loc), nil)
	if err != nil {
		return nil, fmt.Errorf("create download request: %w", err)
	}

	resp, err := s.do(req)
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", loc, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: %s", ErrObjectNotFound, loc)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("download %s failed (%d)", loc, resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", loc, err)
	}
	return data, nil
}

type supabaseCopyRequest struct {
	BucketID          string `json:"bucketId"`
	SourceKey         string `json:"sourceKey"`
	DestinationBucket string `json:"destinationBucket"`
	DestinationKey    string `json:"destinationKey"`
}

func (s *SupabaseStorage) Copy(ctx context.Context, src, dst Location) error {
	body, err := json.Marshal(supabaseCopyRequest{
		BucketID:          src.Bucket,
		SourceKey:         src.Key,
		DestinationBucket: dst.Bucket,
		DestinationKey:    dst.Key,
	})
	if err != nil {
		return fmt.Errorf("marshal copy request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/object/copy", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create copy request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.do(req)
	if err != nil {
		return fmt.Errorf("copy %s -> %s: %w", src, dst, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		msg, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("copy %s -> %s failed (%d): %s", src, dst, resp.StatusCode, string(msg))
	}
	return nil
}

func (s *SupabaseStorage) Put(ctx context.Context, loc Location, data []byte, contentType string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.objectURL(loc), bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("create upload request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	// keyed writes must be repeatable
	req.Header.Set("x-upsert", "true")

	resp, err := s.do(req)
	if err != nil {
		return fmt.Errorf("upload %s: %w", loc, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		msg, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("upload %s failed (%d): %s", loc, resp.StatusCode, string(msg))
	}
	return nil
}
