package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	gcs "cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/nikhilbhutani/docingest/internal/config"
)

// GCSStorage uses application default credentials unless a credentials file
// or an emulator endpoint is configured.
type GCSStorage struct {
	client *gcs.Client
}

func NewGCSStorage(ctx context.Context, cfg config.StorageConfig) (*GCSStorage, error) {
	var opts []option.ClientOption
	switch {
	case cfg.GCSEndpoint != "":
		opts = append(opts, option.WithEndpoint(cfg.GCSEndpoint), option.WithoutAuthentication())
	case cfg.GCSCredentialsFile != "":
		opts = append(opts, option.WithCredentialsFile(cfg.GCSCredentialsFile))
	}
	client, err := gcs.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create gcs client: %w", err)
	}
	return &GCSStorage{client: client}, nil
}

func (g *GCSStorage) Scheme() string { return "gs" }

func (g *GCSStorage) Get(ctx context.Context, loc Location) ([]byte, error) {
	r, err := g.client.Bucket(loc.Bucket).Object(loc.Key).NewReader(ctx)
	if errors.Is(err, gcs.ErrObjectNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrObjectNotFound, loc)
	}
	if err != nil {
		return nil, fmt.Errorf("gcs open %s: %w", loc, err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("gcs read %s: %w", loc, err)
	}
	return data, nil
}

func (g *GCSStorage) Copy(ctx context.Context, src, dst Location) error {
	from := g.client.Bucket(src.Bucket).Object(src.Key)
	to := g.client.Bucket(dst.Bucket).Object(dst.Key)
	if _, err := to.CopierFrom(from).Run(ctx); err != nil {
		var apiErr *googleapi.Error
		if errors.As(err, &apiErr) && apiErr.Code == http.StatusNotFound {
			return fmt.Errorf("%w: %s", ErrObjectNotFound, src)
		}
		return fmt.Errorf("gcs copy %s -> %s: %w", src, dst, err)
	}
	return nil
}

func (g *GCSStorage) Put(ctx context.Context, loc Location, data []byte, contentType string) error {
	w := g.client.Bucket(loc.Bucket).Object(loc.Key).NewWriter(ctx)
	w.ContentType = contentType
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return fmt.Errorf("gcs write %s: %w", loc, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("gcs finalize %s: %w", loc, err)
	}
	return nil
}

func (g *GCSStorage) Close() error {
	return g.client.Close()
}
