package storage

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/nikhilbhutani/docingest/internal/config"
)

var (
	ErrObjectNotFound  = errors.New("object not found")
	ErrInvalidLocation = errors.New("invalid storage location")
)

// Storage is blob storage addressed by Location. Writes are keyed, so
// repeating a Copy or Put to the same destination is safe.
type Storage interface {
	Scheme() string
	Get(ctx context.Context, loc Location) ([]byte, error)
	Copy(ctx context.Context, src, dst Location) error
	Put(ctx context.Context, loc Location, data []byte, contentType string) error
}

// Location points at one object, rendered as scheme://bucket/key.
type Location struct {
	Scheme string
	Bucket string
	Key    string
}

func ParseLocation(s string) (Location, error) {
	scheme, rest, ok := strings.Cut(s, "://")
	if !ok || scheme == "" {
		return Location{}, fmt.Errorf("%w: %q has no scheme", ErrInvalidLocation, s)
	}
	bucket, key, ok := strings.Cut(rest, "/")
	if !ok || bucket == "" || key == "" {
		return Location{}, fmt.Errorf("%w: %q needs bucket and key", ErrInvalidLocation, s)
	}
	return Location{Scheme: scheme, Bucket: bucket, Key: key}, nil
}

func (l Location) String() string {
	return fmt.Sprintf("%s://%s/%s", l.Scheme, l.Bucket, l.Key)
}

// Ext returns the key's extension including the dot, or "".
func (l Location) Ext() string {
	return strings.ToLower(path.Ext(l.Key))
}

// New builds the backend selected by cfg.Backend.
func New(ctx context.Context, cfg config.StorageConfig) (Storage, error) {
	switch cfg.Backend {
	case "s3":
		return NewS3Storage(ctx, cfg)
	case "gcs":
		return NewGCSStorage(ctx, cfg)
	case "supabase":
		return NewSupabaseStorage(cfg.SupabaseURL, cfg.SupabaseKey), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}
