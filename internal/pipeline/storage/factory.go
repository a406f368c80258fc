package storage

import (
	types "FormCoach/pkg"
	"context"
	"fmt"
)

// NewStorage returns nil when artifact storage is disabled.
func NewStorage(ctx context.Context, cfg types.StorageConfig) (Storage, error) {
	switch cfg.Type {
	case "", "none":
		return nil, nil
	case "s3":
		s, err := NewS3Storage(ctx, cfg.S3)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "minio":
		s, err := NewMinIOStorage(ctx, cfg.MinIO, cfg.Bucket)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "local":
		s, err := NewLocalStorage(cfg.Local)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unsupported storage backend: %s", cfg.Type)
	}
}
