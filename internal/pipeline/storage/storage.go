package storage

import (
	"context"
	"io"
	"mime"
	"path/filepath"
)

// Storage persists analysis artifacts (labeled videos and stills).
type Storage interface {
	Upload(ctx context.Context, bucket, key string, body io.Reader) error
	Download(ctx context.Context, bucket, key string) ([]byte, error)
}

func contentType(key string) string {
	if ct := mime.TypeByExtension(filepath.Ext(key)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
