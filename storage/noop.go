package storage

import (
	"context"
	"io"
)

// NoopUploader discards every write. Used when actions are disabled.
type NoopUploader struct{}

func NewNoopUploader() FileUploader {
	return NoopUploader{}
}

func (NoopUploader) Upload(ctx context.Context, key string, contentType string, reader io.Reader) (*UploadResult, error) {
	return &UploadResult{Key: key}, nil
}

func (NoopUploader) Delete(ctx context.Context, key string) error { return nil }

func (NoopUploader) GetPublicURL(key string) string { return "" }
