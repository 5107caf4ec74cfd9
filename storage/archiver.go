package storage

import (
	"context"
	"io"
)

type UploadResult struct {
	Key      string
	Location string
	ETag     string
}

// ObjectUploader is the S3-compatible blob store the report archiver writes
// through. Reports have deterministic keys, so a re-archive overwrites in
// place and no delete path is needed.
type ObjectUploader interface {
	Upload(ctx context.Context, key string, contentType string, reader io.Reader) (*UploadResult, error)

	GetPublicURL(key string) string
}
