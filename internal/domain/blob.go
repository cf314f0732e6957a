package domain

import (
	"context"
	"io"
)

// BlobWriter uploads data to object storage.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
	PutMultipart(ctx context.Context, path string, data io.Reader, partSize int64) error
}

// ReportArchiver stores a full execution report in cold storage.
type ReportArchiver interface {
	Archive(ctx context.Context, r ExecutionResult) (path string, err error)
}

// BlobReader downloads data from object storage.
type BlobReader interface {
	// Get returns ErrNotFound when nothing is stored at path.
	Get(ctx context.Context, path string) (io.ReadCloser, error)
}
