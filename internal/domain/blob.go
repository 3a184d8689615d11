package domain

import (
	"context"
	"io"
	"time"
)

// BlobWriter uploads data to object storage.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
	PutMultipart(ctx context.Context, path string, data io.Reader, partSize int64) error
}

// BlobReader fetches data from object storage. Get returns ErrNotFound
// when no object exists at path.
type BlobReader interface {
	Get(ctx context.Context, path string) (io.ReadCloser, error)
}

// Archiver moves settled tickets from the database to cold storage.
type Archiver interface {
	ArchiveSettledTickets(ctx context.Context, before time.Time) (int64, error)
}
