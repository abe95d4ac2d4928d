package blob

import (
	"context"
	"time"
)

// Object is a stored blob together with its storage metadata
type Object struct {
	Key         string
	Body        []byte
	ContentType string
	ETag        string
	Metadata    map[string]string
	Uploaded    time.Time
	Size        int64
}

// Info describes a stored object without its body, as returned by List
type Info struct {
	Key      string
	Size     int64
	Uploaded time.Time
}

// Store is the interface for opaque byte-object storage keyed by path.
// Implemented by the S3 store in production and the memory store in
// development and tests.
type Store interface {
	Put(ctx context.Context, key string, body []byte, contentType string, metadata map[string]string) error
	Get(ctx context.Context, key string) (*Object, error)
	Delete(ctx context.Context, key string) error
	List(ctx context.Context, prefix string) ([]Info, error)
}
