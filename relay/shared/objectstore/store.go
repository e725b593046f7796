package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
)

// Store is the bucket/key addressed object storage the relay reads from and cleans up.
type Store interface {
	// Get opens the object for streaming. Callers must close Object.Body.
	Get(ctx context.Context, bucket, key string) (*Object, error)
	Delete(ctx context.Context, bucket, key string) error
	Put(ctx context.Context, bucket, key string, body io.Reader) error
}

type Object struct {
	Body io.ReadCloser
	// ContentLength is the size reported by the store, or -1 if the store did not report one.
	ContentLength int64
}

var (
	ErrNotFound       = errors.New("object not found")
	ErrBucketNotFound = errors.New("bucket not found")
	ErrAccessDenied   = errors.New("access denied")
)

// Error carries the store operation and location of a failure. Kind, when set, is one of the sentinel
// errors above so that errors.Is works without losing the underlying SDK error.
type Error struct {
	Op     string
	Bucket string
	Key    string
	Kind   error
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("error in %s of s3://%s/%s: %v", e.Op, e.Bucket, e.Key, e.Err)
}

func (e *Error) Unwrap() []error {
	if e.Kind == nil {
		return []error{e.Err}
	}
	return []error{e.Kind, e.Err}
}

// LocationLogGroup transforms a bucket and key into a slog.Attr Group to be used for structured logging.
func LocationLogGroup(bucket, key string) slog.Attr {
	return slog.Group("source",
		slog.String("bucket", bucket),
		slog.String("key", key))
}
