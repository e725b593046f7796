package trigger

import (
	"fmt"
	"log/slog"
)

const ObjectCreatedCategory = "ObjectCreated"

// Record is the part of a storage notification the relay cares about.
type Record struct {
	EventCategory    string
	EventSubcategory string
	Bucket           string
	Key              string
}

// SourceObjectRef names one object to relay.
type SourceObjectRef struct {
	Bucket string
	Key    string
}

func (r SourceObjectRef) String() string {
	return fmt.Sprintf("s3://%s/%s", r.Bucket, r.Key)
}

// LogGroup transforms this ref into a slog.Attr Group to be used for structured logging.
func (r SourceObjectRef) LogGroup() slog.Attr {
	return slog.Group("source",
		slog.String("bucket", r.Bucket),
		slog.String("key", r.Key))
}

// DecodeError reports a notification record or message that could not be understood. It is never fatal:
// the record is skipped and the rest of the batch is processed.
type DecodeError struct {
	// Source identifies the record or message, for example "record 2" or "SQS message <id>".
	Source string
	Err    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("error decoding %s: %v", e.Source, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}
