package trigger

import (
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Decoder turns notification records into the refs to relay.
type Decoder struct {
	includes      []string
	archivePrefix string
	archiveBucket string
	logger        *slog.Logger
}

// NewDecoder returns a Decoder that accepts only keys matching at least one of the includes patterns
// (doublestar syntax), or every key if there are none. Keys under archivePrefix are never accepted, in
// archiveBucket if that is set and in any bucket otherwise.
func NewDecoder(logger *slog.Logger, includes []string, archivePrefix, archiveBucket string) *Decoder {
	return &Decoder{
		includes:      includes,
		archivePrefix: archivePrefix,
		archiveBucket: archiveBucket,
		logger:        logger,
	}
}

// Decode lazily yields a ref for each accepted record, in order. Records for other event categories,
// malformed records and filtered keys are logged and skipped.
func (d *Decoder) Decode(records []Record) iter.Seq[SourceObjectRef] {
	return func(yield func(SourceObjectRef) bool) {
		for i, record := range records {
			logger := d.logger.With(slog.Int("recordIndex", i))
			if err := validate(record); err != nil {
				logger.Warn("skipping malformed record",
					slog.Any("error", &DecodeError{Source: fmt.Sprintf("record %d", i), Err: err}))
				continue
			}
			ref := SourceObjectRef{Bucket: record.Bucket, Key: record.Key}
			logger = logger.With(ref.LogGroup())
			if record.EventCategory != ObjectCreatedCategory {
				logger.Warn("skipping record for unhandled event",
					slog.String("eventCategory", record.EventCategory),
					slog.String("eventSubcategory", record.EventSubcategory))
				continue
			}
			if d.isArchiveMarker(ref) {
				logger.Info("skipping archive marker")
				continue
			}
			if !d.isIncluded(ref.Key) {
				logger.Warn("skipping key that matches no include pattern", slog.Any("includes", d.includes))
				continue
			}
			if !yield(ref) {
				return
			}
		}
	}
}

func validate(record Record) error {
	var errs []error
	if len(record.EventCategory) == 0 {
		errs = append(errs, errors.New("missing event name"))
	}
	if len(record.Bucket) == 0 {
		errs = append(errs, errors.New("missing bucket name"))
	}
	if len(record.Key) == 0 {
		errs = append(errs, errors.New("missing object key"))
	}
	return errors.Join(errs...)
}

func (d *Decoder) isArchiveMarker(ref SourceObjectRef) bool {
	if len(d.archivePrefix) == 0 {
		return false
	}
	if len(d.archiveBucket) > 0 && d.archiveBucket != ref.Bucket {
		return false
	}
	return strings.HasPrefix(ref.Key, d.archivePrefix)
}

func (d *Decoder) isIncluded(key string) bool {
	if len(d.includes) == 0 {
		return true
	}
	for _, pattern := range d.includes {
		// patterns are validated when the configuration is loaded, so Match cannot fail here
		if matched, _ := doublestar.Match(pattern, key); matched {
			return true
		}
	}
	return false
}
