package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pennsieve/sftp-relay-service/relay/shared/config"
	"github.com/pennsieve/sftp-relay-service/relay/shared/lambdautils"
	"github.com/pennsieve/sftp-relay-service/relay/shared/objectstore"
	"github.com/pennsieve/sftp-relay-service/relay/shared/tracking"
	"github.com/pennsieve/sftp-relay-service/relay/shared/transfer"
)

const ArchiveMarkerSuffix = ".failed"

// Result is what happened to the source object after its transfer.
type Result struct {
	Outcome transfer.Outcome
	Status  tracking.TransferStatus
	// CleanupErr is set when a delivered object could not be deleted. It is reported, never retried.
	CleanupErr error
	// ArchiveMarker is the s3:// location of the marker written for a failed transfer, if one was written.
	ArchiveMarker string
}

type Reconciler struct {
	store   objectstore.Store
	archive config.Archive
	// tracker is nil when tracking is not configured
	tracker tracking.Store
	now     func() time.Time
	logger  *slog.Logger
}

func NewReconciler(store objectstore.Store, archive config.Archive, tracker tracking.Store, logger *slog.Logger) *Reconciler {
	return &Reconciler{
		store:   store,
		archive: archive,
		tracker: tracker,
		now:     time.Now,
		logger:  logger,
	}
}

// Reconcile deletes the source of a successful transfer and leaves the source of a failed one in place.
// Nothing that goes wrong here changes the outcome of the transfer, so it never returns an error.
func (r *Reconciler) Reconcile(ctx context.Context, invocation lambdautils.Invocation, outcome transfer.Outcome) Result {
	ref := outcome.Ref
	logger := r.logger.With(ref.LogGroup(), slog.String("destination", outcome.DestinationName))
	result := Result{Outcome: outcome}

	if outcome.Succeeded() {
		result.Status = tracking.Delivered
		if err := r.store.Delete(ctx, ref.Bucket, ref.Key); err != nil {
			result.Status = tracking.DeliveredNotCleanedUp
			result.CleanupErr = err
			logger.Warn("delivered object but could not delete source", slog.Any("error", err))
		} else {
			logger.Info("deleted source object")
		}
	} else {
		result.Status = tracking.Failed
		logger.Error("transfer failed; source object kept", slog.Any("error", outcome.Err))
		if r.archive.Enabled() {
			result.ArchiveMarker = r.writeArchiveMarker(ctx, outcome, logger)
		}
	}

	if r.tracker != nil {
		r.track(ctx, invocation, result, logger)
	}
	return result
}

func (r *Reconciler) ArchiveMarkerLocation(outcome transfer.Outcome) (string, string) {
	bucket := r.archive.Bucket
	if len(bucket) == 0 {
		bucket = outcome.Ref.Bucket
	}
	name := outcome.DestinationName
	if len(name) == 0 {
		name = strings.ReplaceAll(strings.Trim(outcome.Ref.Key, "/"), "/", "_")
	}
	return bucket, r.archive.Prefix + name + ArchiveMarkerSuffix
}

func (r *Reconciler) writeArchiveMarker(ctx context.Context, outcome transfer.Outcome, logger *slog.Logger) string {
	bucket, key := r.ArchiveMarkerLocation(outcome)
	body := fmt.Sprintf("source: %s\ndestination: %s\nreason: %v\n", outcome.Ref, outcome.DestinationName, outcome.Err)
	if err := r.store.Put(ctx, bucket, key, strings.NewReader(body)); err != nil {
		logger.Warn("could not write archive marker", slog.Any("error", err))
		return ""
	}
	location := fmt.Sprintf("s3://%s/%s", bucket, key)
	logger.Info("wrote archive marker", slog.String("marker", location))
	return location
}

func (r *Reconciler) track(ctx context.Context, invocation lambdautils.Invocation, result Result, logger *slog.Logger) {
	entry := &tracking.Entry{
		ID:               uuid.NewString(),
		InvocationID:     invocation.ID,
		SourceBucket:     result.Outcome.Ref.Bucket,
		SourceKey:        result.Outcome.Ref.Key,
		DestinationName:  result.Outcome.DestinationName,
		TransferStatus:   result.Status,
		BytesTransferred: result.Outcome.BytesTransferred,
		ArchiveMarker:    result.ArchiveMarker,
		LambdaLogStream:  invocation.LogStreamName,
		AWSRequestID:     invocation.AWSRequestID,
		TransferDate:     r.now(),
	}
	if result.Outcome.Err != nil {
		entry.FailureReason = result.Outcome.Err.Error()
	} else if result.CleanupErr != nil {
		entry.FailureReason = result.CleanupErr.Error()
	}
	if err := r.tracker.PutEntry(ctx, entry); err != nil {
		logger.Warn("could not write tracking entry", slog.Any("error", err))
	}
}
