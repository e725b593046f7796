package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"time"

	"github.com/pennsieve/sftp-relay-service/relay/shared/lambdautils"
	"github.com/pennsieve/sftp-relay-service/relay/shared/notification"
	"github.com/pennsieve/sftp-relay-service/relay/shared/reconcile"
	"github.com/pennsieve/sftp-relay-service/relay/shared/tracking"
	"github.com/pennsieve/sftp-relay-service/relay/shared/transfer"
	"github.com/pennsieve/sftp-relay-service/relay/shared/trigger"
)

// Session is an open connection to the remote server, usually a *remote.Session.
type Session interface {
	transfer.Destination
	Close() error
}

type SessionOpener interface {
	Open(ctx context.Context) (Session, error)
}

type OpenSessionFunc func(ctx context.Context) (Session, error)

func (f OpenSessionFunc) Open(ctx context.Context) (Session, error) {
	return f(ctx)
}

const emailTimeout = 10 * time.Second

type Handler struct {
	opener     SessionOpener
	engine     *transfer.Engine
	reconciler *reconcile.Reconciler
	// emailer is nil when failure notifications are not configured
	emailer         notification.Emailer
	remoteAddress   string
	failOnItemError bool
	logger          *slog.Logger
}

type Option func(h *Handler)

// WithFailureEmails sends one summary email per invocation in which any transfer failed.
func WithFailureEmails(emailer notification.Emailer) Option {
	return func(h *Handler) {
		h.emailer = emailer
	}
}

// WithFailOnItemError makes Handle return an error when any transfer failed or was not attempted.
func WithFailOnItemError() Option {
	return func(h *Handler) {
		h.failOnItemError = true
	}
}

func NewHandler(opener SessionOpener, engine *transfer.Engine, reconciler *reconcile.Reconciler, remoteAddress string, logger *slog.Logger, opts ...Option) *Handler {
	h := &Handler{
		opener:        opener,
		engine:        engine,
		reconciler:    reconciler,
		remoteAddress: remoteAddress,
		logger:        logger,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Result summarises an invocation in which the session was opened.
type Result struct {
	Invocation lambdautils.Invocation
	Items      []reconcile.Result
	Succeeded  int
	Failed     int
	// CleanupWarnings counts delivered objects whose source could not be deleted. They are also in Succeeded.
	CleanupWarnings int
	// NotAttempted counts refs left when ctx ended.
	NotAttempted int
}

func (r *Result) Attempted() int {
	return len(r.Items)
}

// Handle opens one session and relays each ref over it in order. A failed item never stops the batch.
// The only error before any item is the session failing to open; after that the session is always closed
// and Handle returns a nil error unless the handler was built WithFailOnItemError.
func (h *Handler) Handle(ctx context.Context, invocation lambdautils.Invocation, refs iter.Seq[trigger.SourceObjectRef]) (*Result, error) {
	logger := h.logger.With(invocation.LogGroup())

	session, err := h.opener.Open(ctx)
	if err != nil {
		logger.Error("could not open remote session; no objects relayed", slog.Any("error", err))
		return nil, err
	}

	result := h.relay(ctx, session, invocation, refs, logger)

	logger.Info("relay complete",
		slog.Int("succeeded", result.Succeeded),
		slog.Int("failed", result.Failed),
		slog.Int("cleanupWarnings", result.CleanupWarnings),
		slog.Int("notAttempted", result.NotAttempted))

	if h.emailer != nil && result.Failed > 0 {
		h.sendFailureEmail(ctx, result, logger)
	}
	if h.failOnItemError {
		if err := result.itemsError(); err != nil {
			return result, err
		}
	}
	return result, nil
}

func (h *Handler) relay(ctx context.Context, session Session, invocation lambdautils.Invocation, refs iter.Seq[trigger.SourceObjectRef], logger *slog.Logger) *Result {
	defer func() {
		if err := session.Close(); err != nil {
			logger.Warn("error closing remote session", slog.Any("error", err))
		} else {
			logger.Debug("remote session closed")
		}
	}()

	result := &Result{Invocation: invocation}
	for ref := range refs {
		if ctx.Err() != nil {
			result.NotAttempted++
			logger.Warn("not attempted; invocation is out of time", ref.LogGroup(), slog.Any("error", ctx.Err()))
			continue
		}
		logger.Debug("relaying object", ref.LogGroup())
		outcome := h.engine.Transfer(ctx, session, ref)
		itemResult := h.reconciler.Reconcile(ctx, invocation, outcome)
		result.Items = append(result.Items, itemResult)
		switch itemResult.Status {
		case tracking.Delivered:
			result.Succeeded++
		case tracking.DeliveredNotCleanedUp:
			result.Succeeded++
			result.CleanupWarnings++
		default:
			result.Failed++
		}
	}
	return result
}

func (r *Result) itemsError() error {
	var errs []error
	for _, item := range r.Items {
		if item.Outcome.Err != nil {
			errs = append(errs, item.Outcome.Err)
		}
	}
	if r.NotAttempted > 0 {
		errs = append(errs, fmt.Errorf("%d object(s) not attempted", r.NotAttempted))
	}
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%d of %d transfer(s) failed: %w", r.Failed+r.NotAttempted, r.Attempted()+r.NotAttempted, errors.Join(errs...))
}

func (h *Handler) sendFailureEmail(ctx context.Context, result *Result, logger *slog.Logger) {
	summary := notification.FailureSummary{
		InvocationID:  result.Invocation.ID,
		AWSRequestID:  result.Invocation.AWSRequestID,
		LogStreamName: result.Invocation.LogStreamName,
		RemoteAddress: h.remoteAddress,
		Attempted:     result.Attempted(),
		NotAttempted:  result.NotAttempted,
	}
	for _, item := range result.Items {
		if item.Outcome.Succeeded() {
			continue
		}
		summary.Failures = append(summary.Failures, notification.FailedTransfer{
			Source:        item.Outcome.Ref.String(),
			Destination:   item.Outcome.DestinationName,
			Reason:        item.Outcome.Err.Error(),
			ArchiveMarker: item.ArchiveMarker,
		})
	}
	// sent even when ctx ended, since a truncated batch is when the email matters most
	emailCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), emailTimeout)
	defer cancel()
	if err := h.emailer.SendTransferFailures(emailCtx, summary); err != nil {
		logger.Warn("could not send failure email", slog.Any("error", err))
	}
}
