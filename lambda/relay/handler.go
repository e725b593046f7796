package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/pennsieve/sftp-relay-service/relay/shared/awsconfig"
	"github.com/pennsieve/sftp-relay-service/relay/shared/config"
	"github.com/pennsieve/sftp-relay-service/relay/shared/lambdautils"
	"github.com/pennsieve/sftp-relay-service/relay/shared/notification"
	"github.com/pennsieve/sftp-relay-service/relay/shared/objectstore"
	"github.com/pennsieve/sftp-relay-service/relay/shared/orchestrator"
	"github.com/pennsieve/sftp-relay-service/relay/shared/reconcile"
	"github.com/pennsieve/sftp-relay-service/relay/shared/remote"
	"github.com/pennsieve/sftp-relay-service/relay/shared/tracking"
	"github.com/pennsieve/sftp-relay-service/relay/shared/transfer"
	"github.com/pennsieve/sftp-relay-service/relay/shared/trigger"
	"github.com/pennsieve/sftp-relay-service/shared/logging"
)

// awsConfigFactory so that one could set the AWS config in a test using MinIO and dynamodb-local before calling a relay handler.
var awsConfigFactory = awsconfig.NewFactory()
var logger = logging.Default

// handler is the orchestrator.Handler that opens the remote session, relays each object and reconciles the result.
//
// Tests can set handler and decoder before calling a relay handler if they require mocks for the
// handler's dependencies.
var handler *orchestrator.Handler
var decoder *trigger.Decoder

// shutdownMargin is kept back from the Lambda deadline so that the session close, the failure email and
// the final log lines still happen when the batch runs out of time.
const shutdownMargin = 3 * time.Second

func S3RelayHandler(ctx context.Context, event events.S3Event) error {
	records, errs := trigger.RecordsFromS3Event(event)
	return relay(ctx, records, errs)
}

func SQSRelayHandler(ctx context.Context, event events.SQSEvent) error {
	records, errs := trigger.RecordsFromSQSEvent(event)
	return relay(ctx, records, errs)
}

func SNSRelayHandler(ctx context.Context, event events.SNSEvent) error {
	records, errs := trigger.RecordsFromSNSEvent(event)
	return relay(ctx, records, errs)
}

func relay(ctx context.Context, records []trigger.Record, decodeErrs []error) error {
	if err := initializeHandler(ctx); err != nil {
		logger.Error("error initializing relay handler", slog.Any("error", err))
		return err
	}
	invocation := lambdautils.NewInvocation(ctx)
	for _, err := range decodeErrs {
		logger.Warn("skipping undecodable notification", invocation.LogGroup(), slog.Any("error", err))
	}

	ctx, cancel := withShutdownMargin(ctx)
	defer cancel()

	if _, err := handler.Handle(ctx, invocation, decoder.Decode(records)); err != nil {
		logger.Error("error running relay", invocation.LogGroup(), slog.Any("error", err))
		return err
	}
	return nil
}

func withShutdownMargin(ctx context.Context) (context.Context, context.CancelFunc) {
	deadline, ok := ctx.Deadline()
	if !ok || time.Until(deadline) <= shutdownMargin {
		return context.WithCancel(ctx)
	}
	return context.WithDeadline(ctx, deadline.Add(-shutdownMargin))
}

// initializeHandler if the package var handler is nil, loads the configuration, creates a new orchestrator.Handler
// and trigger.Decoder and sets the package vars to those values.
//
// If handler is not nil, immediately returns. Allows tests to set handler created with mocks. A configuration error
// is returned before any AWS client or remote session is created, and nothing is cached, so the next invocation
// checks the environment again.
func initializeHandler(ctx context.Context) error {
	if handler != nil {
		return nil
	}
	cfg, err := config.LoadFromEnvironment()
	if err != nil {
		return err
	}
	awsConfig, err := awsConfigFactory.Get(ctx)
	if err != nil {
		return fmt.Errorf("error getting AWS config: %w", err)
	}

	store := objectstore.NewS3Store(s3.NewFromConfig(*awsConfig))

	var tracker tracking.Store
	if len(cfg.TrackingTable) > 0 {
		tracker = tracking.NewStore(dynamodb.NewFromConfig(*awsConfig), logger, cfg.TrackingTable)
	}

	var opts []orchestrator.Option
	if cfg.Notification.Enabled() {
		emailer, err := notification.NewEmailer(ses.NewFromConfig(*awsConfig), cfg.Notification.Sender, cfg.Notification.Recipients)
		if err != nil {
			return fmt.Errorf("error creating failure emailer: %w", err)
		}
		opts = append(opts, orchestrator.WithFailureEmails(emailer))
	}
	if cfg.FailOnItemError {
		opts = append(opts, orchestrator.WithFailOnItemError())
	}

	dialer := remote.NewDialer(cfg.Remote, logger)
	opener := orchestrator.OpenSessionFunc(func(ctx context.Context) (orchestrator.Session, error) {
		session, err := dialer.Open(ctx)
		if err != nil {
			return nil, err
		}
		return session, nil
	})

	decoder = trigger.NewDecoder(logger, cfg.SourceKeyInclude, cfg.Archive.Prefix, cfg.Archive.Bucket)
	handler = orchestrator.NewHandler(
		opener,
		transfer.NewEngine(store, cfg.Remote.FilenameMask, cfg.TransferBufferBytes, logger),
		reconcile.NewReconciler(store, cfg.Archive, tracker, logger),
		cfg.Remote.Address(),
		logger,
		opts...)
	return nil
}
