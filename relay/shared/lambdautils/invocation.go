package lambdautils

import (
	"context"
	"log/slog"

	"github.com/aws/aws-lambda-go/lambdacontext"
	"github.com/google/uuid"
)

// Invocation identifies one run of the relay in logs, tracking entries and notification emails.
type Invocation struct {
	// ID is generated for every invocation, so it is set even outside the Lambda runtime.
	ID            string
	AWSRequestID  string
	LogStreamName string
}

// NewInvocation reads the Lambda request ID from ctx and the log stream from the runtime environment.
// Either is empty when not running in Lambda.
func NewInvocation(ctx context.Context) Invocation {
	invocation := Invocation{
		ID:            uuid.NewString(),
		LogStreamName: lambdacontext.LogStreamName,
	}
	if lc, ok := lambdacontext.FromContext(ctx); ok {
		invocation.AWSRequestID = lc.AwsRequestID
	}
	return invocation
}

func (i Invocation) LogGroup() slog.Attr {
	return slog.Group("invocation",
		slog.String("id", i.ID),
		slog.String("awsRequestID", i.AWSRequestID),
		slog.String("logStream", i.LogStreamName))
}
