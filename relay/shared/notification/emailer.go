package notification

import "context"

type Emailer interface {
	SendTransferFailures(ctx context.Context, summary FailureSummary) error
}
