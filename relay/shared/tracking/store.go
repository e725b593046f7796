package tracking

import "context"

type Store interface {
	PutEntry(ctx context.Context, entry *Entry) error
	QueryInvocation(ctx context.Context, invocationID string) ([]Entry, error)
}
