package transfer

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/pennsieve/sftp-relay-service/relay/shared/objectstore"
	"github.com/pennsieve/sftp-relay-service/relay/shared/test"
	"github.com/pennsieve/sftp-relay-service/relay/shared/trigger"
	"github.com/pennsieve/sftp-relay-service/shared/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const bucket = "incoming"

func requireTransferError(t *testing.T, outcome Outcome, expectedOp string) *Error {
	require.Equal(t, Failed, outcome.Status)
	var transferErr *Error
	require.ErrorAs(t, outcome.Err, &transferErr)
	assert.Equal(t, expectedOp, transferErr.Op)
	assert.Equal(t, outcome.Ref, transferErr.Ref)
	return transferErr
}

func TestEngine_Transfer(t *testing.T) {
	content := strings.Repeat("0123456789", 1000)
	events := test.NewEventLog()
	store := test.NewMemoryStore(events).WithObject(bucket, "folder/sub/report.csv", content)
	session := test.NewMemorySession(events)

	// a buffer smaller than the object forces several writes
	engine := NewEngine(store, nil, 256, logging.Default)
	ref := trigger.SourceObjectRef{Bucket: bucket, Key: "folder/sub/report.csv"}
	outcome := engine.Transfer(context.Background(), session, ref)

	require.NoError(t, outcome.Err)
	assert.True(t, outcome.Succeeded())
	assert.Equal(t, ref, outcome.Ref)
	assert.Equal(t, "report.csv", outcome.DestinationName)
	assert.Equal(t, int64(len(content)), outcome.BytesTransferred)

	written, ok := session.File("report.csv")
	require.True(t, ok)
	assert.Equal(t, content, written)
	assert.Equal(t, []string{"get incoming/folder/sub/report.csv", "create report.csv", "close-file report.csv"}, events.Events())
	assert.True(t, store.Has(bucket, "folder/sub/report.csv"), "the engine never deletes")
}

func TestEngine_TransferWithMask(t *testing.T) {
	events := test.NewEventLog()
	store := test.NewMemoryStore(events).WithObject(bucket, "exports/report.csv", "a,b\n")
	session := test.NewMemorySession(events)
	mask, err := ParseMask("{date}_{filename}")
	require.NoError(t, err)

	engine := NewEngine(store, mask, 1024, logging.Default)
	engine.now = func() time.Time { return time.Date(2024, time.January, 2, 3, 4, 5, 0, time.UTC) }
	outcome := engine.Transfer(context.Background(), session, trigger.SourceObjectRef{Bucket: bucket, Key: "exports/report.csv"})

	require.True(t, outcome.Succeeded())
	assert.Equal(t, "2024-01-02_report.csv", outcome.DestinationName)
	written, _ := session.File("2024-01-02_report.csv")
	assert.Equal(t, "a,b\n", written)
}

func TestEngine_TransferUnknownLength(t *testing.T) {
	events := test.NewEventLog()
	store := test.NewMemoryStore(events).
		WithObject(bucket, "report.csv", "a,b\n").
		WithReportedLength(bucket, "report.csv", -1)
	outcome := NewEngine(store, nil, 1024, logging.Default).
		Transfer(context.Background(), test.NewMemorySession(events), trigger.SourceObjectRef{Bucket: bucket, Key: "report.csv"})
	require.True(t, outcome.Succeeded())
	assert.Equal(t, int64(4), outcome.BytesTransferred)
}

func TestEngine_TransferFailures(t *testing.T) {
	content := strings.Repeat("x", 4096)
	boom := errors.New("boom")
	for _, tst := range []struct {
		name                 string
		key                  string
		setup                func(store *test.MemoryStore, session *test.MemorySession)
		expectedOp           string
		expectedEvents       []string
		expectedBytes        int64
		expectedRemoteExists bool
	}{
		{
			name:           "no destination name",
			key:            "folder/",
			expectedOp:     NameOp,
			expectedEvents: nil,
		},
		{
			name:           "source missing",
			key:            "missing.csv",
			expectedOp:     ReadOp,
			expectedEvents: []string{"get incoming/missing.csv"},
		},
		{
			name: "source read error",
			key:  "report.csv",
			setup: func(store *test.MemoryStore, _ *test.MemorySession) {
				store.FailingGet(bucket, "report.csv", boom)
			},
			expectedOp:     ReadOp,
			expectedEvents: []string{"get incoming/report.csv"},
		},
		{
			name: "remote create error",
			key:  "report.csv",
			setup: func(_ *test.MemoryStore, session *test.MemorySession) {
				session.FailingCreate("report.csv", boom)
			},
			expectedOp:     CreateOp,
			expectedEvents: []string{"get incoming/report.csv", "create report.csv"},
		},
		{
			name: "mid-stream write error",
			key:  "report.csv",
			setup: func(_ *test.MemoryStore, session *test.MemorySession) {
				session.FailingWrite("report.csv", 1500, boom)
			},
			expectedOp:           CopyOp,
			expectedEvents:       []string{"get incoming/report.csv", "create report.csv", "close-file report.csv"},
			expectedBytes:        1500,
			expectedRemoteExists: true,
		},
		{
			name: "remote close error",
			key:  "report.csv",
			setup: func(_ *test.MemoryStore, session *test.MemorySession) {
				session.FailingFileClose("report.csv", boom)
			},
			expectedOp:           CloseOp,
			expectedEvents:       []string{"get incoming/report.csv", "create report.csv", "close-file report.csv"},
			expectedBytes:        4096,
			expectedRemoteExists: true,
		},
		{
			name: "size mismatch",
			key:  "report.csv",
			setup: func(store *test.MemoryStore, _ *test.MemorySession) {
				store.WithReportedLength(bucket, "report.csv", 5000)
			},
			expectedOp:           VerifyOp,
			expectedEvents:       []string{"get incoming/report.csv", "create report.csv", "close-file report.csv"},
			expectedBytes:        4096,
			expectedRemoteExists: true,
		},
	} {
		t.Run(tst.name, func(t *testing.T) {
			events := test.NewEventLog()
			store := test.NewMemoryStore(events).WithObject(bucket, "report.csv", content)
			session := test.NewMemorySession(events)
			if tst.setup != nil {
				tst.setup(store, session)
			}

			outcome := NewEngine(store, nil, 1000, logging.Default).
				Transfer(context.Background(), session, trigger.SourceObjectRef{Bucket: bucket, Key: tst.key})

			requireTransferError(t, outcome, tst.expectedOp)
			assert.Equal(t, tst.expectedEvents, events.Events())
			assert.Equal(t, tst.expectedBytes, outcome.BytesTransferred)
			_, remoteExists := session.File("report.csv")
			assert.Equal(t, tst.expectedRemoteExists, remoteExists)
		})
	}
}

func TestEngine_TransferErrorsUnwrap(t *testing.T) {
	events := test.NewEventLog()
	outcome := NewEngine(test.NewMemoryStore(events), nil, 1000, logging.Default).
		Transfer(context.Background(), test.NewMemorySession(events), trigger.SourceObjectRef{Bucket: bucket, Key: "gone.csv"})
	assert.ErrorIs(t, outcome.Err, objectstore.ErrNotFound)
	assert.ErrorContains(t, outcome.Err, "transfer of s3://incoming/gone.csv to gone.csv failed to read source")

	events = test.NewEventLog()
	store := test.NewMemoryStore(events).WithObject(bucket, "short.csv", "abc").WithReportedLength(bucket, "short.csv", 10)
	outcome = NewEngine(store, nil, 1000, logging.Default).
		Transfer(context.Background(), test.NewMemorySession(events), trigger.SourceObjectRef{Bucket: bucket, Key: "short.csv"})
	var sizeErr *SizeMismatchError
	require.ErrorAs(t, outcome.Err, &sizeErr)
	assert.Equal(t, int64(10), sizeErr.Expected)
	assert.Equal(t, int64(3), sizeErr.Actual)
}

func TestEngine_TransferCancelled(t *testing.T) {
	events := test.NewEventLog()
	store := test.NewMemoryStore(events).WithObject(bucket, "report.csv", "a,b\n")
	session := test.NewMemorySession(events)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	outcome := NewEngine(store, nil, 1000, logging.Default).Transfer(ctx, session, trigger.SourceObjectRef{Bucket: bucket, Key: "report.csv"})
	requireTransferError(t, outcome, CopyOp)
	assert.ErrorIs(t, outcome.Err, context.Canceled)
	assert.Contains(t, events.Events(), "close-file report.csv")
}
