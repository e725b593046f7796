package notification

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadTemplates(t *testing.T) {
	require.NoError(t, LoadTemplates())
	assert.NotNil(t, transferFailuresTemplate)
}

func TestTransferFailuresEmailBody(t *testing.T) {
	require.NoError(t, LoadTemplates())
	summary := FailureSummary{
		InvocationID:  "invocation-1",
		AWSRequestID:  "REQUEST-1",
		LogStreamName: "/log/stream",
		RemoteAddress: "sftp.example.com:22",
		Attempted:     3,
		NotAttempted:  2,
		Failures: []FailedTransfer{{
			Source:        "s3://incoming/folder/report.csv",
			Destination:   "report.csv",
			Reason:        "remote <write> failed",
			ArchiveMarker: "s3://incoming/failed/report.csv.failed",
		}},
	}

	body, err := TransferFailuresEmailBody(summary)
	require.NoError(t, err)
	assert.Contains(t, body, "1 of 3 object(s) could not be delivered to sftp.example.com:22")
	assert.Contains(t, body, "2 object(s) were not attempted")
	assert.Contains(t, body, "s3://incoming/folder/report.csv")
	assert.Contains(t, body, "s3://incoming/failed/report.csv.failed")
	assert.Contains(t, body, "remote &lt;write&gt; failed")
	assert.Contains(t, body, "invocation-1")
	assert.Contains(t, body, "REQUEST-1")
}

func TestTransferFailuresEmailBody_AllAttempted(t *testing.T) {
	require.NoError(t, LoadTemplates())
	body, err := TransferFailuresEmailBody(FailureSummary{Attempted: 1, Failures: []FailedTransfer{{Source: "s3://b/k"}}})
	require.NoError(t, err)
	assert.NotContains(t, body, "not attempted")
}
