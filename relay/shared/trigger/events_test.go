package trigger

import (
	"encoding/json"
	"testing"

	"github.com/aws/aws-lambda-go/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const s3NotificationJSON = `{
  "Records": [
    {
      "eventVersion": "2.1",
      "eventSource": "aws:s3",
      "eventName": "ObjectCreated:Put",
      "s3": {
        "bucket": {"name": "incoming", "arn": "arn:aws:s3:::incoming"},
        "object": {"key": "folder/sub/monthly+report%2B2024.csv", "size": 1024}
      }
    },
    {
      "eventVersion": "2.1",
      "eventSource": "aws:s3",
      "eventName": "ObjectRemoved:Delete",
      "s3": {
        "bucket": {"name": "incoming", "arn": "arn:aws:s3:::incoming"},
        "object": {"key": "folder/old.csv"}
      }
    }
  ]
}`

var expectedNotificationRecords = []Record{
	{EventCategory: "ObjectCreated", EventSubcategory: "Put", Bucket: "incoming", Key: "folder/sub/monthly report+2024.csv"},
	{EventCategory: "ObjectRemoved", EventSubcategory: "Delete", Bucket: "incoming", Key: "folder/old.csv"},
}

func s3Record(eventName, bucket, key string) events.S3EventRecord {
	return events.S3EventRecord{
		EventName: eventName,
		S3: events.S3Entity{
			Bucket: events.S3Bucket{Name: bucket},
			Object: events.S3Object{Key: key},
		},
	}
}

func TestRecordsFromS3Event(t *testing.T) {
	t.Run("unmarshalled notification", func(t *testing.T) {
		var event events.S3Event
		require.NoError(t, json.Unmarshal([]byte(s3NotificationJSON), &event))
		records, errs := RecordsFromS3Event(event)
		assert.Empty(t, errs)
		assert.Equal(t, expectedNotificationRecords, records)
	})

	t.Run("keys are decoded when the event was built in code", func(t *testing.T) {
		records, errs := RecordsFromS3Event(events.S3Event{Records: []events.S3EventRecord{
			s3Record("ObjectCreated:CompleteMultipartUpload", "incoming", "a%20b/c+d.csv"),
		}})
		assert.Empty(t, errs)
		assert.Equal(t, []Record{{EventCategory: "ObjectCreated", EventSubcategory: "CompleteMultipartUpload", Bucket: "incoming", Key: "a b/c d.csv"}}, records)
	})

	t.Run("event name split on first colon only", func(t *testing.T) {
		records, _ := RecordsFromS3Event(events.S3Event{Records: []events.S3EventRecord{
			s3Record("ObjectCreated:Put:Extra", "incoming", "a.csv"),
			s3Record("ObjectCreated", "incoming", "b.csv"),
		}})
		require.Len(t, records, 2)
		assert.Equal(t, "ObjectCreated", records[0].EventCategory)
		assert.Equal(t, "Put:Extra", records[0].EventSubcategory)
		assert.Equal(t, "ObjectCreated", records[1].EventCategory)
		assert.Empty(t, records[1].EventSubcategory)
	})

	t.Run("undecodable key", func(t *testing.T) {
		records, errs := RecordsFromS3Event(events.S3Event{Records: []events.S3EventRecord{
			s3Record("ObjectCreated:Put", "incoming", "bad%zzkey"),
			s3Record("ObjectCreated:Put", "incoming", "good.csv"),
		}})
		require.Len(t, errs, 1)
		var decodeErr *DecodeError
		require.ErrorAs(t, errs[0], &decodeErr)
		assert.Equal(t, "record 0", decodeErr.Source)
		assert.Equal(t, []Record{{EventCategory: "ObjectCreated", EventSubcategory: "Put", Bucket: "incoming", Key: "good.csv"}}, records)
	})
}

func TestRecordsFromSQSEvent(t *testing.T) {
	snsEnvelope, err := json.Marshal(map[string]string{
		"Type":     "Notification",
		"TopicArn": "arn:aws:sns:us-east-1:123456789012:uploads",
		"Message":  s3NotificationJSON,
	})
	require.NoError(t, err)

	event := events.SQSEvent{Records: []events.SQSMessage{
		{MessageId: "direct", Body: s3NotificationJSON},
		{MessageId: "test-event", Body: `{"Service":"Amazon S3","Event":"s3:TestEvent","Bucket":"incoming"}`},
		{MessageId: "garbage", Body: "not json"},
		{MessageId: "through-sns", Body: string(snsEnvelope)},
	}}
	records, errs := RecordsFromSQSEvent(event)

	require.Len(t, errs, 1)
	var decodeErr *DecodeError
	require.ErrorAs(t, errs[0], &decodeErr)
	assert.Equal(t, "SQS message garbage", decodeErr.Source)

	expected := append(append([]Record{}, expectedNotificationRecords...), expectedNotificationRecords...)
	assert.Equal(t, expected, records)
}

func TestRecordsFromSNSEvent(t *testing.T) {
	event := events.SNSEvent{Records: []events.SNSEventRecord{
		{SNS: events.SNSEntity{MessageID: "one", Message: s3NotificationJSON}},
		{SNS: events.SNSEntity{MessageID: "two", Message: "{"}},
	}}
	records, errs := RecordsFromSNSEvent(event)
	require.Len(t, errs, 1)
	assert.ErrorContains(t, errs[0], "SNS message two")
	assert.Equal(t, expectedNotificationRecords, records)
}
