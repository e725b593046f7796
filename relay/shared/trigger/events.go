package trigger

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/aws/aws-lambda-go/events"
)

const testEventName = "s3:TestEvent"

// RecordsFromS3Event converts a direct S3 notification.
func RecordsFromS3Event(event events.S3Event) ([]Record, []error) {
	var records []Record
	var errs []error
	for i, r := range event.Records {
		record, err := recordFromS3(r)
		if err != nil {
			errs = append(errs, &DecodeError{Source: fmt.Sprintf("record %d", i), Err: err})
			continue
		}
		records = append(records, record)
	}
	return records, errs
}

// RecordsFromSQSEvent converts S3 notifications delivered through SQS, either directly or through an SNS
// topic subscribed by the queue. A message that cannot be decoded does not affect the others.
func RecordsFromSQSEvent(event events.SQSEvent) ([]Record, []error) {
	var records []Record
	var errs []error
	for _, message := range event.Records {
		messageRecords, err := recordsFromBody(message.Body)
		if err != nil {
			errs = append(errs, &DecodeError{Source: fmt.Sprintf("SQS message %s", message.MessageId), Err: err})
			continue
		}
		records = append(records, messageRecords...)
	}
	return records, errs
}

// RecordsFromSNSEvent converts S3 notifications delivered through SNS.
func RecordsFromSNSEvent(event events.SNSEvent) ([]Record, []error) {
	var records []Record
	var errs []error
	for _, message := range event.Records {
		messageRecords, err := recordsFromS3JSON(message.SNS.Message)
		if err != nil {
			errs = append(errs, &DecodeError{Source: fmt.Sprintf("SNS message %s", message.SNS.MessageID), Err: err})
			continue
		}
		records = append(records, messageRecords...)
	}
	return records, errs
}

type snsEnvelope struct {
	Type    string `json:"Type"`
	Message string `json:"Message"`
}

type s3Notification struct {
	// Event is only set on the test message S3 sends when notifications are configured.
	Event   string                  `json:"Event"`
	Records []events.S3EventRecord `json:"Records"`
}

func recordsFromBody(body string) ([]Record, error) {
	var envelope snsEnvelope
	if err := json.Unmarshal([]byte(body), &envelope); err == nil && envelope.Type == "Notification" && len(envelope.Message) > 0 {
		return recordsFromS3JSON(envelope.Message)
	}
	return recordsFromS3JSON(body)
}

func recordsFromS3JSON(body string) ([]Record, error) {
	var notification s3Notification
	if err := json.Unmarshal([]byte(body), &notification); err != nil {
		return nil, fmt.Errorf("error unmarshalling S3 notification: %w", err)
	}
	if notification.Event == testEventName {
		return nil, nil
	}
	var records []Record
	var errs []error
	for i, r := range notification.Records {
		record, err := recordFromS3(r)
		if err != nil {
			errs = append(errs, fmt.Errorf("record %d: %w", i, err))
			continue
		}
		records = append(records, record)
	}
	return records, errors.Join(errs...)
}

func recordFromS3(r events.S3EventRecord) (Record, error) {
	category, subcategory, _ := strings.Cut(r.EventName, ":")
	key := r.S3.Object.URLDecodedKey
	if len(key) == 0 && len(r.S3.Object.Key) > 0 {
		decoded, err := url.QueryUnescape(r.S3.Object.Key)
		if err != nil {
			return Record{}, fmt.Errorf("error decoding object key %q: %w", r.S3.Object.Key, err)
		}
		key = decoded
	}
	return Record{
		EventCategory:    category,
		EventSubcategory: subcategory,
		Bucket:           r.S3.Bucket.Name,
		Key:              key,
	}, nil
}
