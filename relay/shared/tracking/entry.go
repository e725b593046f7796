package tracking

import (
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// TransferStatus is the final state of one relayed object.
type TransferStatus string

const (
	Delivered TransferStatus = "DELIVERED"
	// DeliveredNotCleanedUp means the object reached the remote server but the source could not be deleted.
	// It is terminal: the relay never retries the delete.
	DeliveredNotCleanedUp TransferStatus = "DELIVERED_NOT_CLEANED_UP"
	Failed                TransferStatus = "FAILED"
)

func TransferStatusFromString(s string) (TransferStatus, error) {
	switch strings.ToUpper(s) {
	case string(Delivered):
		return Delivered, nil
	case string(DeliveredNotCleanedUp):
		return DeliveredNotCleanedUp, nil
	case string(Failed):
		return Failed, nil
	default:
		return "", fmt.Errorf("unknown transfer status: [%s]", s)
	}
}

// IDAttrName and the other attribute name constants below should match the dynamodbav struct tags in Entry.
const IDAttrName = "id"
const InvocationIDAttrName = "invocationId"
const SourceBucketAttrName = "sourceBucket"
const SourceKeyAttrName = "sourceKey"
const DestinationNameAttrName = "destinationName"
const TransferStatusAttrName = "transferStatus"
const FailureReasonAttrName = "failureReason"
const BytesTransferredAttrName = "bytesTransferred"
const ArchiveMarkerAttrName = "archiveMarker"
const LambdaLogStreamAttrName = "lambdaLogStream"
const AWSRequestIDAttrName = "awsRequestId"
const TransferDateAttrName = "transferDate"

// Entry is one item of the transfer tracking table. There is an entry per relayed object per invocation.
type Entry struct {
	ID               string         `dynamodbav:"id"`
	InvocationID     string         `dynamodbav:"invocationId"`
	SourceBucket     string         `dynamodbav:"sourceBucket"`
	SourceKey        string         `dynamodbav:"sourceKey"`
	DestinationName  string         `dynamodbav:"destinationName,omitempty"`
	TransferStatus   TransferStatus `dynamodbav:"transferStatus"`
	FailureReason    string         `dynamodbav:"failureReason,omitempty"`
	BytesTransferred int64          `dynamodbav:"bytesTransferred"`
	// ArchiveMarker is the s3://bucket/key of the marker written for a failed transfer, if any.
	ArchiveMarker   string    `dynamodbav:"archiveMarker,omitempty"`
	LambdaLogStream string    `dynamodbav:"lambdaLogStream"`
	AWSRequestID    string    `dynamodbav:"awsRequestId"`
	TransferDate    time.Time `dynamodbav:"transferDate"`
}

func (e *Entry) Item() (map[string]types.AttributeValue, error) {
	item, err := attributevalue.MarshalMap(e)
	if err != nil {
		return nil, fmt.Errorf("error marshalling %+v to item: %w", e, err)
	}
	return item, nil
}

func FromItem(item map[string]types.AttributeValue) (*Entry, error) {
	var entry Entry
	if err := attributevalue.UnmarshalMap(item, &entry); err != nil {
		return nil, fmt.Errorf("error unmarshalling item to %T: %w", entry, err)
	}
	return &entry, nil
}
