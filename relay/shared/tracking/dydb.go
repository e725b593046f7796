package tracking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

const InvocationIndexName = "InvocationIndex"

type DyDBStore struct {
	client *dynamodb.Client
	table  string
	logger *slog.Logger
}

func NewStore(client *dynamodb.Client, logger *slog.Logger, tableName string) *DyDBStore {
	return &DyDBStore{
		client: client,
		table:  tableName,
		logger: logger,
	}
}

func (s *DyDBStore) PutEntry(ctx context.Context, entry *Entry) error {
	item, err := entry.Item()
	if err != nil {
		return err
	}
	in := dynamodb.PutItemInput{
		Item:         item,
		TableName:    aws.String(s.table),
		ReturnValues: types.ReturnValueAllOld,
	}
	out, err := s.client.PutItem(ctx, &in)
	if err != nil {
		return fmt.Errorf("error putting entry %s to %s: %w", entry.ID, s.table, err)
	}
	if len(out.Attributes) > 0 {
		s.logger.Warn("overwrote existing tracking entry", slog.Any("existingEntry", out.Attributes))
	}
	return nil
}

// QueryInvocation returns the entries written by one invocation. Items that cannot be unmarshalled are
// reported in the returned error alongside the entries that could.
func (s *DyDBStore) QueryInvocation(ctx context.Context, invocationID string) ([]Entry, error) {
	invocationTerm := ":invocationId"
	queryIn := &dynamodb.QueryInput{
		TableName:                 aws.String(s.table),
		IndexName:                 aws.String(InvocationIndexName),
		KeyConditionExpression:    aws.String(fmt.Sprintf("%s = %s", InvocationIDAttrName, invocationTerm)),
		ExpressionAttributeValues: map[string]types.AttributeValue{invocationTerm: &types.AttributeValueMemberS{Value: invocationID}},
	}
	var entries []Entry
	var errs []error
	paginator := dynamodb.NewQueryPaginator(s.client, queryIn)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("error querying %s for invocation %s: %w", InvocationIndexName, invocationID, err)
		}
		for _, item := range page.Items {
			if entry, err := FromItem(item); err == nil {
				entries = append(entries, *entry)
			} else {
				errs = append(errs, err)
			}
		}
	}
	return entries, errors.Join(errs...)
}
