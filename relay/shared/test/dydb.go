package test

import (
	"context"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/require"
)

type DynamoDBFixture struct {
	Fixture
	Client *dynamodb.Client
	// Tables is a set of table names
	Tables  map[string]bool
	context context.Context
}

func NewDynamoDBFixture(t *testing.T, awsConfig aws.Config, inputs ...*dynamodb.CreateTableInput) *DynamoDBFixture {
	f := DynamoDBFixture{
		Fixture: Fixture{T: t},
		Client:  dynamodb.NewFromConfig(awsConfig),
		Tables:  map[string]bool{},
		context: context.Background(),
	}
	var waitInputs []dynamodb.DescribeTableInput
	for _, input := range inputs {
		tableName := aws.ToString(input.TableName)
		_, err := f.Client.CreateTable(f.context, input)
		require.NoError(f.T, err, "error creating test table %s", tableName)
		f.Tables[tableName] = true
		waitInputs = append(waitInputs, dynamodb.DescribeTableInput{TableName: input.TableName})
	}
	err := waitForEverything(waitInputs, func(i dynamodb.DescribeTableInput) error {
		return dynamodb.NewTableExistsWaiter(f.Client).Wait(f.context, &i, time.Minute)
	})
	require.NoError(f.T, err, "test table not created")
	return &f
}

func (f *DynamoDBFixture) Scan(ctx context.Context, table string) []map[string]types.AttributeValue {
	paginator := dynamodb.NewScanPaginator(f.Client, &dynamodb.ScanInput{
		TableName:      aws.String(table),
		ConsistentRead: aws.Bool(true),
	})
	var items []map[string]types.AttributeValue
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		require.NoError(f.T, err, "error scanning test table %s", table)
		items = append(items, page.Items...)
	}
	return items
}

func (f *DynamoDBFixture) Teardown() {
	var waitInputs []dynamodb.DescribeTableInput
	for name := range f.Tables {
		input := dynamodb.DeleteTableInput{TableName: aws.String(name)}
		_, err := f.Client.DeleteTable(f.context, &input)
		require.NoError(f.T, err, "error deleting test table %s", name)
		waitInputs = append(waitInputs, dynamodb.DescribeTableInput{TableName: input.TableName})
	}
	err := waitForEverything(waitInputs, func(i dynamodb.DescribeTableInput) error {
		return dynamodb.NewTableNotExistsWaiter(f.Client).Wait(f.context, &i, time.Minute)
	})
	require.NoError(f.T, err, "test table not deleted")
}
