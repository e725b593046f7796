package test

import (
	"context"
	"fmt"
	"log"
	"os"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	awslogging "github.com/aws/smithy-go/logging"
	"github.com/stretchr/testify/require"
)

const (
	MinIOURLKey    = "MINIO_URL"
	DynamoDBURLKey = "DYNAMODB_URL"
)

// AWSEndpoints builds an aws.Config whose clients talk to local stand-ins (MinIO, DynamoDB-local, an httptest SES)
// instead of AWS. Tests that need a stand-in that is not configured in the environment are skipped.
type AWSEndpoints struct {
	t                   testing.TB
	serviceIDToEndpoint map[string]aws.Endpoint
}

func NewAWSEndpoints(t testing.TB) *AWSEndpoints {
	return &AWSEndpoints{
		t:                   t,
		serviceIDToEndpoint: map[string]aws.Endpoint{},
	}
}

func (e *AWSEndpoints) WithMinIO() *AWSEndpoints {
	minioURL := e.envVarOrSkip(MinIOURLKey)
	e.serviceIDToEndpoint[s3.ServiceID] = aws.Endpoint{URL: minioURL, HostnameImmutable: true}
	return e
}

func (e *AWSEndpoints) WithDynamoDB() *AWSEndpoints {
	dynamodbURL := e.envVarOrSkip(DynamoDBURLKey)
	e.serviceIDToEndpoint[dynamodb.ServiceID] = aws.Endpoint{URL: dynamodbURL}
	return e
}

func (e *AWSEndpoints) WithSES(sesURL string) *AWSEndpoints {
	e.serviceIDToEndpoint[ses.ServiceID] = aws.Endpoint{URL: sesURL}
	return e
}

func (e *AWSEndpoints) envVarOrSkip(key string) string {
	value := os.Getenv(key)
	if len(value) == 0 {
		e.t.Skipf("environment variable %q is not set; skipping test that needs it", key)
	}
	return value
}

func (e *AWSEndpoints) Config(ctx context.Context, logRequests bool) aws.Config {
	awsKey := envOrDefault("TEST_AWS_KEY", "test-key")
	awsSecret := envOrDefault("TEST_AWS_SECRET", "test-secret")
	optFns := []func(options *config.LoadOptions) error{
		config.WithRegion("us-east-1"),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(awsKey, awsSecret, "")),
		config.WithEndpointResolverWithOptions(aws.EndpointResolverWithOptionsFunc(func(service, region string, options ...interface{}) (aws.Endpoint, error) {
			if endpoint, ok := e.serviceIDToEndpoint[service]; ok {
				return endpoint, nil
			}
			return aws.Endpoint{}, fmt.Errorf("no test endpoint has been set for AWS serviceID: %s", service)
		})),
	}
	if logRequests {
		awsLogger := awslogging.NewStandardLogger(log.Writer())
		optFns = append(optFns, config.WithLogger(awsLogger), config.WithClientLogMode(aws.LogRequestWithBody))
	}
	awsConfig, err := config.LoadDefaultConfig(ctx, optFns...)
	require.NoError(e.t, err, "error creating AWS config")
	return awsConfig
}

func envOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); len(value) > 0 {
		return value
	}
	return defaultValue
}
