package test

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/require"
)

type S3Location struct {
	Bucket string
	Key    string
}

type S3Fixture struct {
	Fixture
	Client *s3.Client
	// Buckets is a set of bucket names
	Buckets map[string]bool
	context context.Context
}

func NewS3Fixture(t *testing.T, client *s3.Client, inputs ...*s3.CreateBucketInput) *S3Fixture {
	f := S3Fixture{
		Fixture: Fixture{T: t},
		Client:  client,
		Buckets: map[string]bool{},
		context: context.Background(),
	}
	var waitInputs []s3.HeadBucketInput
	for _, input := range inputs {
		bucketName := aws.ToString(input.Bucket)
		_, err := f.Client.CreateBucket(f.context, input)
		require.NoError(f.T, err, "error creating test bucket %s", bucketName)
		f.Buckets[bucketName] = true
		waitInputs = append(waitInputs, s3.HeadBucketInput{Bucket: aws.String(bucketName)})
	}
	err := waitForEverything(waitInputs, func(s s3.HeadBucketInput) error {
		return s3.NewBucketExistsWaiter(f.Client).Wait(f.context, &s, time.Minute)
	})
	require.NoError(f.T, err, "test bucket not created")
	return &f
}

func (f *S3Fixture) WithObjects(objectInputs ...*s3.PutObjectInput) (*S3Fixture, map[S3Location]*s3.PutObjectOutput) {
	var waitInputs []s3.HeadObjectInput
	putOutputs := map[S3Location]*s3.PutObjectOutput{}
	for _, input := range objectInputs {
		output, err := f.Client.PutObject(f.context, input)
		require.NoError(f.T, err, "error putting test object s3://%s/%s", aws.ToString(input.Bucket), aws.ToString(input.Key))
		putOutputs[S3Location{Bucket: aws.ToString(input.Bucket), Key: aws.ToString(input.Key)}] = output
		waitInputs = append(waitInputs, s3.HeadObjectInput{Bucket: input.Bucket, Key: input.Key})
	}
	err := waitForEverything(waitInputs, func(i s3.HeadObjectInput) error {
		return s3.NewObjectExistsWaiter(f.Client).Wait(f.context, &i, time.Minute)
	})
	require.NoError(f.T, err, "test object not created")
	return f, putOutputs
}

func (f *S3Fixture) ObjectExists(bucket, key string) bool {
	_, err := f.Client.HeadObject(f.context, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err == nil {
		return true
	}
	var notFound *types.NotFound
	require.True(f.T, errors.As(err, &notFound), "unexpected error from HEAD s3://%s/%s: %v", bucket, key, err)
	return false
}

func (f *S3Fixture) ObjectContent(bucket, key string) string {
	out, err := f.Client.GetObject(f.context, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	require.NoError(f.T, err, "error getting s3://%s/%s", bucket, key)
	defer out.Body.Close()
	content, err := io.ReadAll(out.Body)
	require.NoError(f.T, err)
	return string(content)
}

// Teardown empties and deletes every bucket the fixture created.
func (f *S3Fixture) Teardown() {
	var waitInputs []s3.HeadBucketInput
	for name := range f.Buckets {
		paginator := s3.NewListObjectsV2Paginator(f.Client, &s3.ListObjectsV2Input{Bucket: aws.String(name)})
		for paginator.HasMorePages() {
			page, err := paginator.NextPage(f.context)
			require.NoError(f.T, err, "error listing test objects in %s", name)
			if len(page.Contents) == 0 {
				continue
			}
			objectIds := make([]types.ObjectIdentifier, len(page.Contents))
			for i, obj := range page.Contents {
				objectIds[i] = types.ObjectIdentifier{Key: obj.Key}
			}
			deleteOut, err := f.Client.DeleteObjects(f.context, &s3.DeleteObjectsInput{
				Bucket: aws.String(name),
				Delete: &types.Delete{Objects: objectIds},
			})
			require.NoError(f.T, err, "error deleting test objects in %s", name)
			require.Empty(f.T, deleteOut.Errors, "errors deleting test objects in %s", name)
		}
		_, err := f.Client.DeleteBucket(f.context, &s3.DeleteBucketInput{Bucket: aws.String(name)})
		require.NoError(f.T, err, "error deleting test bucket %s", name)
		waitInputs = append(waitInputs, s3.HeadBucketInput{Bucket: aws.String(name)})
	}
	err := waitForEverything(waitInputs, func(i s3.HeadBucketInput) error {
		return s3.NewBucketNotExistsWaiter(f.Client).Wait(f.context, &i, time.Minute)
	})
	require.NoError(f.T, err, "test bucket not deleted")
}
