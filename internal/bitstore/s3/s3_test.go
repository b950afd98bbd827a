package s3

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/jdillenkofer/fixity/internal/bitstore"
	testutils "github.com/jdillenkofer/fixity/internal/testing"
	"github.com/stretchr/testify/assert"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const (
	minioUser     = "fixity"
	minioPassword = "fixity-secret"
	bucketName    = "bitstreams"
)

func TestIsNotFound(t *testing.T) {
	testutils.SkipIfIntegration(t)
	assert.False(t, isNotFound(nil))
	assert.False(t, isNotFound(errors.New("connection reset")))
	assert.True(t, isNotFound(&types.NoSuchKey{}))
	assert.True(t, isNotFound(fmt.Errorf("get object: %w", &smithy.GenericAPIError{Code: "NoSuchKey"})))
	assert.False(t, isNotFound(&smithy.GenericAPIError{Code: "AccessDenied"}))
}

func TestObjectKeyUsesPrefix(t *testing.T) {
	testutils.SkipIfIntegration(t)
	store := &s3BitstreamStore{prefix: "fixity/bitstreams"}
	key, err := store.objectKey("01J9Z3ZQ4N6Y8W2K5R7T9V1X3B")
	assert.Nil(t, err)
	assert.Equal(t, "fixity/bitstreams/01J9Z3ZQ4N6Y8W2K5R7T9V1X3B", key)

	_, err = store.objectKey("../other")
	assert.ErrorIs(t, err, bitstore.ErrInvalidStorageKey)
}

func TestS3BitstreamStore(t *testing.T) {
	testutils.SkipIfIntegration(t)
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()
	minioContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "minio/minio:latest",
			ExposedPorts: []string{"9000/tcp"},
			Cmd:          []string{"server", "/data"},
			Env: map[string]string{
				"MINIO_ROOT_USER":     minioUser,
				"MINIO_ROOT_PASSWORD": minioPassword,
			},
			WaitingFor: wait.ForHTTP("/minio/health/live").WithPort("9000/tcp"),
		},
		Started: true,
	})
	testcontainers.CleanupContainer(t, minioContainer)
	assert.Nil(t, err)

	endpoint, err := minioContainer.PortEndpoint(ctx, "9000/tcp", "http")
	assert.Nil(t, err)

	client, err := NewClient(ctx, endpoint, "us-east-1", minioUser, minioPassword, true)
	assert.Nil(t, err)
	_, err = client.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(bucketName)})
	assert.Nil(t, err)

	store, err := New(client, bucketName, "fixity")
	assert.Nil(t, err)
	err = bitstore.Tester(store, []byte("S3BitstreamStore"))
	assert.Nil(t, err)
}
