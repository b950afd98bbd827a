package s3

import (
	"context"
	"errors"
	"io"
	"net/http"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/jdillenkofer/fixity/internal/bitstore"
	"github.com/jdillenkofer/fixity/internal/lifecycle"
)

var ErrNoSuchBucket = errors.New("no such bucket")

type s3BitstreamStore struct {
	*lifecycle.ValidatedLifecycle
	client   *s3.Client
	uploader *manager.Uploader
	bucket   string
	prefix   string
}

var _ bitstore.BitstreamStore = (*s3BitstreamStore)(nil)

// NewClient builds a client for an S3 compatible endpoint with static credentials.
// An empty endpoint uses the AWS default endpoint resolution.
func NewClient(ctx context.Context, endpoint string, region string, accessKeyId string, secretAccessKey string, usePathStyle bool) (*s3.Client, error) {
	cfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(accessKeyId, secretAccessKey, "")))
	if err != nil {
		return nil, err
	}
	return s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.UsePathStyle = usePathStyle
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	}), nil
}

func New(client *s3.Client, bucket string, prefix string) (bitstore.BitstreamStore, error) {
	validatedLifecycle, err := lifecycle.NewValidatedLifecycle("S3BitstreamStore")
	if err != nil {
		return nil, err
	}
	return &s3BitstreamStore{
		ValidatedLifecycle: validatedLifecycle,
		client:             client,
		uploader:           manager.NewUploader(client),
		bucket:             bucket,
		prefix:             prefix,
	}, nil
}

func (bs *s3BitstreamStore) Start(ctx context.Context) error {
	err := bs.ValidatedLifecycle.Start(ctx)
	if err != nil {
		return err
	}
	_, err = bs.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(bs.bucket),
	})
	if isNotFound(err) {
		return errors.Join(ErrNoSuchBucket, errors.New(bs.bucket))
	}
	return err
}

func (bs *s3BitstreamStore) objectKey(storageKey string) (string, error) {
	err := bitstore.ValidateStorageKey(storageKey)
	if err != nil {
		return "", err
	}
	if bs.prefix == "" {
		return storageKey, nil
	}
	return path.Join(bs.prefix, storageKey), nil
}

func isNotFound(err error) bool {
	if err == nil {
		return false
	}
	var noSuchKeyError *types.NoSuchKey
	if errors.As(err, &noSuchKeyError) {
		return true
	}
	var notFoundError *types.NotFound
	if errors.As(err, &notFoundError) {
		return true
	}
	var ae smithy.APIError
	if errors.As(err, &ae) {
		switch ae.ErrorCode() {
		case "NoSuchKey", "NotFound", "NoSuchBucket":
			return true
		}
	}
	var re interface{ HTTPStatusCode() int }
	return errors.As(err, &re) && re.HTTPStatusCode() == http.StatusNotFound
}

func (bs *s3BitstreamStore) PutBitstream(ctx context.Context, storageKey string, reader io.Reader) error {
	key, err := bs.objectKey(storageKey)
	if err != nil {
		return err
	}
	_, err = bs.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(bs.bucket),
		Key:    aws.String(key),
		Body:   reader,
	})
	return err
}

func (bs *s3BitstreamStore) OpenForRead(ctx context.Context, storageKey string) (io.ReadCloser, error) {
	key, err := bs.objectKey(storageKey)
	if err != nil {
		return nil, err
	}
	getObjectOutput, err := bs.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bs.bucket),
		Key:    aws.String(key),
	})
	if isNotFound(err) {
		return nil, bitstore.ErrBitstreamNotFound
	}
	if err != nil {
		return nil, err
	}
	return getObjectOutput.Body, nil
}

func (bs *s3BitstreamStore) DeleteBitstream(ctx context.Context, storageKey string) error {
	key, err := bs.objectKey(storageKey)
	if err != nil {
		return err
	}
	_, err = bs.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(bs.bucket),
		Key:    aws.String(key),
	})
	if isNotFound(err) {
		return nil
	}
	return err
}
