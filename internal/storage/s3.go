package storage

import (
	"bytes"
	"context"
	"io"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/pkg/errors"

	"github.com/aaronromeo/mailherald/pkg/base"
)

// S3Config carries the connection details for the S3 backend.
type S3Config struct {
	Endpoint string
	Region   string
	Bucket   string
	Key      string
	// AccessKey and SecretKey are static credentials; empty values fall
	// back to the SDK's default credential chain.
	AccessKey string
	SecretKey string
}

// S3Store persists the session document as a single S3 object.
type S3Store struct {
	client s3iface.S3API
	bucket string
	key    string
}

// NewS3Store creates an S3Store from config.
func NewS3Store(cfg S3Config) (*S3Store, error) {
	if cfg.Bucket == "" || cfg.Key == "" {
		return nil, errors.New("requires bucket and key")
	}

	awsCfg := aws.NewConfig().WithRegion(cfg.Region)
	if cfg.Endpoint != "" {
		awsCfg = awsCfg.WithEndpoint(cfg.Endpoint).WithS3ForcePathStyle(true)
	}
	if cfg.AccessKey != "" {
		awsCfg = awsCfg.WithCredentials(credentials.NewStaticCredentials(cfg.AccessKey, cfg.SecretKey, ""))
	}

	sess, err := session.NewSession(awsCfg)
	if err != nil {
		return nil, errors.Wrap(err, "creating AWS session")
	}

	return &S3Store{client: s3.New(sess), bucket: cfg.Bucket, key: cfg.Key}, nil
}

// NewS3StoreWithClient creates an S3Store around an existing client, for
// tests.
func NewS3StoreWithClient(client s3iface.S3API, bucket, key string) *S3Store {
	return &S3Store{client: client, bucket: bucket, key: key}
}

// Read implements base.Storage.
func (s *S3Store) Read(ctx context.Context) ([]byte, error) {
	out, err := s.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key),
	})
	if err != nil {
		var aerr awserr.Error
		if errors.As(err, &aerr) && aerr.Code() == s3.ErrCodeNoSuchKey {
			return nil, base.ErrNotExist
		}
		return nil, errors.Wrapf(err, "reading s3://%s/%s", s.bucket, s.key)
	}
	defer out.Body.Close() //nolint:errcheck

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, errors.Wrap(err, "reading object body")
	}
	return data, nil
}

// Write implements base.Storage.
func (s *S3Store) Write(ctx context.Context, data []byte) error {
	_, err := s.client.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s.key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	return errors.Wrapf(err, "writing s3://%s/%s", s.bucket, s.key)
}
