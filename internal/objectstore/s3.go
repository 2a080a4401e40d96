package objectstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// S3Config describes an S3-compatible payload store.
type S3Config struct {
	Endpoint  string
	Bucket    string
	AccessKey string
	SecretKey string
	UseSSL    bool
}

// S3 stores payloads in an S3-compatible bucket. Locations are s3:// URLs,
// so reads can address buckets other than the configured write bucket.
type S3 struct {
	client *minio.Client
	bucket string
}

// NewS3 creates an S3 store from the supplied configuration.
func NewS3(cfg S3Config) (*S3, error) {
	if strings.TrimSpace(cfg.Endpoint) == "" {
		return nil, errors.New("objectstore: s3 endpoint is required")
	}
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, errors.New("objectstore: s3 bucket is required")
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("objectstore: create s3 client: %w", err)
	}
	return &S3{client: client, bucket: cfg.Bucket}, nil
}

// Write stores the payload under the configured bucket and returns its
// s3:// location.
func (s *S3) Write(ctx context.Context, key string, payload []byte) (string, error) {
	key = strings.TrimSpace(strings.TrimPrefix(key, "/"))
	if key == "" {
		return "", errors.New("objectstore: key is required")
	}
	_, err := s.client.PutObject(ctx, s.bucket, key,
		bytes.NewReader(payload), int64(len(payload)),
		minio.PutObjectOptions{ContentType: "application/json"})
	if err != nil {
		return "", fmt.Errorf("objectstore: put %s: %w", key, err)
	}
	return "s3://" + s.bucket + "/" + key, nil
}

// Read loads the payload at an s3://bucket/key location.
func (s *S3) Read(ctx context.Context, location string) ([]byte, error) {
	bucket, key, err := splitS3Location(location)
	if err != nil {
		return nil, err
	}
	obj, err := s.client.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("objectstore: get %s: %w", location, err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		var respErr minio.ErrorResponse
		if errors.As(err, &respErr) && respErr.Code == "NoSuchKey" {
			return nil, fmt.Errorf("objectstore: %s: %w", location, ErrNotFound)
		}
		return nil, fmt.Errorf("objectstore: read %s: %w", location, err)
	}
	return data, nil
}

func splitS3Location(location string) (bucket, key string, err error) {
	trimmed := strings.TrimPrefix(location, "s3://")
	if trimmed == location {
		return "", "", fmt.Errorf("objectstore: %q is not an s3 location", location)
	}
	bucket, key, found := strings.Cut(trimmed, "/")
	if !found || bucket == "" || key == "" {
		return "", "", fmt.Errorf("objectstore: malformed s3 location %q", location)
	}
	return bucket, key, nil
}
