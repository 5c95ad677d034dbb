// Package artifact copies a finished failure artifact to S3 compatible object
// storage.
package artifact

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// ErrDisabled is returned by New when no bucket is configured.
var ErrDisabled = errors.New("artifact publication is disabled")

// Publisher stores the file at path and returns its location.
type Publisher interface {
	Publish(ctx context.Context, runID, path string) (string, error)
}

// Config locates the bucket.
type Config struct {
	Endpoint  string
	Bucket    string
	Prefix    string
	AccessKey string
	SecretKey string
	UseSSL    bool
}

type objectPutter interface {
	FPutObject(ctx context.Context, bucketName, objectName, filePath string, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

// MinioPublisher publishes to a MinIO or S3 bucket.
type MinioPublisher struct {
	client objectPutter
	bucket string
	prefix string
}

// New connects a MinioPublisher.
func New(cfg Config) (*MinioPublisher, error) {
	if cfg.Bucket == "" {
		return nil, ErrDisabled
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize object storage client for %s: %w", cfg.Endpoint, err)
	}
	return &MinioPublisher{client: client, bucket: cfg.Bucket, prefix: cfg.Prefix}, nil
}

// ObjectName returns the object key of the artifact at path for runID.
func ObjectName(prefix, runID, path string) string {
	return prefix + runID + "-" + filepath.Base(path)
}

// ContentType returns the media type stored with the artifact at path.
func ContentType(path string) string {
	if strings.EqualFold(filepath.Ext(path), ".ndjson") {
		return "application/x-ndjson"
	}
	return "application/json"
}

// Publish uploads the file at path and returns bucket/object.
func (p *MinioPublisher) Publish(ctx context.Context, runID, path string) (string, error) {
	object := ObjectName(p.prefix, runID, path)
	_, err := p.client.FPutObject(ctx, p.bucket, object, path, minio.PutObjectOptions{
		ContentType: ContentType(path),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload %s to bucket %s: %w", path, p.bucket, err)
	}
	return p.bucket + "/" + object, nil
}

var _ Publisher = (*MinioPublisher)(nil)
