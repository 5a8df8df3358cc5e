package export

import (
	"bytes"
	"context"
	"fmt"
	"path"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Uploader stores export results in a MinIO or S3-compatible bucket.
type Uploader struct {
	client *minio.Client
	bucket string
	prefix string
}

// NewUploader connects to endpoint with static credentials.
func NewUploader(endpoint, accessKey, secretKey, bucket string, secure bool) (*Uploader, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: secure,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}
	return NewUploaderWithClient(client, bucket, "exports"), nil
}

func NewUploaderWithClient(client *minio.Client, bucket, prefix string) *Uploader {
	return &Uploader{client: client, bucket: bucket, prefix: prefix}
}

// EnsureBucket creates the bucket if it does not exist yet.
func (u *Uploader) EnsureBucket(ctx context.Context) error {
	exists, err := u.client.BucketExists(ctx, u.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", u.bucket, err)
	}
	if exists {
		return nil
	}
	if err := u.client.MakeBucket(ctx, u.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("make bucket %s: %w", u.bucket, err)
	}
	return nil
}

// Upload writes res under the export prefix and returns its object key.
func (u *Uploader) Upload(ctx context.Context, res *Result) (string, error) {
	key := path.Join(u.prefix, res.Filename)
	_, err := u.client.PutObject(ctx, u.bucket, key, bytes.NewReader(res.Data), int64(len(res.Data)), minio.PutObjectOptions{
		ContentType: res.MimeType,
	})
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", key, err)
	}
	return key, nil
}
