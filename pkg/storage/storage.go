package storage

import (
	"context"
	"time"

	"github.com/minio/minio-go/v7"
)

type PresignRequest struct {
	Bucket      string
	Key         string
	ContentType string
	ByteSize    int64
	Checksum    string
	TTL         time.Duration
}

type PresignedTarget struct {
	UploadURL string
	ExpiresAt time.Time
}

// Storage issues short-lived upload targets and removes objects. The
// minio-backed implementation is used in production; tests use Fake.
type Storage interface {
	PresignUpload(ctx context.Context, req PresignRequest) (*PresignedTarget, error)
	DeleteObject(ctx context.Context, bucket, key string) error
}

type minioStorage struct {
	client *minio.Client
}

func NewMinIOStorage(client *minio.Client) Storage {
	return &minioStorage{client: client}
}

func (s *minioStorage) PresignUpload(ctx context.Context, req PresignRequest) (*PresignedTarget, error) {
	ttl := req.TTL
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}

	uploadURL, err := s.client.PresignedPutObject(ctx, req.Bucket, req.Key, ttl)
	if err != nil {
		return nil, err
	}

	return &PresignedTarget{
		UploadURL: uploadURL.String(),
		ExpiresAt: time.Now().UTC().Add(ttl),
	}, nil
}

func (s *minioStorage) DeleteObject(ctx context.Context, bucket, key string) error {
	return s.client.RemoveObject(ctx, bucket, key, minio.RemoveObjectOptions{})
}
