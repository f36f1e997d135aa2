package storage

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Fake is a deterministic, no-network Storage for tests. It hands out
// well-formed targets and records deletions for assertions.
type Fake struct {
	mu          sync.Mutex
	deletedKeys []string
	presigned   int
}

func NewFake() *Fake {
	return &Fake{}
}

func (f *Fake) PresignUpload(_ context.Context, req PresignRequest) (*PresignedTarget, error) {
	f.mu.Lock()
	f.presigned++
	f.mu.Unlock()

	ttl := req.TTL
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}

	uploadURL := fmt.Sprintf("https://fake-storage/%s/%s?token=%s", req.Bucket, url.PathEscape(req.Key), uuid.NewString())
	return &PresignedTarget{
		UploadURL: uploadURL,
		ExpiresAt: time.Now().UTC().Add(ttl),
	}, nil
}

func (f *Fake) DeleteObject(_ context.Context, bucket, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletedKeys = append(f.deletedKeys, fmt.Sprintf("%s/%s", bucket, key))
	return nil
}

// DeletedKeys returns "bucket/key" entries in deletion order.
func (f *Fake) DeletedKeys() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.deletedKeys))
	copy(out, f.deletedKeys)
	return out
}

// PresignCount reports how many upload targets have been issued.
func (f *Fake) PresignCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.presigned
}
