package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"gocloud.dev/blob"
	_ "gocloud.dev/blob/fileblob" // file:// buckets
	_ "gocloud.dev/blob/memblob"  // mem:// buckets
	"gocloud.dev/gcerrors"
)

// DefaultTimeout bounds a single index read or write, retries included.
const DefaultTimeout = 30 * time.Second

// BlobStore persists each index as one JSON document in an object bucket.
// Keys are full paths, so a write replaces whatever was stored before.
type BlobStore struct {
	bucket  *blob.Bucket
	timeout time.Duration
}

// OpenBlobStore opens the bucket at url (for example "file:///var/lib/studyrag"
// or "mem://").
func OpenBlobStore(ctx context.Context, url string, timeout time.Duration) (*BlobStore, error) {
	bucket, err := blob.OpenBucket(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("open bucket %s: %w", url, err)
	}
	return NewBlobStore(bucket, timeout), nil
}

// NewBlobStore wraps an already opened bucket.
func NewBlobStore(bucket *blob.Bucket, timeout time.Duration) *BlobStore {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &BlobStore{bucket: bucket, timeout: timeout}
}

// Save serializes chunks as a JSON array and writes it to path.
// Failures are wrapped with ErrWrite.
func (s *BlobStore) Save(ctx context.Context, path string, chunks []Chunk) error {
	data, err := json.Marshal(chunks)
	if err != nil {
		return fmt.Errorf("%w: encode %s: %v", ErrWrite, path, err)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 250 * time.Millisecond
	b.MaxInterval = 5 * time.Second
	b.MaxElapsedTime = 0 // bounded by ctx

	var lastErr error
	operation := func() error {
		err := s.bucket.WriteAll(ctx, path, data, &blob.WriterOptions{
			ContentType: "application/json",
		})
		if err == nil {
			return nil
		}
		lastErr = err
		if ctx.Err() != nil || !isTransient(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	if err := backoff.Retry(operation, backoff.WithContext(b, ctx)); err != nil {
		// Retry reports the context error once the deadline passes; the
		// bucket error is the useful one.
		if lastErr != nil {
			err = lastErr
		}
		return fmt.Errorf("%w: %s: %w", ErrWrite, path, err)
	}
	return nil
}

// isTransient reports whether a bucket error is worth retrying.
func isTransient(err error) bool {
	switch gcerrors.Code(err) {
	case gcerrors.Unknown, gcerrors.Internal, gcerrors.ResourceExhausted, gcerrors.DeadlineExceeded:
		return true
	default:
		return false
	}
}

// Load reads the index stored at path. It returns ErrIndexNotFound when no
// document exists there.
func (s *BlobStore) Load(ctx context.Context, path string) (*Index, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	data, err := s.bucket.ReadAll(ctx, path)
	if err != nil {
		if gcerrors.Code(err) == gcerrors.NotFound {
			return nil, fmt.Errorf("%w: %s", ErrIndexNotFound, path)
		}
		return nil, fmt.Errorf("read index %s: %w", path, err)
	}

	var chunks []Chunk
	if err := json.Unmarshal(data, &chunks); err != nil {
		return nil, fmt.Errorf("decode index %s: %w", path, err)
	}
	return &Index{Path: path, Chunks: chunks}, nil
}

// Health reports whether the bucket can be reached.
func (s *BlobStore) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	ok, err := s.bucket.IsAccessible(ctx)
	if err != nil {
		return fmt.Errorf("bucket health check failed: %w", err)
	}
	if !ok {
		return fmt.Errorf("bucket not accessible")
	}
	return nil
}

// Close releases the bucket.
func (s *BlobStore) Close() error {
	return s.bucket.Close()
}
