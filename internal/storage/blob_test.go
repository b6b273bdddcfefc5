package storage

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocloud.dev/blob"
	"gocloud.dev/blob/driver"
	"gocloud.dev/blob/memblob"
	"gocloud.dev/gcerrors"
)

func sampleChunks() []Chunk {
	return []Chunk{
		{ID: "chunk-0", Text: "first", Embedding: []float32{0.1, 0.2}, SourceName: "a.txt", Ord: 0},
		{ID: "chunk-1", Text: "second", Embedding: []float32{0.3, 0.4}, SourceName: "b.txt", Ord: 1},
	}
}

func TestBlobStore_SaveLoadRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewBlobStore(memblob.OpenBucket(nil), time.Second)
	defer store.Close()

	require.NoError(t, store.Save(ctx, "indices/math/algebra.json", sampleChunks()))

	idx, err := store.Load(ctx, "indices/math/algebra.json")
	require.NoError(t, err)
	assert.Equal(t, "indices/math/algebra.json", idx.Path)
	assert.Equal(t, sampleChunks(), idx.Chunks)
	assert.Equal(t, 2, idx.Dimension())
}

func TestBlobStore_PersistedFormat(t *testing.T) {
	ctx := context.Background()
	bucket := memblob.OpenBucket(nil)
	store := NewBlobStore(bucket, time.Second)
	defer store.Close()

	require.NoError(t, store.Save(ctx, "indices/s/t.json", sampleChunks()[:1]))

	data, err := bucket.ReadAll(ctx, "indices/s/t.json")
	require.NoError(t, err)

	var raw []map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	require.Len(t, raw, 1)
	assert.Equal(t, "chunk-0", raw[0]["id"])
	assert.Equal(t, "first", raw[0]["text"])
	assert.Equal(t, "a.txt", raw[0]["sourceName"])
	assert.EqualValues(t, 0, raw[0]["ord"])
	assert.Len(t, raw[0]["embedding"], 2)
}

func TestBlobStore_SaveReplaces(t *testing.T) {
	ctx := context.Background()
	store := NewBlobStore(memblob.OpenBucket(nil), time.Second)
	defer store.Close()

	require.NoError(t, store.Save(ctx, "indices/s/t.json", sampleChunks()))
	require.NoError(t, store.Save(ctx, "indices/s/t.json", sampleChunks()[1:]))

	idx, err := store.Load(ctx, "indices/s/t.json")
	require.NoError(t, err)
	require.Len(t, idx.Chunks, 1)
	assert.Equal(t, "second", idx.Chunks[0].Text)
}

func TestBlobStore_LoadMissing(t *testing.T) {
	store := NewBlobStore(memblob.OpenBucket(nil), time.Second)
	defer store.Close()

	_, err := store.Load(context.Background(), "indices/none/none.json")
	assert.ErrorIs(t, err, ErrIndexNotFound)
}

func TestBlobStore_SaveFailsFastOnPermanentError(t *testing.T) {
	store := NewBlobStore(memblob.OpenBucket(nil), 5*time.Second)
	require.NoError(t, store.Close())

	start := time.Now()
	err := store.Save(context.Background(), "indices/s/t.json", sampleChunks())

	assert.Less(t, time.Since(start), time.Second)
	require.ErrorIs(t, err, ErrWrite)
	assert.Equal(t, gcerrors.FailedPrecondition, gcerrors.Code(err))
	assert.Contains(t, err.Error(), "closed")
	assert.NotContains(t, err.Error(), "deadline exceeded")
}

// stalledBucket is a bucket driver whose reads and deletes block until the
// caller gives up, or fail with code when set.
type stalledBucket struct {
	driver.Bucket
	code gcerrors.ErrorCode
}

func (b stalledBucket) NewRangeReader(ctx context.Context, key string, offset, length int64, opts *driver.ReaderOptions) (driver.Reader, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (b stalledBucket) Delete(ctx context.Context, key string) error {
	return errors.New("backend failure")
}

func (b stalledBucket) ErrorCode(error) gcerrors.ErrorCode { return b.code }

func (b stalledBucket) Close() error { return nil }

func TestBlobStore_LoadTimesOut(t *testing.T) {
	store := NewBlobStore(blob.NewBucket(stalledBucket{}), 50*time.Millisecond)
	defer store.Close()

	start := time.Now()
	_, err := store.Load(context.Background(), "indices/s/t.json")

	assert.Less(t, time.Since(start), 2*time.Second)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.NotErrorIs(t, err, ErrIndexNotFound)
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		code gcerrors.ErrorCode
		want bool
	}{
		{gcerrors.Unknown, true},
		{gcerrors.Internal, true},
		{gcerrors.ResourceExhausted, true},
		{gcerrors.PermissionDenied, false},
		{gcerrors.InvalidArgument, false},
		{gcerrors.NotFound, false},
	}

	for _, tt := range tests {
		t.Run(tt.code.String(), func(t *testing.T) {
			bucket := blob.NewBucket(stalledBucket{code: tt.code})
			err := bucket.Delete(context.Background(), "k")
			require.Error(t, err)
			assert.Equal(t, tt.code, gcerrors.Code(err))
			assert.Equal(t, tt.want, isTransient(err))
		})
	}
}

func TestBlobStore_Health(t *testing.T) {
	store := NewBlobStore(memblob.OpenBucket(nil), time.Second)
	defer store.Close()

	assert.NoError(t, store.Health(context.Background()))
}
