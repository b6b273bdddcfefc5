package embedding

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ollama/ollama/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeProvider returns the text length as a one-value vector.
type fakeProvider struct {
	mu        sync.Mutex
	calls     int
	failOn    string
	rateLimit int // number of leading calls answered with 429
	inFlight  atomic.Int32
	maxSeen   atomic.Int32
	delay     time.Duration
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		seen := f.maxSeen.Load()
		if n <= seen || f.maxSeen.CompareAndSwap(seen, n) {
			break
		}
	}

	f.mu.Lock()
	f.calls++
	call := f.calls
	f.mu.Unlock()

	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if call <= f.rateLimit {
		return nil, api.StatusError{StatusCode: 429, Status: "429 Too Many Requests"}
	}

	out := make([][]float32, len(texts))
	for i, text := range texts {
		if f.failOn != "" && strings.Contains(text, f.failOn) {
			return nil, errors.New("backend rejected input")
		}
		out[i] = []float32{float32(len(text))}
	}
	return out, nil
}

func TestEmbed(t *testing.T) {
	e := NewEmbedder(&fakeProvider{})

	vector, err := e.Embed(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, []float32{5}, vector)
}

func TestEmbed_FailureWrapsErrService(t *testing.T) {
	e := NewEmbedder(&fakeProvider{failOn: "bad"})

	_, err := e.Embed(context.Background(), "bad input")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrService)
	assert.Contains(t, err.Error(), "backend rejected input")
}

func TestEmbed_RetriesRateLimit(t *testing.T) {
	provider := &fakeProvider{rateLimit: 2}
	e := NewEmbedder(provider, WithTimeout(10*time.Second))

	vector, err := e.Embed(context.Background(), "abc")
	require.NoError(t, err)
	assert.Equal(t, []float32{3}, vector)
	assert.Equal(t, 3, provider.calls)
}

func TestEmbed_PermanentErrorNotRetried(t *testing.T) {
	provider := &fakeProvider{failOn: "x"}
	e := NewEmbedder(provider)

	_, err := e.Embed(context.Background(), "x")
	require.Error(t, err)
	assert.Equal(t, 1, provider.calls)
}

func TestEmbed_Timeout(t *testing.T) {
	provider := &fakeProvider{delay: time.Second}
	e := NewEmbedder(provider, WithTimeout(20*time.Millisecond))

	_, err := e.Embed(context.Background(), "slow")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrService)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestEmbedEach_PreservesOrderAndIsolatesFailures(t *testing.T) {
	provider := &fakeProvider{failOn: "bad"}
	e := NewEmbedder(provider, WithConcurrency(3))

	texts := []string{"a", "bb", "bad", "dddd", "eeeee"}
	results := e.EmbedEach(context.Background(), texts)

	require.Len(t, results, len(texts))
	for i, text := range texts {
		if text == "bad" {
			assert.ErrorIs(t, results[i].Err, ErrService)
			assert.Nil(t, results[i].Vector)
			continue
		}
		require.NoError(t, results[i].Err)
		assert.Equal(t, []float32{float32(len(text))}, results[i].Vector)
	}
}

func TestEmbedEach_BoundsConcurrency(t *testing.T) {
	provider := &fakeProvider{delay: 10 * time.Millisecond}
	e := NewEmbedder(provider, WithConcurrency(2))

	texts := make([]string, 10)
	for i := range texts {
		texts[i] = "t"
	}
	results := e.EmbedEach(context.Background(), texts)

	for _, r := range results {
		require.NoError(t, r.Err)
	}
	assert.LessOrEqual(t, provider.maxSeen.Load(), int32(2))
}

func TestGenerateEmbeddings_Batches(t *testing.T) {
	provider := &fakeProvider{}
	e := NewEmbedder(provider, WithBatchSize(2))

	vectors, err := e.GenerateEmbeddings(context.Background(), []string{"a", "bb", "ccc"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{1}, {2}, {3}}, vectors)
	assert.Equal(t, 2, provider.calls)
}

func TestRateLimitDetection(t *testing.T) {
	assert.True(t, isRateLimitError(api.StatusError{StatusCode: 429}))
	assert.False(t, isRateLimitError(api.StatusError{StatusCode: 500}))
	assert.False(t, isRateLimitError(errors.New("plain")))
}

func TestToFloat32(t *testing.T) {
	assert.Equal(t, []float32{0.5, -1}, toFloat32([]float64{0.5, -1}))
}
