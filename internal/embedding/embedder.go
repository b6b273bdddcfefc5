package embedding

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/ollama/ollama/api"
	"github.com/openai/openai-go"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

const (
	// DefaultBatchSize balances requests-per-minute vs tokens-per-minute rate limits.
	// OpenAI supports up to 2048 texts per batch, but smaller batches reduce TPM pressure.
	DefaultBatchSize = 500

	// DefaultConcurrency caps in-flight embedding requests during indexing.
	DefaultConcurrency = 4

	// DefaultTimeout bounds one embedding request, retries included.
	DefaultTimeout = 30 * time.Second
)

// ErrService marks a failed embedding call. Callers indexing many chunks log it
// and drop the chunk.
var ErrService = errors.New("embedding service error")

// Provider performs raw embedding requests against a backend.
type Provider interface {
	Name() string
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// Embedder generates embeddings through a Provider. Every call gets a timeout,
// optional client-side pacing and exponential backoff on rate limit errors.
type Embedder struct {
	provider    Provider
	batchSize   int
	concurrency int
	timeout     time.Duration
	limiter     *rate.Limiter
}

// Option configures an Embedder.
type Option func(*Embedder)

// WithBatchSize sets how many texts GenerateEmbeddings sends per request.
func WithBatchSize(n int) Option {
	return func(e *Embedder) {
		if n > 0 {
			e.batchSize = n
		}
	}
}

// WithConcurrency sets the worker count used by EmbedEach.
func WithConcurrency(n int) Option {
	return func(e *Embedder) {
		if n > 0 {
			e.concurrency = n
		}
	}
}

// WithTimeout sets the per-call timeout.
func WithTimeout(d time.Duration) Option {
	return func(e *Embedder) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// WithRateLimit paces outgoing requests to rps per second. Zero disables pacing.
func WithRateLimit(rps float64, burst int) Option {
	return func(e *Embedder) {
		if rps <= 0 {
			e.limiter = rate.NewLimiter(rate.Inf, 0)
			return
		}
		e.limiter = rate.NewLimiter(rate.Limit(rps), max(burst, 1))
	}
}

// NewEmbedder creates a new Embedder for provider.
func NewEmbedder(provider Provider, opts ...Option) *Embedder {
	e := &Embedder{
		provider:    provider,
		batchSize:   DefaultBatchSize,
		concurrency: DefaultConcurrency,
		timeout:     DefaultTimeout,
		limiter:     rate.NewLimiter(rate.Inf, 0),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name returns the provider name.
func (e *Embedder) Name() string { return e.provider.Name() }

// Embed returns the embedding for a single chunk of text.
// Failures wrap ErrService together with the underlying cause.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.embedBatchWithRetry(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// Result is the outcome of embedding one text in EmbedEach.
type Result struct {
	Vector []float32
	Err    error
}

// EmbedEach embeds every text with one request per text, running at most the
// configured number of requests at once. Results are returned in input order
// regardless of completion order.
func (e *Embedder) EmbedEach(ctx context.Context, texts []string) []Result {
	results := make([]Result, len(texts))

	var g errgroup.Group
	g.SetLimit(e.concurrency)
	for i, text := range texts {
		g.Go(func() error {
			vector, err := e.Embed(ctx, text)
			results[i] = Result{Vector: vector, Err: err}
			return nil
		})
	}
	_ = g.Wait()

	return results
}

// GenerateEmbeddings generates embeddings for the given texts in batches.
// Used for query embedding where a single failure fails the whole call.
func (e *Embedder) GenerateEmbeddings(ctx context.Context, texts []string) ([][]float32, error) {
	var allEmbeddings [][]float32

	for i := 0; i < len(texts); i += e.batchSize {
		end := min(i+e.batchSize, len(texts))

		embeddings, err := e.embedBatchWithRetry(ctx, texts[i:end])
		if err != nil {
			return nil, fmt.Errorf("batch %d-%d: %w", i, end, err)
		}
		allEmbeddings = append(allEmbeddings, embeddings...)
	}

	return allEmbeddings, nil
}

// embedBatchWithRetry generates embeddings for a single batch with retry logic.
// Retries with exponential backoff on rate limit errors (HTTP 429).
// Other errors are treated as permanent and fail immediately.
func (e *Embedder) embedBatchWithRetry(ctx context.Context, texts []string) ([][]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	var embeddings [][]float32

	operation := func() error {
		if err := e.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(err)
		}

		vectors, err := e.provider.EmbedTexts(ctx, texts)
		if err != nil {
			if isRateLimitError(err) {
				return err
			}
			return backoff.Permanent(err)
		}
		if len(vectors) != len(texts) {
			return backoff.Permanent(fmt.Errorf("expected %d embeddings, got %d", len(texts), len(vectors)))
		}
		for i, v := range vectors {
			if len(v) == 0 {
				return backoff.Permanent(fmt.Errorf("empty embedding for text %d", i))
			}
		}
		embeddings = vectors
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = e.timeout

	if err := backoff.Retry(operation, backoff.WithContext(b, ctx)); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrService, e.provider.Name(), err)
	}
	return embeddings, nil
}

// isRateLimitError checks if the error is a rate limit error (HTTP 429).
func isRateLimitError(err error) bool {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429
	}
	var statusErr api.StatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode == 429
	}
	return false
}
