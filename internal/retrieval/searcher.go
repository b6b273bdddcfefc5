package retrieval

import (
	"context"
	"fmt"
	"time"

	"github.com/bull/study-rag-server/internal/storage"
)

// DefaultTopK is the number of chunks returned when a request does not say.
const DefaultTopK = 5

// DefaultTimeout bounds loading the index and ranking it, each on its own.
const DefaultTimeout = 30 * time.Second

// IndexLoader reads a persisted index.
type IndexLoader interface {
	Load(ctx context.Context, path string) (*storage.Index, error)
}

// QueryEmbedder embeds query text.
type QueryEmbedder interface {
	GenerateEmbeddings(ctx context.Context, texts []string) ([][]float32, error)
}

// Searcher loads a topic index, embeds the query and ranks the chunks.
type Searcher struct {
	loader   IndexLoader
	embedder QueryEmbedder
	ranker   Ranker
	timeout  time.Duration
}

// Option configures a Searcher.
type Option func(*Searcher)

// WithTimeout bounds the index load and the ranking step. The query
// embedding is bounded by the embedder.
func WithTimeout(d time.Duration) Option {
	return func(s *Searcher) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// NewSearcher creates a Searcher. A nil ranker means CosineRanker.
func NewSearcher(loader IndexLoader, embedder QueryEmbedder, ranker Ranker, opts ...Option) *Searcher {
	if ranker == nil {
		ranker = CosineRanker{}
	}
	s := &Searcher{loader: loader, embedder: embedder, ranker: ranker, timeout: DefaultTimeout}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Search returns the k best chunks of the subject/topic index for query.
// It returns storage.ErrIndexNotFound when the topic was never indexed.
func (s *Searcher) Search(ctx context.Context, subjectName, topicName, query string, k int) ([]storage.ScoredChunk, error) {
	if k <= 0 {
		k = DefaultTopK
	}

	path, err := storage.IndexPath(subjectName, topicName)
	if err != nil {
		return nil, err
	}

	idx, err := s.load(ctx, path)
	if err != nil {
		return nil, err
	}

	embeddings, err := s.embedder.GenerateEmbeddings(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	rankCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.ranker.TopK(rankCtx, embeddings[0], idx, k)
}

func (s *Searcher) load(ctx context.Context, path string) (*storage.Index, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.loader.Load(ctx, path)
}
