// Package retrieval selects the chunks of a persisted index that best match a query.
package retrieval

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/bull/study-rag-server/internal/storage"
)

// Ranker picks the k chunks of idx closest to query, best first.
type Ranker interface {
	TopK(ctx context.Context, query []float32, idx *storage.Index, k int) ([]storage.ScoredChunk, error)
}

// CosineRanker scores every chunk in memory by cosine similarity.
type CosineRanker struct{}

// TopK implements Ranker. Ties keep index order.
func (CosineRanker) TopK(ctx context.Context, query []float32, idx *storage.Index, k int) ([]storage.ScoredChunk, error) {
	if idx == nil || len(idx.Chunks) == 0 || k <= 0 {
		return nil, nil
	}
	if dim := idx.Dimension(); len(query) != dim {
		return nil, fmt.Errorf("%w: query has %d dimensions, index has %d",
			storage.ErrDimensionMismatch, len(query), dim)
	}

	scored := make([]storage.ScoredChunk, 0, len(idx.Chunks))
	for _, chunk := range idx.Chunks {
		if len(chunk.Embedding) != len(query) {
			continue
		}
		scored = append(scored, storage.ScoredChunk{
			Chunk: chunk,
			Score: cosine(query, chunk.Embedding),
		})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})

	if k < len(scored) {
		scored = scored[:k]
	}
	return scored, nil
}

func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// ChunkSearcher runs a vector query against a server-side mirror of an index.
type ChunkSearcher interface {
	SearchChunks(ctx context.Context, path string, embedding []float32, limit int) ([]storage.ScoredChunk, error)
}

// QdrantRanker delegates ranking to the Qdrant mirror and falls back to
// Fallback when the mirror fails or holds nothing for the index.
type QdrantRanker struct {
	Searcher ChunkSearcher
	Fallback Ranker
}

// TopK implements Ranker.
func (r QdrantRanker) TopK(ctx context.Context, query []float32, idx *storage.Index, k int) ([]storage.ScoredChunk, error) {
	if idx == nil || k <= 0 {
		return nil, nil
	}
	results, err := r.Searcher.SearchChunks(ctx, idx.Path, query, k)
	if err == nil && len(results) > 0 {
		return results, nil
	}
	if r.Fallback == nil {
		return results, err
	}
	return r.Fallback.TopK(ctx, query, idx, k)
}
