// Package indexer turns study resources into a persisted per-topic chunk index.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/bull/study-rag-server/internal/chunker"
	"github.com/bull/study-rag-server/internal/embedding"
	"github.com/bull/study-rag-server/internal/storage"
)

// PersistPolicy decides what a failed index write means for the request.
type PersistPolicy string

const (
	// PersistSoft logs write failures and still reports the build as successful.
	PersistSoft PersistPolicy = "soft"

	// PersistStrict fails the build when the index cannot be written.
	PersistStrict PersistPolicy = "strict"
)

// ResourceText is one decoded study resource.
type ResourceText struct {
	Name string `json:"name"`
	Text string `json:"text"`
	URL  string `json:"url,omitempty"`
}

// Request describes one indexing run for a subject/topic pair.
type Request struct {
	SubjectID   string
	TopicID     string
	SubjectName string
	TopicName   string
	Resources   []ResourceText
}

// Result contains statistics about an indexing run.
type Result struct {
	ChunkCount    int
	Resources     int // Resources that contributed at least one chunk
	Path          string
	Persisted     bool
	PersistError  string
	Mirrored      bool
	SkippedChunks int
	Failed        []FailedResource
	Duration      time.Duration
}

// FailedResource represents a resource that failed to index.
type FailedResource struct {
	Name   string
	Reason string
}

// Embedder embeds many texts, reporting per-text failures in input order.
type Embedder interface {
	EmbedEach(ctx context.Context, texts []string) []embedding.Result
}

// IndexWriter persists a full index at path, replacing any previous one.
type IndexWriter interface {
	Save(ctx context.Context, path string, chunks []storage.Chunk) error
}

// Mirror receives a copy of every persisted index, e.g. a vector database.
type Mirror interface {
	ReplaceIndex(ctx context.Context, path string, chunks []storage.Chunk) error
}

// Builder orchestrates chunking, embedding and persistence for one topic.
type Builder struct {
	chunker  *chunker.Chunker
	embedder Embedder
	writer   IndexWriter
	mirror   Mirror
	policy   PersistPolicy
	logger   *slog.Logger
}

// Config holds Builder dependencies. Mirror is optional.
type Config struct {
	Chunker  *chunker.Chunker
	Embedder Embedder
	Writer   IndexWriter
	Mirror   Mirror
	Policy   PersistPolicy
	Logger   *slog.Logger
}

// NewBuilder creates a Builder from cfg.
func NewBuilder(cfg Config) *Builder {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	policy := cfg.Policy
	if policy != PersistStrict {
		policy = PersistSoft
	}
	return &Builder{
		chunker:  cfg.Chunker,
		embedder: cfg.Embedder,
		writer:   cfg.Writer,
		mirror:   cfg.Mirror,
		policy:   policy,
		logger:   logger,
	}
}

// pendingChunk is a chunk that has been embedded but not yet given an ord.
type pendingChunk struct {
	text   string
	vector []float32
}

// Build chunks and embeds every resource in order and writes the resulting
// index. Chunk ords are contiguous from 0 over the chunks that survive, in
// (resource, chunk) order.
func (b *Builder) Build(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()

	if strings.TrimSpace(req.SubjectName) == "" || strings.TrimSpace(req.TopicName) == "" || len(req.Resources) == 0 {
		return nil, ErrValidation
	}
	path, err := storage.IndexPath(req.SubjectName, req.TopicName)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	logger := b.logger.With("subject_id", req.SubjectID, "topic_id", req.TopicID, "path", path)
	logger.Info("Starting indexing", "resources", len(req.Resources))

	result := &Result{Path: path}
	var chunks []storage.Chunk
	dimension := 0

	for _, res := range req.Resources {
		if res.Text == "" {
			logger.Debug("Skipping empty resource", "resource", res.Name)
			continue
		}

		pending, skipped, err := b.processResource(ctx, logger, res)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			logger.Warn("Failed to process resource", "resource", res.Name, "error", err)
			result.Failed = append(result.Failed, FailedResource{Name: res.Name, Reason: err.Error()})
			continue // One bad resource never aborts the batch
		}
		result.SkippedChunks += skipped

		before := len(chunks)
		for _, p := range pending {
			if dimension == 0 {
				dimension = len(p.vector)
			}
			if len(p.vector) != dimension {
				logger.Warn("Dropping chunk with mismatched embedding dimension",
					"resource", res.Name, "got", len(p.vector), "want", dimension)
				result.SkippedChunks++
				continue
			}
			ord := len(chunks)
			chunks = append(chunks, storage.Chunk{
				ID:         fmt.Sprintf("chunk-%d", ord),
				Text:       p.text,
				Embedding:  p.vector,
				SourceName: res.Name,
				SourceURL:  res.URL,
				Ord:        ord,
			})
		}
		if len(chunks) > before {
			result.Resources++
		}
	}

	if len(chunks) == 0 {
		logger.Warn("No chunks produced", "failed", len(result.Failed))
		return nil, ErrNoContent
	}
	result.ChunkCount = len(chunks)

	if err := b.writer.Save(ctx, path, chunks); err != nil {
		if b.policy == PersistStrict {
			return nil, err
		}
		logger.Error("Failed to persist index, continuing", "error", err)
		result.PersistError = err.Error()
	} else {
		result.Persisted = true
		b.mirrorIndex(ctx, logger, path, chunks, result)
	}

	result.Duration = time.Since(start)
	logger.Info("Indexing complete",
		"chunks", result.ChunkCount,
		"skipped", result.SkippedChunks,
		"failed", len(result.Failed),
		"persisted", result.Persisted,
		"duration", result.Duration,
	)

	return result, nil
}

// processResource chunks and embeds one resource. Chunks whose embedding call
// failed are dropped and counted; any other failure fails the whole resource.
func (b *Builder) processResource(ctx context.Context, logger *slog.Logger, res ResourceText) (pending []pendingChunk, skipped int, err error) {
	defer func() {
		if r := recover(); r != nil {
			pending, skipped, err = nil, 0, fmt.Errorf("panic while processing: %v", r)
		}
	}()

	pieces := b.chunker.Chunk(res.Text)
	logger.Debug("Chunked resource", "resource", res.Name, "chunks", len(pieces))
	if len(pieces) == 0 {
		return nil, 0, nil
	}

	results := b.embedder.EmbedEach(ctx, pieces)
	if len(results) != len(pieces) {
		return nil, 0, fmt.Errorf("embedder returned %d results for %d chunks", len(results), len(pieces))
	}

	pending = make([]pendingChunk, 0, len(pieces))
	for i, r := range results {
		if r.Err != nil {
			if ctx.Err() != nil {
				return nil, 0, ctx.Err()
			}
			if errors.Is(r.Err, embedding.ErrService) {
				logger.Warn("Embedding failed, skipping chunk", "resource", res.Name, "chunk", i, "error", r.Err)
				skipped++
				continue
			}
			return nil, 0, fmt.Errorf("chunk %d: %w", i, r.Err)
		}
		pending = append(pending, pendingChunk{text: pieces[i], vector: r.Vector})
	}

	return pending, skipped, nil
}

// mirrorIndex copies the persisted index to the optional mirror. Mirror
// failures never fail the build.
func (b *Builder) mirrorIndex(ctx context.Context, logger *slog.Logger, path string, chunks []storage.Chunk, result *Result) {
	if b.mirror == nil {
		return
	}
	if err := b.mirror.ReplaceIndex(ctx, path, chunks); err != nil {
		logger.Warn("Failed to mirror index", "error", err)
		return
	}
	result.Mirrored = true
}
