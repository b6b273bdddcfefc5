// Package rag exposes indexing, search and answering as one service used by
// the HTTP API, the MCP tools and the CLI.
package rag

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/bull/study-rag-server/internal/answer"
	"github.com/bull/study-rag-server/internal/indexer"
	"github.com/bull/study-rag-server/internal/storage"
)

// IndexBuilder builds and persists a topic index.
type IndexBuilder interface {
	Build(ctx context.Context, req indexer.Request) (*indexer.Result, error)
}

// ChunkSearcher ranks the chunks of a persisted topic index.
type ChunkSearcher interface {
	Search(ctx context.Context, subjectName, topicName, query string, k int) ([]storage.ScoredChunk, error)
}

// AnswerGenerator turns a prompt into a cited answer.
type AnswerGenerator interface {
	Generate(ctx context.Context, prompt answer.Prompt, chunks []answer.ContextChunk) (*answer.Result, error)
}

// IndexLoader reads a persisted topic index.
type IndexLoader interface {
	Load(ctx context.Context, path string) (*storage.Index, error)
}

// NotesNormalizer flattens formatted student notes to plain text.
type NotesNormalizer interface {
	PlainText(source []byte) string
}

// IndexRequest is the body of an indexing call.
type IndexRequest struct {
	SubjectID     string                 `json:"subjectId"`
	TopicID       string                 `json:"topicId"`
	SubjectName   string                 `json:"subjectName"`
	TopicName     string                 `json:"topicName"`
	ResourceTexts []indexer.ResourceText `json:"resourceTexts"`
}

// IndexResponse reports a completed indexing call.
type IndexResponse struct {
	Success   bool   `json:"success"`
	Chunks    int    `json:"chunks"`
	Path      string `json:"path"`
	Message   string `json:"message"`
	Persisted bool   `json:"persisted"`
}

// AnswerRequest is the body of an answering call.
type AnswerRequest struct {
	SubjectID    string                `json:"subjectId"`
	TopicID      string                `json:"topicId"`
	Query        string                `json:"query"`
	TopChunks    []answer.ContextChunk `json:"topChunks"`
	ExtraContext string                `json:"extraContext,omitempty"`
}

// SearchRequest asks for the best chunks of a topic index.
type SearchRequest struct {
	SubjectName string `json:"subjectName"`
	TopicName   string `json:"topicName"`
	Query       string `json:"query"`
	TopK        int    `json:"topK,omitempty"`
}

// SearchHit is one ranked chunk.
type SearchHit struct {
	Text   string  `json:"text"`
	Source string  `json:"source"`
	URL    string  `json:"url,omitempty"`
	Ord    int     `json:"ord"`
	Score  float64 `json:"score"`
}

// SearchResponse lists ranked chunks, best first.
type SearchResponse struct {
	Chunks []SearchHit `json:"chunks"`
}

// AskRequest searches a topic and answers from the results in one call.
type AskRequest struct {
	SubjectName  string
	TopicName    string
	Query        string
	TopK         int
	ExtraContext string
}

// IndexStatus describes a persisted topic index.
type IndexStatus struct {
	Path      string
	Found     bool
	Chunks    int
	Dimension int
	Sources   []string
}

// Service wires the indexing and answering components. Any of them may be
// nil, in which case the operations that need it return ErrNotConfigured.
type Service struct {
	builder   IndexBuilder
	searcher  ChunkSearcher
	loader    IndexLoader
	assembler *answer.Assembler
	generator AnswerGenerator
	notes     NotesNormalizer
	logger    *slog.Logger
}

// Config holds Service dependencies.
type Config struct {
	Builder   IndexBuilder
	Searcher  ChunkSearcher
	Loader    IndexLoader
	Assembler *answer.Assembler
	Generator AnswerGenerator
	// Notes, when set, normalizes extraContext before it reaches the prompt.
	Notes  NotesNormalizer
	Logger *slog.Logger
}

// NewService creates a Service from cfg.
func NewService(cfg Config) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	assembler := cfg.Assembler
	if assembler == nil {
		assembler = answer.NewAssembler(answer.PromptConfig{})
	}
	return &Service{
		builder:   cfg.Builder,
		searcher:  cfg.Searcher,
		loader:    cfg.Loader,
		assembler: assembler,
		generator: cfg.Generator,
		notes:     cfg.Notes,
		logger:    logger,
	}
}

// Index chunks, embeds and stores the resources of one topic.
func (s *Service) Index(ctx context.Context, req IndexRequest) (*IndexResponse, error) {
	if s.builder == nil {
		return nil, fmt.Errorf("%w: index builder", ErrNotConfigured)
	}

	result, err := s.builder.Build(ctx, indexer.Request{
		SubjectID:   req.SubjectID,
		TopicID:     req.TopicID,
		SubjectName: req.SubjectName,
		TopicName:   req.TopicName,
		Resources:   req.ResourceTexts,
	})
	if err != nil {
		return nil, err
	}

	message := fmt.Sprintf("Indexed %d chunks from %d resources", result.ChunkCount, result.Resources)
	if !result.Persisted {
		message += " (index was not persisted)"
	}

	return &IndexResponse{
		Success:   true,
		Chunks:    result.ChunkCount,
		Path:      result.Path,
		Message:   message,
		Persisted: result.Persisted,
	}, nil
}

// Answer builds a prompt from the supplied chunks and notes and asks the
// chat model.
func (s *Service) Answer(ctx context.Context, req AnswerRequest) (*answer.Result, error) {
	if strings.TrimSpace(req.Query) == "" {
		return nil, fmt.Errorf("%w: query", ErrValidation)
	}
	if s.generator == nil {
		return nil, fmt.Errorf("%w: answer generator", ErrNotConfigured)
	}

	extra := req.ExtraContext
	if s.notes != nil && strings.TrimSpace(extra) != "" {
		extra = s.notes.PlainText([]byte(extra))
	}

	prompt := s.assembler.Assemble(req.TopChunks, extra, req.Query)
	s.logger.Debug("Answering", "subject_id", req.SubjectID, "topic_id", req.TopicID, "chunks", len(req.TopChunks))

	return s.generator.Generate(ctx, prompt, req.TopChunks)
}

// Search ranks the chunks of a persisted topic index against the query. It
// returns storage.ErrIndexNotFound when the topic was never indexed.
func (s *Service) Search(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	if strings.TrimSpace(req.Query) == "" {
		return nil, fmt.Errorf("%w: query", ErrValidation)
	}
	if _, err := storage.IndexPath(req.SubjectName, req.TopicName); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if s.searcher == nil {
		return nil, fmt.Errorf("%w: searcher", ErrNotConfigured)
	}

	scored, err := s.searcher.Search(ctx, req.SubjectName, req.TopicName, req.Query, req.TopK)
	if err != nil {
		return nil, err
	}

	hits := make([]SearchHit, 0, len(scored))
	for _, sc := range scored {
		hits = append(hits, SearchHit{
			Text:   sc.Chunk.Text,
			Source: sc.Chunk.SourceName,
			URL:    sc.Chunk.SourceURL,
			Ord:    sc.Chunk.Ord,
			Score:  sc.Score,
		})
	}
	return &SearchResponse{Chunks: hits}, nil
}

// Ask searches the topic index and answers from the best chunks.
func (s *Service) Ask(ctx context.Context, req AskRequest) (*answer.Result, error) {
	found, err := s.Search(ctx, SearchRequest{
		SubjectName: req.SubjectName,
		TopicName:   req.TopicName,
		Query:       req.Query,
		TopK:        req.TopK,
	})
	if err != nil {
		return nil, err
	}

	chunks := make([]answer.ContextChunk, 0, len(found.Chunks))
	for _, hit := range found.Chunks {
		chunks = append(chunks, answer.ContextChunk{Text: hit.Text, Source: hit.Source, URL: hit.URL})
	}

	return s.Answer(ctx, AnswerRequest{
		Query:        req.Query,
		TopChunks:    chunks,
		ExtraContext: req.ExtraContext,
	})
}

// Status reports whether a topic index exists and what it contains. A
// missing index is not an error.
func (s *Service) Status(ctx context.Context, subjectName, topicName string) (*IndexStatus, error) {
	if s.loader == nil {
		return nil, fmt.Errorf("%w: index loader", ErrNotConfigured)
	}
	path, err := storage.IndexPath(subjectName, topicName)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	idx, err := s.loader.Load(ctx, path)
	if errors.Is(err, storage.ErrIndexNotFound) {
		return &IndexStatus{Path: path, Sources: []string{}}, nil
	}
	if err != nil {
		return nil, err
	}

	status := &IndexStatus{
		Path:      path,
		Found:     true,
		Chunks:    len(idx.Chunks),
		Dimension: idx.Dimension(),
		Sources:   []string{},
	}
	seen := make(map[string]bool)
	for _, c := range idx.Chunks {
		if !seen[c.SourceName] {
			seen[c.SourceName] = true
			status.Sources = append(status.Sources, c.SourceName)
		}
	}
	return status, nil
}
