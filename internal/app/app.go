// Package app assembles the components described by a config.Config into a
// rag.Service. Both binaries share it.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bull/study-rag-server/internal/answer"
	"github.com/bull/study-rag-server/internal/chunker"
	"github.com/bull/study-rag-server/internal/config"
	"github.com/bull/study-rag-server/internal/embedding"
	"github.com/bull/study-rag-server/internal/indexer"
	"github.com/bull/study-rag-server/internal/markdown"
	"github.com/bull/study-rag-server/internal/rag"
	"github.com/bull/study-rag-server/internal/retrieval"
	"github.com/bull/study-rag-server/internal/storage"
)

// App holds the assembled service and the resources that must be closed.
type App struct {
	Service *rag.Service
	Store   *storage.BlobStore
	// Qdrant is nil when no Qdrant host is configured or it was unreachable.
	Qdrant *storage.QdrantStorage
}

// New builds an App from cfg. Missing model credentials do not fail startup:
// the operations that need them return rag.ErrNotConfigured instead.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}

	store, err := storage.OpenBlobStore(ctx, cfg.Index.BucketURL, seconds(cfg.Index.TimeoutSecs))
	if err != nil {
		return nil, err
	}
	a := &App{Store: store}

	if cfg.QdrantEnabled() {
		q, err := storage.NewQdrantStorage(cfg.Qdrant.Host, cfg.Qdrant.Port, seconds(cfg.Qdrant.TimeoutSecs))
		if err != nil {
			logger.Warn("Qdrant unavailable, continuing without mirror", "host", cfg.Qdrant.Host, "error", err)
		} else {
			a.Qdrant = q
		}
	}

	chunks, err := chunker.New(chunker.WithSize(cfg.Chunker.Size), chunker.WithOverlap(cfg.Chunker.Overlap))
	if err != nil {
		a.Close()
		return nil, err
	}

	svcCfg := rag.Config{
		Loader: store,
		Assembler: answer.NewAssembler(answer.PromptConfig{
			Instructions: cfg.Answer.Instructions,
			MaxWords:     cfg.Answer.MaxWords,
			CitationMode: answer.CitationMode(cfg.Answer.CitationMode),
			NoContext:    cfg.Answer.NoContext,
		}),
		Logger: logger,
	}
	if cfg.Answer.NotesFormat == "markdown" {
		svcCfg.Notes = markdown.NewNormalizer()
	}

	embedder, err := newEmbedder(cfg)
	if err != nil {
		logger.Warn("Embedding backend not configured; indexing and search disabled", "error", err)
	} else {
		builderCfg := indexer.Config{
			Chunker:  chunks,
			Embedder: embedder,
			Writer:   store,
			Policy:   indexer.PersistPolicy(cfg.Index.PersistPolicy),
			Logger:   logger,
		}
		var ranker retrieval.Ranker
		if a.Qdrant != nil {
			builderCfg.Mirror = a.Qdrant
			ranker = retrieval.QdrantRanker{Searcher: a.Qdrant, Fallback: retrieval.CosineRanker{}}
		}
		svcCfg.Builder = indexer.NewBuilder(builderCfg)
		svcCfg.Searcher = retrieval.NewSearcher(store, embedder, ranker,
			retrieval.WithTimeout(seconds(cfg.Index.TimeoutSecs)))
	}

	chat, err := newChat(cfg)
	if err != nil {
		logger.Warn("Chat backend not configured; answering disabled", "error", err)
	} else {
		svcCfg.Generator = answer.NewGenerator(chat, answer.GeneratorConfig{
			Sampling: answer.Sampling{
				Model:            cfg.Chat.Model,
				Temperature:      cfg.Chat.Temperature,
				TopP:             cfg.Chat.TopP,
				FrequencyPenalty: cfg.Chat.FrequencyPenalty,
				PresencePenalty:  cfg.Chat.PresencePenalty,
				MaxTokens:        cfg.Chat.MaxTokens,
			},
			CitationMode: answer.CitationMode(cfg.Answer.CitationMode),
			Timeout:      seconds(cfg.Chat.TimeoutSecs),
			Logger:       logger,
		})
	}

	a.Service = rag.NewService(svcCfg)
	return a, nil
}

// Close releases the store and the Qdrant connection.
func (a *App) Close() error {
	var errs []error
	if a.Qdrant != nil {
		errs = append(errs, a.Qdrant.Close())
	}
	if a.Store != nil {
		errs = append(errs, a.Store.Close())
	}
	return errors.Join(errs...)
}

func newEmbedder(cfg *config.Config) (*embedding.Embedder, error) {
	var provider embedding.Provider
	switch cfg.Embedding.Backend {
	case config.BackendOllama:
		client, err := embedding.NewOllamaClient(cfg.Ollama.Host, cfg.Embedding.Model)
		if err != nil {
			return nil, err
		}
		provider = client
	default:
		client, err := embedding.NewClient(cfg.OpenAI.APIKey, cfg.Embedding.Model, cfg.OpenAI.BaseURL)
		if err != nil {
			return nil, err
		}
		provider = client
	}

	opts := []embedding.Option{
		embedding.WithBatchSize(cfg.Embedding.BatchSize),
		embedding.WithConcurrency(cfg.Embedding.Concurrency),
		embedding.WithTimeout(seconds(cfg.Embedding.TimeoutSecs)),
	}
	if cfg.Embedding.RateLimitRPS > 0 {
		opts = append(opts, embedding.WithRateLimit(cfg.Embedding.RateLimitRPS, cfg.Embedding.RateLimitBurst))
	}
	return embedding.NewEmbedder(provider, opts...), nil
}

func newChat(cfg *config.Config) (answer.ChatCompleter, error) {
	switch cfg.Chat.Backend {
	case config.BackendOllama:
		client, err := embedding.NewOllamaClient(cfg.Ollama.Host, "")
		if err != nil {
			return nil, err
		}
		return answer.NewOllamaChat(client.Client()), nil
	case config.BackendOpenAI:
		// Share the OpenAI client setup with embeddings
		client, err := embedding.NewClient(cfg.OpenAI.APIKey, "", cfg.OpenAI.BaseURL)
		if err != nil {
			return nil, err
		}
		return answer.NewOpenAIChat(client.Client()), nil
	default:
		return nil, fmt.Errorf("unknown chat backend %q", cfg.Chat.Backend)
	}
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}
