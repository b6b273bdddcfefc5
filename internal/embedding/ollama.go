package embedding

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/ollama/ollama/api"
	"github.com/ollama/ollama/envconfig"
)

// DefaultOllamaModel is the embedding model requested from Ollama.
const DefaultOllamaModel = "nomic-embed-text"

// OllamaClient generates embeddings with a local Ollama server.
type OllamaClient struct {
	client *api.Client
	model  string
}

// NewOllamaClient creates an Ollama embedding client. An empty host falls
// back to OLLAMA_HOST handling in the Ollama library.
func NewOllamaClient(host, model string) (*OllamaClient, error) {
	hostURL := envconfig.Host()
	if host != "" {
		parsed, err := url.Parse(host)
		if err != nil {
			return nil, fmt.Errorf("parse ollama host %q: %w", host, err)
		}
		hostURL = parsed
	}
	if model == "" {
		model = DefaultOllamaModel
	}

	return &OllamaClient{
		client: api.NewClient(hostURL, http.DefaultClient),
		model:  model,
	}, nil
}

// Name identifies the provider in logs.
func (o *OllamaClient) Name() string { return "ollama:" + o.model }

// EmbedTexts embeds each text with its own request.
func (o *OllamaClient) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	embeddings := make([][]float32, len(texts))
	for i, text := range texts {
		resp, err := o.client.Embeddings(ctx, &api.EmbeddingRequest{
			Model:  o.model,
			Prompt: text,
		})
		if err != nil {
			return nil, err
		}
		if len(resp.Embedding) == 0 {
			return nil, fmt.Errorf("ollama returned an empty embedding")
		}
		embeddings[i] = toFloat32(resp.Embedding)
	}
	return embeddings, nil
}

// Client returns the underlying Ollama client for use in other packages (e.g., answer generation).
func (o *OllamaClient) Client() *api.Client {
	return o.client
}
