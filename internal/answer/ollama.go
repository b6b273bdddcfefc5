package answer

import (
	"context"
	"strings"

	"github.com/ollama/ollama/api"
)

// OllamaChat completes chat requests with a local Ollama server.
type OllamaChat struct {
	client *api.Client
}

// NewOllamaChat wraps an Ollama API client.
func NewOllamaChat(client *api.Client) *OllamaChat {
	return &OllamaChat{client: client}
}

// Complete implements ChatCompleter. The reply is collected without streaming.
func (c *OllamaChat) Complete(ctx context.Context, req ChatRequest) (*Completion, error) {
	s := req.Sampling
	stream := false

	var content strings.Builder
	var usage Usage
	err := c.client.Chat(ctx, &api.ChatRequest{
		Model: s.Model,
		Messages: []api.Message{
			{Role: "system", Content: req.System},
			{Role: "user", Content: req.User},
		},
		Stream: &stream,
		Options: map[string]any{
			"temperature":       s.Temperature,
			"top_p":             s.TopP,
			"frequency_penalty": s.FrequencyPenalty,
			"presence_penalty":  s.PresencePenalty,
			"num_predict":       s.MaxTokens,
		},
	}, func(resp api.ChatResponse) error {
		content.WriteString(resp.Message.Content)
		if resp.Done {
			usage = Usage{
				PromptTokens:     resp.PromptEvalCount,
				CompletionTokens: resp.EvalCount,
				TotalTokens:      resp.PromptEvalCount + resp.EvalCount,
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &Completion{Content: content.String(), Usage: usage}, nil
}
