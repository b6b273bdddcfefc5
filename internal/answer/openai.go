package answer

import (
	"context"

	"github.com/openai/openai-go"
)

// OpenAIChat completes chat requests with the OpenAI API.
type OpenAIChat struct {
	client *openai.Client
}

// NewOpenAIChat wraps an OpenAI client, typically the one shared with embeddings.
func NewOpenAIChat(client *openai.Client) *OpenAIChat {
	return &OpenAIChat{client: client}
}

// Complete implements ChatCompleter.
func (c *OpenAIChat) Complete(ctx context.Context, req ChatRequest) (*Completion, error) {
	s := req.Sampling
	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(req.System),
			openai.UserMessage(req.User),
		},
		Model:            openai.ChatModel(s.Model),
		Temperature:      openai.Float(s.Temperature),
		TopP:             openai.Float(s.TopP),
		FrequencyPenalty: openai.Float(s.FrequencyPenalty),
		PresencePenalty:  openai.Float(s.PresencePenalty),
		MaxTokens:        openai.Int(int64(s.MaxTokens)),
	})
	if err != nil {
		return nil, err
	}

	completion := &Completion{
		Usage: Usage{
			PromptTokens:     int(resp.Usage.PromptTokens),
			CompletionTokens: int(resp.Usage.CompletionTokens),
			TotalTokens:      int(resp.Usage.TotalTokens),
		},
	}
	if len(resp.Choices) > 0 {
		completion.Content = resp.Choices[0].Message.Content
	}
	return completion, nil
}
