package answer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"
)

// ErrUpstream marks a failed chat-completion call.
var ErrUpstream = errors.New("language model request failed")

// FallbackAnswer is returned when the model produced no content.
const FallbackAnswer = "I was unable to generate a response."

// snippetLength is the number of characters of chunk text kept in a Source.
const snippetLength = 150

// markerPattern matches citation markers and the space before them.
var markerPattern = regexp.MustCompile(`[ \t]?\[Source \d+\]`)

// Sampling holds the chat-completion policy knobs.
type Sampling struct {
	Model            string
	Temperature      float64
	TopP             float64
	FrequencyPenalty float64
	PresencePenalty  float64
	MaxTokens        int
}

// DefaultSampling returns the sampling used by the answer endpoint when none is configured.
func DefaultSampling() Sampling {
	return Sampling{
		Model:       "gpt-4o-mini",
		Temperature: 0.7,
		TopP:        1,
		MaxTokens:   500,
	}
}

// ChatRequest is one system+user exchange.
type ChatRequest struct {
	System   string
	User     string
	Sampling Sampling
}

// Usage is the token accounting reported by the model backend.
type Usage struct {
	PromptTokens     int `json:"promptTokens"`
	CompletionTokens int `json:"completionTokens"`
	TotalTokens      int `json:"totalTokens"`
}

// Completion is the raw model reply.
type Completion struct {
	Content string
	Usage   Usage
}

// ChatCompleter sends a chat request to a language model backend.
type ChatCompleter interface {
	Complete(ctx context.Context, req ChatRequest) (*Completion, error)
}

// Source is a resolved citation.
type Source struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Snippet string `json:"snippet"`
	URL     string `json:"url,omitempty"`
}

// Result is the answer returned to the caller.
type Result struct {
	Answer  string   `json:"answer"`
	Sources []Source `json:"sources"`
	Usage   Usage    `json:"usage"`
}

// Generator produces cited answers from an assembled prompt.
type Generator struct {
	chat     ChatCompleter
	sampling Sampling
	mode     CitationMode
	timeout  time.Duration
	logger   *slog.Logger
}

// GeneratorConfig configures a Generator.
type GeneratorConfig struct {
	Sampling     Sampling
	CitationMode CitationMode
	Timeout      time.Duration
	Logger       *slog.Logger
}

// NewGenerator creates a Generator backed by chat.
func NewGenerator(chat ChatCompleter, cfg GeneratorConfig) *Generator {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.CitationMode != CitationHidden {
		cfg.CitationMode = CitationMarkers
	}
	if cfg.Sampling.Model == "" {
		cfg.Sampling.Model = DefaultSampling().Model
	}
	return &Generator{
		chat:     chat,
		sampling: cfg.Sampling,
		mode:     cfg.CitationMode,
		timeout:  cfg.Timeout,
		logger:   cfg.Logger,
	}
}

// Generate asks the model to answer prompt and resolves which of chunks it cited.
// A failed call returns ErrUpstream; an empty reply yields FallbackAnswer.
func (g *Generator) Generate(ctx context.Context, prompt Prompt, chunks []ContextChunk) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	completion, err := g.chat.Complete(ctx, ChatRequest{
		System:   prompt.System,
		User:     prompt.User,
		Sampling: g.sampling,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUpstream, err)
	}

	raw := strings.TrimSpace(completion.Content)
	if raw == "" {
		g.logger.Warn("Model returned no content", "model", g.sampling.Model)
		return &Result{
			Answer:  FallbackAnswer,
			Sources: []Source{},
			Usage:   completion.Usage,
		}, nil
	}

	sources := ExtractSources(raw, chunks)

	answer := raw
	if g.mode == CitationMarkers {
		answer = StripMarkers(raw)
	}

	return &Result{
		Answer:  answer,
		Sources: sources,
		Usage:   completion.Usage,
	}, nil
}

// ExtractSources keeps chunk i only when text contains the literal "[Source i+1]".
func ExtractSources(text string, chunks []ContextChunk) []Source {
	sources := make([]Source, 0, len(chunks))
	for i, c := range chunks {
		if !strings.Contains(text, fmt.Sprintf("[Source %d]", i+1)) {
			continue
		}
		sources = append(sources, Source{
			ID:      fmt.Sprintf("source-%d", i+1),
			Name:    c.Source,
			Snippet: snippet(c.Text),
			URL:     c.URL,
		})
	}
	return sources
}

// StripMarkers removes [Source N] markers from an answer.
func StripMarkers(text string) string {
	return strings.TrimSpace(markerPattern.ReplaceAllString(text, ""))
}

func snippet(text string) string {
	runes := []rune(text)
	if len(runes) > snippetLength {
		runes = runes[:snippetLength]
	}
	return string(runes) + "..."
}
