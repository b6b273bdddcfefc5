// Package config loads server and CLI settings from a YAML file with
// environment variable overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Backend names accepted for embedding and chat.
const (
	BackendOpenAI = "openai"
	BackendOllama = "ollama"
)

// ServerConfig controls how cmd/server exposes the service.
type ServerConfig struct {
	Port string `yaml:"port"`
	// HTTP serves everything over HTTP; otherwise MCP runs on stdio and HTTP
	// stays up in the background.
	HTTP bool `yaml:"http"`
}

// OpenAIConfig holds credentials shared by the OpenAI embedding and chat backends.
type OpenAIConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
}

// OllamaConfig points at a local Ollama server.
type OllamaConfig struct {
	Host string `yaml:"host"`
}

// EmbeddingConfig configures the embedding backend and its worker pool.
type EmbeddingConfig struct {
	Backend        string  `yaml:"backend"`
	Model          string  `yaml:"model"`
	BatchSize      int     `yaml:"batch_size"`
	Concurrency    int     `yaml:"concurrency"`
	RateLimitRPS   float64 `yaml:"rate_limit_rps"`
	RateLimitBurst int     `yaml:"rate_limit_burst"`
	TimeoutSecs    int     `yaml:"timeout_secs"`
}

// ChatConfig configures the answer model and its sampling parameters.
type ChatConfig struct {
	Backend          string  `yaml:"backend"`
	Model            string  `yaml:"model"`
	Temperature      float64 `yaml:"temperature"`
	TopP             float64 `yaml:"top_p"`
	FrequencyPenalty float64 `yaml:"frequency_penalty"`
	PresencePenalty  float64 `yaml:"presence_penalty"`
	MaxTokens        int     `yaml:"max_tokens"`
	TimeoutSecs      int     `yaml:"timeout_secs"`
}

// ChunkerConfig sets the sliding window in characters.
type ChunkerConfig struct {
	Size    int `yaml:"size"`
	Overlap int `yaml:"overlap"`
}

// IndexConfig configures where indices are written.
type IndexConfig struct {
	// BucketURL is a gocloud.dev blob URL, e.g. file:///var/lib/studyrag or mem://.
	BucketURL     string `yaml:"bucket_url"`
	PersistPolicy string `yaml:"persist_policy"`
	// TimeoutSecs bounds each bucket read and write.
	TimeoutSecs int `yaml:"timeout_secs"`
}

// QdrantConfig enables the optional Qdrant mirror and ranker when Host is set.
type QdrantConfig struct {
	Host        string `yaml:"host"`
	Port        int    `yaml:"port"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

// AnswerConfig shapes the prompt sent to the chat model.
type AnswerConfig struct {
	CitationMode string `yaml:"citation_mode"`
	MaxWords     int    `yaml:"max_words"`
	NoContext    string `yaml:"no_context"`
	Instructions string `yaml:"instructions"`
	// NotesFormat is "plain" or "markdown".
	NotesFormat string `yaml:"notes_format"`
}

// Config is the root configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	OpenAI    OpenAIConfig    `yaml:"openai"`
	Ollama    OllamaConfig    `yaml:"ollama"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Chat      ChatConfig      `yaml:"chat"`
	Chunker   ChunkerConfig   `yaml:"chunker"`
	Index     IndexConfig     `yaml:"index"`
	Qdrant    QdrantConfig    `yaml:"qdrant"`
	Answer    AnswerConfig    `yaml:"answer"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Server: ServerConfig{Port: "8080"},
		Embedding: EmbeddingConfig{
			Backend:     BackendOpenAI,
			BatchSize:   500,
			Concurrency: 4,
			TimeoutSecs: 30,
		},
		Chat: ChatConfig{
			Backend:     BackendOpenAI,
			Temperature: 0.7,
			TopP:        1,
			MaxTokens:   500,
			TimeoutSecs: 60,
		},
		Chunker: ChunkerConfig{Size: 1000, Overlap: 200},
		Index: IndexConfig{
			BucketURL:     "file:///var/lib/studyrag?create_dir=true",
			PersistPolicy: "soft",
			TimeoutSecs:   30,
		},
		Qdrant: QdrantConfig{Port: 6334, TimeoutSecs: 10},
		Answer: AnswerConfig{
			CitationMode: "markers",
			MaxWords:     250,
			NoContext:    "No relevant resources found.",
			NotesFormat:  "plain",
		},
	}
}

// Load reads path over the defaults, applies environment overrides and
// validates the result. A missing file or empty path yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("read config %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	applyEnv(cfg)
	applyModelDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.OpenAI.APIKey = getEnv("OPENAI_API_KEY", cfg.OpenAI.APIKey)
	cfg.OpenAI.BaseURL = getEnv("OPENAI_BASE_URL", cfg.OpenAI.BaseURL)
	cfg.Ollama.Host = getEnv("OLLAMA_HOST", cfg.Ollama.Host)
	cfg.Embedding.Backend = getEnv("EMBEDDING_BACKEND", cfg.Embedding.Backend)
	cfg.Embedding.Model = getEnv("EMBEDDING_MODEL", cfg.Embedding.Model)
	cfg.Chat.Backend = getEnv("CHAT_BACKEND", cfg.Chat.Backend)
	cfg.Chat.Model = getEnv("CHAT_MODEL", cfg.Chat.Model)
	cfg.Index.BucketURL = getEnv("INDEX_BUCKET_URL", cfg.Index.BucketURL)
	cfg.Index.PersistPolicy = getEnv("PERSIST_POLICY", cfg.Index.PersistPolicy)
	cfg.Qdrant.Host = getEnv("QDRANT_HOST", cfg.Qdrant.Host)
	cfg.Qdrant.Port = getEnvInt("QDRANT_PORT", cfg.Qdrant.Port)
	cfg.Answer.CitationMode = getEnv("CITATION_MODE", cfg.Answer.CitationMode)
	cfg.Server.Port = getEnv("PORT", cfg.Server.Port)
	if v := os.Getenv("SERVER_MODE"); v != "" {
		cfg.Server.HTTP = v == "true"
	}
}

func applyModelDefaults(cfg *Config) {
	if cfg.Embedding.Model == "" {
		if cfg.Embedding.Backend == BackendOllama {
			cfg.Embedding.Model = "nomic-embed-text"
		} else {
			cfg.Embedding.Model = "text-embedding-3-small"
		}
	}
	if cfg.Chat.Model == "" {
		if cfg.Chat.Backend == BackendOllama {
			cfg.Chat.Model = "llama3.2"
		} else {
			cfg.Chat.Model = "gpt-4o-mini"
		}
	}
}

// Validate reports the first setting that cannot be used.
func (c *Config) Validate() error {
	if !oneOf(c.Embedding.Backend, BackendOpenAI, BackendOllama) {
		return fmt.Errorf("embedding.backend must be openai or ollama, got %q", c.Embedding.Backend)
	}
	if !oneOf(c.Chat.Backend, BackendOpenAI, BackendOllama) {
		return fmt.Errorf("chat.backend must be openai or ollama, got %q", c.Chat.Backend)
	}
	if c.Chunker.Size <= 0 || c.Chunker.Overlap < 0 || c.Chunker.Size <= c.Chunker.Overlap {
		return fmt.Errorf("chunker window invalid: size=%d overlap=%d", c.Chunker.Size, c.Chunker.Overlap)
	}
	if !oneOf(c.Index.PersistPolicy, "soft", "strict") {
		return fmt.Errorf("index.persist_policy must be soft or strict, got %q", c.Index.PersistPolicy)
	}
	if c.Index.BucketURL == "" {
		return errors.New("index.bucket_url is required")
	}
	if !oneOf(c.Answer.CitationMode, "markers", "hidden") {
		return fmt.Errorf("answer.citation_mode must be markers or hidden, got %q", c.Answer.CitationMode)
	}
	if !oneOf(c.Answer.NotesFormat, "plain", "markdown") {
		return fmt.Errorf("answer.notes_format must be plain or markdown, got %q", c.Answer.NotesFormat)
	}
	return nil
}

// QdrantEnabled reports whether a Qdrant host was configured.
func (c *Config) QdrantEnabled() bool {
	return c.Qdrant.Host != ""
}

func oneOf(v string, allowed ...string) bool {
	for _, a := range allowed {
		if v == a {
			return true
		}
	}
	return false
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultValue
}
