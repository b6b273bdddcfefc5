// Package main provides the studyrag CLI for indexing and querying study resources.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/bull/study-rag-server/internal/app"
	"github.com/bull/study-rag-server/internal/config"
	ghclient "github.com/bull/study-rag-server/internal/github"
	"github.com/bull/study-rag-server/internal/indexer"
	"github.com/bull/study-rag-server/internal/rag"
)

var (
	configPath  string
	subjectName string
	topicName   string
	githubPath  string
	topK        int
	notesFile   string
	verbose     bool
)

var rootCmd = &cobra.Command{
	Use:   "studyrag",
	Short: "Study resource indexing and question answering",
	Long:  "CLI tool for building per-topic study indices and asking questions against them",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := slog.LevelWarn
		if verbose {
			level = slog.LevelDebug
		}
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
	},
}

var indexCmd = &cobra.Command{
	Use:   "index [files...]",
	Short: "Index local files and/or a GitHub directory for a topic",
	Long: `Chunks, embeds and stores study resources for one subject/topic,
replacing any existing index for that topic.

Resources come from local files given as arguments and/or from a GitHub
directory (--github owner/repo/path). Only .md, .markdown and .txt files are
read from GitHub.

Environment variables:
  OPENAI_API_KEY    OpenAI API key (required for the openai backend)
  EMBEDDING_BACKEND openai or ollama (default: openai)
  INDEX_BUCKET_URL  Index bucket URL (default: file:///var/lib/studyrag?create_dir=true)
  QDRANT_HOST       Optional Qdrant mirror host
  GITHUB_TOKEN      GitHub token for higher rate limits (optional)`,
	RunE: runIndex,
}

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Show the best matching chunks of a topic index",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runSearch,
}

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Answer a question from a topic index",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runAsk,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show whether a topic is indexed and what it contains",
	RunE:  runStatus,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config.yaml", "path to the YAML config file")
	rootCmd.PersistentFlags().StringVarP(&subjectName, "subject", "s", "", "subject display name (required)")
	rootCmd.PersistentFlags().StringVarP(&topicName, "topic", "t", "", "topic display name (required)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.MarkPersistentFlagRequired("subject")
	rootCmd.MarkPersistentFlagRequired("topic")

	indexCmd.Flags().StringVar(&githubPath, "github", "", "GitHub directory as owner/repo/path")
	searchCmd.Flags().IntVarP(&topK, "top-k", "k", 5, "number of chunks to return")
	askCmd.Flags().IntVarP(&topK, "top-k", "k", 5, "number of chunks used as context")
	askCmd.Flags().StringVar(&notesFile, "notes", "", "file with student notes to include")

	rootCmd.AddCommand(indexCmd, searchCmd, askCmd, statusCmd)
}

func main() {
	// Load .env file if present (local development), ignore if missing (production)
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// openApp loads config and assembles the service. The caller closes it.
func openApp(ctx context.Context) (*app.App, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	return app.New(ctx, cfg, slog.Default())
}

func runIndex(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()
	start := time.Now()

	if len(args) == 0 && githubPath == "" {
		return fmt.Errorf("no resources: pass files or --github owner/repo/path")
	}

	var resources []indexer.ResourceText
	for _, path := range args {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("Failed to read %s: %w", path, err)
		}
		resources = append(resources, indexer.ResourceText{Name: filepath.Base(path), Text: string(data)})
	}

	if githubPath != "" {
		owner, repo, basePath, err := ghclient.ParseLocation(githubPath)
		if err != nil {
			return err
		}
		client, err := ghclient.NewClient(os.Getenv("GITHUB_TOKEN"))
		if err != nil {
			return fmt.Errorf("Failed to create GitHub client: %w", err)
		}

		fmt.Printf("Fetching resources from github.com/%s/%s/%s...\n", owner, repo, basePath)
		fetched, err := ghclient.NewFetcher(client, owner, repo, basePath).FetchAll(ctx)
		if err != nil {
			return fmt.Errorf("Failed to fetch from GitHub: %w", err)
		}
		fmt.Printf("Fetched %d resources\n", len(fetched))
		resources = append(resources, fetched...)
	}

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	fmt.Printf("Indexing %d resources into %s / %s...\n", len(resources), subjectName, topicName)
	resp, err := a.Service.Index(ctx, rag.IndexRequest{
		SubjectName:   subjectName,
		TopicName:     topicName,
		ResourceTexts: resources,
	})
	if err != nil {
		return fmt.Errorf("Indexing failed: %w", err)
	}

	fmt.Println()
	fmt.Println("Index complete!")
	fmt.Printf("  Chunks: %d\n", resp.Chunks)
	fmt.Printf("  Path: %s\n", resp.Path)
	fmt.Printf("  Persisted: %t\n", resp.Persisted)
	fmt.Printf("  Duration: %s\n", time.Since(start).Round(time.Millisecond))
	return nil
}

func runSearch(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	resp, err := a.Service.Search(ctx, rag.SearchRequest{
		SubjectName: subjectName,
		TopicName:   topicName,
		Query:       strings.Join(args, " "),
		TopK:        topK,
	})
	if err != nil {
		return fmt.Errorf("Search failed: %w", err)
	}

	if len(resp.Chunks) == 0 {
		fmt.Println("No matching chunks found.")
		return nil
	}
	for i, hit := range resp.Chunks {
		fmt.Printf("%d. %s #%d (score %.3f)\n", i+1, hit.Source, hit.Ord, hit.Score)
		fmt.Printf("   %s\n\n", preview(hit.Text, 200))
	}
	return nil
}

func runAsk(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	var notes string
	if notesFile != "" {
		data, err := os.ReadFile(notesFile)
		if err != nil {
			return fmt.Errorf("Failed to read notes: %w", err)
		}
		notes = string(data)
	}

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	res, err := a.Service.Ask(ctx, rag.AskRequest{
		SubjectName:  subjectName,
		TopicName:    topicName,
		Query:        strings.Join(args, " "),
		TopK:         topK,
		ExtraContext: notes,
	})
	if err != nil {
		return fmt.Errorf("Answer failed: %w", err)
	}

	fmt.Println(res.Answer)
	if len(res.Sources) > 0 {
		fmt.Println()
		fmt.Println("Sources:")
		for _, s := range res.Sources {
			fmt.Printf("  - %s: %s\n", s.Name, s.Snippet)
		}
	}
	fmt.Printf("\nTokens: %d prompt, %d completion\n", res.Usage.PromptTokens, res.Usage.CompletionTokens)
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	status, err := a.Service.Status(ctx, subjectName, topicName)
	if err != nil {
		return err
	}
	if !status.Found {
		fmt.Printf("No index at %s\n", status.Path)
		return nil
	}
	fmt.Printf("Index: %s\n", status.Path)
	fmt.Printf("  Chunks: %d\n", status.Chunks)
	fmt.Printf("  Dimension: %d\n", status.Dimension)
	fmt.Printf("  Sources: %s\n", strings.Join(status.Sources, ", "))
	return nil
}

// preview collapses whitespace and truncates text to n runes.
func preview(text string, n int) string {
	text = strings.Join(strings.Fields(text), " ")
	runes := []rune(text)
	if len(runes) <= n {
		return text
	}
	return string(runes[:n]) + "..."
}
