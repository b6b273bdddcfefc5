// Package main provides the study RAG server: JSON API plus MCP tools.
package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/bull/study-rag-server/internal/app"
	"github.com/bull/study-rag-server/internal/config"
	"github.com/bull/study-rag-server/internal/httpapi"
	mcpserver "github.com/bull/study-rag-server/internal/mcp"
)

func main() {
	// Load .env file if present (local development), ignore if missing (production)
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	// Create context that cancels on SIGTERM/SIGINT
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	cfg, err := config.Load(getEnv("CONFIG_PATH", "config.yaml"))
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	application, err := app.New(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("failed to initialize: %v", err)
	}
	defer application.Close()

	server := mcpserver.NewServer(&mcpserver.Config{Service: application.Service})

	apiCfg := httpapi.Config{
		Service: application.Service,
		Store:   application.Store,
		Logger:  logger,
	}
	if application.Qdrant != nil {
		apiCfg.Qdrant = application.Qdrant
	}
	mux := httpapi.NewMux(apiCfg)

	// MCP HTTP endpoint (for remote client connections)
	mux.Handle("/mcp", mcpserver.NewHTTPHandler(server, &mcpserver.HTTPHandlerOptions{Stateless: true}))

	httpServer := &http.Server{
		Addr:              "0.0.0.0:" + cfg.Server.Port,
		Handler:           httpapi.Middleware(mux, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	if cfg.Server.HTTP {
		go shutdownOnDone(ctx, httpServer)
		log.Printf("Starting HTTP server on %s (API at /index /answer /search, MCP at /mcp)", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("HTTP server error: %v", err)
		}
		return
	}

	// Stdio mode: MCP over stdin/stdout for local clients, HTTP API in background
	go func() {
		log.Printf("Starting HTTP server on %s", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("HTTP server error: %v", err)
		}
	}()
	go shutdownOnDone(ctx, httpServer)

	log.Println("Starting study RAG MCP server (stdio mode)...")
	if err := server.Run(ctx); err != nil {
		log.Printf("server error: %v", err)
		os.Exit(1)
	}
}

func shutdownOnDone(ctx context.Context, srv *http.Server) {
	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP shutdown error: %v", err)
	}
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}
