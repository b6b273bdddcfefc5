package mcp

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// Server wraps the MCP server with dependencies.
type Server struct {
	server *mcp.Server
}

// Config holds server dependencies.
type Config struct {
	Service Service
	Version string
}

// NewServer creates a configured MCP server with tools registered.
func NewServer(cfg *Config) *Server {
	version := cfg.Version
	if version == "" {
		version = "v0.1.0"
	}
	impl := &mcp.Implementation{
		Name:    "study-rag-server",
		Version: version,
	}

	server := mcp.NewServer(impl, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "index_resources",
		Description: "Chunk, embed and store study resources for a subject/topic. Replaces any existing index for that topic.",
	}, makeIndexHandler(cfg.Service))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "answer_question",
		Description: "Answer a student's question from the indexed resources of a topic. Returns the answer with the sources it cited.",
	}, makeAnswerHandler(cfg.Service))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "search_index",
		Description: "Search the indexed resources of a topic semantically. Returns the best matching chunks with scores.",
	}, makeSearchHandler(cfg.Service))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_index_status",
		Description: "Report whether a topic has been indexed, with its chunk count, embedding dimension and source names.",
	}, makeStatusHandler(cfg.Service))

	return &Server{server: server}
}

// Run starts the server with stdio transport (blocks until client disconnects).
func (s *Server) Run(ctx context.Context) error {
	return s.server.Run(ctx, &mcp.StdioTransport{})
}

// MCPServer returns the underlying MCP server instance.
// Used by transport handlers that need to wrap the server.
func (s *Server) MCPServer() *mcp.Server {
	return s.server
}
