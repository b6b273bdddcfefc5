package mcp

import (
	"context"
	"errors"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/bull/study-rag-server/internal/answer"
	"github.com/bull/study-rag-server/internal/indexer"
	"github.com/bull/study-rag-server/internal/rag"
	"github.com/bull/study-rag-server/internal/storage"
)

// Service is the subset of rag.Service the tools call.
type Service interface {
	Index(ctx context.Context, req rag.IndexRequest) (*rag.IndexResponse, error)
	Ask(ctx context.Context, req rag.AskRequest) (*answer.Result, error)
	Search(ctx context.Context, req rag.SearchRequest) (*rag.SearchResponse, error)
	Status(ctx context.Context, subjectName, topicName string) (*rag.IndexStatus, error)
}

// makeIndexHandler creates the index_resources tool handler.
func makeIndexHandler(svc Service) func(
	context.Context, *mcp.CallToolRequest, IndexResourcesInput,
) (*mcp.CallToolResult, IndexResourcesOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input IndexResourcesInput) (
		*mcp.CallToolResult, IndexResourcesOutput, error,
	) {
		resources := make([]indexer.ResourceText, 0, len(input.Resources))
		for _, r := range input.Resources {
			resources = append(resources, indexer.ResourceText{Name: r.Name, Text: r.Text})
		}

		resp, err := svc.Index(ctx, rag.IndexRequest{
			SubjectID:     input.SubjectID,
			TopicID:       input.TopicID,
			SubjectName:   input.SubjectName,
			TopicName:     input.TopicName,
			ResourceTexts: resources,
		})
		if err != nil {
			return nil, IndexResourcesOutput{}, fmt.Errorf("indexing failed: %w", err)
		}

		return nil, IndexResourcesOutput{
			Chunks:    resp.Chunks,
			Path:      resp.Path,
			Persisted: resp.Persisted,
			Message:   resp.Message,
		}, nil
	}
}

// makeAnswerHandler creates the answer_question tool handler.
// Answer flow: search the topic index, then answer from the top chunks.
func makeAnswerHandler(svc Service) func(
	context.Context, *mcp.CallToolRequest, AnswerQuestionInput,
) (*mcp.CallToolResult, AnswerQuestionOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input AnswerQuestionInput) (
		*mcp.CallToolResult, AnswerQuestionOutput, error,
	) {
		res, err := svc.Ask(ctx, rag.AskRequest{
			SubjectName:  input.SubjectName,
			TopicName:    input.TopicName,
			Query:        input.Query,
			TopK:         input.TopK,
			ExtraContext: input.Notes,
		})
		if err != nil {
			if errors.Is(err, storage.ErrIndexNotFound) {
				return nil, AnswerQuestionOutput{}, fmt.Errorf("no index for %s / %s: index the topic first", input.SubjectName, input.TopicName)
			}
			return nil, AnswerQuestionOutput{}, fmt.Errorf("answer failed: %w", err)
		}

		sources := res.Sources
		if sources == nil {
			sources = []answer.Source{} // Ensure non-nil for JSON marshaling
		}
		return nil, AnswerQuestionOutput{
			Answer:  res.Answer,
			Sources: sources,
			Usage:   res.Usage,
		}, nil
	}
}

// makeSearchHandler creates the search_index tool handler.
func makeSearchHandler(svc Service) func(
	context.Context, *mcp.CallToolRequest, SearchIndexInput,
) (*mcp.CallToolResult, SearchIndexOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input SearchIndexInput) (
		*mcp.CallToolResult, SearchIndexOutput, error,
	) {
		resp, err := svc.Search(ctx, rag.SearchRequest{
			SubjectName: input.SubjectName,
			TopicName:   input.TopicName,
			Query:       input.Query,
			TopK:        input.TopK,
		})
		if err != nil {
			if errors.Is(err, storage.ErrIndexNotFound) {
				return nil, SearchIndexOutput{
					Results: []SearchResult{},
					Message: "No index found for this topic. Use index_resources first.",
				}, nil
			}
			return nil, SearchIndexOutput{}, fmt.Errorf("search failed: %w", err)
		}

		results := make([]SearchResult, 0, len(resp.Chunks))
		for _, hit := range resp.Chunks {
			results = append(results, SearchResult{
				Text:   hit.Text,
				Source: hit.Source,
				URL:    hit.URL,
				Ord:    hit.Ord,
				Score:  hit.Score,
			})
		}
		if len(results) == 0 {
			return nil, SearchIndexOutput{
				Results: results,
				Message: "No matching chunks found.",
			}, nil
		}
		return nil, SearchIndexOutput{Results: results}, nil
	}
}

// makeStatusHandler creates the get_index_status tool handler.
func makeStatusHandler(svc Service) func(
	context.Context, *mcp.CallToolRequest, IndexStatusInput,
) (*mcp.CallToolResult, IndexStatusOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input IndexStatusInput) (
		*mcp.CallToolResult, IndexStatusOutput, error,
	) {
		status, err := svc.Status(ctx, input.SubjectName, input.TopicName)
		if err != nil {
			return nil, IndexStatusOutput{}, fmt.Errorf("status failed: %w", err)
		}
		return nil, IndexStatusOutput{
			Path:      status.Path,
			Found:     status.Found,
			Chunks:    status.Chunks,
			Dimension: status.Dimension,
			Sources:   status.Sources,
		}, nil
	}
}
