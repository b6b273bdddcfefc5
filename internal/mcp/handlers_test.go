package mcp

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bull/study-rag-server/internal/answer"
	"github.com/bull/study-rag-server/internal/rag"
	"github.com/bull/study-rag-server/internal/storage"
)

type fakeService struct {
	indexReq  rag.IndexRequest
	askReq    rag.AskRequest
	searchReq rag.SearchRequest

	indexResp  *rag.IndexResponse
	askResp    *answer.Result
	searchResp *rag.SearchResponse
	status     *rag.IndexStatus
	err        error
}

func (f *fakeService) Index(ctx context.Context, req rag.IndexRequest) (*rag.IndexResponse, error) {
	f.indexReq = req
	return f.indexResp, f.err
}

func (f *fakeService) Ask(ctx context.Context, req rag.AskRequest) (*answer.Result, error) {
	f.askReq = req
	return f.askResp, f.err
}

func (f *fakeService) Search(ctx context.Context, req rag.SearchRequest) (*rag.SearchResponse, error) {
	f.searchReq = req
	return f.searchResp, f.err
}

func (f *fakeService) Status(ctx context.Context, subjectName, topicName string) (*rag.IndexStatus, error) {
	return f.status, f.err
}

func TestNewServer_RegistersTools(t *testing.T) {
	server := NewServer(&Config{Service: &fakeService{}})

	require.NotNil(t, server.MCPServer())
	assert.NotNil(t, NewHTTPHandler(server, nil))
}

func TestIndexHandler(t *testing.T) {
	svc := &fakeService{indexResp: &rag.IndexResponse{
		Success: true, Chunks: 3, Path: "indices/math/limits.json", Persisted: true, Message: "Indexed 3 chunks from 1 resources",
	}}

	_, out, err := makeIndexHandler(svc)(context.Background(), nil, IndexResourcesInput{
		SubjectName: "Math",
		TopicName:   "Limits",
		Resources:   []ResourceInput{{Name: "a.txt", Text: "text"}},
	})
	require.NoError(t, err)

	assert.Equal(t, 3, out.Chunks)
	assert.Equal(t, "indices/math/limits.json", out.Path)
	assert.True(t, out.Persisted)
	require.Len(t, svc.indexReq.ResourceTexts, 1)
	assert.Equal(t, "a.txt", svc.indexReq.ResourceTexts[0].Name)
}

func TestIndexHandler_Error(t *testing.T) {
	svc := &fakeService{err: errors.New("no content")}

	_, _, err := makeIndexHandler(svc)(context.Background(), nil, IndexResourcesInput{})
	assert.ErrorContains(t, err, "indexing failed")
}

func TestAnswerHandler(t *testing.T) {
	svc := &fakeService{askResp: &answer.Result{
		Answer: "A limit is a value approached.",
		Usage:  answer.Usage{TotalTokens: 12},
	}}

	_, out, err := makeAnswerHandler(svc)(context.Background(), nil, AnswerQuestionInput{
		SubjectName: "Math", TopicName: "Limits", Query: "What is a limit?", TopK: 3, Notes: "n",
	})
	require.NoError(t, err)

	assert.Equal(t, "A limit is a value approached.", out.Answer)
	assert.NotNil(t, out.Sources)
	assert.Equal(t, 12, out.Usage.TotalTokens)
	assert.Equal(t, 3, svc.askReq.TopK)
	assert.Equal(t, "n", svc.askReq.ExtraContext)
}

func TestAnswerHandler_NoIndex(t *testing.T) {
	svc := &fakeService{err: storage.ErrIndexNotFound}

	_, _, err := makeAnswerHandler(svc)(context.Background(), nil, AnswerQuestionInput{SubjectName: "Math", TopicName: "Limits", Query: "q"})
	assert.ErrorContains(t, err, "index the topic first")
}

func TestSearchHandler(t *testing.T) {
	svc := &fakeService{searchResp: &rag.SearchResponse{Chunks: []rag.SearchHit{
		{Text: "t", Source: "a.txt", Ord: 2, Score: 0.75},
	}}}

	_, out, err := makeSearchHandler(svc)(context.Background(), nil, SearchIndexInput{
		SubjectName: "Math", TopicName: "Limits", Query: "q",
	})
	require.NoError(t, err)

	require.Len(t, out.Results, 1)
	assert.Equal(t, SearchResult{Text: "t", Source: "a.txt", Ord: 2, Score: 0.75}, out.Results[0])
	assert.Empty(t, out.Message)
}

func TestSearchHandler_NoIndex(t *testing.T) {
	svc := &fakeService{err: storage.ErrIndexNotFound}

	_, out, err := makeSearchHandler(svc)(context.Background(), nil, SearchIndexInput{SubjectName: "Math", TopicName: "Limits", Query: "q"})
	require.NoError(t, err)

	assert.Empty(t, out.Results)
	assert.NotNil(t, out.Results)
	assert.Contains(t, out.Message, "No index found")
}

func TestSearchHandler_NoMatches(t *testing.T) {
	svc := &fakeService{searchResp: &rag.SearchResponse{}}

	_, out, err := makeSearchHandler(svc)(context.Background(), nil, SearchIndexInput{SubjectName: "Math", TopicName: "Limits", Query: "q"})
	require.NoError(t, err)
	assert.Equal(t, "No matching chunks found.", out.Message)
}

func TestStatusHandler(t *testing.T) {
	svc := &fakeService{status: &rag.IndexStatus{
		Path: "indices/math/limits.json", Found: true, Chunks: 4, Dimension: 1536, Sources: []string{"a.txt"},
	}}

	_, out, err := makeStatusHandler(svc)(context.Background(), nil, IndexStatusInput{SubjectName: "Math", TopicName: "Limits"})
	require.NoError(t, err)

	assert.True(t, out.Found)
	assert.Equal(t, 4, out.Chunks)
	assert.Equal(t, 1536, out.Dimension)
	assert.Equal(t, []string{"a.txt"}, out.Sources)
}
