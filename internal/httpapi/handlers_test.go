package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocloud.dev/blob/memblob"

	"github.com/bull/study-rag-server/internal/answer"
	"github.com/bull/study-rag-server/internal/chunker"
	"github.com/bull/study-rag-server/internal/embedding"
	"github.com/bull/study-rag-server/internal/indexer"
	"github.com/bull/study-rag-server/internal/rag"
	"github.com/bull/study-rag-server/internal/retrieval"
	"github.com/bull/study-rag-server/internal/storage"
)

// letterProvider embeds text as counts of X, Y and Z so rankings are predictable.
type letterProvider struct{}

func (letterProvider) Name() string { return "letters" }

func (letterProvider) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = []float32{
			float32(strings.Count(t, "X")),
			float32(strings.Count(t, "Y")),
			float32(strings.Count(t, "Z")) + 0.01,
		}
	}
	return out, nil
}

type stubChat struct {
	content string
	err     error
}

func (s *stubChat) Complete(ctx context.Context, req answer.ChatRequest) (*answer.Completion, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &answer.Completion{
		Content: s.content,
		Usage:   answer.Usage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
	}, nil
}

type stubHealth struct{ err error }

func (s stubHealth) Health(ctx context.Context) error { return s.err }

type testServer struct {
	handler http.Handler
	store   *storage.BlobStore
	chat    *stubChat
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	store := storage.NewBlobStore(memblob.OpenBucket(nil), time.Second)
	t.Cleanup(func() { store.Close() })

	chunks, err := chunker.New()
	require.NoError(t, err)
	embedder := embedding.NewEmbedder(letterProvider{})
	chat := &stubChat{content: "Answer"}

	svc := rag.NewService(rag.Config{
		Builder: indexer.NewBuilder(indexer.Config{
			Chunker:  chunks,
			Embedder: embedder,
			Writer:   store,
		}),
		Searcher:  retrieval.NewSearcher(store, embedder, nil),
		Assembler: answer.NewAssembler(answer.PromptConfig{}),
		Generator: answer.NewGenerator(chat, answer.GeneratorConfig{}),
	})

	mux := NewMux(Config{Service: svc, Store: store})
	return &testServer{handler: Middleware(mux, nil), store: store, chat: chat}
}

func (s *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		switch b := body.(type) {
		case string:
			buf.WriteString(b)
		default:
			require.NoError(t, json.NewEncoder(&buf).Encode(b))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func indexBody(text string) map[string]any {
	return map[string]any{
		"subjectId":   "subj-1",
		"topicId":     "topic-1",
		"subjectName": "Biología",
		"topicName":   "Cells",
		"resourceTexts": []map[string]string{
			{"name": "cells.txt", "text": text},
		},
	}
}

func TestIndex_LongResource(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/index", indexBody(strings.Repeat("X", 2500)))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	resp := decodeBody[rag.IndexResponse](t, rec)
	assert.True(t, resp.Success)
	assert.Equal(t, 4, resp.Chunks)
	assert.Equal(t, "indices/biologia/cells.json", resp.Path)
	assert.True(t, resp.Persisted)

	idx, err := s.store.Load(context.Background(), resp.Path)
	require.NoError(t, err)
	require.Len(t, idx.Chunks, 4)
	for i, c := range idx.Chunks {
		assert.Equal(t, i, c.Ord)
		assert.Equal(t, "cells.txt", c.SourceName)
	}
}

func TestIndex_MissingFields(t *testing.T) {
	s := newTestServer(t)
	body := indexBody("text")
	delete(body, "topicName")

	rec := s.do(t, http.MethodPost, "/index", body)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Missing required fields", decodeBody[ErrorResponse](t, rec).Error)
}

func TestIndex_NoContent(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/index", indexBody("   \n\t  "))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "No content could be processed from the provided resources", decodeBody[ErrorResponse](t, rec).Error)
}

func TestIndex_InvalidJSON(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/index", "{not json")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid request body", decodeBody[ErrorResponse](t, rec).Error)
}

func TestAnswer_MissingQuery(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/answer", map[string]any{"subjectId": "s", "topicId": "t"})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAnswer_ResolvesCitedSources(t *testing.T) {
	s := newTestServer(t)
	s.chat.content = "Cells divide by mitosis [Source 2]."

	rec := s.do(t, http.MethodPost, "/answer", map[string]any{
		"subjectId": "s",
		"topicId":   "t",
		"query":     "How do cells divide?",
		"topChunks": []map[string]string{
			{"text": "Cells have membranes.", "source": "a.txt"},
			{"text": "Mitosis splits a cell.", "source": "b.txt", "url": "https://example.com/b"},
			{"text": "Meiosis makes gametes.", "source": "c.txt"},
		},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	res := decodeBody[answer.Result](t, rec)
	assert.Equal(t, "Cells divide by mitosis.", res.Answer)
	require.Len(t, res.Sources, 1)
	assert.Equal(t, "source-2", res.Sources[0].ID)
	assert.Equal(t, "b.txt", res.Sources[0].Name)
	assert.Equal(t, "https://example.com/b", res.Sources[0].URL)
	assert.Equal(t, 15, res.Usage.TotalTokens)
}

func TestAnswer_UpstreamFailure(t *testing.T) {
	s := newTestServer(t)
	s.chat.err = errors.New("connection reset")

	rec := s.do(t, http.MethodPost, "/answer", map[string]any{"query": "q"})

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	body := decodeBody[ErrorResponse](t, rec)
	assert.Equal(t, "Failed to generate answer", body.Error)
	assert.Contains(t, body.Details, "connection reset")
}

func TestSearch_AfterIndex(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/index", map[string]any{
		"subjectName": "Biology",
		"topicName":   "Cells",
		"resourceTexts": []map[string]string{
			{"name": "x.txt", "text": "XXXX"},
			{"name": "y.txt", "text": "YYYY"},
		},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = s.do(t, http.MethodPost, "/search", map[string]any{
		"subjectName": "Biology",
		"topicName":   "Cells",
		"query":       "YY",
		"topK":        1,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	resp := decodeBody[rag.SearchResponse](t, rec)
	require.Len(t, resp.Chunks, 1)
	assert.Equal(t, "y.txt", resp.Chunks[0].Source)
	assert.Equal(t, 1, resp.Chunks[0].Ord)
}

func TestSearch_UnknownTopic(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/search", map[string]any{
		"subjectName": "Chemistry",
		"topicName":   "Bonds",
		"query":       "q",
	})

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPreflight(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodOptions, "/answer", nil)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "authorization, x-client-info, apikey, content-type", rec.Header().Get("Access-Control-Allow-Headers"))
}

func TestCORSOnRegularResponses(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/answer", map[string]any{})

	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestMethodNotAllowed(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/index", nil)

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestLanding(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Study RAG Server")

	rec = s.do(t, http.MethodGet, "/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

type panickingService struct{}

func (panickingService) Index(ctx context.Context, req rag.IndexRequest) (*rag.IndexResponse, error) {
	panic("boom")
}

func (panickingService) Answer(ctx context.Context, req rag.AnswerRequest) (*answer.Result, error) {
	panic("boom")
}

func (panickingService) Search(ctx context.Context, req rag.SearchRequest) (*rag.SearchResponse, error) {
	panic("boom")
}

func TestRecoversFromPanics(t *testing.T) {
	handler := Middleware(NewMux(Config{Service: panickingService{}, Store: stubHealth{}}), nil)

	req := httptest.NewRequest(http.MethodPost, "/answer", strings.NewReader(`{"query":"q"}`))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	var body ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "Internal server error", body.Error)
}

func TestNotConfigured(t *testing.T) {
	handler := NewMux(Config{Service: rag.NewService(rag.Config{}), Store: stubHealth{}})

	req := httptest.NewRequest(http.MethodPost, "/index", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
