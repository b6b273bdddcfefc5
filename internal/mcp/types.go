// Package mcp exposes study resource indexing, search and answering as MCP tools.
package mcp

import "github.com/bull/study-rag-server/internal/answer"

// ResourceInput is one study resource passed to index_resources.
type ResourceInput struct {
	// Name is the resource file name, used as the citation label.
	Name string `json:"name" jsonschema:"Resource file name shown in citations"`
	// Text is the decoded resource text.
	Text string `json:"text" jsonschema:"Decoded plain text of the resource"`
}

// IndexResourcesInput defines the input parameters for the index_resources tool.
type IndexResourcesInput struct {
	SubjectID   string          `json:"subject_id,omitempty" jsonschema:"Opaque subject identifier, used for logging only"`
	TopicID     string          `json:"topic_id,omitempty" jsonschema:"Opaque topic identifier, used for logging only"`
	SubjectName string          `json:"subject_name" jsonschema:"Subject display name (e.g. Cálculo II)"`
	TopicName   string          `json:"topic_name" jsonschema:"Topic display name (e.g. Limits)"`
	Resources   []ResourceInput `json:"resources" jsonschema:"Resources to index; replaces any existing index for the topic"`
}

// IndexResourcesOutput reports the result of indexing.
type IndexResourcesOutput struct {
	// Chunks is the number of chunks in the new index.
	Chunks int `json:"chunks"`
	// Path is the storage path of the index.
	Path string `json:"path"`
	// Persisted is false when the index was built but could not be written.
	Persisted bool   `json:"persisted"`
	Message   string `json:"message"`
}

// AnswerQuestionInput defines the input parameters for the answer_question tool.
type AnswerQuestionInput struct {
	SubjectName string `json:"subject_name" jsonschema:"Subject display name"`
	TopicName   string `json:"topic_name" jsonschema:"Topic display name"`
	Query       string `json:"query" jsonschema:"The student's question"`
	TopK        int    `json:"top_k,omitempty" jsonschema:"Number of chunks to use as context (default 5)"`
	Notes       string `json:"notes,omitempty" jsonschema:"Optional student notes added to the prompt"`
}

// AnswerQuestionOutput contains the generated answer and the sources it cited.
type AnswerQuestionOutput struct {
	Answer  string          `json:"answer"`
	Sources []answer.Source `json:"sources"`
	Usage   answer.Usage    `json:"usage"`
}

// SearchIndexInput defines the input parameters for the search_index tool.
type SearchIndexInput struct {
	SubjectName string `json:"subject_name" jsonschema:"Subject display name"`
	TopicName   string `json:"topic_name" jsonschema:"Topic display name"`
	Query       string `json:"query" jsonschema:"The semantic search query"`
	TopK        int    `json:"top_k,omitempty" jsonschema:"Maximum number of chunks to return (default 5)"`
}

// SearchIndexOutput contains ranked chunks.
type SearchIndexOutput struct {
	Results []SearchResult `json:"results"`
	// Message provides informational context (e.g., "No index found").
	Message string `json:"message,omitempty"`
}

// SearchResult represents a single chunk match from semantic search.
type SearchResult struct {
	Text   string  `json:"text"`
	Source string  `json:"source"`
	URL    string  `json:"url,omitempty"`
	Ord    int     `json:"ord"`
	Score  float64 `json:"score"`
}

// IndexStatusInput defines the input parameters for the get_index_status tool.
type IndexStatusInput struct {
	SubjectName string `json:"subject_name" jsonschema:"Subject display name"`
	TopicName   string `json:"topic_name" jsonschema:"Topic display name"`
}

// IndexStatusOutput describes a topic index.
type IndexStatusOutput struct {
	Path      string   `json:"path"`
	Found     bool     `json:"found"`
	Chunks    int      `json:"chunks"`
	Dimension int      `json:"dimension"`
	Sources   []string `json:"sources"`
}
