// Package answer assembles retrieval context into a prompt and turns a chat
// completion into a cited answer.
package answer

import (
	"fmt"
	"strings"
)

// CitationMode keeps the prompt instructions and source extraction in agreement.
type CitationMode string

const (
	// CitationMarkers asks the model to tag statements with [Source N]; the
	// markers drive source extraction and are stripped from the visible answer.
	CitationMarkers CitationMode = "markers"

	// CitationHidden tells the model not to print markers. Sources are still
	// extracted from any markers the model emits anyway, so they are usually empty.
	CitationHidden CitationMode = "hidden"
)

const (
	// DefaultNoContext is rendered in place of an empty resource context.
	DefaultNoContext = "No relevant resources found."

	// DefaultMaxWords is the answer length target given to the model.
	DefaultMaxWords = 250
)

// ContextChunk is one pre-ranked passage supplied by the retrieval step.
type ContextChunk struct {
	Text   string `json:"text"`
	Source string `json:"source"`
	URL    string `json:"url,omitempty"`
}

// Prompt is the rendered system prompt and user message.
type Prompt struct {
	System string
	User   string
}

// PromptConfig holds the behavioural constants of the system prompt.
type PromptConfig struct {
	Instructions string
	MaxWords     int
	CitationMode CitationMode
	NoContext    string
}

// Assembler renders retrieval context into a Prompt.
type Assembler struct {
	cfg PromptConfig
}

// NewAssembler creates an Assembler, filling unset fields with defaults.
func NewAssembler(cfg PromptConfig) *Assembler {
	if cfg.Instructions == "" {
		cfg.Instructions = "You are a study assistant helping a student understand their course material. " +
			"Answer the student's question using the resource context and the student's notes provided below."
	}
	if cfg.MaxWords <= 0 {
		cfg.MaxWords = DefaultMaxWords
	}
	if cfg.CitationMode != CitationHidden {
		cfg.CitationMode = CitationMarkers
	}
	if cfg.NoContext == "" {
		cfg.NoContext = DefaultNoContext
	}
	return &Assembler{cfg: cfg}
}

// CitationMode returns the mode the system prompt was written for.
func (a *Assembler) CitationMode() CitationMode { return a.cfg.CitationMode }

// Assemble renders chunks in the given order, followed by the notes and the
// question. Chunk order is the caller's relevance ranking and is never changed.
func (a *Assembler) Assemble(chunks []ContextChunk, extraContext, query string) Prompt {
	var user strings.Builder

	user.WriteString("Context from study resources:\n")
	user.WriteString(a.RenderContext(chunks))
	user.WriteString("\n\n")

	if notes := strings.TrimSpace(extraContext); notes != "" {
		user.WriteString("Student notes:\n")
		user.WriteString(notes)
		user.WriteString("\n\n")
	}

	user.WriteString("Question: ")
	user.WriteString(query)

	return Prompt{
		System: a.systemPrompt(),
		User:   user.String(),
	}
}

// RenderContext labels each chunk as "[Source N: name]" and joins the blocks
// with a blank line. An empty list renders the no-context marker.
func (a *Assembler) RenderContext(chunks []ContextChunk) string {
	if len(chunks) == 0 {
		return a.cfg.NoContext
	}
	blocks := make([]string, len(chunks))
	for i, c := range chunks {
		blocks[i] = fmt.Sprintf("[Source %d: %s]\n%s", i+1, c.Source, c.Text)
	}
	return strings.Join(blocks, "\n\n")
}

func (a *Assembler) systemPrompt() string {
	rules := []string{
		fmt.Sprintf("Keep the answer concise: no more than %d words.", a.cfg.MaxWords),
	}
	switch a.cfg.CitationMode {
	case CitationMarkers:
		rules = append(rules,
			"When a statement relies on a resource, add its marker exactly as [Source N], "+
				"using only the numbers shown in the context.")
	case CitationHidden:
		rules = append(rules,
			"Do not include bracketed source references such as [Source 1] in the answer.")
	}
	rules = append(rules,
		"If the context and notes do not contain enough information, say so plainly instead of guessing.",
		"Use short paragraphs or bullet lists, and bold only key terms.",
	)

	var b strings.Builder
	b.WriteString(a.cfg.Instructions)
	b.WriteString("\n\nRules:\n")
	for _, r := range rules {
		b.WriteString("- ")
		b.WriteString(r)
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}
