package answer

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRenderContext_Empty(t *testing.T) {
	a := NewAssembler(PromptConfig{})

	rendered := a.RenderContext(nil)
	assert.Equal(t, DefaultNoContext, rendered)
	assert.NotEmpty(t, rendered)
}

func TestRenderContext_LabelsAndOrder(t *testing.T) {
	a := NewAssembler(PromptConfig{})

	rendered := a.RenderContext([]ContextChunk{
		{Text: "most relevant", Source: "b.pdf"},
		{Text: "less relevant", Source: "a.pdf"},
	})

	assert.Equal(t, "[Source 1: b.pdf]\nmost relevant\n\n[Source 2: a.pdf]\nless relevant", rendered)
}

func TestAssemble_EmptyChunksUsesFallback(t *testing.T) {
	a := NewAssembler(PromptConfig{NoContext: "No se encontraron recursos relevantes."})

	p := a.Assemble(nil, "", "What is a limit?")

	assert.Contains(t, p.User, "No se encontraron recursos relevantes.")
	assert.True(t, strings.HasSuffix(p.User, "Question: What is a limit?"))
}

func TestAssemble_NotesBetweenContextAndQuestion(t *testing.T) {
	a := NewAssembler(PromptConfig{})

	p := a.Assemble([]ContextChunk{{Text: "derivatives measure change", Source: "calc.txt"}},
		"  my notes on derivatives  ", "Explain derivatives")

	ctxPos := strings.Index(p.User, "[Source 1: calc.txt]")
	notesPos := strings.Index(p.User, "Student notes:\nmy notes on derivatives")
	questionPos := strings.Index(p.User, "Question: Explain derivatives")

	assert.GreaterOrEqual(t, ctxPos, 0)
	assert.Greater(t, notesPos, ctxPos)
	assert.Greater(t, questionPos, notesPos)
}

func TestAssemble_BlankNotesOmitted(t *testing.T) {
	a := NewAssembler(PromptConfig{})

	p := a.Assemble(nil, " \n ", "q")
	assert.NotContains(t, p.User, "Student notes")
}

func TestSystemPrompt_FollowsCitationMode(t *testing.T) {
	markers := NewAssembler(PromptConfig{CitationMode: CitationMarkers}).Assemble(nil, "", "q").System
	hidden := NewAssembler(PromptConfig{CitationMode: CitationHidden}).Assemble(nil, "", "q").System

	assert.Contains(t, markers, "exactly as [Source N]")
	assert.NotContains(t, markers, "Do not include bracketed")
	assert.Contains(t, hidden, "Do not include bracketed source references")
	assert.NotContains(t, hidden, "exactly as [Source N]")
}

func TestSystemPrompt_Constants(t *testing.T) {
	p := NewAssembler(PromptConfig{MaxWords: 200}).Assemble(nil, "", "q")

	assert.Contains(t, p.System, "no more than 200 words")
	assert.Contains(t, p.System, "not contain enough information")
}

func TestNewAssembler_DefaultMode(t *testing.T) {
	assert.Equal(t, CitationMarkers, NewAssembler(PromptConfig{}).CitationMode())
	assert.Equal(t, CitationHidden, NewAssembler(PromptConfig{CitationMode: CitationHidden}).CitationMode())
}
