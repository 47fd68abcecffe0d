// Package prompt builds the system instructions sent ahead of a conversation.
package prompt

import (
	"fmt"
	"strings"

	"github.com/upb/llm-chat-gateway/models"
)

// DefaultSystemPrompt is used when a conversation has no system message and
// nothing was retrieved for it.
const DefaultSystemPrompt = "You are a helpful, friendly AI assistant. Provide accurate, concise, and helpful responses."

// Assemble wraps query and the retrieved documents into one instruction.
// Documents keep the order search returned them in and are labeled by rank,
// starting at 1.
func Assemble(query string, docs []*models.Document) string {
	var b strings.Builder
	b.WriteString("I'll provide you with some relevant information to help answer a question.\n\n")
	fmt.Fprintf(&b, "Question: %s\n\n", query)
	b.WriteString("Relevant Information:\n")
	b.WriteString(contextBlock(docs))
	b.WriteString("\n\n")
	b.WriteString("Please provide a comprehensive answer to the question based on the information provided above.\n")
	b.WriteString("If the information doesn't contain the answer, say so clearly rather than making up information.")
	return b.String()
}

func contextBlock(docs []*models.Document) string {
	parts := make([]string, 0, len(docs))
	for i, doc := range docs {
		parts = append(parts, fmt.Sprintf("Document %d:\n%s", i+1, doc.Content))
	}
	return strings.Join(parts, "\n\n")
}

// Augment returns transcript with a system message carrying the assembled
// instruction. An existing leading system message is kept and the
// instruction is appended to it, so the result holds at most one system
// message. With no documents the transcript is returned unchanged.
// transcript itself is never modified.
func Augment(transcript models.Transcript, query string, docs []*models.Document) models.Transcript {
	if len(docs) == 0 {
		return transcript.Clone()
	}

	instruction := Assemble(query, docs)
	if transcript.HasSystem() {
		out := transcript.Clone()
		out[0].Content = out[0].Content + "\n\n" + instruction
		return out
	}

	out := make(models.Transcript, 0, len(transcript)+1)
	out = append(out, models.System(instruction))
	return append(out, transcript...)
}

// WithDefaultSystem prepends DefaultSystemPrompt when transcript has no
// system message.
func WithDefaultSystem(transcript models.Transcript) models.Transcript {
	if transcript.HasSystem() {
		return transcript.Clone()
	}
	out := make(models.Transcript, 0, len(transcript)+1)
	out = append(out, models.System(DefaultSystemPrompt))
	return append(out, transcript...)
}
