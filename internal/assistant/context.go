package assistant

import (
	"fmt"
	"strings"

	"github.com/quiverkb/quiver/internal/knowledge"
)

// genericContext grounds the chat when no item is in focus, either because
// the client sent no item ID or because the item could not be resolved.
const genericContext = "No specific context provided. You are a general AI assistant."

// systemInstruction renders the chat system prompt around a focus context.
func systemInstruction(contextString string) string {
	return "You are an intelligent \"Second Brain\" assistant. Your goal is to help the user query, synthesize, and retrieve insights from their personal knowledge base.\n\n" +
		"Current Focus Context:\n" +
		contextString + "\n\n" +
		"Answer the user's queries specifically regarding the focused context if applicable. Keep your responses concise, helpful, and formatted beautifully using markdown."
}

// focusedContext serializes a single item for focused chat. Content is never
// truncated. An empty summary renders as "None".
func focusedContext(item *knowledge.Item) string {
	summary := item.Summary
	if summary == "" {
		summary = "None"
	}
	return fmt.Sprintf(
		"You are discussing a specific item from the user's knowledge base.\nTitle: %s\nType: %s\nSummary: %s\nContent: %s",
		item.Title, item.Type, summary, item.Content,
	)
}

// broadContext serializes a selection of items for a broad query, one
// Title/Content block per item, joined by blank lines and in the given
// order. An empty selection yields an empty string.
func broadContext(items []knowledge.Item) string {
	blocks := make([]string, len(items))
	for i, item := range items {
		blocks[i] = fmt.Sprintf("Title: %s\nContent: %s", item.Title, item.Content)
	}
	return strings.Join(blocks, "\n\n")
}
