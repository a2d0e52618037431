package assistant

import (
	"context"
	"fmt"
	"strings"

	"github.com/quiverkb/quiver/internal/gateway"
	"github.com/quiverkb/quiver/internal/knowledge"
)

// Enhancement is the AI-derived metadata for a new item.
type Enhancement struct {
	Summary string
	Tags    []string
}

// Enhance produces a short summary for new content and, when the caller
// supplied no tags, exactly three suggested tags. It never returns an error:
// a disabled gateway or a failed model call degrades to whatever the caller
// provided, keeping the write path independent of AI availability.
func (a *Assistant) Enhance(ctx context.Context, title, content string, tags []string) Enhancement {
	result := Enhancement{Tags: tags}

	if !a.completer.Enabled() {
		a.logger.Warn("GEMINI_API_KEY is not set, skipping AI enhancements")
		return result
	}

	summary, err := a.completer.Complete(ctx, gateway.Request{
		Prompt: fmt.Sprintf(
			"Summarize the following content in 1-2 thoughtful sentences:\n\nTitle: %s\nContent:\n%s",
			title, content),
	})
	if err != nil {
		a.logger.Error("summary generation failed, skipping", "error", err)
	} else {
		result.Summary = strings.TrimSpace(summary)
	}

	if len(tags) > 0 {
		return result
	}

	raw, err := a.completer.Complete(ctx, gateway.Request{
		Prompt: fmt.Sprintf(
			"Extract exactly 3 concise, comma-separated tags (only letters and commas) from the following text:\n\nTitle: %s\nContent:\n%s",
			title, content),
	})
	if err != nil {
		a.logger.Error("tag generation failed, skipping", "error", err)
		return result
	}

	result.Tags = cleanTags(raw)
	return result
}

// cleanTags normalizes model-produced tag output: all whitespace is removed
// (models pad around commas), the remainder lowercased and split on commas.
func cleanTags(raw string) []string {
	compact := strings.ToLower(strings.Join(strings.Fields(raw), ""))
	return knowledge.ParseTags(compact)
}
