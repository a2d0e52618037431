package knowledge

import (
	"strings"
	"time"
)

// Type categorizes a knowledge item.
type Type string

// Item type constants. These are the only values the store accepts.
const (
	TypeNote    Type = "note"
	TypeLink    Type = "link"
	TypeInsight Type = "insight"
)

// Valid reports whether t is a known item type.
func (t Type) Valid() bool {
	switch t {
	case TypeNote, TypeLink, TypeInsight:
		return true
	}
	return false
}

// Item is a stored knowledge item. ID and CreatedAt are store-assigned;
// Summary is filled by AI enhancement and may be empty.
type Item struct {
	ID        int64     `json:"id"`
	Owner     string    `json:"-"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	Type      Type      `json:"type"`
	Tags      []string  `json:"tags"`
	Summary   string    `json:"summary"`
	CreatedAt time.Time `json:"created_at"`
}

// NewItem carries the attributes for creating an item.
type NewItem struct {
	Owner   string
	Title   string
	Content string
	Type    Type
	Tags    []string
	Summary string
}

// Patch carries partial updates for an item. Nil fields are left unchanged.
type Patch struct {
	Title   *string
	Content *string
	Type    *Type
	Tags    *[]string
	Summary *string
}

// Filter narrows a List call. Zero values mean "no constraint":
// empty Owner lists across all owners (used by the public brain query),
// Query substring-matches title or content, Tag pattern-matches any stored
// tag, Type matches exactly.
type Filter struct {
	Owner string
	Type  string
	Query string
	Tag   string
}

// ParseTags splits a comma-separated tag string into cleaned tags:
// whitespace stripped, lowercased, empties dropped. Order is preserved.
func ParseTags(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}

	parts := strings.Split(s, ",")
	tags := make([]string, 0, len(parts))
	for _, p := range parts {
		tag := strings.ToLower(strings.TrimSpace(p))
		if tag != "" {
			tags = append(tags, tag)
		}
	}
	if len(tags) == 0 {
		return nil
	}
	return tags
}

// ContentWithSource appends a "Source: <url>" marker to content when a URL
// accompanies the item. The schema has no URL column; the marker keeps the
// origin recoverable from the content itself.
func ContentWithSource(content, url string) string {
	if url == "" {
		return content
	}
	return content + "\n\nSource: " + url
}
