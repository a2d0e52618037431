package knowledge

import (
	"fmt"
	"strings"
)

// itemColumns is the column list every item query selects, in scan order.
const itemColumns = "id, owner_email, title, content, type, tags, summary, created_at"

// buildListQuery renders the List SQL for a filter. All user input travels
// through positional parameters; the SQL text itself only ever contains
// placeholder numbers.
func buildListQuery(f Filter) (string, []any) {
	var b strings.Builder
	var args []any

	b.WriteString("SELECT " + itemColumns + " FROM knowledge_items WHERE 1=1")

	if f.Owner != "" {
		args = append(args, f.Owner)
		fmt.Fprintf(&b, " AND owner_email = $%d", len(args))
	}

	if f.Type != "" && f.Type != "all" {
		args = append(args, f.Type)
		fmt.Fprintf(&b, " AND type = $%d", len(args))
	}

	if f.Query != "" {
		args = append(args, "%"+f.Query+"%")
		fmt.Fprintf(&b, " AND (title ILIKE $%d OR content ILIKE $%d)", len(args), len(args))
	}

	if f.Tag != "" {
		args = append(args, "%"+f.Tag+"%")
		fmt.Fprintf(&b, " AND EXISTS (SELECT 1 FROM unnest(tags) AS t WHERE t ILIKE $%d)", len(args))
	}

	b.WriteString(" ORDER BY created_at DESC")

	return b.String(), args
}

// buildUpdateQuery renders the Update SQL for a patch. Returns ok=false when
// the patch contains no changes.
func buildUpdateQuery(id int64, owner string, p Patch) (string, []any, bool) {
	var sets []string
	var args []any

	add := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if p.Title != nil {
		add("title", *p.Title)
	}
	if p.Content != nil {
		add("content", *p.Content)
	}
	if p.Type != nil {
		add("type", string(*p.Type))
	}
	if p.Tags != nil {
		add("tags", *p.Tags)
	}
	if p.Summary != nil {
		add("summary", *p.Summary)
	}

	if len(sets) == 0 {
		return "", nil, false
	}

	args = append(args, id)
	idArg := len(args)
	args = append(args, owner)
	ownerArg := len(args)

	sql := fmt.Sprintf(
		"UPDATE knowledge_items SET %s WHERE id = $%d AND owner_email = $%d RETURNING %s",
		strings.Join(sets, ", "), idArg, ownerArg, itemColumns,
	)
	return sql, args, true
}
