package knowledge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DB is the subset of pgxpool.Pool the store needs. Defined on the consumer
// side (like http.RoundTripper or io.Reader) so tests and transactions can
// substitute the pool.
type DB interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Store persists knowledge items in PostgreSQL.
// All mutating operations are owner-scoped; List may run unscoped for the
// public brain query.
//
// Store is safe for concurrent use by multiple goroutines.
type Store struct {
	db     DB
	logger *slog.Logger
}

// New creates a new Store instance. A nil logger falls back to slog.Default().
func New(db DB, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{db: db, logger: logger}
}

// Create inserts a new item and returns it with store-assigned fields.
func (s *Store) Create(ctx context.Context, item NewItem) (*Item, error) {
	if item.Owner == "" {
		return nil, ErrEmptyOwner
	}
	if item.Title == "" {
		return nil, ErrEmptyTitle
	}
	if !item.Type.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidType, item.Type)
	}

	tags := item.Tags
	if tags == nil {
		tags = []string{}
	}

	row := s.db.QueryRow(ctx,
		"INSERT INTO knowledge_items (owner_email, title, content, type, tags, summary) "+
			"VALUES ($1, $2, $3, $4, $5, $6) RETURNING "+itemColumns,
		item.Owner, item.Title, item.Content, string(item.Type), tags, item.Summary,
	)

	created, err := scanItem(row)
	if err != nil {
		return nil, fmt.Errorf("creating knowledge item: %w", err)
	}

	s.logger.Debug("created knowledge item", "id", created.ID, "type", created.Type)
	return created, nil
}

// List returns items matching the filter, ordered newest-first.
// A store failure is returned as-is; callers must never treat it as an
// empty result.
func (s *Store) List(ctx context.Context, f Filter) ([]Item, error) {
	sql, args := buildListQuery(f)

	rows, err := s.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("listing knowledge items: %w", err)
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning knowledge item: %w", err)
		}
		items = append(items, *item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing knowledge items: %w", err)
	}

	return items, nil
}

// GetByID fetches one item scoped to its owner.
// Returns ErrNotFound when the item does not exist or belongs to a
// different owner.
func (s *Store) GetByID(ctx context.Context, id int64, owner string) (*Item, error) {
	if owner == "" {
		return nil, ErrEmptyOwner
	}

	row := s.db.QueryRow(ctx,
		"SELECT "+itemColumns+" FROM knowledge_items WHERE id = $1 AND owner_email = $2",
		id, owner,
	)

	item, err := scanItem(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("item %d: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("getting knowledge item %d: %w", id, err)
	}
	return item, nil
}

// Update applies a partial patch to an owner's item and returns the updated
// row. An empty patch returns the current row unchanged.
func (s *Store) Update(ctx context.Context, id int64, owner string, p Patch) (*Item, error) {
	if owner == "" {
		return nil, ErrEmptyOwner
	}
	if p.Type != nil && !p.Type.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidType, *p.Type)
	}
	if p.Title != nil && *p.Title == "" {
		return nil, ErrEmptyTitle
	}

	sql, args, ok := buildUpdateQuery(id, owner, p)
	if !ok {
		return s.GetByID(ctx, id, owner)
	}

	row := s.db.QueryRow(ctx, sql, args...)
	item, err := scanItem(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("item %d: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("updating knowledge item %d: %w", id, err)
	}

	s.logger.Debug("updated knowledge item", "id", id)
	return item, nil
}

// Delete removes an owner's item. Returns ErrNotFound when nothing matched.
func (s *Store) Delete(ctx context.Context, id int64, owner string) error {
	if owner == "" {
		return ErrEmptyOwner
	}

	tag, err := s.db.Exec(ctx,
		"DELETE FROM knowledge_items WHERE id = $1 AND owner_email = $2",
		id, owner,
	)
	if err != nil {
		return fmt.Errorf("deleting knowledge item %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("item %d: %w", id, ErrNotFound)
	}

	s.logger.Debug("deleted knowledge item", "id", id)
	return nil
}

// scanItem scans one row in itemColumns order.
func scanItem(row pgx.Row) (*Item, error) {
	var item Item
	var typ string
	if err := row.Scan(
		&item.ID, &item.Owner, &item.Title, &item.Content,
		&typ, &item.Tags, &item.Summary, &item.CreatedAt,
	); err != nil {
		return nil, err
	}
	item.Type = Type(typ)
	if item.Tags == nil {
		item.Tags = []string{}
	}
	return &item, nil
}
