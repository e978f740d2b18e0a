package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/null-engine/nullengine/internal/domain"
)

// WikiRepo handles persistence for versioned wiki pages.
type WikiRepo struct{}

// Upsert creates the page or replaces its content, bumping the version.
// The stored page, with its final ID and version, is returned.
func (r *WikiRepo) Upsert(ctx context.Context, db *sql.DB, page domain.WikiPage) (*domain.WikiPage, error) {
	const q = `INSERT INTO wiki_pages (id, world_id, title, content, version, updated_at)
VALUES (?, ?, ?, ?, 1, ?)
ON CONFLICT(world_id, title) DO UPDATE SET
	content = excluded.content,
	version = wiki_pages.version + 1,
	updated_at = excluded.updated_at
RETURNING id, version`

	out := page
	err := db.QueryRowContext(ctx, q, page.ID, page.WorldID, page.Title, page.Content, page.UpdatedAt).
		Scan(&out.ID, &out.Version)
	if err != nil {
		return nil, fmt.Errorf("upsert wiki page: %w", err)
	}
	return &out, nil
}

// GetByTitle returns a page or nil if none exists.
func (r *WikiRepo) GetByTitle(ctx context.Context, db *sql.DB, worldID, title string) (*domain.WikiPage, error) {
	const q = `SELECT id, world_id, title, content, version, updated_at FROM wiki_pages WHERE world_id = ? AND title = ?`

	var p domain.WikiPage
	err := db.QueryRowContext(ctx, q, worldID, title).
		Scan(&p.ID, &p.WorldID, &p.Title, &p.Content, &p.Version, &p.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get wiki page: %w", err)
	}
	return &p, nil
}

// ListByWorld returns every page of a world ordered by title.
func (r *WikiRepo) ListByWorld(ctx context.Context, db *sql.DB, worldID string) ([]domain.WikiPage, error) {
	const q = `SELECT id, world_id, title, content, version, updated_at FROM wiki_pages WHERE world_id = ? ORDER BY title ASC`

	rows, err := db.QueryContext(ctx, q, worldID)
	if err != nil {
		return nil, fmt.Errorf("list wiki pages: %w", err)
	}
	defer rows.Close()

	var pages []domain.WikiPage
	for rows.Next() {
		var p domain.WikiPage
		if err := rows.Scan(&p.ID, &p.WorldID, &p.Title, &p.Content, &p.Version, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan wiki page: %w", err)
		}
		pages = append(pages, p)
	}
	return pages, rows.Err()
}
