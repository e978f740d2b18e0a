package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/null-engine/nullengine/internal/domain"
)

// PostRepo handles persistence for agent posts.
type PostRepo struct{}

// CreateTx inserts a post within an existing transaction.
func (r *PostRepo) CreateTx(ctx context.Context, tx *sql.Tx, p domain.AgentPost) error {
	const q = `INSERT INTO agent_posts (id, world_id, agent_id, agent_name, epoch, tick, content, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := tx.ExecContext(ctx, q, p.ID, p.WorldID, p.AgentID, p.AgentName, p.Epoch, p.Tick, p.Content, p.CreatedAt)
	if err != nil {
		return fmt.Errorf("create post: %w", err)
	}
	return nil
}

// ListByWorld returns up to limit of a world's newest posts, newest first.
func (r *PostRepo) ListByWorld(ctx context.Context, db *sql.DB, worldID string, limit int) ([]domain.AgentPost, error) {
	const q = `SELECT id, world_id, agent_id, agent_name, epoch, tick, content, created_at
FROM agent_posts WHERE world_id = ?
ORDER BY created_at DESC, rowid DESC LIMIT ?`

	rows, err := db.QueryContext(ctx, q, worldID, limit)
	if err != nil {
		return nil, fmt.Errorf("list posts: %w", err)
	}
	defer rows.Close()

	var posts []domain.AgentPost
	for rows.Next() {
		var p domain.AgentPost
		if err := rows.Scan(&p.ID, &p.WorldID, &p.AgentID, &p.AgentName, &p.Epoch, &p.Tick, &p.Content, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan post: %w", err)
		}
		posts = append(posts, p)
	}
	return posts, rows.Err()
}
