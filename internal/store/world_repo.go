package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/null-engine/nullengine/internal/domain"
)

// WorldRepo handles persistence for World records.
type WorldRepo struct{}

const worldColumns = `id, seed_prompt, config_json, status, current_epoch, current_tick, state_version, created_at, updated_at`

// Create inserts a new world.
func (r *WorldRepo) Create(ctx context.Context, db *sql.DB, w domain.World) error {
	cfg, err := marshalConfig(w.Config)
	if err != nil {
		return err
	}

	const q = `INSERT INTO worlds (` + worldColumns + `)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = db.ExecContext(ctx, q,
		w.ID,
		w.SeedPrompt,
		cfg,
		string(w.Status),
		w.CurrentEpoch,
		w.CurrentTick,
		w.StateVersion,
		w.CreatedAt,
		w.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("create world: %w", err)
	}
	return nil
}

// UpdateClockTx persists the tick/epoch pair using optimistic locking. The
// update only succeeds if the stored state_version matches w.StateVersion.
func (r *WorldRepo) UpdateClockTx(ctx context.Context, tx *sql.Tx, w domain.World) error {
	const q = `UPDATE worlds SET
		current_epoch = ?,
		current_tick = ?,
		state_version = state_version + 1,
		updated_at = ?
	WHERE id = ? AND state_version = ?`

	res, err := tx.ExecContext(ctx, q,
		w.CurrentEpoch,
		w.CurrentTick,
		w.UpdatedAt,
		w.ID,
		w.StateVersion,
	)
	if err != nil {
		return fmt.Errorf("update world clock: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}
	if n == 0 {
		return domain.ErrOptimisticLock
	}
	return nil
}

// UpdateStatus changes a world's lifecycle status. The clock columns and
// state_version are left alone.
func (r *WorldRepo) UpdateStatus(ctx context.Context, db *sql.DB, worldID string, status domain.WorldStatus) error {
	const q = `UPDATE worlds SET status = ?, updated_at = ? WHERE id = ?`
	res, err := db.ExecContext(ctx, q, string(status), time.Now().Unix(), worldID)
	if err != nil {
		return fmt.Errorf("update world status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}
	if n == 0 {
		return domain.ErrWorldNotFound
	}
	return nil
}

// CompleteGenesisTx stores the generated world config and moves the world
// from generating to created. Worlds in any other status are left alone.
func (r *WorldRepo) CompleteGenesisTx(ctx context.Context, tx *sql.Tx, worldID string, cfg map[string]any) error {
	data, err := marshalConfig(cfg)
	if err != nil {
		return err
	}

	const q = `UPDATE worlds SET config_json = ?, status = ?, updated_at = ?
	WHERE id = ? AND status = ?`
	res, err := tx.ExecContext(ctx, q, data, string(domain.WorldCreated), time.Now().Unix(),
		worldID, string(domain.WorldGenerating))
	if err != nil {
		return fmt.Errorf("complete genesis: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}
	if n == 0 {
		return domain.ErrInvalidWorldStatus
	}
	return nil
}

// GetByID retrieves a world by its ID.
func (r *WorldRepo) GetByID(ctx context.Context, db *sql.DB, worldID string) (*domain.World, error) {
	const q = `SELECT ` + worldColumns + ` FROM worlds WHERE id = ?`

	w, err := scanWorld(db.QueryRowContext(ctx, q, worldID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, domain.ErrWorldNotFound
		}
		return nil, fmt.Errorf("get world: %w", err)
	}
	return w, nil
}

// List returns all worlds, newest first.
func (r *WorldRepo) List(ctx context.Context, db *sql.DB) ([]domain.World, error) {
	const q = `SELECT ` + worldColumns + ` FROM worlds ORDER BY created_at DESC, id ASC`
	return r.query(ctx, db, q)
}

// ListByStatus returns the worlds currently in status, oldest first.
func (r *WorldRepo) ListByStatus(ctx context.Context, db *sql.DB, status domain.WorldStatus) ([]domain.World, error) {
	const q = `SELECT ` + worldColumns + ` FROM worlds WHERE status = ? ORDER BY created_at ASC, id ASC`
	return r.query(ctx, db, q, string(status))
}

// CountByStatus returns the number of worlds per status. Statuses with no
// worlds are absent from the map.
func (r *WorldRepo) CountByStatus(ctx context.Context, db *sql.DB) (map[domain.WorldStatus]int, error) {
	const q = `SELECT status, COUNT(*) FROM worlds GROUP BY status`
	rows, err := db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("count worlds: %w", err)
	}
	defer rows.Close()

	counts := make(map[domain.WorldStatus]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan world count: %w", err)
		}
		counts[domain.WorldStatus(status)] = n
	}
	return counts, rows.Err()
}

// SeedPrompts returns the seed prompt of every world.
func (r *WorldRepo) SeedPrompts(ctx context.Context, db *sql.DB) (map[string]bool, error) {
	const q = `SELECT seed_prompt FROM worlds`
	rows, err := db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list seed prompts: %w", err)
	}
	defer rows.Close()

	seen := make(map[string]bool)
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("scan seed prompt: %w", err)
		}
		seen[s] = true
	}
	return seen, rows.Err()
}

func (r *WorldRepo) query(ctx context.Context, db *sql.DB, q string, args ...any) ([]domain.World, error) {
	rows, err := db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list worlds: %w", err)
	}
	defer rows.Close()

	var worlds []domain.World
	for rows.Next() {
		w, err := scanWorld(rows)
		if err != nil {
			return nil, fmt.Errorf("scan world: %w", err)
		}
		worlds = append(worlds, *w)
	}
	return worlds, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanWorld(row rowScanner) (*domain.World, error) {
	var w domain.World
	var cfg, status string
	if err := row.Scan(&w.ID, &w.SeedPrompt, &cfg, &status, &w.CurrentEpoch,
		&w.CurrentTick, &w.StateVersion, &w.CreatedAt, &w.UpdatedAt); err != nil {
		return nil, err
	}
	w.Status = domain.WorldStatus(status)
	if err := json.Unmarshal([]byte(cfg), &w.Config); err != nil {
		return nil, fmt.Errorf("unmarshal config_json: %w", err)
	}
	return &w, nil
}

func marshalConfig(cfg map[string]any) (string, error) {
	if cfg == nil {
		return "{}", nil
	}
	b, err := json.Marshal(cfg)
	if err != nil {
		return "", fmt.Errorf("marshal config_json: %w", err)
	}
	return string(b), nil
}
