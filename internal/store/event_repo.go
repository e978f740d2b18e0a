package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/null-engine/nullengine/internal/domain"
)

// WorldEventRepo handles persistence for triggered and injected world events.
type WorldEventRepo struct{}

const insertWorldEvent = `INSERT INTO world_events (world_id, epoch, tick, event_type, description, targets_json, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?)`

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// AppendTx inserts an event within an existing transaction.
func (r *WorldEventRepo) AppendTx(ctx context.Context, tx *sql.Tx, ev domain.WorldEvent) (int64, error) {
	return r.append(ctx, tx, ev)
}

// Append inserts an event outside of a tick transaction.
func (r *WorldEventRepo) Append(ctx context.Context, db *sql.DB, ev domain.WorldEvent) (int64, error) {
	return r.append(ctx, db, ev)
}

func (r *WorldEventRepo) append(ctx context.Context, x execer, ev domain.WorldEvent) (int64, error) {
	targets := ev.Targets
	if targets == nil {
		targets = []string{}
	}
	tJSON, err := json.Marshal(targets)
	if err != nil {
		return 0, fmt.Errorf("marshal targets: %w", err)
	}

	res, err := x.ExecContext(ctx, insertWorldEvent,
		ev.WorldID,
		ev.Epoch,
		ev.Tick,
		ev.Type,
		ev.Description,
		string(tJSON),
		ev.CreatedAt,
	)
	if err != nil {
		return 0, fmt.Errorf("append world event: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("read event id: %w", err)
	}
	return id, nil
}

// ListByWorld returns events with id greater than sinceID, ordered by id.
func (r *WorldEventRepo) ListByWorld(ctx context.Context, db *sql.DB, worldID string, sinceID int64) ([]domain.WorldEvent, error) {
	const q = `SELECT id, world_id, epoch, tick, event_type, description, targets_json, created_at
FROM world_events
WHERE world_id = ? AND id > ?
ORDER BY id ASC`

	rows, err := db.QueryContext(ctx, q, worldID, sinceID)
	if err != nil {
		return nil, fmt.Errorf("list world events: %w", err)
	}
	defer rows.Close()

	var events []domain.WorldEvent
	for rows.Next() {
		var e domain.WorldEvent
		var tJSON string
		if err := rows.Scan(&e.ID, &e.WorldID, &e.Epoch, &e.Tick, &e.Type, &e.Description, &tJSON, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan world event: %w", err)
		}
		if err := json.Unmarshal([]byte(tJSON), &e.Targets); err != nil {
			return nil, fmt.Errorf("unmarshal targets: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
