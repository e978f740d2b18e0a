package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/null-engine/nullengine/internal/domain"
)

// AuditRepo handles persistence for AuditRecord entries.
type AuditRepo struct{}

// Record inserts an audit record.
func (r *AuditRepo) Record(ctx context.Context, db *sql.DB, rec domain.AuditRecord) error {
	const q = `INSERT INTO audit_records (id, world_id, category, actor, action, request_json, severity, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := db.ExecContext(ctx, q,
		rec.ID,
		rec.WorldID,
		rec.Category,
		rec.Actor,
		rec.Action,
		rec.RequestJSON,
		rec.Severity,
		rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("record audit: %w", err)
	}
	return nil
}

// ListByWorld returns all audit records for a world, ordered by creation time.
func (r *AuditRepo) ListByWorld(ctx context.Context, db *sql.DB, worldID string) ([]domain.AuditRecord, error) {
	const q = `SELECT id, world_id, category, actor, action, request_json, severity, created_at
FROM audit_records
WHERE world_id = ?
ORDER BY created_at ASC, rowid ASC`

	rows, err := db.QueryContext(ctx, q, worldID)
	if err != nil {
		return nil, fmt.Errorf("list audit records: %w", err)
	}
	defer rows.Close()

	var records []domain.AuditRecord
	for rows.Next() {
		var a domain.AuditRecord
		if err := rows.Scan(&a.ID, &a.WorldID, &a.Category, &a.Actor, &a.Action,
			&a.RequestJSON, &a.Severity, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan audit record: %w", err)
		}
		records = append(records, a)
	}
	return records, rows.Err()
}
