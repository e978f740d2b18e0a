package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/null-engine/nullengine/internal/domain"
)

// StratumRepo handles persistence for per-epoch strata.
type StratumRepo struct{}

// Save inserts a stratum. It reports false without error when the epoch
// already has one.
func (r *StratumRepo) Save(ctx context.Context, db *sql.DB, s domain.Stratum) (bool, error) {
	themes := s.DominantThemes
	if themes == nil {
		themes = []string{}
	}
	tJSON, err := json.Marshal(themes)
	if err != nil {
		return false, fmt.Errorf("marshal themes: %w", err)
	}

	const q = `INSERT OR IGNORE INTO strata (world_id, epoch, summary, themes_json, created_at) VALUES (?, ?, ?, ?, ?)`
	res, err := db.ExecContext(ctx, q, s.WorldID, s.Epoch, s.Summary, string(tJSON), s.CreatedAt)
	if err != nil {
		return false, fmt.Errorf("save stratum: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("check rows affected: %w", err)
	}
	return n == 1, nil
}

// GetByEpoch returns the stratum of an epoch, or nil if none exists.
func (r *StratumRepo) GetByEpoch(ctx context.Context, db *sql.DB, worldID string, epoch int) (*domain.Stratum, error) {
	const q = `SELECT world_id, epoch, summary, themes_json, created_at FROM strata WHERE world_id = ? AND epoch = ?`

	var s domain.Stratum
	var tJSON string
	err := db.QueryRowContext(ctx, q, worldID, epoch).Scan(&s.WorldID, &s.Epoch, &s.Summary, &tJSON, &s.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get stratum: %w", err)
	}
	if err := json.Unmarshal([]byte(tJSON), &s.DominantThemes); err != nil {
		return nil, fmt.Errorf("unmarshal themes: %w", err)
	}
	return &s, nil
}
