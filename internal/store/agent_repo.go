package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/null-engine/nullengine/internal/domain"
)

// FactionRepo handles persistence for Faction records.
type FactionRepo struct{}

// CreateTx inserts a faction within an existing transaction.
func (r *FactionRepo) CreateTx(ctx context.Context, tx *sql.Tx, f domain.Faction) error {
	const q = `INSERT INTO factions (id, world_id, name, description, color) VALUES (?, ?, ?, ?, ?)`
	if _, err := tx.ExecContext(ctx, q, f.ID, f.WorldID, f.Name, f.Description, f.Color); err != nil {
		return fmt.Errorf("create faction: %w", err)
	}
	return nil
}

// ListByWorld returns the factions of a world in insertion order.
func (r *FactionRepo) ListByWorld(ctx context.Context, db *sql.DB, worldID string) ([]domain.Faction, error) {
	const q = `SELECT id, world_id, name, description, color FROM factions WHERE world_id = ? ORDER BY rowid ASC`

	rows, err := db.QueryContext(ctx, q, worldID)
	if err != nil {
		return nil, fmt.Errorf("list factions: %w", err)
	}
	defer rows.Close()

	var factions []domain.Faction
	for rows.Next() {
		var f domain.Faction
		if err := rows.Scan(&f.ID, &f.WorldID, &f.Name, &f.Description, &f.Color); err != nil {
			return nil, fmt.Errorf("scan faction: %w", err)
		}
		factions = append(factions, f)
	}
	return factions, rows.Err()
}

// AgentRepo handles persistence for Agent records.
type AgentRepo struct{}

// CreateTx inserts an agent within an existing transaction.
func (r *AgentRepo) CreateTx(ctx context.Context, tx *sql.Tx, a domain.Agent) error {
	persona, err := json.Marshal(a.Persona)
	if err != nil {
		return fmt.Errorf("marshal persona: %w", err)
	}

	const q = `INSERT INTO agents (id, world_id, faction_id, name, persona_json) VALUES (?, ?, ?, ?, ?)`
	if _, err := tx.ExecContext(ctx, q, a.ID, a.WorldID, a.FactionID, a.Name, string(persona)); err != nil {
		return fmt.Errorf("create agent: %w", err)
	}
	return nil
}

// ListByWorld returns the agents of a world in insertion order.
func (r *AgentRepo) ListByWorld(ctx context.Context, db *sql.DB, worldID string) ([]domain.Agent, error) {
	const q = `SELECT id, world_id, faction_id, name, persona_json FROM agents WHERE world_id = ? ORDER BY rowid ASC`

	rows, err := db.QueryContext(ctx, q, worldID)
	if err != nil {
		return nil, fmt.Errorf("list agents: %w", err)
	}
	defer rows.Close()

	var agents []domain.Agent
	for rows.Next() {
		var a domain.Agent
		var persona string
		if err := rows.Scan(&a.ID, &a.WorldID, &a.FactionID, &a.Name, &persona); err != nil {
			return nil, fmt.Errorf("scan agent: %w", err)
		}
		if err := json.Unmarshal([]byte(persona), &a.Persona); err != nil {
			return nil, fmt.Errorf("unmarshal persona: %w", err)
		}
		agents = append(agents, a)
	}
	return agents, rows.Err()
}

// CountByWorldTx counts a world's agents inside an open transaction.
func (r *AgentRepo) CountByWorldTx(ctx context.Context, tx *sql.Tx, worldID string) (int, error) {
	const q = `SELECT COUNT(*) FROM agents WHERE world_id = ?`
	var n int
	if err := tx.QueryRowContext(ctx, q, worldID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count agents: %w", err)
	}
	return n, nil
}
