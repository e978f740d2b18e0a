package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/null-engine/nullengine/internal/domain"
)

// ConversationRepo handles persistence for conversation rounds.
type ConversationRepo struct{}

// AppendTx stores one conversation round within an existing transaction.
func (r *ConversationRepo) AppendTx(ctx context.Context, tx *sql.Tx, turn domain.ConversationTurn) error {
	participants := make([]string, 0, len(turn.Participants))
	for _, a := range turn.Participants {
		participants = append(participants, a.ID)
	}
	pJSON, err := json.Marshal(participants)
	if err != nil {
		return fmt.Errorf("marshal participants: %w", err)
	}
	mJSON, err := json.Marshal(turn.Messages)
	if err != nil {
		return fmt.Errorf("marshal messages: %w", err)
	}

	const q = `INSERT INTO conversations (world_id, epoch, tick, topic, participants_json, messages_json, summary, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = tx.ExecContext(ctx, q,
		turn.WorldID,
		turn.Epoch,
		turn.Tick,
		turn.Topic,
		string(pJSON),
		string(mJSON),
		turn.Summary,
		time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("append conversation: %w", err)
	}
	return nil
}

// ListRecent returns up to limit of a world's latest rounds, oldest first.
// Participants carry only their IDs.
func (r *ConversationRepo) ListRecent(ctx context.Context, db *sql.DB, worldID string, limit int) ([]domain.ConversationTurn, error) {
	const q = `SELECT world_id, epoch, tick, topic, participants_json, messages_json, summary FROM (
	SELECT id, world_id, epoch, tick, topic, participants_json, messages_json, summary
	FROM conversations WHERE world_id = ? ORDER BY id DESC LIMIT ?
) ORDER BY id ASC`

	rows, err := db.QueryContext(ctx, q, worldID, limit)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	defer rows.Close()

	var turns []domain.ConversationTurn
	for rows.Next() {
		var t domain.ConversationTurn
		var pJSON, mJSON string
		if err := rows.Scan(&t.WorldID, &t.Epoch, &t.Tick, &t.Topic, &pJSON, &mJSON, &t.Summary); err != nil {
			return nil, fmt.Errorf("scan conversation: %w", err)
		}
		var ids []string
		if err := json.Unmarshal([]byte(pJSON), &ids); err != nil {
			return nil, fmt.Errorf("unmarshal participants: %w", err)
		}
		for _, id := range ids {
			t.Participants = append(t.Participants, domain.Agent{ID: id, WorldID: t.WorldID})
		}
		if err := json.Unmarshal([]byte(mJSON), &t.Messages); err != nil {
			return nil, fmt.Errorf("unmarshal messages: %w", err)
		}
		turns = append(turns, t)
	}
	return turns, rows.Err()
}

// ListByEpoch returns every round of one epoch in order.
func (r *ConversationRepo) ListByEpoch(ctx context.Context, db *sql.DB, worldID string, epoch int) ([]domain.ConversationTurn, error) {
	const q = `SELECT topic, messages_json, summary, tick FROM conversations
WHERE world_id = ? AND epoch = ? ORDER BY id ASC`

	rows, err := db.QueryContext(ctx, q, worldID, epoch)
	if err != nil {
		return nil, fmt.Errorf("list epoch conversations: %w", err)
	}
	defer rows.Close()

	var turns []domain.ConversationTurn
	for rows.Next() {
		t := domain.ConversationTurn{WorldID: worldID, Epoch: epoch}
		var mJSON string
		if err := rows.Scan(&t.Topic, &mJSON, &t.Summary, &t.Tick); err != nil {
			return nil, fmt.Errorf("scan conversation: %w", err)
		}
		if err := json.Unmarshal([]byte(mJSON), &t.Messages); err != nil {
			return nil, fmt.Errorf("unmarshal messages: %w", err)
		}
		turns = append(turns, t)
	}
	return turns, rows.Err()
}
