package epoch

import (
	"context"
	"database/sql"

	"github.com/null-engine/nullengine/internal/broadcast"
	"github.com/null-engine/nullengine/internal/domain"
	"github.com/null-engine/nullengine/internal/store"
)

// BroadcastHook announces epoch.transition with the world's agent count.
type BroadcastHook struct {
	Agents *store.AgentRepo
}

// OnEpoch implements Hook.
func (h BroadcastHook) OnEpoch(ctx context.Context, tx *sql.Tx, w *domain.World, out broadcast.Publisher) error {
	agents := h.Agents
	if agents == nil {
		agents = &store.AgentRepo{}
	}
	total, err := agents.CountByWorldTx(ctx, tx, w.ID)
	if err != nil {
		return err
	}
	out.Broadcast(w.ID, broadcast.NewEnvelope(broadcast.TypeEpochTransition, w.CurrentEpoch, map[string]any{
		"new_epoch":    w.CurrentEpoch,
		"total_agents": total,
	}))
	return nil
}

// BeliefDriftHook is where agent beliefs will drift between epochs. It
// currently changes nothing.
type BeliefDriftHook struct{}

// OnEpoch implements Hook.
func (BeliefDriftHook) OnEpoch(context.Context, *sql.Tx, *domain.World, broadcast.Publisher) error {
	return nil
}
