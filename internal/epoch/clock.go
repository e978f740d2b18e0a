// Package epoch advances a world's tick counter and rolls epochs over.
package epoch

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/null-engine/nullengine/internal/broadcast"
	"github.com/null-engine/nullengine/internal/domain"
	"github.com/null-engine/nullengine/internal/store"
)

// Hook runs inside the tick transaction when a world enters a new epoch.
// Hooks must only use tx for database access and must publish through out,
// which the caller flushes after commit.
type Hook interface {
	OnEpoch(ctx context.Context, tx *sql.Tx, w *domain.World, out broadcast.Publisher) error
}

// HookFunc adapts a function to Hook.
type HookFunc func(ctx context.Context, tx *sql.Tx, w *domain.World, out broadcast.Publisher) error

// OnEpoch calls f.
func (f HookFunc) OnEpoch(ctx context.Context, tx *sql.Tx, w *domain.World, out broadcast.Publisher) error {
	return f(ctx, tx, w, out)
}

// Clock is the only writer of a world's tick/epoch pair.
type Clock struct {
	TicksPerEpoch int
	WorldRepo     *store.WorldRepo
	Hooks         []Hook
	now           func() time.Time
}

// NewClock creates a Clock. A non-positive ticksPerEpoch defaults to 10.
func NewClock(ticksPerEpoch int, hooks ...Hook) *Clock {
	if ticksPerEpoch <= 0 {
		ticksPerEpoch = 10
	}
	return &Clock{
		TicksPerEpoch: ticksPerEpoch,
		WorldRepo:     &store.WorldRepo{},
		Hooks:         hooks,
		now:           time.Now,
	}
}

// Advance moves w forward one tick inside tx. When the tick reaches
// TicksPerEpoch it wraps to 0, the epoch increments, hooks run and true is
// returned. Hook envelopes are queued on out; pass a broadcast.Outbox and
// flush it once tx commits. The new clock is persisted with optimistic
// locking; on any failure w is restored to its previous value.
func (c *Clock) Advance(ctx context.Context, tx *sql.Tx, w *domain.World, out broadcast.Publisher) (bool, error) {
	prev := *w

	w.CurrentTick++
	rolled := false
	if w.CurrentTick >= c.TicksPerEpoch {
		w.CurrentTick = 0
		w.CurrentEpoch++
		rolled = true
	}
	w.UpdatedAt = c.now().Unix()

	if rolled {
		for _, h := range c.Hooks {
			if err := h.OnEpoch(ctx, tx, w, out); err != nil {
				*w = prev
				return false, fmt.Errorf("epoch hook: %w", err)
			}
		}
	}

	if err := c.WorldRepo.UpdateClockTx(ctx, tx, *w); err != nil {
		*w = prev
		return false, fmt.Errorf("persist clock: %w", err)
	}
	w.StateVersion++
	return rolled, nil
}
