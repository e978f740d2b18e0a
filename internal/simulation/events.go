package simulation

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/null-engine/nullengine/internal/broadcast"
	"github.com/null-engine/nullengine/internal/domain"
	"github.com/null-engine/nullengine/internal/store"
)

// RandomEvents are the events a tick can trigger on its own.
var RandomEvents = []string{
	"A mysterious plague spreads through the region",
	"A rare resource deposit is discovered",
	"A prophet emerges with dire warnings",
	"Trade routes are disrupted by natural disaster",
	"An ancient artifact is unearthed",
	"A solar eclipse triggers superstitious panic",
	"A foreign delegation arrives seeking alliance",
	"Underground resistance movement forms",
	"A great fire devastates a major settlement",
	"Unusual weather patterns affect harvests",
}

// EventRandom is the type of events triggered by chance.
const EventRandom = "random"

// Events triggers random events and accepts injected ones.
type Events struct {
	Probability float64
	Pub         broadcast.Publisher
	Rand        Rand
	Repo        *store.WorldEventRepo
	now         func() time.Time
}

// NewEvents creates an Events source firing with probability p per tick.
func NewEvents(p float64, pub broadcast.Publisher, rnd Rand) *Events {
	return &Events{
		Probability: p,
		Pub:         pub,
		Rand:        rnd,
		Repo:        &store.WorldEventRepo{},
		now:         time.Now,
	}
}

// Check rolls for a random event at the world's current position and
// broadcasts event.triggered for each one. The events are not persisted.
func (e *Events) Check(w domain.World) []domain.WorldEvent {
	if e.Rand.Float64() >= e.Probability {
		return nil
	}
	ev := domain.WorldEvent{
		WorldID:     w.ID,
		Epoch:       w.CurrentEpoch,
		Tick:        w.CurrentTick,
		Type:        EventRandom,
		Description: RandomEvents[e.Rand.Intn(len(RandomEvents))],
		CreatedAt:   e.now().Unix(),
	}
	e.Pub.Broadcast(w.ID, broadcast.NewEnvelope(broadcast.TypeEventTriggered, w.CurrentEpoch, map[string]any{
		"event_type":  ev.Type,
		"description": ev.Description,
		"tick":        ev.Tick,
	}))
	return []domain.WorldEvent{ev}
}

// Inject persists an operator-supplied event and broadcasts it.
func (e *Events) Inject(ctx context.Context, db *sql.DB, w domain.World, eventType, description string, targets []string) (domain.WorldEvent, error) {
	eventType = strings.TrimSpace(eventType)
	if eventType == "" {
		eventType = "injected"
	}
	ev := domain.WorldEvent{
		WorldID:     w.ID,
		Epoch:       w.CurrentEpoch,
		Tick:        w.CurrentTick,
		Type:        eventType,
		Description: strings.TrimSpace(description),
		Targets:     targets,
		CreatedAt:   e.now().Unix(),
	}
	if ev.Description == "" {
		return domain.WorldEvent{}, domain.ErrInvalidEvent
	}

	id, err := e.Repo.Append(ctx, db, ev)
	if err != nil {
		return domain.WorldEvent{}, err
	}
	ev.ID = id

	if targets == nil {
		targets = []string{}
	}
	e.Pub.Broadcast(w.ID, broadcast.NewEnvelope(broadcast.TypeEventTriggered, w.CurrentEpoch, map[string]any{
		"event_type":  ev.Type,
		"description": ev.Description,
		"targets":     targets,
		"tick":        ev.Tick,
	}))
	return ev, nil
}
