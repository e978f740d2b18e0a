// Package herald narrates the notable events of an epoch.
package herald

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/null-engine/nullengine/internal/broadcast"
	"github.com/null-engine/nullengine/internal/domain"
	"github.com/null-engine/nullengine/internal/generation"
)

// recentEvents is how many buffered events feed one announcement.
const recentEvents = 5

const prompt = `You are the Herald, a dramatic narrator for a world simulation.

Recent events:
%s

Write a brief, dramatic 1-2 sentence announcement about the most significant event.
Use archaic or dramatic language. Be concise.`

// Herald buffers events per world and turns them into announcements.
type Herald struct {
	gen generation.Generator
	pub broadcast.Publisher
	log zerolog.Logger

	mu     sync.Mutex
	worlds map[string]*eventBuffer
}

type eventBuffer struct {
	mu      sync.Mutex
	entries []domain.EventBufferEntry
}

// New creates a Herald.
func New(gen generation.Generator, pub broadcast.Publisher, logger zerolog.Logger) *Herald {
	return &Herald{
		gen:    gen,
		pub:    pub,
		log:    logger.With().Str("component", "herald").Logger(),
		worlds: make(map[string]*eventBuffer),
	}
}

func (h *Herald) buffer(worldID string) *eventBuffer {
	h.mu.Lock()
	defer h.mu.Unlock()
	b, ok := h.worlds[worldID]
	if !ok {
		b = &eventBuffer{}
		h.worlds[worldID] = b
	}
	return b
}

// Buffer queues an event for the next announcement of worldID.
func (h *Herald) Buffer(worldID string, entry domain.EventBufferEntry) {
	b := h.buffer(worldID)
	b.mu.Lock()
	b.entries = append(b.entries, entry)
	b.mu.Unlock()
}

// Len reports how many events are waiting for worldID.
func (h *Herald) Len(worldID string) int {
	b := h.buffer(worldID)
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.entries)
}

// Announce narrates the latest buffered events of worldID and broadcasts
// herald.announcement. The buffer is cleared even when generation fails;
// the failure is logged, not returned.
func (h *Herald) Announce(ctx context.Context, worldID string, epoch int) {
	b := h.buffer(worldID)
	b.mu.Lock()
	entries := b.entries
	b.entries = nil
	b.mu.Unlock()

	if len(entries) == 0 {
		return
	}

	recent := entries
	if len(recent) > recentEvents {
		recent = recent[len(recent)-recentEvents:]
	}
	lines := make([]string, 0, len(recent))
	for _, e := range recent {
		desc := e.Description
		if desc == "" {
			desc = e.Type
		}
		if desc == "" {
			desc = "unknown event"
		}
		lines = append(lines, "- "+desc)
	}

	text, err := h.gen.GenerateText(ctx, generation.Request{
		Role:   generation.RoleReaction,
		Prompt: fmt.Sprintf(prompt, strings.Join(lines, "\n")),
	})
	if err != nil {
		h.log.Warn().Err(err).Str("world_id", worldID).Int("epoch", epoch).Int("event_count", len(entries)).Msg("herald.generation_failed")
		return
	}

	h.pub.Broadcast(worldID, broadcast.NewEnvelope(broadcast.TypeHeraldAnnouncement, epoch, map[string]any{
		"text":        text,
		"event_count": len(entries),
	}))
	h.log.Info().Str("world_id", worldID).Int("epoch", epoch).Msg("herald.announced")
}
