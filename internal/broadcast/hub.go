package broadcast

import (
	"encoding/json"
	"sync"

	"github.com/rs/zerolog"
)

// Observer receives serialized envelopes for one world.
type Observer interface {
	Send(data []byte) error
	Close() error
}

// Publisher is the narrow view of a Hub that producers depend on.
type Publisher interface {
	Broadcast(worldID string, env Envelope)
}

// Hub tracks observers per world and delivers envelopes to them.
// It is safe for concurrent use.
type Hub struct {
	log zerolog.Logger

	mu        sync.Mutex
	observers map[string][]Observer
}

// NewHub creates an empty Hub.
func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		log:       logger.With().Str("component", "broadcast").Logger(),
		observers: make(map[string][]Observer),
	}
}

// Subscribe adds obs to worldID. Subscribing the same observer twice is a no-op.
func (h *Hub) Subscribe(worldID string, obs Observer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, o := range h.observers[worldID] {
		if o == obs {
			return
		}
	}
	h.observers[worldID] = append(h.observers[worldID], obs)
}

// Unsubscribe removes obs from worldID. Unknown observers are ignored.
func (h *Hub) Unsubscribe(worldID string, obs Observer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(worldID, obs)
}

func (h *Hub) removeLocked(worldID string, obs Observer) bool {
	list := h.observers[worldID]
	for i, o := range list {
		if o == obs {
			list = append(list[:i:i], list[i+1:]...)
			if len(list) == 0 {
				delete(h.observers, worldID)
			} else {
				h.observers[worldID] = list
			}
			return true
		}
	}
	return false
}

// Count returns the number of observers subscribed to worldID.
func (h *Hub) Count(worldID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.observers[worldID])
}

// Broadcast serializes env once and sends it to every observer of worldID.
// Observers whose send fails are removed and closed. Broadcast never fails.
func (h *Hub) Broadcast(worldID string, env Envelope) {
	h.mu.Lock()
	subs := make([]Observer, len(h.observers[worldID]))
	copy(subs, h.observers[worldID])
	h.mu.Unlock()

	if len(subs) == 0 {
		return
	}

	data, err := json.Marshal(env)
	if err != nil {
		h.log.Error().Err(err).Str("world_id", worldID).Str("type", env.Type).Msg("broadcast.marshal_failed")
		return
	}

	var failed []Observer
	for _, obs := range subs {
		if err := obs.Send(data); err != nil {
			h.log.Debug().Err(err).Str("world_id", worldID).Str("type", env.Type).Msg("broadcast.observer_dropped")
			failed = append(failed, obs)
		}
	}
	if len(failed) == 0 {
		return
	}

	h.mu.Lock()
	var removed []Observer
	for _, obs := range failed {
		if h.removeLocked(worldID, obs) {
			removed = append(removed, obs)
		}
	}
	h.mu.Unlock()

	for _, obs := range removed {
		_ = obs.Close()
	}
}
