// Package broadcasttest records published envelopes for assertions.
package broadcasttest

import (
	"sync"

	"github.com/null-engine/nullengine/internal/broadcast"
)

// Published is one recorded broadcast.
type Published struct {
	WorldID  string
	Envelope broadcast.Envelope
}

// Recorder implements broadcast.Publisher in memory.
type Recorder struct {
	mu  sync.Mutex
	all []Published
}

// Broadcast records env.
func (r *Recorder) Broadcast(worldID string, env broadcast.Envelope) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.all = append(r.all, Published{WorldID: worldID, Envelope: env})
}

// All returns every recorded broadcast in order.
func (r *Recorder) All() []Published {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Published(nil), r.all...)
}

// OfType returns the envelopes of typ, in order.
func (r *Recorder) OfType(typ string) []broadcast.Envelope {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []broadcast.Envelope
	for _, p := range r.all {
		if p.Envelope.Type == typ {
			out = append(out, p.Envelope)
		}
	}
	return out
}

var _ broadcast.Publisher = (*Recorder)(nil)
