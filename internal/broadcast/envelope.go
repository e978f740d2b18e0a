// Package broadcast fans world events out to live observers.
package broadcast

import "time"

// Envelope types.
const (
	TypeAgentMessage       = "agent.message"
	TypeEventTriggered     = "event.triggered"
	TypeConsensusReached   = "consensus.reached"
	TypeHeraldAnnouncement = "herald.announcement"
	TypeEpochTransition    = "epoch.transition"
	TypeWikiEdit           = "wiki.edit"
	TypePostCreated        = "post.created"
)

// Envelope is the wire message delivered to observers. Treat it as
// immutable once built.
type Envelope struct {
	Type      string         `json:"type"`
	Timestamp string         `json:"timestamp"`
	Epoch     int            `json:"epoch"`
	Payload   map[string]any `json:"payload"`
}

// NewEnvelope stamps an envelope with the current UTC time.
func NewEnvelope(typ string, epoch int, payload map[string]any) Envelope {
	if payload == nil {
		payload = map[string]any{}
	}
	return Envelope{
		Type:      typ,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Epoch:     epoch,
		Payload:   payload,
	}
}
