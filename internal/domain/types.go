// Package domain defines the core types for the NULL Engine orchestrator.
package domain

import (
	"strings"
	"time"
)

// WorldStatus represents the lifecycle status of a world.
type WorldStatus string

const (
	WorldGenerating WorldStatus = "generating"
	WorldCreated    WorldStatus = "created"
	WorldRunning    WorldStatus = "running"
	WorldPaused     WorldStatus = "paused"
	WorldError      WorldStatus = "error"
)

// World is a single simulation. CurrentTick stays below the configured
// ticks-per-epoch at rest; only the epoch clock mutates the tick/epoch pair.
type World struct {
	ID           string         `json:"id"`
	SeedPrompt   string         `json:"seed_prompt"`
	Config       map[string]any `json:"config"`
	Status       WorldStatus    `json:"status"`
	CurrentEpoch int            `json:"current_epoch"`
	CurrentTick  int            `json:"current_tick"`
	StateVersion int64          `json:"state_version"`
	CreatedAt    int64          `json:"created_at"`
	UpdatedAt    int64          `json:"updated_at"`
}

// Faction groups agents that share interests.
type Faction struct {
	ID          string `json:"id"`
	WorldID     string `json:"world_id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Color       string `json:"color"`
}

// Persona describes how an agent speaks and what drives it.
type Persona struct {
	Role        string `json:"role"`
	Personality string `json:"personality"`
	Motivation  string `json:"motivation"`
	SpeechStyle string `json:"speech_style"`
}

// Agent is a simulated participant of a world.
type Agent struct {
	ID        string  `json:"id"`
	WorldID   string  `json:"world_id"`
	FactionID string  `json:"faction_id"`
	Name      string  `json:"name"`
	Persona   Persona `json:"persona"`
}

// Message is one utterance inside a conversation round.
type Message struct {
	AgentID   string `json:"agent_id"`
	AgentName string `json:"agent_name"`
	Content   string `json:"content"`
}

// ConversationTurn is the ephemeral result of one conversation round.
type ConversationTurn struct {
	WorldID      string    `json:"world_id"`
	Epoch        int       `json:"epoch"`
	Tick         int       `json:"tick"`
	Topic        string    `json:"topic"`
	Participants []Agent   `json:"participants"`
	Messages     []Message `json:"messages"`
	Summary      string    `json:"summary"`
}

// Text joins every message body, one per line.
func (t ConversationTurn) Text() string {
	lines := make([]string, 0, len(t.Messages))
	for _, m := range t.Messages {
		lines = append(lines, m.Content)
	}
	return strings.Join(lines, "\n")
}

// ClaimStatus is the consensus state of a claim.
type ClaimStatus string

const (
	ClaimProposed ClaimStatus = "proposed"
	ClaimCanon    ClaimStatus = "canon"
)

// Vote is a single endorsement of a claim.
type Vote struct {
	Voter   string `json:"voter"`
	Faction string `json:"faction"`
}

// Claim is a provisional statement pending multi-faction agreement.
type Claim struct {
	Text               string      `json:"claim"`
	Confidence         float64     `json:"confidence"`
	Category           string      `json:"category"`
	Proposer           string      `json:"proposer"`
	OriginatingFaction string      `json:"faction"`
	Votes              []Vote      `json:"votes"`
	Status             ClaimStatus `json:"status"`
}

// EventBufferEntry is a noteworthy event waiting for the next Herald announcement.
type EventBufferEntry struct {
	Description string `json:"description"`
	Type        string `json:"type"`
}

// WorldEvent is a triggered or injected event persisted for a world.
type WorldEvent struct {
	ID          int64    `json:"id"`
	WorldID     string   `json:"world_id"`
	Epoch       int      `json:"epoch"`
	Tick        int      `json:"tick"`
	Type        string   `json:"type"`
	Description string   `json:"description"`
	Targets     []string `json:"targets,omitempty"`
	CreatedAt   int64    `json:"created_at"`
}

// AgentPost is a short social post written by an agent.
type AgentPost struct {
	ID        string `json:"id"`
	WorldID   string `json:"world_id"`
	AgentID   string `json:"agent_id"`
	AgentName string `json:"agent_name"`
	Epoch     int    `json:"epoch"`
	Tick      int    `json:"tick"`
	Content   string `json:"content"`
	CreatedAt int64  `json:"created_at"`
}

// WikiPage is a versioned article about a recurring topic.
type WikiPage struct {
	ID        string `json:"id"`
	WorldID   string `json:"world_id"`
	Title     string `json:"title"`
	Content   string `json:"content"`
	Version   int    `json:"version"`
	UpdatedAt int64  `json:"updated_at"`
}

// Stratum summarizes one completed epoch.
type Stratum struct {
	WorldID        string   `json:"world_id"`
	Epoch          int      `json:"epoch"`
	Summary        string   `json:"summary"`
	DominantThemes []string `json:"dominant_themes"`
	CreatedAt      int64    `json:"created_at"`
}

// AuditRecord logs control-plane actions.
type AuditRecord struct {
	ID          string `json:"id"`
	WorldID     string `json:"world_id"`
	Category    string `json:"category"`
	Actor       string `json:"actor"`
	Action      string `json:"action"`
	RequestJSON string `json:"request_json"`
	Severity    string `json:"severity"`
	CreatedAt   int64  `json:"created_at"`
}

// Runner status values reported to the metrics store.
const (
	RunnerStarting     = "starting"
	RunnerRunning      = "running"
	RunnerDegraded     = "degraded"
	RunnerStopping     = "stopping"
	RunnerCancelled    = "cancelled"
	RunnerStopped      = "stopped"
	RunnerMissingWorld = "missing_world"
	RunnerError        = "error"
)

// RunnerMetric is the health record of one world runner.
// Pointer fields are nil until the first tick is observed.
type RunnerMetric struct {
	WorldID         string     `json:"world_id"`
	Status          string     `json:"status"`
	TicksTotal      int        `json:"ticks_total"`
	TickFailures    int        `json:"tick_failures"`
	SuccessRate     float64    `json:"success_rate"`
	LastDurationMs  *int64     `json:"last_duration_ms"`
	AvgDurationMs   *float64   `json:"avg_duration_ms"`
	LastTickDelayMs *int64     `json:"last_tick_delay_ms"`
	LastSeenAt      *time.Time `json:"last_seen_at"`
}

// LoopStatus is the state of a supervised background job.
type LoopStatus string

const (
	LoopRunning   LoopStatus = "running"
	LoopExited    LoopStatus = "exited"
	LoopCancelled LoopStatus = "cancelled"
	LoopError     LoopStatus = "error"
	LoopUnknown   LoopStatus = "unknown"
)

// LoopMetric is the health record of one supervised background job.
type LoopMetric struct {
	Name          string     `json:"name"`
	Status        LoopStatus `json:"status"`
	RestartCount  int        `json:"restart_count"`
	LastStartedAt *time.Time `json:"last_started_at"`
	LastErrorAt   *time.Time `json:"last_error_at"`
	LastError     *string    `json:"last_error"`
}

// Alert severities.
const (
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// Alert is derived from metrics snapshots for operators.
type Alert struct {
	Code     string         `json:"code"`
	Severity string         `json:"severity"`
	Message  string         `json:"message"`
	Context  map[string]any `json:"context"`
}
