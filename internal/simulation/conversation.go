package simulation

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/null-engine/nullengine/internal/broadcast"
	"github.com/null-engine/nullengine/internal/domain"
	"github.com/null-engine/nullengine/internal/generation"
)

// Topics a conversation round can be about.
var Topics = []string{
	"resource distribution",
	"territorial boundaries",
	"trade agreements",
	"recent mysterious events",
	"leadership disputes",
	"ancient prophecies",
	"technological discoveries",
	"cultural traditions",
	"military strategy",
	"diplomatic relations",
	"spiritual beliefs",
	"economic reforms",
}

const (
	minParticipants = 3
	maxParticipants = 8
	minRounds       = 3
	maxRounds       = 6
	historyWindow   = 10
)

const speakerPrompt = `You are %s, %s of the %s faction.

Personality: %s
Motivation: %s
Speech style: %s

Current conversation topic: %s
Previous messages in this conversation:
%s

Respond in character in under 150 words. You may share information or rumors,
react to what others said, propose actions or alliances, or reveal secrets.
Respond ONLY with your character's dialogue or action.`

// Conversation runs one multi-round exchange between a world's agents.
type Conversation struct {
	Gen  generation.Generator
	Pub  broadcast.Publisher
	Rand Rand
	log  zerolog.Logger
}

// NewConversation creates a Conversation.
func NewConversation(gen generation.Generator, pub broadcast.Publisher, rnd Rand, logger zerolog.Logger) *Conversation {
	return &Conversation{
		Gen:  gen,
		Pub:  pub,
		Rand: rnd,
		log:  logger.With().Str("component", "conversation").Logger(),
	}
}

// Run picks 3 to 8 participants and a topic, then lets the participants
// speak in turn for 3 to 6 rounds, broadcasting every message as
// agent.message. Fewer than two available agents yields an empty turn.
// A failed generation call aborts the round.
func (c *Conversation) Run(ctx context.Context, w domain.World, agents []domain.Agent, factions []domain.Faction) (domain.ConversationTurn, error) {
	turn := domain.ConversationTurn{WorldID: w.ID, Epoch: w.CurrentEpoch, Tick: w.CurrentTick}

	participants := c.selectParticipants(agents)
	if len(participants) < 2 {
		return turn, nil
	}
	turn.Participants = participants
	turn.Topic = Topics[c.Rand.Intn(len(Topics))]

	factionNames := make(map[string]string, len(factions))
	for _, f := range factions {
		factionNames[f.ID] = f.Name
	}

	var history []string
	rounds := between(c.Rand, minRounds, maxRounds)
	for round := 0; round < rounds; round++ {
		speaker := participants[round%len(participants)]

		recent := history
		if len(recent) > historyWindow {
			recent = recent[len(recent)-historyWindow:]
		}
		faction := factionNames[speaker.FactionID]
		if faction == "" {
			faction = "Unknown"
		}

		content, err := c.Gen.GenerateText(ctx, generation.Request{
			Role: generation.RoleConversation,
			Prompt: fmt.Sprintf(speakerPrompt,
				speaker.Name,
				orDefault(speaker.Persona.Role, "member"),
				faction,
				speaker.Persona.Personality,
				speaker.Persona.Motivation,
				orDefault(speaker.Persona.SpeechStyle, "neutral"),
				turn.Topic,
				strings.Join(recent, "\n"),
			),
		})
		if err != nil {
			return turn, fmt.Errorf("conversation round %d: %w", round, err)
		}
		content = strings.TrimSpace(content)

		turn.Messages = append(turn.Messages, domain.Message{
			AgentID:   speaker.ID,
			AgentName: speaker.Name,
			Content:   content,
		})
		history = append(history, speaker.Name+": "+content)

		c.Pub.Broadcast(w.ID, broadcast.NewEnvelope(broadcast.TypeAgentMessage, w.CurrentEpoch, map[string]any{
			"agent_id":   speaker.ID,
			"agent_name": speaker.Name,
			"content":    content,
			"tick":       w.CurrentTick,
			"round":      round,
		}))
	}

	turn.Summary = summarize(turn)
	c.log.Debug().Str("world_id", w.ID).Str("topic", turn.Topic).
		Int("participants", len(participants)).Int("messages", len(turn.Messages)).
		Msg("conversation.completed")
	return turn, nil
}

func (c *Conversation) selectParticipants(agents []domain.Agent) []domain.Agent {
	count := between(c.Rand, minParticipants, maxParticipants)
	if len(agents) <= count {
		return append([]domain.Agent(nil), agents...)
	}
	return sample(c.Rand, agents, count)
}

// summarize quotes the opening of the first three messages.
func summarize(turn domain.ConversationTurn) string {
	parts := make([]string, 0, 3)
	for i, m := range turn.Messages {
		if i == 3 {
			break
		}
		parts = append(parts, truncate(m.Content, 60)+"...")
	}
	return fmt.Sprintf("Conversation about '%s': %s", turn.Topic, strings.Join(parts, "; "))
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
