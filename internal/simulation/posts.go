package simulation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/null-engine/nullengine/internal/broadcast"
	"github.com/null-engine/nullengine/internal/domain"
	"github.com/null-engine/nullengine/internal/generation"
)

const postPrompt = `You are %s, %s.
Personality: %s
Motivation: %s

Write a short social media post (1-3 paragraphs) sharing your thoughts. React
to recent events, share an opinion, reflect on your goals or make an
announcement. Stay in character.

Respond with ONLY the post content.`

// Posts lets a random agent write a social post now and then.
type Posts struct {
	Probability float64
	Gen         generation.Generator
	Pub         broadcast.Publisher
	Rand        Rand
	log         zerolog.Logger
	now         func() time.Time
}

// NewPosts creates a Posts source firing with probability p per tick.
func NewPosts(p float64, gen generation.Generator, pub broadcast.Publisher, rnd Rand, logger zerolog.Logger) *Posts {
	return &Posts{
		Probability: p,
		Gen:         gen,
		Pub:         pub,
		Rand:        rnd,
		log:         logger.With().Str("component", "posts").Logger(),
		now:         time.Now,
	}
}

// Maybe rolls for a post and, on a hit, has a random agent write one and
// broadcasts post.created. It returns nil when nothing was written; a failed
// generation is logged and skipped.
func (p *Posts) Maybe(ctx context.Context, w domain.World, agents []domain.Agent) *domain.AgentPost {
	if len(agents) == 0 || p.Rand.Float64() >= p.Probability {
		return nil
	}
	agent := agents[p.Rand.Intn(len(agents))]

	content, err := p.Gen.GenerateText(ctx, generation.Request{
		Role: generation.RoleConversation,
		Prompt: fmt.Sprintf(postPrompt,
			agent.Name,
			orDefault(agent.Persona.Role, "a member of this world"),
			orDefault(agent.Persona.Personality, "thoughtful and observant"),
			orDefault(agent.Persona.Motivation, "to understand the world"),
		),
		Temperature: 0.9,
		MaxTokens:   500,
	})
	if err != nil {
		p.log.Warn().Err(err).Str("world_id", w.ID).Str("agent", agent.Name).Msg("post.generation_failed")
		return nil
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return nil
	}

	post := &domain.AgentPost{
		ID:        uuid.NewString(),
		WorldID:   w.ID,
		AgentID:   agent.ID,
		AgentName: agent.Name,
		Epoch:     w.CurrentEpoch,
		Tick:      w.CurrentTick,
		Content:   content,
		CreatedAt: p.now().Unix(),
	}
	p.Pub.Broadcast(w.ID, broadcast.NewEnvelope(broadcast.TypePostCreated, w.CurrentEpoch, map[string]any{
		"id":         post.ID,
		"agent_id":   post.AgentID,
		"agent_name": post.AgentName,
		"content":    truncate(post.Content, 200),
		"tick":       post.Tick,
	}))
	return post
}
