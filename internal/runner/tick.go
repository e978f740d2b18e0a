package runner

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/null-engine/nullengine/internal/broadcast"
	"github.com/null-engine/nullengine/internal/consensus"
	"github.com/null-engine/nullengine/internal/domain"
	"github.com/null-engine/nullengine/internal/epoch"
	"github.com/null-engine/nullengine/internal/herald"
	"github.com/null-engine/nullengine/internal/simulation"
	"github.com/null-engine/nullengine/internal/store"
)

const (
	wikiTopicWindow   = 10
	wikiContextWindow = 5
	wikiMaxTopics     = 3
)

// Pipeline holds the collaborators a tick needs. One Pipeline is shared by
// every runner; per-world state lives in the runner.
type Pipeline struct {
	DB            *sql.DB
	Worlds        *store.WorldRepo
	Agents        *store.AgentRepo
	Factions      *store.FactionRepo
	Conversations *store.ConversationRepo
	Events        *store.WorldEventRepo
	Posts         *store.PostRepo

	Conversation *simulation.Conversation
	Triggers     *simulation.Events
	Writers      *simulation.Posts
	Wiki         *simulation.Wiki
	Strata       *simulation.Strata

	Consensus *consensus.Engine
	Herald    *herald.Herald
	Clock     *epoch.Clock

	// Pub receives the clock hooks' envelopes once the tick commits.
	Pub broadcast.Publisher

	Logger zerolog.Logger
}

// TickResult counts what one tick produced.
type TickResult struct {
	Participants int
	Messages     int
	Claims       int
	Events       int
	Posts        int
	Canonized    int
	Expired      int
	EpochChanged bool
	WikiPages    int
}

type rollingSummary struct {
	topic string
	line  string
}

// Tick runs one pipeline step for w. Generation and broadcasts happen
// first; the conversation, events, posts and the clock are then written in
// a single transaction. Epoch-boundary work, including the clock hooks'
// broadcasts and the expiry of unagreed claims, runs after commit and never
// fails the tick.
func (p *Pipeline) Tick(ctx context.Context, w *domain.World, summaries *[]rollingSummary) (TickResult, error) {
	var res TickResult

	agents, err := p.Agents.ListByWorld(ctx, p.DB, w.ID)
	if err != nil {
		return res, err
	}
	factions, err := p.Factions.ListByWorld(ctx, p.DB, w.ID)
	if err != nil {
		return res, err
	}

	turn, err := p.Conversation.Run(ctx, *w, agents, factions)
	if err != nil {
		return res, err
	}
	res.Participants = len(turn.Participants)
	res.Messages = len(turn.Messages)

	if len(turn.Messages) > 0 {
		*summaries = append(*summaries, rollingSummary{
			topic: turn.Topic,
			line:  fmt.Sprintf("[E%dT%d] %s: %d messages", w.CurrentEpoch, w.CurrentTick, turn.Topic, len(turn.Messages)),
		})

		claims, err := p.Consensus.ExtractClaims(ctx, turn.Text())
		if err != nil {
			return res, err
		}
		// The first participant proposes; everyone else in the turn endorses.
		proposer := turn.Participants[0]
		for _, c := range claims {
			p.Consensus.Propose(w.ID, c, proposer.ID, proposer.FactionID)
			for _, a := range turn.Participants[1:] {
				p.Consensus.Vote(w.ID, c.Text, a.ID, a.FactionID)
			}
		}
		res.Claims = len(claims)
	}

	events := p.Triggers.Check(*w)
	for _, ev := range events {
		p.Herald.Buffer(w.ID, domain.EventBufferEntry{Description: ev.Description, Type: ev.Type})
	}
	res.Events = len(events)

	post := p.Writers.Maybe(ctx, *w, agents)
	if post != nil {
		res.Posts = 1
	}

	res.Canonized = len(p.Consensus.Reconcile(w.ID, w.CurrentEpoch))

	completed := w.CurrentEpoch
	rolled, err := p.persist(ctx, w, turn, events, post)
	if err != nil {
		return res, err
	}
	res.EpochChanged = rolled

	if rolled {
		res.Expired = p.Consensus.Expire(w.ID)
		res.WikiPages = p.closeEpoch(ctx, w, completed, summaries)
	}
	return res, nil
}

func (p *Pipeline) persist(ctx context.Context, w *domain.World, turn domain.ConversationTurn, events []domain.WorldEvent, post *domain.AgentPost) (bool, error) {
	tx, err := p.DB.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if len(turn.Messages) > 0 {
		if err := p.Conversations.AppendTx(ctx, tx, turn); err != nil {
			return false, err
		}
	}
	for _, ev := range events {
		if _, err := p.Events.AppendTx(ctx, tx, ev); err != nil {
			return false, err
		}
	}
	if post != nil {
		if err := p.Posts.CreateTx(ctx, tx, *post); err != nil {
			return false, err
		}
	}

	prev := *w
	var out broadcast.Outbox
	rolled, err := p.Clock.Advance(ctx, tx, w, &out)
	if err != nil {
		return false, err
	}
	if err := tx.Commit(); err != nil {
		*w = prev
		return false, fmt.Errorf("commit tick: %w", err)
	}
	if p.Pub != nil {
		out.Flush(p.Pub)
	}
	return rolled, nil
}

// closeEpoch announces the new epoch, summarizes the completed one and
// refreshes wiki pages for the recent topics. It returns the number of
// pages written.
func (p *Pipeline) closeEpoch(ctx context.Context, w *domain.World, completed int, summaries *[]rollingSummary) int {
	log := p.Logger.With().Str("world_id", w.ID).Int("epoch", completed).Logger()

	p.Herald.Announce(ctx, w.ID, w.CurrentEpoch)

	if _, err := p.Strata.Detect(ctx, p.DB, w.ID, completed); err != nil {
		log.Error().Err(err).Msg("runner.stratum_failed")
	}

	all := *summaries
	if len(all) == 0 {
		return 0
	}
	recent := all
	if len(recent) > wikiTopicWindow {
		recent = recent[len(recent)-wikiTopicWindow:]
	}
	var topics []string
	seen := make(map[string]bool)
	for _, s := range recent {
		if !seen[s.topic] && len(topics) < wikiMaxTopics {
			seen[s.topic] = true
			topics = append(topics, s.topic)
		}
	}
	contextLines := make([]string, 0, wikiContextWindow)
	start := len(all) - wikiContextWindow
	if start < 0 {
		start = 0
	}
	for _, s := range all[start:] {
		contextLines = append(contextLines, s.line)
	}

	pages := 0
	for _, topic := range topics {
		if _, err := p.Wiki.Refresh(ctx, p.DB, w.ID, w.CurrentEpoch, topic, contextLines); err != nil {
			log.Warn().Err(err).Str("topic", topic).Msg("runner.wiki_failed")
			continue
		}
		pages++
	}
	*summaries = nil
	return pages
}
