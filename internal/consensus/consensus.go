// Package consensus promotes claims to canon once enough agents from
// enough factions endorse them.
package consensus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/null-engine/nullengine/internal/broadcast"
	"github.com/null-engine/nullengine/internal/domain"
	"github.com/null-engine/nullengine/internal/generation"
)

// MaxExtractedClaims caps how many claims one conversation can yield.
const MaxExtractedClaims = 5

// MaxPendingClaims caps each world's pending list; the oldest claim is
// dropped when a new one would exceed it.
const MaxPendingClaims = 100

const extractionPrompt = `Extract factual claims from this conversation excerpt.

Conversation:
%s

Return a JSON array of claims:
[
  {"claim": "statement of fact", "confidence": 0.0-1.0, "category": "history|science|politics|culture|geography"},
  ...
]

Only extract concrete, verifiable claims. Max 5 claims.`

// Quorum is the agreement needed for canon.
type Quorum struct {
	Votes    int
	Factions int
}

// Engine holds per-world pending claims. Each world's list has its own lock,
// so different worlds never contend.
type Engine struct {
	quorum Quorum
	gen    generation.Generator
	pub    broadcast.Publisher
	log    zerolog.Logger

	mu     sync.Mutex
	worlds map[string]*worldClaims
}

type worldClaims struct {
	mu     sync.Mutex
	claims []*domain.Claim
}

// NewEngine creates an Engine. Zero quorum fields default to 3 votes from
// 2 factions.
func NewEngine(q Quorum, gen generation.Generator, pub broadcast.Publisher, logger zerolog.Logger) *Engine {
	if q.Votes <= 0 {
		q.Votes = 3
	}
	if q.Factions <= 0 {
		q.Factions = 2
	}
	return &Engine{
		quorum: q,
		gen:    gen,
		pub:    pub,
		log:    logger.With().Str("component", "consensus").Logger(),
		worlds: make(map[string]*worldClaims),
	}
}

// lookup returns worldID's claims without creating an entry.
func (e *Engine) lookup(worldID string) *worldClaims {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.worlds[worldID]
}

func (e *Engine) world(worldID string) *worldClaims {
	e.mu.Lock()
	defer e.mu.Unlock()
	w, ok := e.worlds[worldID]
	if !ok {
		w = &worldClaims{}
		e.worlds[worldID] = w
	}
	return w
}

// ExtractClaims asks the generation service for up to MaxExtractedClaims
// claims found in text. Malformed output yields an empty slice; transport
// failures are returned.
func (e *Engine) ExtractClaims(ctx context.Context, text string) ([]domain.Claim, error) {
	if strings.TrimSpace(text) == "" {
		return []domain.Claim{}, nil
	}

	var raw json.RawMessage
	err := e.gen.GenerateJSON(ctx, generation.Request{
		Role:   generation.RoleReaction,
		Prompt: fmt.Sprintf(extractionPrompt, text),
	}, &raw)
	if err != nil {
		if errors.Is(err, domain.ErrGenerationMalformed) {
			e.log.Debug().Err(err).Msg("consensus.extract_malformed")
			return []domain.Claim{}, nil
		}
		return nil, fmt.Errorf("extract claims: %w", err)
	}
	return parseClaims(raw), nil
}

type extractedClaim struct {
	Claim      string  `json:"claim"`
	Confidence float64 `json:"confidence"`
	Category   string  `json:"category"`
}

// parseClaims accepts either a bare array or {"claims": [...]}.
func parseClaims(raw json.RawMessage) []domain.Claim {
	var items []extractedClaim
	if err := json.Unmarshal(raw, &items); err != nil {
		var wrapped struct {
			Claims []extractedClaim `json:"claims"`
		}
		if err := json.Unmarshal(raw, &wrapped); err != nil {
			return []domain.Claim{}
		}
		items = wrapped.Claims
	}

	out := make([]domain.Claim, 0, len(items))
	for _, it := range items {
		text := strings.TrimSpace(it.Claim)
		if text == "" {
			continue
		}
		conf := it.Confidence
		if conf < 0 {
			conf = 0
		} else if conf > 1 {
			conf = 1
		}
		out = append(out, domain.Claim{Text: text, Confidence: conf, Category: it.Category})
		if len(out) == MaxExtractedClaims {
			break
		}
	}
	return out
}

// Propose appends claim as pending with the proposer's implicit vote and
// returns its status after an immediate quorum check.
func (e *Engine) Propose(worldID string, claim domain.Claim, proposer, faction string) domain.ClaimStatus {
	c := claim
	c.Proposer = proposer
	c.OriginatingFaction = faction
	c.Votes = []domain.Vote{{Voter: proposer, Faction: faction}}
	c.Status = domain.ClaimProposed

	w := e.world(worldID)
	w.mu.Lock()
	defer w.mu.Unlock()
	e.checkQuorum(&c)
	w.claims = append(w.claims, &c)
	if over := len(w.claims) - MaxPendingClaims; over > 0 {
		w.claims = dropOldestProposed(w.claims, over)
	}
	return c.Status
}

// dropOldestProposed removes up to n of the oldest non-canon claims so that
// canon claims always survive until Reconcile.
func dropOldestProposed(claims []*domain.Claim, n int) []*domain.Claim {
	kept := claims[:0]
	for _, c := range claims {
		if n > 0 && c.Status == domain.ClaimProposed {
			n--
			continue
		}
		kept = append(kept, c)
	}
	clear(claims[len(kept):])
	return kept
}

// Vote endorses the first pending claim whose text equals text exactly.
// A repeated voter is ignored. ok is false when no pending claim matches.
func (e *Engine) Vote(worldID, text, voter, faction string) (status domain.ClaimStatus, ok bool) {
	w := e.lookup(worldID)
	if w == nil {
		return "", false
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	for _, c := range w.claims {
		if c.Status != domain.ClaimProposed || c.Text != text {
			continue
		}
		if !hasVoter(c, voter) {
			c.Votes = append(c.Votes, domain.Vote{Voter: voter, Faction: faction})
		}
		e.checkQuorum(c)
		return c.Status, true
	}
	return "", false
}

func hasVoter(c *domain.Claim, voter string) bool {
	for _, v := range c.Votes {
		if v.Voter == voter {
			return true
		}
	}
	return false
}

func (e *Engine) checkQuorum(c *domain.Claim) {
	factions := make(map[string]struct{}, len(c.Votes))
	for _, v := range c.Votes {
		factions[v.Faction] = struct{}{}
	}
	if len(c.Votes) >= e.quorum.Votes && len(factions) >= e.quorum.Factions {
		c.Status = domain.ClaimCanon
	}
}

// Reconcile removes every canon claim of worldID, broadcasts
// consensus.reached for each and returns them. A claim is reported once.
func (e *Engine) Reconcile(worldID string, epoch int) []domain.Claim {
	w := e.lookup(worldID)
	if w == nil {
		return nil
	}
	w.mu.Lock()
	var canon []domain.Claim
	kept := w.claims[:0]
	for _, c := range w.claims {
		if c.Status == domain.ClaimCanon {
			canon = append(canon, cloneClaim(c))
		} else {
			kept = append(kept, c)
		}
	}
	clear(w.claims[len(kept):])
	w.claims = kept
	w.mu.Unlock()

	for _, c := range canon {
		e.pub.Broadcast(worldID, broadcast.NewEnvelope(broadcast.TypeConsensusReached, epoch, map[string]any{
			"claim": c.Text,
			"votes": len(c.Votes),
		}))
		e.log.Info().Str("world_id", worldID).Str("claim", c.Text).Int("votes", len(c.Votes)).Msg("consensus.reached")
	}
	return canon
}

// Expire drops every claim of worldID that is still pending and returns how
// many were dropped. Canon claims stay until Reconcile reports them.
func (e *Engine) Expire(worldID string) int {
	w := e.lookup(worldID)
	if w == nil {
		return 0
	}
	w.mu.Lock()
	before := len(w.claims)
	kept := w.claims[:0]
	for _, c := range w.claims {
		if c.Status == domain.ClaimCanon {
			kept = append(kept, c)
		}
	}
	clear(w.claims[len(kept):])
	w.claims = kept
	w.mu.Unlock()

	expired := before - len(kept)
	if expired > 0 {
		e.log.Debug().Str("world_id", worldID).Int("expired", expired).Msg("consensus.expired")
	}
	return expired
}

// Pending returns a copy of worldID's unreconciled claims.
func (e *Engine) Pending(worldID string) []domain.Claim {
	w := e.lookup(worldID)
	if w == nil {
		return []domain.Claim{}
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]domain.Claim, 0, len(w.claims))
	for _, c := range w.claims {
		out = append(out, cloneClaim(c))
	}
	return out
}

func cloneClaim(c *domain.Claim) domain.Claim {
	out := *c
	out.Votes = append([]domain.Vote(nil), c.Votes...)
	return out
}
