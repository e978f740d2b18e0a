package simulation

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/null-engine/nullengine/internal/domain"
	"github.com/null-engine/nullengine/internal/generation"
	"github.com/null-engine/nullengine/internal/store"
)

const (
	strataSummaryLimit = 10
	strataTitleLimit   = 20
)

const strataPrompt = `Analyze epoch %d of a simulated world.

Conversations this epoch:
%s

Wiki pages in this world:
%s
%s
Respond with JSON:
{"summary": "1-2 sentence summary of this epoch", "dominant_themes": ["top 3-5 dominant themes"]}`

// Strata records one summary per completed epoch.
type Strata struct {
	Gen           generation.Generator
	Conversations *store.ConversationRepo
	Pages         *store.WikiRepo
	Repo          *store.StratumRepo
	log           zerolog.Logger
	now           func() time.Time
}

// NewStrata creates a Strata detector.
func NewStrata(gen generation.Generator, logger zerolog.Logger) *Strata {
	return &Strata{
		Gen:           gen,
		Conversations: &store.ConversationRepo{},
		Pages:         &store.WikiRepo{},
		Repo:          &store.StratumRepo{},
		log:           logger.With().Str("component", "strata").Logger(),
		now:           time.Now,
	}
}

type stratumOutput struct {
	Summary        string   `json:"summary"`
	DominantThemes []string `json:"dominant_themes"`
}

// Detect summarizes a completed epoch. It does nothing and returns false when
// the epoch already has a stratum. Malformed generation output still stores
// an empty stratum so the epoch is not summarized twice.
func (s *Strata) Detect(ctx context.Context, db *sql.DB, worldID string, epoch int) (bool, error) {
	existing, err := s.Repo.GetByEpoch(ctx, db, worldID, epoch)
	if err != nil {
		return false, err
	}
	if existing != nil {
		return false, nil
	}

	turns, err := s.Conversations.ListByEpoch(ctx, db, worldID, epoch)
	if err != nil {
		return false, err
	}
	var summaries []string
	for _, t := range turns {
		if t.Summary != "" && len(summaries) < strataSummaryLimit {
			summaries = append(summaries, "- "+t.Summary)
		}
	}

	pages, err := s.Pages.ListByWorld(ctx, db, worldID)
	if err != nil {
		return false, err
	}
	var titles []string
	for _, p := range pages {
		if len(titles) == strataTitleLimit {
			break
		}
		titles = append(titles, "- "+p.Title)
	}

	prev := ""
	if epoch > 0 {
		before, err := s.Repo.GetByEpoch(ctx, db, worldID, epoch-1)
		if err != nil {
			return false, err
		}
		if before != nil && len(before.DominantThemes) > 0 {
			prev = "\nPrevious epoch themes: " + strings.Join(before.DominantThemes, ", ") + "\n"
		}
	}

	var out stratumOutput
	err = s.Gen.GenerateJSON(ctx, generation.Request{
		Role:      generation.RoleChronicler,
		Prompt:    fmt.Sprintf(strataPrompt, epoch, strings.Join(summaries, "\n"), strings.Join(titles, "\n"), prev),
		MaxTokens: 512,
	}, &out)
	if err != nil {
		if !errors.Is(err, domain.ErrGenerationMalformed) {
			return false, fmt.Errorf("generate stratum: %w", err)
		}
		s.log.Warn().Err(err).Str("world_id", worldID).Int("epoch", epoch).Msg("stratum.malformed")
		out = stratumOutput{}
	}
	if out.DominantThemes == nil {
		out.DominantThemes = []string{}
	}

	created, err := s.Repo.Save(ctx, db, domain.Stratum{
		WorldID:        worldID,
		Epoch:          epoch,
		Summary:        strings.TrimSpace(out.Summary),
		DominantThemes: out.DominantThemes,
		CreatedAt:      s.now().Unix(),
	})
	if err != nil {
		return false, err
	}
	if created {
		s.log.Info().Str("world_id", worldID).Int("epoch", epoch).Msg("stratum.created")
	}
	return created, nil
}
