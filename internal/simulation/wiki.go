package simulation

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/null-engine/nullengine/internal/broadcast"
	"github.com/null-engine/nullengine/internal/domain"
	"github.com/null-engine/nullengine/internal/generation"
	"github.com/null-engine/nullengine/internal/store"
)

const wikiPrompt = `You are a world librarian writing an encyclopedic article.

Topic: %s
Existing content: %s

Recent conversation summaries:
%s

Write a structured article with the sections Overview, Background & History,
Characteristics, Notable Events, Relationships & Connections and Current
Status. Use a formal third-person tone, mark uncertain information as
reported, and link related topics as [[Page Title]].`

// Wiki keeps one versioned article per recurring conversation topic.
type Wiki struct {
	Gen   generation.Generator
	Pub   broadcast.Publisher
	Pages *store.WikiRepo
	log   zerolog.Logger
	now   func() time.Time
}

// NewWiki creates a Wiki.
func NewWiki(gen generation.Generator, pub broadcast.Publisher, logger zerolog.Logger) *Wiki {
	return &Wiki{
		Gen:   gen,
		Pub:   pub,
		Pages: &store.WikiRepo{},
		log:   logger.With().Str("component", "wiki").Logger(),
		now:   time.Now,
	}
}

// Refresh writes or rewrites the page for topic from the given summaries
// and broadcasts wiki.edit with the stored version.
func (k *Wiki) Refresh(ctx context.Context, db *sql.DB, worldID string, epoch int, topic string, summaries []string) (*domain.WikiPage, error) {
	existing, err := k.Pages.GetByTitle(ctx, db, worldID, topic)
	if err != nil {
		return nil, err
	}
	current := "(new article)"
	if existing != nil && existing.Content != "" {
		current = existing.Content
	}

	lines := make([]string, 0, len(summaries))
	for _, s := range summaries {
		lines = append(lines, "- "+s)
	}
	content, err := k.Gen.GenerateText(ctx, generation.Request{
		Role:      generation.RoleChronicler,
		Prompt:    fmt.Sprintf(wikiPrompt, topic, current, strings.Join(lines, "\n")),
		MaxTokens: 4096,
	})
	if err != nil {
		return nil, fmt.Errorf("generate wiki page %q: %w", topic, err)
	}

	page, err := k.Pages.Upsert(ctx, db, domain.WikiPage{
		ID:        uuid.NewString(),
		WorldID:   worldID,
		Title:     topic,
		Content:   strings.TrimSpace(content),
		UpdatedAt: k.now().Unix(),
	})
	if err != nil {
		return nil, err
	}

	k.Pub.Broadcast(worldID, broadcast.NewEnvelope(broadcast.TypeWikiEdit, epoch, map[string]any{
		"page_id": page.ID,
		"title":   page.Title,
		"version": page.Version,
	}))
	k.log.Info().Str("world_id", worldID).Str("page", topic).Int("version", page.Version).Msg("wiki.updated")
	return page, nil
}
