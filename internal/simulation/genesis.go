package simulation

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/null-engine/nullengine/internal/domain"
	"github.com/null-engine/nullengine/internal/generation"
	"github.com/null-engine/nullengine/internal/store"
)

const (
	defaultFactions         = 3
	defaultAgentsPerFaction = 4
	maxAgentsPerFaction     = 8
)

const worldPlanPrompt = `You are a world architect. Given the seed prompt below, design a world.

Seed: %s

Respond with JSON:
{"era": "time period", "tech_level": "technology description",
 "description": "2-3 sentence world description",
 "factions": [{"name": "...", "description": "...", "color": "#hex", "agent_count": 4}],
 "constraints": ["rule1", "rule2"]}

Generate exactly %d factions with conflicting interests.`

const personaPrompt = `Generate %d unique character personas for the "%s" faction.

World: %s
Faction: %s

Respond with a JSON array:
[{"name": "unique name", "role": "role or occupation", "personality": "key traits",
  "motivation": "primary motivation", "speech_style": "how they talk"}]`

type worldPlan struct {
	Era         string        `json:"era"`
	TechLevel   string        `json:"tech_level"`
	Description string        `json:"description"`
	Factions    []factionPlan `json:"factions"`
	Constraints []string      `json:"constraints"`
}

type factionPlan struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Color       string `json:"color"`
	AgentCount  int    `json:"agent_count"`
}

type personaPlan struct {
	Name        string `json:"name"`
	Role        string `json:"role"`
	Personality string `json:"personality"`
	Motivation  string `json:"motivation"`
	SpeechStyle string `json:"speech_style"`
}

// fallbackFactions seed a world whose plan could not be parsed.
var fallbackFactions = []factionPlan{
	{Name: "The Keepers", Description: "Guardians of the old order and its records.", Color: "#4F7CAC", AgentCount: 3},
	{Name: "The Drifters", Description: "Wanderers who trade in rumors and salvage.", Color: "#C97B3C", AgentCount: 3},
	{Name: "The Ascendant", Description: "Reformers convinced the world must change.", Color: "#7A4FA3", AgentCount: 3},
}

var fallbackRoles = []personaPlan{
	{Role: "elder", Personality: "patient, guarded", Motivation: "preserve what remains", SpeechStyle: "measured"},
	{Role: "scout", Personality: "restless, curious", Motivation: "find what others missed", SpeechStyle: "quick and blunt"},
	{Role: "envoy", Personality: "charming, calculating", Motivation: "gain leverage for the faction", SpeechStyle: "formal"},
	{Role: "artisan", Personality: "stubborn, proud", Motivation: "leave a lasting work", SpeechStyle: "plain"},
}

// Genesis creates worlds from a seed prompt.
type Genesis struct {
	DB       *sql.DB
	Gen      generation.Generator
	Worlds   *store.WorldRepo
	Factions *store.FactionRepo
	Agents   *store.AgentRepo
	log      zerolog.Logger
	now      func() time.Time
}

// NewGenesis creates a Genesis.
func NewGenesis(db *sql.DB, gen generation.Generator, logger zerolog.Logger) *Genesis {
	return &Genesis{
		DB:       db,
		Gen:      gen,
		Worlds:   &store.WorldRepo{},
		Factions: &store.FactionRepo{},
		Agents:   &store.AgentRepo{},
		log:      logger.With().Str("component", "genesis").Logger(),
		now:      time.Now,
	}
}

// Create runs Begin and Populate.
func (g *Genesis) Create(ctx context.Context, seed string, cfg map[string]any) (*domain.World, error) {
	w, err := g.Begin(ctx, seed, cfg)
	if err != nil {
		return nil, err
	}
	if err := g.Populate(ctx, w); err != nil {
		return nil, err
	}
	return w, nil
}

// Begin inserts a new world in the generating status.
func (g *Genesis) Begin(ctx context.Context, seed string, cfg map[string]any) (*domain.World, error) {
	seed = strings.TrimSpace(seed)
	if seed == "" {
		return nil, domain.ErrInvalidSeed
	}
	if cfg == nil {
		cfg = map[string]any{}
	}
	now := g.now().Unix()
	w := &domain.World{
		ID:           uuid.NewString(),
		SeedPrompt:   seed,
		Config:       cfg,
		Status:       domain.WorldGenerating,
		StateVersion: 1,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := g.Worlds.Create(ctx, g.DB, *w); err != nil {
		return nil, err
	}
	g.log.Info().Str("world_id", w.ID).Str("seed", truncate(seed, 80)).Msg("genesis.started")
	return w, nil
}

// Populate generates factions and agents for a generating world and marks it
// created. Malformed output falls back to a built-in roster. A failed
// generation call leaves the world in the error status.
func (g *Genesis) Populate(ctx context.Context, w *domain.World) error {
	plan, err := g.planWorld(ctx, w.SeedPrompt)
	if err != nil {
		g.fail(w, err)
		return err
	}

	worldDesc := orDefault(plan.Description, w.SeedPrompt)
	var factions []domain.Faction
	var agents []domain.Agent
	for _, fp := range plan.Factions {
		f := domain.Faction{
			ID:          uuid.NewString(),
			WorldID:     w.ID,
			Name:        fp.Name,
			Description: fp.Description,
			Color:       orDefault(fp.Color, "#FFFFFF"),
		}
		personas, err := g.personas(ctx, fp, worldDesc)
		if err != nil {
			g.fail(w, err)
			return err
		}
		for _, p := range personas {
			agents = append(agents, domain.Agent{
				ID:        uuid.NewString(),
				WorldID:   w.ID,
				FactionID: f.ID,
				Name:      p.Name,
				Persona: domain.Persona{
					Role:        p.Role,
					Personality: p.Personality,
					Motivation:  p.Motivation,
					SpeechStyle: p.SpeechStyle,
				},
			})
		}
		factions = append(factions, f)
	}

	cfg := map[string]any{
		"era":         plan.Era,
		"tech_level":  plan.TechLevel,
		"description": plan.Description,
		"constraints": plan.Constraints,
	}
	for k, v := range w.Config {
		cfg[k] = v
	}

	if err := g.persist(ctx, w.ID, cfg, factions, agents); err != nil {
		g.fail(w, err)
		return err
	}

	w.Config = cfg
	w.Status = domain.WorldCreated
	g.log.Info().Str("world_id", w.ID).Int("factions", len(factions)).Int("agents", len(agents)).Msg("genesis.created")
	return nil
}

func (g *Genesis) persist(ctx context.Context, worldID string, cfg map[string]any, factions []domain.Faction, agents []domain.Agent) error {
	tx, err := g.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	for _, f := range factions {
		if err := g.Factions.CreateTx(ctx, tx, f); err != nil {
			return err
		}
	}
	for _, a := range agents {
		if err := g.Agents.CreateTx(ctx, tx, a); err != nil {
			return err
		}
	}
	if err := g.Worlds.CompleteGenesisTx(ctx, tx, worldID, cfg); err != nil {
		return err
	}
	return tx.Commit()
}

// fail marks the world as errored. It uses a fresh context so a cancelled
// caller still leaves a consistent status behind.
func (g *Genesis) fail(w *domain.World, cause error) {
	g.log.Error().Err(cause).Str("world_id", w.ID).Msg("genesis.failed")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := g.Worlds.UpdateStatus(ctx, g.DB, w.ID, domain.WorldError); err != nil {
		g.log.Error().Err(err).Str("world_id", w.ID).Msg("genesis.mark_error_failed")
		return
	}
	w.Status = domain.WorldError
}

func (g *Genesis) planWorld(ctx context.Context, seed string) (worldPlan, error) {
	var plan worldPlan
	err := g.Gen.GenerateJSON(ctx, generation.Request{
		Role:   generation.RoleGenesis,
		Prompt: fmt.Sprintf(worldPlanPrompt, seed, defaultFactions),
	}, &plan)
	if err != nil && !errors.Is(err, domain.ErrGenerationMalformed) {
		return worldPlan{}, fmt.Errorf("plan world: %w", err)
	}

	var factions []factionPlan
	for _, f := range plan.Factions {
		if f.Name = strings.TrimSpace(f.Name); f.Name != "" {
			factions = append(factions, f)
		}
	}
	if len(factions) == 0 {
		g.log.Warn().Msg("genesis.fallback_factions")
		factions = append([]factionPlan(nil), fallbackFactions...)
	}
	plan.Factions = factions
	return plan, nil
}

func (g *Genesis) personas(ctx context.Context, fp factionPlan, worldDesc string) ([]personaPlan, error) {
	count := fp.AgentCount
	if count <= 0 {
		count = defaultAgentsPerFaction
	}
	if count > maxAgentsPerFaction {
		count = maxAgentsPerFaction
	}

	var raw json.RawMessage
	err := g.Gen.GenerateJSON(ctx, generation.Request{
		Role:      generation.RoleGenesis,
		Prompt:    fmt.Sprintf(personaPrompt, count, fp.Name, worldDesc, fp.Description),
		MaxTokens: 4096,
	}, &raw)
	if err != nil && !errors.Is(err, domain.ErrGenerationMalformed) {
		return nil, fmt.Errorf("generate personas for %s: %w", fp.Name, err)
	}
	out := parsePersonas(raw)

	var personas []personaPlan
	for _, p := range out {
		if p.Name = strings.TrimSpace(p.Name); p.Name != "" {
			personas = append(personas, p)
		}
		if len(personas) == count {
			break
		}
	}
	if len(personas) == 0 {
		g.log.Warn().Str("faction", fp.Name).Msg("genesis.fallback_personas")
		personas = fallbackPersonas(fp.Name, count)
	}
	return personas, nil
}

// parsePersonas accepts either a bare array or {"personas": [...]}.
func parsePersonas(raw json.RawMessage) []personaPlan {
	if len(raw) == 0 {
		return nil
	}
	var list []personaPlan
	if err := json.Unmarshal(raw, &list); err == nil {
		return list
	}
	var wrapped struct {
		Personas []personaPlan `json:"personas"`
	}
	if err := json.Unmarshal(raw, &wrapped); err == nil {
		return wrapped.Personas
	}
	return nil
}

func fallbackPersonas(faction string, count int) []personaPlan {
	out := make([]personaPlan, 0, count)
	for i := 0; i < count; i++ {
		p := fallbackRoles[i%len(fallbackRoles)]
		p.Name = fmt.Sprintf("%s %s %d", strings.TrimPrefix(faction, "The "), capitalize(p.Role), i+1)
		out = append(out, p)
	}
	return out
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
