// Package jobs holds the engine's background jobs.
package jobs

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/null-engine/nullengine/internal/domain"
	"github.com/null-engine/nullengine/internal/simulation"
	"github.com/null-engine/nullengine/internal/store"
)

// AutoGenesisName is the supervised loop name of the auto-genesis job.
const AutoGenesisName = "auto-genesis"

// DefaultSeeds are used when no seed file is configured.
var DefaultSeeds = []string{
	"Deep Ocean Civilization: sentient species evolve in ocean trenches. Bioluminescent cities, thermal vent economies, pressure-based castes.",
	"AI Pantheon: in 2089 seven superintelligences govern humanity, each with a different ethical framework.",
	"Floating Archipelago: islands drift across an endless sky. Nomadic traders, sky-pirates, cloud-miners and the Order of the Compass.",
	"Mycelium Network: a planet where fungal networks are sentient and surface creatures are pawns in wars spanning millennia.",
	"The Last Library: reality is collapsing and rival librarians guard different versions of history.",
	"Mars Colony Year 50: the first Mars-born generation wants independence; Earth corporations say no.",
	"Living Architecture: buildings are organisms, architects are surgeons, and the structures want rights.",
	"Ghost Internet: the dead keep posting online and a corporation monetizes the afterlife.",
	"Nomad Planet: the planet migrates between star systems and its peoples adapt to a new sun every century.",
	"The Emotion Market: feelings are commodified; joy is expensive, anger is cheap.",
}

// Starter launches a world's runner.
type Starter interface {
	Start(ctx context.Context, worldID string) error
}

// AutoGenesis keeps a minimum number of worlds alive by creating and
// starting new ones from a seed list.
type AutoGenesis struct {
	DB        *sql.DB
	Worlds    *store.WorldRepo
	Genesis   *simulation.Genesis
	Runners   Starter
	Seeds     []string
	MaxWorlds int
	Interval  time.Duration
	Rand      simulation.Rand

	log  zerolog.Logger
	mu   sync.Mutex
	used map[int]bool
}

// NewAutoGenesis creates the job. Empty seeds fall back to DefaultSeeds.
func NewAutoGenesis(db *sql.DB, g *simulation.Genesis, runners Starter, seeds []string, maxWorlds int, interval time.Duration, logger zerolog.Logger) *AutoGenesis {
	if len(seeds) == 0 {
		seeds = DefaultSeeds
	}
	if maxWorlds <= 0 {
		maxWorlds = 3
	}
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &AutoGenesis{
		DB:        db,
		Worlds:    &store.WorldRepo{},
		Genesis:   g,
		Runners:   runners,
		Seeds:     seeds,
		MaxWorlds: maxWorlds,
		Interval:  interval,
		Rand:      simulation.NewRand(0),
		log:       logger.With().Str("component", "auto_genesis").Logger(),
		used:      make(map[int]bool),
	}
}

// Run calls RunOnce every Interval until ctx is cancelled. A failed pass is
// returned so the supervisor records it and restarts the job.
func (a *AutoGenesis) Run(ctx context.Context) error {
	a.log.Info().Msg("auto_genesis.started")
	for {
		if _, err := a.RunOnce(ctx); err != nil {
			return err
		}
		timer := time.NewTimer(a.Interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// RunOnce creates and starts one world when fewer than MaxWorlds are
// created or running and none is generating. It returns the new world, or
// nil when nothing was needed.
func (a *AutoGenesis) RunOnce(ctx context.Context) (*domain.World, error) {
	counts, err := a.Worlds.CountByStatus(ctx, a.DB)
	if err != nil {
		return nil, err
	}
	active := counts[domain.WorldCreated] + counts[domain.WorldRunning]
	if active >= a.MaxWorlds {
		a.log.Debug().Int("active", active).Int("max", a.MaxWorlds).Msg("auto_genesis.skipped")
		return nil, nil
	}
	if n := counts[domain.WorldGenerating]; n > 0 {
		a.log.Info().Int("generating", n).Msg("auto_genesis.waiting")
		return nil, nil
	}

	existing, err := a.Worlds.SeedPrompts(ctx, a.DB)
	if err != nil {
		return nil, err
	}
	seed := a.pickSeed(existing)

	a.log.Info().Str("seed", seed).Msg("auto_genesis.creating")
	w, err := a.Genesis.Create(ctx, seed, nil)
	if err != nil {
		return nil, fmt.Errorf("auto genesis: %w", err)
	}
	if err := a.Runners.Start(ctx, w.ID); err != nil {
		return nil, fmt.Errorf("auto start %s: %w", w.ID, err)
	}
	w.Status = domain.WorldRunning
	a.log.Info().Str("world_id", w.ID).Msg("auto_genesis.created")
	return w, nil
}

// pickSeed chooses a random seed not picked before and not already used by a
// world. When every seed is taken the history is forgotten.
func (a *AutoGenesis) pickSeed(existing map[string]bool) string {
	a.mu.Lock()
	defer a.mu.Unlock()

	available := a.available(existing)
	if len(available) == 0 {
		a.used = make(map[int]bool)
		available = a.available(existing)
	}
	if len(available) == 0 {
		for i := range a.Seeds {
			available = append(available, i)
		}
	}
	idx := available[a.Rand.Intn(len(available))]
	a.used[idx] = true
	return a.Seeds[idx]
}

func (a *AutoGenesis) available(existing map[string]bool) []int {
	var out []int
	for i, s := range a.Seeds {
		if !a.used[i] && !existing[s] {
			out = append(out, i)
		}
	}
	return out
}
