package runner

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/null-engine/nullengine/internal/domain"
	"github.com/null-engine/nullengine/internal/store"
)

// stopTimeout bounds how long Stop waits for a runner to exit and for the
// paused status to be written.
const stopTimeout = 30 * time.Second

// Factory builds a stopped Runner for a world.
type Factory func(worldID string) *Runner

// Registry owns the live runners and the running/paused world status that
// goes with them.
type Registry struct {
	DB     *sql.DB
	Worlds *store.WorldRepo

	base      context.Context
	newRunner Factory
	log       zerolog.Logger

	mu       sync.Mutex
	runners  map[string]*Runner
	starting map[string]bool
}

// NewRegistry creates a Registry. Runners live under base, not under the
// context of whoever asked for them to start.
func NewRegistry(base context.Context, db *sql.DB, factory Factory, logger zerolog.Logger) *Registry {
	return &Registry{
		DB:        db,
		Worlds:    &store.WorldRepo{},
		base:      base,
		newRunner: factory,
		log:       logger.With().Str("component", "registry").Logger(),
		runners:   make(map[string]*Runner),
		starting:  make(map[string]bool),
	}
}

// Start marks the world running and launches its runner.
func (g *Registry) Start(ctx context.Context, worldID string) error {
	w, err := g.Worlds.GetByID(ctx, g.DB, worldID)
	if err != nil {
		return err
	}
	if w.Status == domain.WorldGenerating {
		return domain.ErrWorldNotReady
	}

	// Reserve the world under the lock; the status write runs outside it.
	g.mu.Lock()
	if r, ok := g.runners[worldID]; (ok && r.Running()) || g.starting[worldID] {
		g.mu.Unlock()
		return domain.ErrRunnerAlreadyRunning
	}
	g.starting[worldID] = true
	g.mu.Unlock()

	if err := g.Worlds.UpdateStatus(ctx, g.DB, worldID, domain.WorldRunning); err != nil {
		g.mu.Lock()
		delete(g.starting, worldID)
		g.mu.Unlock()
		return err
	}

	r := g.newRunner(worldID)
	r.Start(g.base)
	g.mu.Lock()
	g.runners[worldID] = r
	delete(g.starting, worldID)
	g.mu.Unlock()
	g.log.Info().Str("world_id", worldID).Msg("registry.started")
	return nil
}

// Stop cancels the world's runner, waits for it to exit and marks the world
// paused. Once the runner is cancelled the pause is completed even if ctx is
// cancelled, so a world is never left running without a runner.
func (g *Registry) Stop(ctx context.Context, worldID string) error {
	g.mu.Lock()
	r, ok := g.runners[worldID]
	if !ok || !r.Running() {
		g.mu.Unlock()
		return domain.ErrRunnerNotRunning
	}
	delete(g.runners, worldID)
	g.mu.Unlock()

	r.Stop()
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), stopTimeout)
	defer cancel()
	select {
	case <-r.Done():
	case <-wctx.Done():
		return wctx.Err()
	}

	if err := g.Worlds.UpdateStatus(wctx, g.DB, worldID, domain.WorldPaused); err != nil {
		return err
	}
	g.log.Info().Str("world_id", worldID).Msg("registry.stopped")
	return nil
}

// IsRunning reports whether the world has a live runner.
func (g *Registry) IsRunning(worldID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	r, ok := g.runners[worldID]
	return ok && r.Running()
}

// ActiveCount is the number of live runners.
func (g *Registry) ActiveCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := 0
	for _, r := range g.runners {
		if r.Running() {
			n++
		}
	}
	return n
}

// StopAll cancels every runner and waits for them to exit. World status is
// left as running so the runners are restored on the next boot.
func (g *Registry) StopAll() {
	g.mu.Lock()
	runners := make([]*Runner, 0, len(g.runners))
	for id, r := range g.runners {
		runners = append(runners, r)
		delete(g.runners, id)
	}
	g.mu.Unlock()

	for _, r := range runners {
		r.Stop()
	}
	for _, r := range runners {
		<-r.Done()
	}
}
