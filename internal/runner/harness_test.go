package runner

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/null-engine/nullengine/internal/broadcast/broadcasttest"
	"github.com/null-engine/nullengine/internal/consensus"
	"github.com/null-engine/nullengine/internal/domain"
	"github.com/null-engine/nullengine/internal/epoch"
	"github.com/null-engine/nullengine/internal/generation"
	"github.com/null-engine/nullengine/internal/herald"
	"github.com/null-engine/nullengine/internal/simulation"
	"github.com/null-engine/nullengine/internal/store"
)

type pipelineOptions struct {
	ticksPerEpoch    int
	eventProbability float64
	postProbability  float64
	quorum           consensus.Quorum
}

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := store.NewDB(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewDB: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func newTestPipeline(db *sql.DB, gen generation.Generator, rec *broadcasttest.Recorder, opts pipelineOptions) *Pipeline {
	logger := zerolog.Nop()
	rnd := simulation.NewRand(42)
	if opts.ticksPerEpoch == 0 {
		opts.ticksPerEpoch = 10
	}
	return &Pipeline{
		DB:            db,
		Worlds:        &store.WorldRepo{},
		Agents:        &store.AgentRepo{},
		Factions:      &store.FactionRepo{},
		Conversations: &store.ConversationRepo{},
		Events:        &store.WorldEventRepo{},
		Posts:         &store.PostRepo{},
		Conversation:  simulation.NewConversation(gen, rec, rnd, logger),
		Triggers:      simulation.NewEvents(opts.eventProbability, rec, rnd),
		Writers:       simulation.NewPosts(opts.postProbability, gen, rec, rnd, logger),
		Wiki:          simulation.NewWiki(gen, rec, logger),
		Strata:        simulation.NewStrata(gen, logger),
		Consensus:     consensus.NewEngine(opts.quorum, gen, rec, logger),
		Herald:        herald.New(gen, rec, logger),
		Clock:         epoch.NewClock(opts.ticksPerEpoch, epoch.BroadcastHook{}, epoch.BeliefDriftHook{}),
		Pub:           rec,
		Logger:        logger,
	}
}

// seedPopulatedWorld creates a world with two factions and agents agents.
func seedPopulatedWorld(t *testing.T, db *sql.DB, id string, status domain.WorldStatus, agents int) *domain.World {
	t.Helper()
	ctx := context.Background()
	now := time.Now().Unix()
	w := domain.World{ID: id, SeedPrompt: "seed " + id, Status: status, StateVersion: 1, CreatedAt: now, UpdatedAt: now}
	if err := (&store.WorldRepo{}).Create(ctx, db, w); err != nil {
		t.Fatalf("Create world: %v", err)
	}

	tx, err := db.Begin()
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	defer tx.Rollback()
	factions := []string{id + "-f1", id + "-f2"}
	for _, f := range factions {
		if err := (&store.FactionRepo{}).CreateTx(ctx, tx, domain.Faction{ID: f, WorldID: id, Name: f}); err != nil {
			t.Fatalf("CreateTx faction: %v", err)
		}
	}
	for i := 0; i < agents; i++ {
		a := domain.Agent{
			ID:        fmt.Sprintf("%s-a%d", id, i),
			WorldID:   id,
			FactionID: factions[i%2],
			Name:      fmt.Sprintf("Agent %d", i),
		}
		if err := (&store.AgentRepo{}).CreateTx(ctx, tx, a); err != nil {
			t.Fatalf("CreateTx agent: %v", err)
		}
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
	return &w
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(2 * time.Millisecond)
	}
}
