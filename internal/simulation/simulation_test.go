package simulation

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/null-engine/nullengine/internal/domain"
	"github.com/null-engine/nullengine/internal/store"
)

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := store.NewDB(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewDB: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func seedWorld(t *testing.T, db *sql.DB, id string, status domain.WorldStatus) domain.World {
	t.Helper()
	now := time.Now().Unix()
	w := domain.World{ID: id, SeedPrompt: "seed for " + id, Status: status, StateVersion: 1, CreatedAt: now, UpdatedAt: now}
	if err := (&store.WorldRepo{}).Create(context.Background(), db, w); err != nil {
		t.Fatalf("Create world: %v", err)
	}
	return w
}

func testAgents(n int) ([]domain.Agent, []domain.Faction) {
	factions := []domain.Faction{
		{ID: "f-1", WorldID: "w-1", Name: "Keepers"},
		{ID: "f-2", WorldID: "w-1", Name: "Drifters"},
	}
	agents := make([]domain.Agent, 0, n)
	for i := 0; i < n; i++ {
		agents = append(agents, domain.Agent{
			ID:        "a-" + string(rune('a'+i)),
			WorldID:   "w-1",
			FactionID: factions[i%2].ID,
			Name:      "Agent " + string(rune('A'+i)),
			Persona:   domain.Persona{Role: "scout", Personality: "curious"},
		})
	}
	return agents, factions
}
