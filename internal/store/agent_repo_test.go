package store

import (
	"context"
	"testing"

	"github.com/null-engine/nullengine/internal/domain"
)

func TestAgentRepo_CreateListCount(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	seedWorld(t, db, "world-1", domain.WorldCreated)

	factions := &FactionRepo{}
	agents := &AgentRepo{}

	tx, err := db.Begin()
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if err := factions.CreateTx(ctx, tx, domain.Faction{ID: "f-1", WorldID: "world-1", Name: "Tide Wardens", Color: "#336699"}); err != nil {
		t.Fatalf("CreateTx faction: %v", err)
	}
	for _, a := range []domain.Agent{
		{ID: "a-1", WorldID: "world-1", FactionID: "f-1", Name: "Oru", Persona: domain.Persona{Role: "keeper", SpeechStyle: "curt"}},
		{ID: "a-2", WorldID: "world-1", FactionID: "f-1", Name: "Lenn"},
	} {
		if err := agents.CreateTx(ctx, tx, a); err != nil {
			t.Fatalf("CreateTx agent %s: %v", a.ID, err)
		}
	}
	n, err := agents.CountByWorldTx(ctx, tx, "world-1")
	if err != nil {
		t.Fatalf("CountByWorldTx: %v", err)
	}
	if n != 2 {
		t.Errorf("CountByWorldTx = %d, want 2", n)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	gotFactions, err := factions.ListByWorld(ctx, db, "world-1")
	if err != nil {
		t.Fatalf("ListByWorld factions: %v", err)
	}
	if len(gotFactions) != 1 || gotFactions[0].Name != "Tide Wardens" {
		t.Errorf("factions = %+v", gotFactions)
	}

	got, err := agents.ListByWorld(ctx, db, "world-1")
	if err != nil {
		t.Fatalf("ListByWorld agents: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 agents, got %d", len(got))
	}
	if got[0].ID != "a-1" || got[0].Persona.Role != "keeper" {
		t.Errorf("first agent = %+v", got[0])
	}
}

func TestAgentRepo_RequiresWorld(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	tx, err := db.Begin()
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	defer tx.Rollback()

	err = (&AgentRepo{}).CreateTx(ctx, tx, domain.Agent{ID: "orphan", WorldID: "nowhere", Name: "x"})
	if err == nil {
		t.Error("expected foreign key error for unknown world")
	}
}
