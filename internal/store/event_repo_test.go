package store

import (
	"context"
	"testing"
	"time"

	"github.com/null-engine/nullengine/internal/domain"
)

func TestWorldEventRepo_AppendAndList(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	repo := &WorldEventRepo{}
	now := time.Now().Unix()

	tx, err := db.Begin()
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	first, err := repo.AppendTx(ctx, tx, domain.WorldEvent{WorldID: "w-1", Epoch: 0, Tick: 3, Type: "random", Description: "A storm rolls in", CreatedAt: now})
	if err != nil {
		t.Fatalf("AppendTx: %v", err)
	}
	tx.Commit()

	if _, err := repo.Append(ctx, db, domain.WorldEvent{WorldID: "w-1", Epoch: 0, Tick: 4, Type: "injected", Description: "The bridge collapses", Targets: []string{"a-1"}, CreatedAt: now + 1}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if _, err := repo.Append(ctx, db, domain.WorldEvent{WorldID: "w-2", Type: "random", Description: "other world", CreatedAt: now}); err != nil {
		t.Fatalf("Append other: %v", err)
	}

	got, err := repo.ListByWorld(ctx, db, "w-1", 0)
	if err != nil {
		t.Fatalf("ListByWorld: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 events, got %d", len(got))
	}
	if got[1].Type != "injected" || len(got[1].Targets) != 1 || got[1].Targets[0] != "a-1" {
		t.Errorf("second event = %+v", got[1])
	}

	got, err = repo.ListByWorld(ctx, db, "w-1", first)
	if err != nil {
		t.Fatalf("ListByWorld since: %v", err)
	}
	if len(got) != 1 || got[0].Tick != 4 {
		t.Errorf("events since %d = %+v", first, got)
	}
}

func TestWorldEventRepo_ListEmpty(t *testing.T) {
	db := newTestDB(t)

	got, err := (&WorldEventRepo{}).ListByWorld(context.Background(), db, "nonexistent", 0)
	if err != nil {
		t.Fatalf("ListByWorld: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil for empty result, got %v", got)
	}
}
