package store

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/null-engine/nullengine/internal/domain"
)

func seedWorld(t *testing.T, db *sql.DB, id string, status domain.WorldStatus) domain.World {
	t.Helper()
	now := time.Now().Unix()
	w := domain.World{
		ID:           id,
		SeedPrompt:   "seed for " + id,
		Config:       map[string]any{"tone": "bleak"},
		Status:       status,
		StateVersion: 1,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := (&WorldRepo{}).Create(context.Background(), db, w); err != nil {
		t.Fatalf("Create world %s: %v", id, err)
	}
	return w
}

func TestWorldRepo_CreateAndGet(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	repo := &WorldRepo{}

	seedWorld(t, db, "world-001", domain.WorldCreated)

	got, err := repo.GetByID(ctx, db, "world-001")
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Status != domain.WorldCreated {
		t.Errorf("Status = %q, want %q", got.Status, domain.WorldCreated)
	}
	if got.StateVersion != 1 {
		t.Errorf("StateVersion = %d, want 1", got.StateVersion)
	}
	if got.Config["tone"] != "bleak" {
		t.Errorf("Config = %v, want tone=bleak", got.Config)
	}
}

func TestWorldRepo_GetByID_NotFound(t *testing.T) {
	db := newTestDB(t)

	_, err := (&WorldRepo{}).GetByID(context.Background(), db, "nonexistent")
	if err != domain.ErrWorldNotFound {
		t.Errorf("expected ErrWorldNotFound, got %v", err)
	}
}

func TestWorldRepo_UpdateClock_OptimisticLock(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	repo := &WorldRepo{}

	w := seedWorld(t, db, "world-002", domain.WorldRunning)

	w.CurrentTick = 1
	tx, err := db.Begin()
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if err := repo.UpdateClockTx(ctx, tx, w); err != nil {
		t.Fatalf("UpdateClockTx: %v", err)
	}
	tx.Commit()

	got, err := repo.GetByID(ctx, db, "world-002")
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.CurrentTick != 1 || got.StateVersion != 2 {
		t.Errorf("tick/version = %d/%d, want 1/2", got.CurrentTick, got.StateVersion)
	}

	// w.StateVersion is still 1 but the row is now at 2.
	w.CurrentTick = 2
	tx2, err := db.Begin()
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	err = repo.UpdateClockTx(ctx, tx2, w)
	tx2.Rollback()

	if err != domain.ErrOptimisticLock {
		t.Errorf("expected ErrOptimisticLock, got %v", err)
	}
}

func TestWorldRepo_UpdateStatusKeepsVersion(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	repo := &WorldRepo{}

	seedWorld(t, db, "world-003", domain.WorldCreated)

	if err := repo.UpdateStatus(ctx, db, "world-003", domain.WorldRunning); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	got, err := repo.GetByID(ctx, db, "world-003")
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Status != domain.WorldRunning {
		t.Errorf("Status = %q, want running", got.Status)
	}
	if got.StateVersion != 1 {
		t.Errorf("StateVersion = %d, want 1", got.StateVersion)
	}

	if err := repo.UpdateStatus(ctx, db, "missing", domain.WorldPaused); err != domain.ErrWorldNotFound {
		t.Errorf("expected ErrWorldNotFound, got %v", err)
	}
}

func TestWorldRepo_ListAndCount(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	repo := &WorldRepo{}

	seedWorld(t, db, "w-a", domain.WorldRunning)
	seedWorld(t, db, "w-b", domain.WorldRunning)
	seedWorld(t, db, "w-c", domain.WorldGenerating)

	all, err := repo.List(ctx, db)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("List returned %d worlds, want 3", len(all))
	}

	running, err := repo.ListByStatus(ctx, db, domain.WorldRunning)
	if err != nil {
		t.Fatalf("ListByStatus: %v", err)
	}
	if len(running) != 2 {
		t.Errorf("ListByStatus(running) = %d, want 2", len(running))
	}

	counts, err := repo.CountByStatus(ctx, db)
	if err != nil {
		t.Fatalf("CountByStatus: %v", err)
	}
	if counts[domain.WorldRunning] != 2 || counts[domain.WorldGenerating] != 1 {
		t.Errorf("counts = %v", counts)
	}
	if _, ok := counts[domain.WorldPaused]; ok {
		t.Error("expected no paused entry")
	}

	seeds, err := repo.SeedPrompts(ctx, db)
	if err != nil {
		t.Fatalf("SeedPrompts: %v", err)
	}
	if !seeds["seed for w-b"] {
		t.Errorf("seeds = %v, missing w-b", seeds)
	}
}

func TestWorldRepo_DuplicateCreate(t *testing.T) {
	db := newTestDB(t)
	w := seedWorld(t, db, "world-dup", domain.WorldCreated)

	if err := (&WorldRepo{}).Create(context.Background(), db, w); err == nil {
		t.Error("expected error on duplicate create, got nil")
	}
}

func TestWorldRepo_CompleteGenesis(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	repo := &WorldRepo{}

	seedWorld(t, db, "world-gen", domain.WorldGenerating)
	seedWorld(t, db, "world-run", domain.WorldRunning)

	tx, err := db.Begin()
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if err := repo.CompleteGenesisTx(ctx, tx, "world-gen", map[string]any{"era": "bronze"}); err != nil {
		t.Fatalf("CompleteGenesisTx: %v", err)
	}
	if err := repo.CompleteGenesisTx(ctx, tx, "world-run", nil); err != domain.ErrInvalidWorldStatus {
		t.Errorf("expected ErrInvalidWorldStatus for running world, got %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	got, err := repo.GetByID(ctx, db, "world-gen")
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Status != domain.WorldCreated {
		t.Errorf("Status = %q, want created", got.Status)
	}
	if got.Config["era"] != "bronze" {
		t.Errorf("Config = %v", got.Config)
	}
	if got.StateVersion != 1 {
		t.Errorf("StateVersion = %d, want 1", got.StateVersion)
	}
}
