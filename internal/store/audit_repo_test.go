package store

import (
	"context"
	"testing"
	"time"

	"github.com/null-engine/nullengine/internal/domain"
)

func TestAuditRepo_RecordAndList(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	repo := &AuditRepo{}
	now := time.Now().Unix()

	records := []domain.AuditRecord{
		{ID: "aud-1", WorldID: "w-1", Category: "control", Actor: "api", Action: "start", RequestJSON: "{}", Severity: "info", CreatedAt: now},
		{ID: "aud-2", WorldID: "w-1", Category: "control", Actor: "api", Action: "stop", RequestJSON: "{}", Severity: "info", CreatedAt: now + 1},
		{ID: "aud-3", WorldID: "w-2", Category: "event", Actor: "api", Action: "inject", RequestJSON: `{"description":"x"}`, Severity: "warning", CreatedAt: now + 2},
	}

	for _, r := range records {
		if err := repo.Record(ctx, db, r); err != nil {
			t.Fatalf("Record %s: %v", r.ID, err)
		}
	}

	got, err := repo.ListByWorld(ctx, db, "w-1")
	if err != nil {
		t.Fatalf("ListByWorld: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 records, got %d", len(got))
	}
	if got[0].ID != "aud-1" || got[1].ID != "aud-2" {
		t.Errorf("order = %s, %s", got[0].ID, got[1].ID)
	}
}

func TestAuditRepo_DuplicateID(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	repo := &AuditRepo{}

	rec := domain.AuditRecord{ID: "aud-dup", WorldID: "w-1", Category: "test", Action: "test", CreatedAt: time.Now().Unix()}
	if err := repo.Record(ctx, db, rec); err != nil {
		t.Fatalf("first Record: %v", err)
	}
	if err := repo.Record(ctx, db, rec); err == nil {
		t.Error("expected error on duplicate ID, got nil")
	}
}
