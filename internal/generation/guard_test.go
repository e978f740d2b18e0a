package generation

import (
	"errors"
	"testing"
	"time"

	"github.com/null-engine/nullengine/internal/domain"
)

func TestGuard_CooldownAfterMaxFailures(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	g := NewGuard(GuardConfig{MaxFailures: 2, Cooldown: 30 * time.Second})
	g.now = func() time.Time { return now }

	g.RecordFailure()
	if err := g.Allow(RoleReaction); err != nil {
		t.Fatalf("Allow after 1 failure: %v", err)
	}
	g.RecordFailure()
	if err := g.Allow(RoleReaction); !errors.Is(err, domain.ErrGenerationUnavailable) {
		t.Fatalf("expected ErrGenerationUnavailable, got %v", err)
	}

	now = now.Add(31 * time.Second)
	if err := g.Allow(RoleReaction); err != nil {
		t.Errorf("Allow after cooldown: %v", err)
	}
}

func TestGuard_SuccessResets(t *testing.T) {
	g := NewGuard(GuardConfig{MaxFailures: 1, Cooldown: time.Hour})
	g.RecordFailure()
	g.RecordSuccess()
	if g.Failures() != 0 {
		t.Errorf("Failures = %d, want 0", g.Failures())
	}
	if err := g.Allow(RoleGenesis); err != nil {
		t.Errorf("Allow after success: %v", err)
	}
}

func TestGuard_RateLimitPerRole(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	g := NewGuard(GuardConfig{RateLimitPerMinute: 2})
	g.now = func() time.Time { return now }

	for i := 0; i < 2; i++ {
		if err := g.Allow(RoleConversation); err != nil {
			t.Fatalf("call %d: %v", i, err)
		}
	}
	if err := g.Allow(RoleConversation); !errors.Is(err, domain.ErrGenerationUnavailable) {
		t.Errorf("expected rate limit, got %v", err)
	}
	if err := g.Allow(RoleReaction); err != nil {
		t.Errorf("other role should not be limited: %v", err)
	}

	now = now.Add(61 * time.Second)
	if err := g.Allow(RoleConversation); err != nil {
		t.Errorf("Allow after window reset: %v", err)
	}
}

func TestGuard_NilIsPermissive(t *testing.T) {
	var g *Guard
	if err := g.Allow(RoleReaction); err != nil {
		t.Errorf("nil guard Allow: %v", err)
	}
	g.RecordFailure()
	g.RecordSuccess()
}
