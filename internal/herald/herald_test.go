package herald

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"github.com/null-engine/nullengine/internal/broadcast"
	"github.com/null-engine/nullengine/internal/broadcast/broadcasttest"
	"github.com/null-engine/nullengine/internal/domain"
	"github.com/null-engine/nullengine/internal/generation"
	"github.com/null-engine/nullengine/internal/generation/generationtest"
)

func TestAnnounce_BroadcastsAndClears(t *testing.T) {
	gen := generationtest.New("").Respond(generation.RoleReaction, "Hark! The granary burns.")
	rec := &broadcasttest.Recorder{}
	h := New(gen, rec, zerolog.Nop())

	for i := 0; i < 7; i++ {
		h.Buffer("w-1", domain.EventBufferEntry{Description: fmt.Sprintf("event %d", i), Type: "random"})
	}
	h.Announce(context.Background(), "w-1", 2)

	envs := rec.OfType(broadcast.TypeHeraldAnnouncement)
	if len(envs) != 1 {
		t.Fatalf("announcements = %d, want 1", len(envs))
	}
	if envs[0].Payload["text"] != "Hark! The granary burns." || envs[0].Payload["event_count"] != 7 || envs[0].Epoch != 2 {
		t.Errorf("envelope = %+v", envs[0])
	}
	if h.Len("w-1") != 0 {
		t.Errorf("Len = %d, want 0", h.Len("w-1"))
	}

	calls := gen.Calls()
	if len(calls) != 1 {
		t.Fatalf("generation calls = %d, want 1", len(calls))
	}
	p := calls[0].Prompt
	if strings.Contains(p, "event 1\n") || !strings.Contains(p, "- event 2") || !strings.Contains(p, "- event 6") {
		t.Errorf("prompt should list only the last 5 events:\n%s", p)
	}
}

func TestAnnounce_EmptyBufferIsNoop(t *testing.T) {
	gen := generationtest.New("text")
	rec := &broadcasttest.Recorder{}
	h := New(gen, rec, zerolog.Nop())

	h.Announce(context.Background(), "w-1", 0)

	if len(gen.Calls()) != 0 {
		t.Error("expected no generation call")
	}
	if len(rec.All()) != 0 {
		t.Error("expected no broadcast")
	}
}

func TestAnnounce_GenerationFailureClearsBuffer(t *testing.T) {
	gen := generationtest.New("").Fail(generation.RoleReaction, domain.ErrGenerationFailed)
	rec := &broadcasttest.Recorder{}
	h := New(gen, rec, zerolog.Nop())

	h.Buffer("w-1", domain.EventBufferEntry{Description: "a comet"})
	h.Announce(context.Background(), "w-1", 1)

	if len(rec.All()) != 0 {
		t.Error("expected no broadcast on failure")
	}
	if h.Len("w-1") != 0 {
		t.Errorf("Len = %d, want 0 after failed announce", h.Len("w-1"))
	}
}

func TestAnnounce_FallsBackToType(t *testing.T) {
	gen := generationtest.New("ok")
	h := New(gen, &broadcasttest.Recorder{}, zerolog.Nop())

	h.Buffer("w-1", domain.EventBufferEntry{Type: "earthquake"})
	h.Buffer("w-1", domain.EventBufferEntry{})
	h.Announce(context.Background(), "w-1", 0)

	p := gen.Calls()[0].Prompt
	if !strings.Contains(p, "- earthquake") || !strings.Contains(p, "- unknown event") {
		t.Errorf("prompt = %s", p)
	}
}

func TestHerald_WorldsAreIndependent(t *testing.T) {
	h := New(generationtest.New("ok"), &broadcasttest.Recorder{}, zerolog.Nop())

	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 10; i++ {
				h.Buffer(fmt.Sprintf("w-%d", w), domain.EventBufferEntry{Description: "x"})
			}
		}(w)
	}
	wg.Wait()

	h.Announce(context.Background(), "w-0", 0)
	if h.Len("w-0") != 0 {
		t.Error("w-0 buffer not cleared")
	}
	if h.Len("w-1") != 10 {
		t.Errorf("w-1 Len = %d, want 10", h.Len("w-1"))
	}
}
