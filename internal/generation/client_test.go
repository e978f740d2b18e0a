package generation

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"

	"github.com/null-engine/nullengine/internal/domain"
)

func chatServer(t *testing.T, reply string, seen *chatRequest) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if seen != nil {
			if err := json.NewDecoder(r.Body).Decode(seen); err != nil {
				t.Errorf("decode request: %v", err)
			}
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"role": "assistant", "content": reply}},
			},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestClient_GenerateText(t *testing.T) {
	var seen chatRequest
	srv := chatServer(t, "  The tide turns.  ", &seen)

	reg := prometheus.NewRegistry()
	c, err := NewClient(Options{BaseURL: srv.URL, Model: "narrator", APIKey: "k"}, zerolog.Nop(), reg)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	got, err := c.GenerateText(context.Background(), Request{Role: RoleReaction, System: "sys", Prompt: "hello"})
	if err != nil {
		t.Fatalf("GenerateText: %v", err)
	}
	if got != "The tide turns." {
		t.Errorf("reply = %q", got)
	}
	if seen.Model != "narrator" || len(seen.Messages) != 2 || seen.Messages[0].Role != "system" {
		t.Errorf("request = %+v", seen)
	}
	if v := testutil.ToFloat64(c.requests.WithLabelValues(RoleReaction, "ok")); v != 1 {
		t.Errorf("ok counter = %v, want 1", v)
	}
}

func TestClient_GenerateJSON(t *testing.T) {
	var seen chatRequest
	srv := chatServer(t, "```json\n{\"claims\": [{\"claim\": \"The sea is rising\"}]}\n```", &seen)

	c, err := NewClient(Options{BaseURL: srv.URL + "/v1/"}, zerolog.Nop(), nil)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	var out struct {
		Claims []struct {
			Claim string `json:"claim"`
		} `json:"claims"`
	}
	if err := c.GenerateJSON(context.Background(), Request{Role: RoleReaction, Prompt: "extract"}, &out); err != nil {
		t.Fatalf("GenerateJSON: %v", err)
	}
	if len(out.Claims) != 1 || out.Claims[0].Claim != "The sea is rising" {
		t.Errorf("decoded = %+v", out)
	}
	if seen.ResponseFormat == nil {
		t.Error("expected response_format to be set")
	}
}

func TestClient_MalformedJSON(t *testing.T) {
	srv := chatServer(t, "no json here", nil)
	c, err := NewClient(Options{BaseURL: srv.URL}, zerolog.Nop(), nil)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	var out map[string]any
	err = c.GenerateJSON(context.Background(), Request{Role: RoleReaction}, &out)
	if !errors.Is(err, domain.ErrGenerationMalformed) {
		t.Errorf("expected ErrGenerationMalformed, got %v", err)
	}
}

func TestClient_HTTPErrorTripsGuard(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c, err := NewClient(Options{
		BaseURL: srv.URL,
		Guard:   GuardConfig{MaxFailures: 2, Cooldown: time.Minute},
	}, zerolog.Nop(), nil)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		_, err := c.GenerateText(ctx, Request{Role: RoleConversation, Prompt: "x"})
		if !errors.Is(err, domain.ErrGenerationFailed) {
			t.Fatalf("call %d: expected ErrGenerationFailed, got %v", i, err)
		}
	}

	_, err = c.GenerateText(ctx, Request{Role: RoleConversation, Prompt: "x"})
	if !errors.Is(err, domain.ErrGenerationUnavailable) {
		t.Errorf("expected ErrGenerationUnavailable during cooldown, got %v", err)
	}
	if hits.Load() != 2 {
		t.Errorf("server hits = %d, want 2", hits.Load())
	}
}

func TestClient_TimeoutBoundsCall(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	c, err := NewClient(Options{BaseURL: srv.URL, Timeout: 50 * time.Millisecond}, zerolog.Nop(), nil)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	start := time.Now()
	_, err = c.GenerateText(context.Background(), Request{Role: RoleReaction, Prompt: "slow"})
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if time.Since(start) > time.Second {
		t.Errorf("call took %v, expected to be bounded by timeout", time.Since(start))
	}
}

func TestNewClient_RequiresBaseURL(t *testing.T) {
	if _, err := NewClient(Options{}, zerolog.Nop(), nil); err == nil {
		t.Error("expected error for empty base URL")
	}
}

func TestDecodeJSON(t *testing.T) {
	var list []map[string]any
	if err := DecodeJSON("Sure! [{\"claim\": \"a\"}]", &list); err != nil {
		t.Fatalf("DecodeJSON: %v", err)
	}
	if len(list) != 1 {
		t.Errorf("list = %v", list)
	}

	var obj map[string]any
	if err := DecodeJSON("", &obj); !errors.Is(err, domain.ErrGenerationMalformed) {
		t.Errorf("expected ErrGenerationMalformed for empty input, got %v", err)
	}
}
