// Package generation talks to the external content generation service.
package generation

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/null-engine/nullengine/internal/domain"
)

// Agent roles understood by the generation service.
const (
	RoleConversation = "conversation_agent"
	RoleReaction     = "reaction_agent"
	RoleGenesis      = "genesis_architect"
	RoleChronicler   = "chronicler"
)

// Request is one generation call.
type Request struct {
	Role        string
	System      string
	Prompt      string
	Temperature float32
	MaxTokens   int
}

// Generator produces text or structured output for a role.
type Generator interface {
	GenerateText(ctx context.Context, req Request) (string, error)
	GenerateJSON(ctx context.Context, req Request, out any) error
}

// DecodeJSON extracts the first JSON value from text, tolerating markdown
// fences and leading prose, and unmarshals it into out.
func DecodeJSON(text string, out any) error {
	raw := strings.TrimSpace(text)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")
	raw = strings.TrimSpace(raw)

	if start := strings.IndexAny(raw, "{["); start > 0 {
		raw = raw[start:]
	}
	if raw == "" {
		return domain.NewEngineError(domain.ErrGenerationMalformed.Code, "empty output")
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return domain.WrapEngineError(domain.ErrGenerationMalformed.Code, "decode output", err)
	}
	return nil
}
