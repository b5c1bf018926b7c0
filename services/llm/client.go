package llm

import "context"

// GenerationParams tunes a single completion request. Nil fields fall
// back to the backend's defaults, so a caller only pins what it cares
// about; the diagnostician pins a low temperature and a token cap.
type GenerationParams struct {
	Temperature *float32 `json:"temperature"`
	TopP        *float32 `json:"top_p"`
	MaxTokens   *int     `json:"max_tokens"`
}

// LLMClient is the completion contract the diagnostician consumes.
// Implementations must be safe for concurrent use.
type LLMClient interface {
	Generate(ctx context.Context, prompt string, params GenerationParams) (string, error)
}
