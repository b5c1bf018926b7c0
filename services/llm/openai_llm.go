package llm

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/awnumar/memguard"
	"github.com/sashabaranov/go-openai"
)

type OpenAIClient struct {
	apiKey *memguard.Enclave
	model  string
}

func NewOpenAIClient() (*OpenAIClient, error) {
	apiKey, err := loadAPIKey("OPENAI_API_KEY", "/run/secrets/openai_api_key")
	if err != nil {
		slog.Error("OpenAI API key unavailable", "error", err)
		return nil, err
	}

	model := os.Getenv("OPENAI_MODEL") // e.g., "gpt-4o"
	if model == "" {
		model = "gpt-4o-mini"
		slog.Warn("OPENAI_MODEL not set, defaulting to gpt-4o-mini")
	}
	slog.Info("Initializing OpenAI client", "model", model)
	return &OpenAIClient{
		apiKey: apiKey,
		model:  model,
	}, nil
}

// Generate implements the LLMClient interface.
//
// The API key lives in a memguard enclave and is only materialized for
// the duration of the call.
func (o *OpenAIClient) Generate(ctx context.Context, prompt string, params GenerationParams) (string, error) {
	slog.Debug("Generating text via OpenAI", "model", o.model)

	req := openai.ChatCompletionRequest{
		Model: o.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: "You are a site reliability engineer diagnosing microservice incidents."},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	}
	if params.Temperature != nil {
		req.Temperature = *params.Temperature
	}
	if params.MaxTokens != nil {
		req.MaxCompletionTokens = *params.MaxTokens
	}
	if params.TopP != nil {
		req.TopP = *params.TopP
	}

	var content string
	err := withAPIKey(o.apiKey, func(key string) error {
		resp, err := openai.NewClient(key).CreateChatCompletion(ctx, req)
		if err != nil {
			return fmt.Errorf("OpenAI API call failed: %w", err)
		}
		if len(resp.Choices) == 0 {
			return fmt.Errorf("OpenAI returned no choices")
		}
		slog.Debug("Received response from OpenAI", "finish_reason", resp.Choices[0].FinishReason)
		content = resp.Choices[0].Message.Content
		return nil
	})
	if err != nil {
		slog.Error("OpenAI generation failed", "error", err)
		return "", err
	}
	return content, nil
}
