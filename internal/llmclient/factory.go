// internal/llmclient/factory.go

// Package llmclient provides concrete schemas.LLMClient implementations.
// The decision engine and the judge both construct their clients through
// this package so API key resolution lives in exactly one place.
package llmclient

import (
	"context"
	"os"

	"go.uber.org/zap"

	"github.com/xkilldash9x/wingman-cli/api/schemas"
	"github.com/xkilldash9x/wingman-cli/internal/config"
)

// NewClient is a factory function that creates an LLMClient from the
// decision configuration. The API key comes from the explicit config value
// when set, otherwise from the configured environment variable.
func NewClient(ctx context.Context, cfg config.LLMModelConfig, logger *zap.Logger) (schemas.LLMClient, error) {
	apiKey := cfg.ResolveAPIKey(os.Getenv)
	if apiKey == "" {
		return nil, &schemas.ConfigError{
			Field:  "decision.llm.api_key",
			Reason: "no API key set; provide api_key or export " + cfg.APIKeyEnv,
		}
	}

	client, err := NewGeminiClient(ctx, apiKey, cfg, logger)
	if err != nil {
		return nil, err
	}
	return client, nil
}
