package llmclient

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/wingman-cli/api/schemas"
)

func TestNewClientResolvesKeyFromEnv(t *testing.T) {
	cfg := testLLMConfig()
	cfg.APIKey = ""
	cfg.APIKeyEnv = "WINGMAN_TEST_GEMINI_KEY"
	t.Setenv("WINGMAN_TEST_GEMINI_KEY", "env-key")

	client, err := NewClient(context.Background(), cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	require.NotNil(t, client)
	assert.NoError(t, client.Close())
}

func TestNewClientFailsWithoutKey(t *testing.T) {
	cfg := testLLMConfig()
	cfg.APIKey = ""
	cfg.APIKeyEnv = "WINGMAN_TEST_GEMINI_KEY"
	t.Setenv("WINGMAN_TEST_GEMINI_KEY", "")

	client, err := NewClient(context.Background(), cfg, zaptest.NewLogger(t))
	require.Error(t, err)
	assert.Nil(t, client)

	var cfgErr *schemas.ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "decision.llm.api_key", cfgErr.Field)
}
