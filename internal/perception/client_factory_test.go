package perception

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClientFromConfig(t *testing.T) {
	t.Run("openai without model uses the openai default", func(t *testing.T) {
		client, err := NewClientFromConfig(ProviderConfig{
			Provider: ProviderOpenAI,
			APIKey:   "oa-key",
		})
		require.NoError(t, err)

		oc, ok := client.(*OpenAIClient)
		require.True(t, ok)
		assert.Equal(t, "gpt-4o-mini", oc.GetModel())
	})

	t.Run("gemini without model uses the gemini default", func(t *testing.T) {
		client, err := NewClientFromConfig(ProviderConfig{
			Provider: ProviderGemini,
			APIKey:   "gm-key",
		})
		require.NoError(t, err)

		gc, ok := client.(*GeminiClient)
		require.True(t, ok)
		assert.Equal(t, "gemini-2.5-flash", gc.GetModel())
	})

	t.Run("explicit model wins over the provider default", func(t *testing.T) {
		client, err := NewClientFromConfig(ProviderConfig{
			Provider: ProviderGemini,
			APIKey:   "gm-key",
			Model:    "gemini-1.5-pro",
		})
		require.NoError(t, err)

		gc, ok := client.(*GeminiClient)
		require.True(t, ok)
		assert.Equal(t, "gemini-1.5-pro", gc.GetModel())
	})

	t.Run("empty provider defaults to openai", func(t *testing.T) {
		client, err := NewClientFromConfig(ProviderConfig{APIKey: "oa-key"})
		require.NoError(t, err)
		assert.IsType(t, &OpenAIClient{}, client)
	})

	t.Run("missing API key is rejected", func(t *testing.T) {
		_, err := NewClientFromConfig(ProviderConfig{Provider: ProviderOpenAI})
		assert.Error(t, err)
	})

	t.Run("unknown provider is rejected", func(t *testing.T) {
		_, err := NewClientFromConfig(ProviderConfig{Provider: "anthropic", APIKey: "k"})
		assert.Error(t, err)
	})
}
