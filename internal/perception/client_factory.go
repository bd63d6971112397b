package perception

import (
	"fmt"
	"time"
)

// Provider identifies an LLM backend.
type Provider string

const (
	ProviderOpenAI Provider = "openai"
	ProviderGemini Provider = "gemini"
)

// ProviderConfig holds the resolved provider settings from configuration.
type ProviderConfig struct {
	Provider    Provider
	APIKey      string
	Model       string // optional model override
	Temperature float64
	Timeout     time.Duration
}

// NewClientFromConfig creates the provider client selected by config.
func NewClientFromConfig(cfg ProviderConfig) (LLMClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("no API key configured for provider %q", cfg.Provider)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.Temperature <= 0 {
		cfg.Temperature = 0.3
	}

	switch cfg.Provider {
	case ProviderOpenAI, "":
		c := DefaultOpenAIConfig(cfg.APIKey)
		if cfg.Model != "" {
			c.Model = cfg.Model
		}
		c.Temperature = cfg.Temperature
		c.Timeout = cfg.Timeout
		return NewOpenAIClientWithConfig(c), nil
	case ProviderGemini:
		c := DefaultGeminiConfig(cfg.APIKey)
		if cfg.Model != "" {
			c.Model = cfg.Model
		}
		c.Temperature = cfg.Temperature
		c.Timeout = cfg.Timeout
		return NewGeminiClientWithConfig(c), nil
	default:
		return nil, fmt.Errorf("unknown LLM provider: %s", cfg.Provider)
	}
}
