// Package config loads jarvis configuration from a YAML file with
// environment variable overrides.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all jarvis configuration.
type Config struct {
	// Telegram bot settings
	Telegram TelegramConfig `yaml:"telegram"`

	// LLM classification settings
	LLM LLMConfig `yaml:"llm"`

	// Voice transcription settings
	Transcription TranscriptionConfig `yaml:"transcription"`

	// Asana destination settings
	Asana AsanaConfig `yaml:"asana"`

	// Capture ledger settings
	Ledger LedgerConfig `yaml:"ledger"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// TelegramConfig configures the Telegram surface.
type TelegramConfig struct {
	BotToken string `yaml:"bot_token"`
	// AllowedChatID restricts the bot to one chat; zero accepts any chat.
	AllowedChatID int64 `yaml:"allowed_chat_id"`
	// WebhookListen enables webhook mode on this address; empty uses long
	// polling.
	WebhookListen string `yaml:"webhook_listen"`
	WebhookPath   string `yaml:"webhook_path"`
	PollTimeout   string `yaml:"poll_timeout"`
}

// LLMConfig configures the classifier provider.
type LLMConfig struct {
	Provider    string  `yaml:"provider"` // openai, gemini
	APIKey      string  `yaml:"api_key"`
	Model       string  `yaml:"model"`
	Temperature float64 `yaml:"temperature"`
	Timeout     string  `yaml:"timeout"`
}

// TranscriptionConfig configures Whisper voice transcription.
type TranscriptionConfig struct {
	APIKey   string `yaml:"api_key"`
	Model    string `yaml:"model"`
	Language string `yaml:"language"`
	Timeout  string `yaml:"timeout"`
}

// AsanaConfig configures the Asana destination board.
type AsanaConfig struct {
	AccessToken string `yaml:"access_token"`
	ProjectGID  string `yaml:"project_gid"`
	// FieldName is the enum custom field holding the project category.
	FieldName string `yaml:"field_name"`
	CachePath string `yaml:"cache_path"`
}

// LedgerConfig configures the capture dedupe ledger.
type LedgerConfig struct {
	DatabasePath string `yaml:"database_path"`
	// StaleAfter is how long a claim may sit unfinished before another
	// attempt may reclaim it.
	StaleAfter string `yaml:"stale_after"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Telegram: TelegramConfig{
			WebhookPath: "/telegram/webhook",
			PollTimeout: "50s",
		},
		LLM: LLMConfig{
			Provider: "openai",
			// Model is left empty so each provider client applies its own default.
			Temperature: 0.3,
			Timeout:     "60s",
		},
		Transcription: TranscriptionConfig{
			Model:    "whisper-1",
			Language: "es",
			Timeout:  "120s",
		},
		Asana: AsanaConfig{
			FieldName: "Proyecto",
			CachePath: "jarvis_directory.json",
		},
		Ledger: LedgerConfig{
			DatabasePath: "jarvis_ledger.db",
			StaleAfter:   "15m",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from path, falling back to defaults when the
// file does not exist, then applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()

	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if token := os.Getenv("TELEGRAM_BOT_TOKEN"); token != "" {
		c.Telegram.BotToken = token
	}
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		if c.LLM.APIKey == "" || c.LLM.Provider == "openai" {
			c.LLM.APIKey = key
		}
		if c.Transcription.APIKey == "" {
			c.Transcription.APIKey = key
		}
	}
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		switch {
		case c.LLM.Provider == "gemini":
			c.LLM.APIKey = key
		case c.LLM.APIKey == "":
			// Only the Gemini key is available, so select the provider too.
			c.LLM.Provider = "gemini"
			c.LLM.APIKey = key
		}
	}
	if token := os.Getenv("ASANA_ACCESS_TOKEN"); token != "" {
		c.Asana.AccessToken = token
	}
	if gid := os.Getenv("ASANA_PROJECT_GID"); gid != "" {
		c.Asana.ProjectGID = gid
	}
	if path := os.Getenv("JARVIS_DB"); path != "" {
		c.Ledger.DatabasePath = path
	}
}

// GetLLMTimeout returns the classifier timeout as a duration.
func (c *Config) GetLLMTimeout() time.Duration {
	d, err := time.ParseDuration(c.LLM.Timeout)
	if err != nil {
		return 60 * time.Second
	}
	return d
}

// GetTranscriptionTimeout returns the transcription timeout as a duration.
func (c *Config) GetTranscriptionTimeout() time.Duration {
	d, err := time.ParseDuration(c.Transcription.Timeout)
	if err != nil {
		return 120 * time.Second
	}
	return d
}

// GetPollTimeout returns the Telegram long-poll timeout as a duration.
func (c *Config) GetPollTimeout() time.Duration {
	d, err := time.ParseDuration(c.Telegram.PollTimeout)
	if err != nil {
		return 50 * time.Second
	}
	return d
}

// GetStaleAfter returns the ledger stale-claim window as a duration.
func (c *Config) GetStaleAfter() time.Duration {
	d, err := time.ParseDuration(c.Ledger.StaleAfter)
	if err != nil {
		return 15 * time.Minute
	}
	return d
}

// ValidProviders lists the supported classifier providers.
var ValidProviders = []string{"openai", "gemini"}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Telegram.BotToken == "" {
		return fmt.Errorf("telegram bot token not configured (set TELEGRAM_BOT_TOKEN)")
	}
	if c.LLM.APIKey == "" {
		return fmt.Errorf("LLM API key not configured (set OPENAI_API_KEY or GEMINI_API_KEY)")
	}

	validProvider := false
	for _, p := range ValidProviders {
		if c.LLM.Provider == p {
			validProvider = true
			break
		}
	}
	if !validProvider {
		return fmt.Errorf("invalid LLM provider: %s (valid: %v)", c.LLM.Provider, ValidProviders)
	}

	if c.Asana.AccessToken == "" {
		return fmt.Errorf("asana access token not configured (set ASANA_ACCESS_TOKEN)")
	}
	if c.Asana.ProjectGID == "" {
		return fmt.Errorf("asana project GID not configured (set ASANA_PROJECT_GID)")
	}
	if c.Asana.FieldName == "" {
		return fmt.Errorf("asana custom field name not configured")
	}
	if c.Ledger.DatabasePath == "" {
		return fmt.Errorf("ledger database path not configured")
	}

	return nil
}
