package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v10"
)

// WorkerConfig holds all configuration for a model worker
type WorkerConfig struct {
	// Worker configuration
	WorkerID    string `env:"WORKER_ID" envDefault:"worker-1"`
	ListenAddr  string `env:"WORKER_LISTEN_ADDR" envDefault:":7002"`
	Credential  string `env:"WORKER_CREDENTIAL"`
	Concurrency int64  `env:"WORKER_CONCURRENCY" envDefault:"1"`

	// Engine configuration
	Engine         string        `env:"WORKER_ENGINE" envDefault:"openai"`
	EngineProvider string        `env:"ENGINE_PROVIDER" envDefault:"anthropic"`
	EngineBaseURL  string        `env:"ENGINE_BASE_URL"`
	EngineAPIKey   string        `env:"ENGINE_API_KEY"`
	EngineModel    string        `env:"ENGINE_MODEL" envDefault:"phi-3.5-mini-instruct"`
	EngineTimeout  time.Duration `env:"ENGINE_TIMEOUT" envDefault:"60s"`

	// Prompt configuration
	SystemPromptFile string `env:"SYSTEM_PROMPT_FILE"`
	UserTemplate     string `env:"USER_TEMPLATE"`

	// Logging configuration
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
}

// LoadWorker loads worker configuration from environment variables
func LoadWorker() (*WorkerConfig, error) {
	cfg := &WorkerConfig{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// Validate validates the configuration
func (c *WorkerConfig) Validate() error {
	if c.WorkerID == "" {
		return fmt.Errorf("WORKER_ID is required")
	}

	if c.ListenAddr == "" {
		return fmt.Errorf("WORKER_LISTEN_ADDR is required")
	}

	if c.Credential == "" {
		return fmt.Errorf("WORKER_CREDENTIAL is required")
	}

	if c.Concurrency < 1 {
		return fmt.Errorf("WORKER_CONCURRENCY must be at least 1")
	}

	switch c.Engine {
	case "openai", "anthropic", "google", "dago", "mock":
	default:
		return fmt.Errorf("WORKER_ENGINE must be one of: openai, anthropic, google, dago, mock")
	}

	if c.Engine == "dago" && c.EngineProvider == "" {
		return fmt.Errorf("ENGINE_PROVIDER is required for the dago engine")
	}

	if c.Engine != "mock" && c.EngineModel == "" {
		return fmt.Errorf("ENGINE_MODEL is required")
	}

	if c.EngineTimeout <= 0 {
		return fmt.Errorf("ENGINE_TIMEOUT must be positive")
	}

	if !isValidLogLevel(c.LogLevel) {
		return fmt.Errorf("LOG_LEVEL must be one of: debug, info, warn, error")
	}

	return nil
}

// SystemPrompt returns the contents of SYSTEM_PROMPT_FILE, or "" when unset.
func (c *WorkerConfig) SystemPrompt() (string, error) {
	if c.SystemPromptFile == "" {
		return "", nil
	}
	data, err := os.ReadFile(c.SystemPromptFile)
	if err != nil {
		return "", fmt.Errorf("failed to read system prompt: %w", err)
	}
	return string(data), nil
}

// String returns a string representation of the config (without sensitive data)
func (c *WorkerConfig) String() string {
	return fmt.Sprintf(
		"WorkerConfig{WorkerID=%s, ListenAddr=%s, Concurrency=%d, Engine=%s, EngineProvider=%s, "+
			"EngineBaseURL=%s, EngineModel=%s, EngineTimeout=%s, SystemPromptFile=%s, LogLevel=%s}",
		c.WorkerID,
		c.ListenAddr,
		c.Concurrency,
		c.Engine,
		c.EngineProvider,
		c.EngineBaseURL,
		c.EngineModel,
		c.EngineTimeout,
		c.SystemPromptFile,
		c.LogLevel,
	)
}
