package worker

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Completion is one prompt plus sampling parameters handed to an engine.
type Completion struct {
	System      string
	Prompt      string
	Question    string
	MaxTokens   int
	Temperature float64
	TopP        float64
	Stop        []string
}

// Engine produces text for a completion.
type Engine interface {
	Name() string
	Complete(ctx context.Context, c Completion) (string, error)
}

// EngineConfig selects and configures an engine.
type EngineConfig struct {
	Kind     string
	Provider string
	BaseURL  string
	APIKey   string
	Model    string
	Timeout  time.Duration
}

// Engine kinds.
const (
	EngineOpenAI    = "openai"
	EngineAnthropic = "anthropic"
	EngineGoogle    = "google"
	EngineDago      = "dago"
	EngineMock      = "mock"
)

// NewEngine builds the engine named by cfg.Kind.
func NewEngine(ctx context.Context, cfg EngineConfig, logger *zap.Logger) (Engine, error) {
	switch cfg.Kind {
	case EngineOpenAI:
		return NewOpenAIEngine(cfg)
	case EngineAnthropic:
		return NewAnthropicEngine(cfg)
	case EngineGoogle:
		return NewGoogleEngine(ctx, cfg)
	case EngineDago:
		return NewDagoEngine(cfg, logger)
	case EngineMock:
		return NewMockEngine(), nil
	default:
		return nil, fmt.Errorf("unknown engine %q", cfg.Kind)
	}
}
