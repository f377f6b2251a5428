package worker

import (
	"context"
	"fmt"

	"github.com/aescanero/dago-adapters/pkg/llm"
	"github.com/aescanero/dago-libs/pkg/domain"
	"github.com/aescanero/dago-libs/pkg/ports"
	"go.uber.org/zap"
)

// DagoEngine runs completions through the shared dago-adapters LLM client.
type DagoEngine struct {
	client ports.LLMClient
	model  string
}

// NewDagoEngine creates an engine backed by the provider named in cfg.
func NewDagoEngine(cfg EngineConfig, logger *zap.Logger) (*DagoEngine, error) {
	if cfg.Provider == "" {
		return nil, fmt.Errorf("dago engine requires a provider")
	}
	if cfg.APIKey == "" && !localProvider(cfg.Provider) {
		return nil, fmt.Errorf("llm api key is required for provider %s", cfg.Provider)
	}

	client, err := llm.NewClient(&llm.Config{
		Provider: cfg.Provider,
		APIKey:   cfg.APIKey,
		BaseURL:  cfg.BaseURL,
		Timeout:  int(cfg.Timeout.Seconds()),
		Logger:   logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create llm client: %w", err)
	}

	return &DagoEngine{client: client, model: cfg.Model}, nil
}

// Name returns the engine identifier.
func (e *DagoEngine) Name() string {
	return EngineDago
}

// Complete runs one completion. The adapters' request has no top_p or stop
// fields; stop sequences are still applied by the service.
func (e *DagoEngine) Complete(ctx context.Context, c Completion) (string, error) {
	req := &domain.LLMRequest{
		Model: e.model,
		Messages: []domain.Message{
			{
				Role:    "user",
				Content: c.Prompt,
			},
		},
		System:      c.System,
		MaxTokens:   c.MaxTokens,
		Temperature: c.Temperature,
	}

	respInterface, err := e.client.GenerateCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("llm completion failed: %w", err)
	}

	resp, ok := respInterface.(*domain.LLMResponse)
	if !ok {
		return "", fmt.Errorf("unexpected response type from LLM")
	}

	return resp.Content, nil
}

// localProvider reports whether the provider runs without credentials.
func localProvider(provider string) bool {
	return provider == "ollama" || provider == "local"
}
