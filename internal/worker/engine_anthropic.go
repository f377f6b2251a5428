package worker

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// AnthropicEngine runs completions on Claude models.
type AnthropicEngine struct {
	client anthropic.Client
	model  string
}

// NewAnthropicEngine creates an Anthropic engine.
func NewAnthropicEngine(cfg EngineConfig) (*AnthropicEngine, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("anthropic API key is required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("anthropic engine requires a model")
	}

	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.Timeout))
	}

	return &AnthropicEngine{
		client: anthropic.NewClient(opts...),
		model:  cfg.Model,
	}, nil
}

// Name returns the engine identifier.
func (e *AnthropicEngine) Name() string {
	return EngineAnthropic
}

// Complete sends one message and concatenates the text blocks of the reply.
func (e *AnthropicEngine) Complete(ctx context.Context, c Completion) (string, error) {
	params := e.messageParams(c)

	resp, err := e.client.Messages.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("anthropic API error: %w", err)
	}

	var content string
	for _, block := range resp.Content {
		if block.Type == "text" {
			content += block.Text
		}
	}

	return content, nil
}

func (e *AnthropicEngine) messageParams(c Completion) anthropic.MessageNewParams {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(e.model),
		MaxTokens: int64(c.MaxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(c.Prompt)),
		},
		Temperature:   anthropic.Float(c.Temperature),
		StopSequences: visibleStops(c.Stop),
	}
	// top_p of 1 samples the full distribution, so it is left unset.
	if c.TopP > 0 && c.TopP < 1 {
		params.TopP = anthropic.Float(c.TopP)
	}
	if c.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: c.System}}
	}
	return params
}

// visibleStops drops whitespace-only stop sequences, which the Messages API
// rejects. The service still cuts the output at them.
func visibleStops(stop []string) []string {
	var out []string
	for _, seq := range stop {
		if strings.TrimSpace(seq) != "" {
			out = append(out, seq)
		}
	}
	return out
}
