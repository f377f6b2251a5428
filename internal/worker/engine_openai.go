package worker

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// OpenAIEngine talks to any OpenAI compatible chat completions endpoint.
type OpenAIEngine struct {
	client openai.Client
	model  string
}

// NewOpenAIEngine creates an OpenAI engine. An API key is only required when
// no base URL is given, since local servers usually accept anything.
func NewOpenAIEngine(cfg EngineConfig) (*OpenAIEngine, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("openai engine requires a model")
	}
	if cfg.APIKey == "" && cfg.BaseURL == "" {
		return nil, fmt.Errorf("openai API key is required")
	}

	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = "none"
	}
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.Timeout))
	}

	return &OpenAIEngine{
		client: openai.NewClient(opts...),
		model:  cfg.Model,
	}, nil
}

// Name returns the engine identifier.
func (e *OpenAIEngine) Name() string {
	return EngineOpenAI
}

// Complete runs one chat completion.
func (e *OpenAIEngine) Complete(ctx context.Context, c Completion) (string, error) {
	messages := []openai.ChatCompletionMessageParamUnion{}
	if c.System != "" {
		messages = append(messages, openai.SystemMessage(c.System))
	}
	messages = append(messages, openai.UserMessage(c.Prompt))

	var reqOpts []option.RequestOption
	if len(c.Stop) > 0 {
		reqOpts = append(reqOpts, option.WithJSONSet("stop", c.Stop))
	}

	resp, err := e.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(e.model),
		Messages:    messages,
		MaxTokens:   openai.Int(int64(c.MaxTokens)),
		Temperature: openai.Float(c.Temperature),
		TopP:        openai.Float(c.TopP),
	}, reqOpts...)
	if err != nil {
		return "", fmt.Errorf("openai API error: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai returned no choices")
	}

	return resp.Choices[0].Message.Content, nil
}
