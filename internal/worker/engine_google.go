package worker

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// GoogleEngine runs completions on Gemini models.
type GoogleEngine struct {
	client *genai.Client
	model  string
}

// NewGoogleEngine creates a Gemini engine.
func NewGoogleEngine(ctx context.Context, cfg EngineConfig) (*GoogleEngine, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("google API key is required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("google engine requires a model")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create google client: %w", err)
	}

	return &GoogleEngine{
		client: client,
		model:  cfg.Model,
	}, nil
}

// Name returns the engine identifier.
func (e *GoogleEngine) Name() string {
	return EngineGoogle
}

// Complete generates content for the prompt.
func (e *GoogleEngine) Complete(ctx context.Context, c Completion) (string, error) {
	cfg := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(float32(c.Temperature)),
		TopP:            genai.Ptr(float32(c.TopP)),
		MaxOutputTokens: int32(c.MaxTokens),
		StopSequences:   c.Stop,
	}
	if c.System != "" {
		cfg.SystemInstruction = genai.NewContentFromText(c.System, genai.RoleUser)
	}

	resp, err := e.client.Models.GenerateContent(ctx, e.model, genai.Text(c.Prompt), cfg)
	if err != nil {
		return "", fmt.Errorf("google API error: %w", err)
	}

	if resp == nil || len(resp.Candidates) == 0 {
		return "", fmt.Errorf("google returned no candidates")
	}

	var content string
	if resp.Candidates[0].Content != nil {
		for _, part := range resp.Candidates[0].Content.Parts {
			if part.Text != "" {
				content += part.Text
			}
		}
	}

	return content, nil
}
