package workerrpc

import "github.com/aescanero/dago-task-gateway/internal/domain"

// GenerateRequest is the Generate call payload.
type GenerateRequest struct {
	Prompt      string   `json:"prompt"`
	MaxTokens   int      `json:"max_tokens"`
	Temperature float64  `json:"temperature"`
	TopP        float64  `json:"top_p"`
	Stop        []string `json:"stop"`
}

// GenerateResponse carries either the generated text or a worker-side error.
type GenerateResponse struct {
	Text  string `json:"text,omitempty"`
	Error string `json:"error,omitempty"`
}

// NewGenerateRequest converts an inference request to its wire form.
func NewGenerateRequest(req domain.InferenceRequest) *GenerateRequest {
	return &GenerateRequest{
		Prompt:      req.Prompt,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		TopP:        req.TopP,
		Stop:        req.Stop,
	}
}

// InferenceRequest converts the wire form back to a domain request.
func (r *GenerateRequest) InferenceRequest() domain.InferenceRequest {
	return domain.InferenceRequest{
		Prompt:      r.Prompt,
		MaxTokens:   r.MaxTokens,
		Temperature: r.Temperature,
		TopP:        r.TopP,
		Stop:        r.Stop,
	}
}
