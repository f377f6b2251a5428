package domain

import (
	"context"
	"fmt"
	"strings"
)

// Decision is the final tool choice of a routing decision.
type Decision string

const (
	DecisionText        Decision = "text"
	DecisionImage       Decision = "image"
	DecisionAudio       Decision = "audio"
	DecisionWeb         Decision = "web"
	DecisionCombination Decision = "combination"
)

// Valid reports whether d is one of the known decisions.
func (d Decision) Valid() bool {
	switch d {
	case DecisionText, DecisionImage, DecisionAudio, DecisionWeb, DecisionCombination:
		return true
	}
	return false
}

// Task slot names, in canonical order.
const (
	SlotText  = "text"
	SlotImage = "image"
	SlotAudio = "audio"
	SlotWeb   = "web"
)

// Slots lists the task slots in canonical order.
var Slots = []string{SlotText, SlotImage, SlotAudio, SlotWeb}

// Tasks maps each tool to the prompt it should receive. A nil slot means the
// tool is not used.
type Tasks struct {
	Text  *string `json:"text"`
	Image *string `json:"image"`
	Audio *string `json:"audio"`
	Web   *string `json:"web"`
}

// Get returns the value of the named slot.
func (t Tasks) Get(slot string) *string {
	switch slot {
	case SlotText:
		return t.Text
	case SlotImage:
		return t.Image
	case SlotAudio:
		return t.Audio
	case SlotWeb:
		return t.Web
	}
	return nil
}

// Set assigns the named slot. Unknown slots are ignored.
func (t *Tasks) Set(slot string, value *string) {
	switch slot {
	case SlotText:
		t.Text = value
	case SlotImage:
		t.Image = value
	case SlotAudio:
		t.Audio = value
	case SlotWeb:
		t.Web = value
	}
}

// Active returns the names of the non-null slots in canonical order.
func (t Tasks) Active() []string {
	active := make([]string, 0, len(Slots))
	for _, slot := range Slots {
		if t.Get(slot) != nil {
			active = append(active, slot)
		}
	}
	return active
}

// RoutingDecision is the canonical output of the gateway.
type RoutingDecision struct {
	Tasks         Tasks    `json:"tasks"`
	FinalDecision Decision `json:"final_decision"`
}

// FallbackDecision returns the record used when model output cannot be
// recovered: the prompt goes to the text tool and nothing else is used.
// Invalid UTF-8 in the prompt is replaced with U+FFFD.
func FallbackDecision(prompt string) RoutingDecision {
	text := strings.ToValidUTF8(prompt, "\uFFFD")
	return RoutingDecision{
		Tasks:         Tasks{Text: &text},
		FinalDecision: DecisionText,
	}
}

// InferenceRequest carries the prompt and sampling parameters of one call.
type InferenceRequest struct {
	Prompt      string   `json:"prompt"`
	MaxTokens   int      `json:"max_tokens"`
	Temperature float64  `json:"temperature"`
	TopP        float64  `json:"top_p"`
	Stop        []string `json:"stop,omitempty"`
}

// Validate checks the sampling parameters.
func (r InferenceRequest) Validate() error {
	if r.Prompt == "" {
		return &ValidationError{Field: "prompt", Message: "Prompt is required"}
	}
	if r.MaxTokens <= 0 {
		return &ValidationError{Field: "max_tokens", Message: fmt.Sprintf("max_tokens must be positive (got %d)", r.MaxTokens)}
	}
	if r.Temperature < 0 || r.Temperature > 2 {
		return &ValidationError{Field: "temperature", Message: fmt.Sprintf("temperature must be between 0 and 2 (got %g)", r.Temperature)}
	}
	if r.TopP <= 0 || r.TopP > 1 {
		return &ValidationError{Field: "top_p", Message: fmt.Sprintf("top_p must be in (0, 1] (got %g)", r.TopP)}
	}
	return nil
}

// Failure describes why a worker call produced no text.
type Failure struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// Failure kinds.
const (
	FailureConnection = "connection"
	FailureTimeout    = "timeout"
	FailureWorker     = "worker"
)

// RawOutput is what one worker call produced: text, or a failure.
type RawOutput struct {
	Text    string
	Failure *Failure
}

// FailureOutput converts a dispatch error into a failed RawOutput.
func FailureOutput(err error) RawOutput {
	return RawOutput{Failure: &Failure{Kind: FailureKind(err), Message: err.Error()}}
}

// Worker is anything that can run one generation call.
type Worker interface {
	Generate(ctx context.Context, req InferenceRequest) (string, error)
}
