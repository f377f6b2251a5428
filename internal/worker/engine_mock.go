package worker

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
)

// MockEngine routes by keyword. It never calls a model.
type MockEngine struct {
	mu        sync.Mutex
	responses map[string]string
	calls     []Completion
}

// NewMockEngine creates a mock engine.
func NewMockEngine() *MockEngine {
	return &MockEngine{responses: make(map[string]string)}
}

// Name returns the engine identifier.
func (e *MockEngine) Name() string {
	return EngineMock
}

// SetResponse makes the engine answer question with a fixed reply.
func (e *MockEngine) SetResponse(question, reply string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.responses[question] = reply
}

// Calls returns the completions seen so far.
func (e *MockEngine) Calls() []Completion {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Completion, len(e.calls))
	copy(out, e.calls)
	return out
}

// Complete returns the canned reply for the question, or keyword routing JSON.
func (e *MockEngine) Complete(ctx context.Context, c Completion) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	e.mu.Lock()
	e.calls = append(e.calls, c)
	reply, ok := e.responses[c.Question]
	e.mu.Unlock()
	if ok {
		return reply, nil
	}

	return keywordRoute(c.Question), nil
}

var keywords = map[string][]string{
	"image": {"draw", "picture", "image", "photo", "paint", "sketch"},
	"audio": {"sound", "music", "audio", "song", "voice", "speak"},
	"web":   {"latest", "news", "today", "search", "current", "price"},
}

func keywordRoute(question string) string {
	lower := strings.ToLower(question)
	tasks := map[string]interface{}{
		"text":  nil,
		"image": nil,
		"audio": nil,
		"web":   nil,
	}

	matched := 0
	for _, slot := range []string{"image", "audio", "web"} {
		for _, kw := range keywords[slot] {
			if strings.Contains(lower, kw) {
				tasks[slot] = question
				matched++
				break
			}
		}
	}
	if matched == 0 {
		tasks["text"] = question
	}

	data, _ := json.Marshal(map[string]interface{}{"tasks": tasks})
	return string(data)
}
