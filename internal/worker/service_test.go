package worker

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/aescanero/dago-task-gateway/internal/workerrpc"
	"go.uber.org/zap"
)

type funcEngine func(ctx context.Context, c Completion) (string, error)

func (f funcEngine) Name() string { return "func" }

func (f funcEngine) Complete(ctx context.Context, c Completion) (string, error) {
	return f(ctx, c)
}

func request(prompt string) *workerrpc.GenerateRequest {
	return &workerrpc.GenerateRequest{
		Prompt:      prompt,
		MaxTokens:   60,
		Temperature: 0.1,
		TopP:        0.8,
		Stop:        []string{"\n\n", "Question:"},
	}
}

func newService(t *testing.T, engine Engine, opts ...ServiceOption) *Service {
	t.Helper()
	svc, err := NewService(engine, zap.NewNop(), opts...)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc
}

func TestGenerateWithMockEngine(t *testing.T) {
	engine := NewMockEngine()
	svc := newService(t, engine)

	resp, err := svc.Generate(context.Background(), request("draw a cat"))
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if resp.Error != "" {
		t.Fatalf("unexpected worker error: %s", resp.Error)
	}
	want := `{"tasks":{"audio":null,"image":"draw a cat","text":null,"web":null}}`
	if resp.Text != want {
		t.Fatalf("got %s want %s", resp.Text, want)
	}

	calls := engine.Calls()
	if len(calls) != 1 {
		t.Fatalf("expected one engine call, got %d", len(calls))
	}
	if calls[0].Prompt != "Question: draw a cat\nReply with JSON:" {
		t.Fatalf("unexpected user prompt %q", calls[0].Prompt)
	}
	if !strings.Contains(calls[0].System, "router that decides which tools") {
		t.Fatalf("system prompt not rendered: %q", calls[0].System)
	}
	if calls[0].MaxTokens != 60 || calls[0].Temperature != 0.1 || calls[0].TopP != 0.8 {
		t.Fatalf("sampling parameters not forwarded: %+v", calls[0])
	}
}

func TestEngineErrorIsReportedInResponse(t *testing.T) {
	svc := newService(t, funcEngine(func(context.Context, Completion) (string, error) {
		return "", errors.New("out of memory")
	}))

	resp, err := svc.Generate(context.Background(), request("hello"))
	if err != nil {
		t.Fatalf("engine failures must not become RPC errors: %v", err)
	}
	if resp.Error != "out of memory" || resp.Text != "" {
		t.Fatalf("unexpected response %+v", resp)
	}
}

func TestEnginePanicIsReportedInResponse(t *testing.T) {
	svc := newService(t, funcEngine(func(context.Context, Completion) (string, error) {
		panic("segfault in sampler")
	}))

	resp, err := svc.Generate(context.Background(), request("hello"))
	if err != nil {
		t.Fatalf("unexpected RPC error: %v", err)
	}
	if !strings.Contains(resp.Error, "segfault in sampler") {
		t.Fatalf("unexpected response %+v", resp)
	}

	// the call lock must have been released
	resp, _ = svc.Generate(context.Background(), request("hello"))
	if strings.Contains(resp.Error, "busy") {
		t.Fatalf("lock leaked after panic")
	}
}

func TestInvalidParameters(t *testing.T) {
	svc := newService(t, NewMockEngine())

	tests := []struct {
		name   string
		mutate func(r *workerrpc.GenerateRequest)
		want   string
	}{
		{"empty prompt", func(r *workerrpc.GenerateRequest) { r.Prompt = "" }, "Prompt is required"},
		{"zero tokens", func(r *workerrpc.GenerateRequest) { r.MaxTokens = 0 }, "max_tokens"},
		{"hot temperature", func(r *workerrpc.GenerateRequest) { r.Temperature = 3 }, "temperature"},
		{"zero top_p", func(r *workerrpc.GenerateRequest) { r.TopP = 0 }, "top_p"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := request("hello")
			tt.mutate(req)
			resp, err := svc.Generate(context.Background(), req)
			if err != nil {
				t.Fatalf("unexpected RPC error: %v", err)
			}
			if !strings.Contains(resp.Error, tt.want) {
				t.Fatalf("expected error mentioning %q, got %+v", tt.want, resp)
			}
		})
	}
}

func TestConcurrentCallsAreSerialized(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{}, 1)
	svc := newService(t, funcEngine(func(ctx context.Context, c Completion) (string, error) {
		started <- struct{}{}
		<-release
		return `{"tasks":{"text":"ok"}}`, nil
	}))

	done := make(chan *workerrpc.GenerateResponse, 1)
	go func() {
		resp, _ := svc.Generate(context.Background(), request("first"))
		done <- resp
	}()
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	resp, err := svc.Generate(ctx, request("second"))
	if err != nil {
		t.Fatalf("unexpected RPC error: %v", err)
	}
	if !strings.HasPrefix(resp.Error, "worker busy") {
		t.Fatalf("expected busy failure, got %+v", resp)
	}

	close(release)
	if first := <-done; first.Text == "" {
		t.Fatalf("first call should succeed, got %+v", first)
	}
}

func TestOutputIsTrimmedAndCutAtStop(t *testing.T) {
	svc := newService(t, funcEngine(func(context.Context, Completion) (string, error) {
		return "  {\"tasks\":{\"text\":\"hi\"}}\n\nQuestion: something else", nil
	}))

	resp, _ := svc.Generate(context.Background(), request("hi"))
	if resp.Text != `{"tasks":{"text":"hi"}}` {
		t.Fatalf("got %q", resp.Text)
	}
}

func TestCustomTemplates(t *testing.T) {
	engine := NewMockEngine()
	svc := newService(t, engine,
		WithSystemPrompt("Route requests."),
		WithUserTemplate("<|user|>\n{{prompt}}\n<|assistant|>"),
	)

	if _, err := svc.Generate(context.Background(), request("play some music")); err != nil {
		t.Fatalf("generate: %v", err)
	}
	call := engine.Calls()[0]
	if call.System != "Route requests." || call.Prompt != "<|user|>\nplay some music\n<|assistant|>" {
		t.Fatalf("templates not applied: %+v", call)
	}
}

func TestNewServiceRejectsBrokenTemplate(t *testing.T) {
	if _, err := NewService(NewMockEngine(), zap.NewNop(), WithUserTemplate("{{#if prompt}}")); err == nil {
		t.Fatalf("expected template error")
	}
}

func TestKeywordRoute(t *testing.T) {
	tests := map[string]string{
		"what is the capital of France":  `{"tasks":{"audio":null,"image":null,"text":"what is the capital of France","web":null}}`,
		"latest news about rockets":      `{"tasks":{"audio":null,"image":null,"text":null,"web":"latest news about rockets"}}`,
		"draw a cat and play a song":     `{"tasks":{"audio":"draw a cat and play a song","image":"draw a cat and play a song","text":null,"web":null}}`,
	}
	for question, want := range tests {
		if got := keywordRoute(question); got != want {
			t.Fatalf("keywordRoute(%q) = %s, want %s", question, got, want)
		}
	}
}

func TestNewEngineUnknownKind(t *testing.T) {
	if _, err := NewEngine(context.Background(), EngineConfig{Kind: "llama-in-a-box"}, zap.NewNop()); err == nil {
		t.Fatalf("expected error for unknown engine")
	}
	if _, err := NewEngine(context.Background(), EngineConfig{Kind: EngineOpenAI}, zap.NewNop()); err == nil {
		t.Fatalf("expected error for missing model")
	}
	engine, err := NewEngine(context.Background(), EngineConfig{Kind: EngineOpenAI, BaseURL: "http://localhost:8080/v1", Model: "phi"}, zap.NewNop())
	if err != nil {
		t.Fatalf("local openai engine should not need a key: %v", err)
	}
	if engine.Name() != EngineOpenAI {
		t.Fatalf("unexpected engine %s", engine.Name())
	}
}
