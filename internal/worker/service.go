package worker

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aescanero/dago-task-gateway/internal/eval/template"
	"github.com/aescanero/dago-task-gateway/internal/workerrpc"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithSystemPrompt replaces the system prompt template.
func WithSystemPrompt(tmpl string) ServiceOption {
	return func(s *Service) {
		if tmpl != "" {
			s.systemPrompt = tmpl
		}
	}
}

// WithUserTemplate replaces the user prompt template.
func WithUserTemplate(tmpl string) ServiceOption {
	return func(s *Service) {
		if tmpl != "" {
			s.userTemplate = tmpl
		}
	}
}

// WithConcurrency sets how many engine calls may run at once. The default of
// one matches a single loaded model.
func WithConcurrency(n int64) ServiceOption {
	return func(s *Service) {
		if n > 0 {
			s.sem = semaphore.NewWeighted(n)
		}
	}
}

// Service implements the Generator RPC on top of an Engine.
type Service struct {
	engine       Engine
	templates    *template.Engine
	systemPrompt string
	userTemplate string
	sem          *semaphore.Weighted
	logger       *zap.Logger
}

// NewService creates a service and validates its prompt templates.
func NewService(engine Engine, logger *zap.Logger, opts ...ServiceOption) (*Service, error) {
	s := &Service{
		engine:       engine,
		templates:    template.NewEngine(),
		systemPrompt: DefaultSystemPrompt,
		userTemplate: DefaultUserTemplate,
		sem:          semaphore.NewWeighted(1),
		logger:       logger,
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := s.templates.ValidateTemplate(s.systemPrompt); err != nil {
		return nil, fmt.Errorf("invalid system prompt template: %w", err)
	}
	if err := s.templates.ValidateTemplate(s.userTemplate); err != nil {
		return nil, fmt.Errorf("invalid user template: %w", err)
	}

	return s, nil
}

// Generate runs one completion. Engine problems come back in the Error field
// of the response; the RPC itself only fails for transport reasons.
func (s *Service) Generate(ctx context.Context, req *workerrpc.GenerateRequest) (resp *workerrpc.GenerateResponse, err error) {
	inference := req.InferenceRequest()
	if verr := inference.Validate(); verr != nil {
		return &workerrpc.GenerateResponse{Error: verr.Error()}, nil
	}

	if aerr := s.sem.Acquire(ctx, 1); aerr != nil {
		return &workerrpc.GenerateResponse{Error: fmt.Sprintf("worker busy: %v", aerr)}, nil
	}
	defer s.sem.Release(1)

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("engine panicked", zap.Any("panic", r))
			resp, err = &workerrpc.GenerateResponse{Error: fmt.Sprintf("engine panic: %v", r)}, nil
		}
	}()

	completion, rerr := s.completion(inference.Prompt, req)
	if rerr != nil {
		return &workerrpc.GenerateResponse{Error: rerr.Error()}, nil
	}

	start := time.Now()
	text, cerr := s.engine.Complete(ctx, completion)
	if cerr != nil {
		s.logger.Warn("engine call failed",
			zap.String("engine", s.engine.Name()),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(cerr),
		)
		return &workerrpc.GenerateResponse{Error: cerr.Error()}, nil
	}

	text = strings.TrimSpace(truncateAtStop(text, req.Stop))
	s.logger.Debug("engine call completed",
		zap.String("engine", s.engine.Name()),
		zap.Duration("elapsed", time.Since(start)),
		zap.Int("chars", len(text)),
	)

	return &workerrpc.GenerateResponse{Text: text}, nil
}

func (s *Service) completion(prompt string, req *workerrpc.GenerateRequest) (Completion, error) {
	data := map[string]interface{}{"prompt": prompt}

	system, err := s.templates.Render(s.systemPrompt, data)
	if err != nil {
		return Completion{}, fmt.Errorf("failed to render system prompt: %w", err)
	}
	user, err := s.templates.Render(s.userTemplate, data)
	if err != nil {
		return Completion{}, fmt.Errorf("failed to render user prompt: %w", err)
	}

	return Completion{
		System:      system,
		Prompt:      user,
		Question:    prompt,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		TopP:        req.TopP,
		Stop:        req.Stop,
	}, nil
}

// truncateAtStop cuts text at the earliest stop sequence. Engines that ignore
// stop sequences still produce the same output as those that honour them.
func truncateAtStop(text string, stop []string) string {
	cut := len(text)
	for _, seq := range stop {
		if seq == "" {
			continue
		}
		if i := strings.Index(text, seq); i >= 0 && i < cut {
			cut = i
		}
	}
	return text[:cut]
}
