package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/aescanero/dago-task-gateway/internal/dispatch"
	"github.com/aescanero/dago-task-gateway/internal/domain"
	"github.com/aescanero/dago-task-gateway/internal/events"
	"github.com/aescanero/dago-task-gateway/internal/normalize"
	"go.uber.org/zap"
)

// GenRequest is the POST /gen body.
type GenRequest struct {
	Prompt      string   `json:"prompt"`
	MaxTokens   *int     `json:"max_tokens,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`
	TopP        *float64 `json:"top_p,omitempty"`
	Stop        []string `json:"stop,omitempty"`
}

// Envelope is the /gen success body.
type Envelope struct {
	Prompt      string                 `json:"prompt"`
	WordCount   int                    `json:"word_count"`
	Result      domain.RoutingDecision `json:"result"`
	Diagnostics *Diagnostics           `json:"diagnostics,omitempty"`
}

// Diagnostics explains how a result was produced.
type Diagnostics struct {
	RequestID string          `json:"request_id"`
	Stage     normalize.Stage `json:"stage"`
	Reason    string          `json:"reason,omitempty"`
	Worker    string          `json:"worker,omitempty"`
	Attempts  int             `json:"attempts"`
	LatencyMS int64           `json:"latency_ms"`
	Failure   *domain.Failure `json:"failure,omitempty"`
}

var errPromptRequired = &domain.ValidationError{Field: "prompt", Message: "Prompt is required"}

// CountWords counts whitespace-separated words.
func CountWords(text string) int {
	return len(strings.Fields(text))
}

func (s *Server) handleGen(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	id := requestID(r.Context())

	req, err := s.parseGen(r)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	wordCount := CountWords(req.Prompt)
	if wordCount > s.maxWords {
		s.respondError(w, http.StatusBadRequest, fmt.Sprintf("Prompt exceeds %d words (current: %d)", s.maxWords, wordCount))
		return
	}

	if err := req.Validate(); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	raw, result, attempts, err := s.dispatch(r.Context(), req)
	switch {
	case errors.Is(err, domain.ErrNoWorkersAvailable):
		s.logger.Warn("no live workers", zap.String("request_id", id))
		s.respondError(w, http.StatusServiceUnavailable, "No model workers available")
		return
	case errors.Is(err, context.Canceled):
		s.logger.Debug("client went away", zap.String("request_id", id))
		return
	}

	normalized := s.normalizer.Normalize(raw, req.Prompt)
	latency := time.Since(start)

	worker := ""
	if result != nil {
		worker = result.Endpoint
	}

	s.logger.Info("prompt routed",
		zap.String("request_id", id),
		zap.Int("word_count", wordCount),
		zap.String("final_decision", string(normalized.Decision.FinalDecision)),
		zap.String("stage", string(normalized.Stage)),
		zap.String("worker", worker),
		zap.Duration("latency", latency),
	)

	s.publisher.Publish(events.Event{
		RequestID: id,
		Prompt:    req.Prompt,
		WordCount: wordCount,
		Decision:  normalized.Decision,
		Stage:     string(normalized.Stage),
		Reason:    normalized.Reason,
		Worker:    worker,
		Failure:   raw.Failure,
		Latency:   latency,
		Timestamp: time.Now().UTC(),
	})

	env := Envelope{
		Prompt:    req.Prompt,
		WordCount: wordCount,
		Result:    normalized.Decision,
	}
	if s.diagnostics {
		env.Diagnostics = &Diagnostics{
			RequestID: id,
			Stage:     normalized.Stage,
			Reason:    normalized.Reason,
			Worker:    worker,
			Attempts:  attempts,
			LatencyMS: latency.Milliseconds(),
			Failure:   raw.Failure,
		}
	}

	s.respondJSON(w, http.StatusOK, env)
}

// dispatch runs up to s.attempts dispatches. Each attempt selects from the
// endpoints live at that moment, so an endpoint that just failed is skipped.
// ErrNoWorkersAvailable is returned only when the first attempt finds the
// pool empty; later exhaustion keeps the last failure.
func (s *Server) dispatch(ctx context.Context, req domain.InferenceRequest) (domain.RawOutput, *dispatch.Result, int, error) {
	var (
		raw    domain.RawOutput
		result *dispatch.Result
	)

	for attempt := 1; attempt <= s.attempts; attempt++ {
		res, err := s.dispatcher.Dispatch(ctx, req)
		if err == nil {
			return domain.RawOutput{Text: res.Text}, res, attempt, nil
		}

		switch {
		case errors.Is(err, domain.ErrNoWorkersAvailable):
			if attempt == 1 {
				return raw, nil, attempt, err
			}
			return raw, result, attempt - 1, nil
		case errors.Is(err, context.Canceled):
			return raw, res, attempt, err
		}

		s.logger.Warn("dispatch failed",
			zap.String("request_id", requestID(ctx)),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
		raw = domain.FailureOutput(err)
		result = res
	}

	return raw, result, s.attempts, nil
}

// parseGen reads the prompt and sampling overrides from the query string or
// the JSON body.
func (s *Server) parseGen(r *http.Request) (domain.InferenceRequest, error) {
	req := s.defaults
	req.Stop = append([]string(nil), s.defaults.Stop...)

	if r.Method == http.MethodGet {
		req.Prompt = strings.TrimSpace(r.URL.Query().Get("prompt"))
		if req.Prompt == "" {
			return req, errPromptRequired
		}
		return req, nil
	}

	var body GenRequest
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	if err := dec.Decode(&body); err != nil {
		if errors.Is(err, io.EOF) {
			return req, errPromptRequired
		}
		return req, &domain.ValidationError{Field: "body", Message: "Invalid JSON body"}
	}

	req.Prompt = strings.TrimSpace(body.Prompt)
	if req.Prompt == "" {
		return req, errPromptRequired
	}
	if body.MaxTokens != nil {
		req.MaxTokens = *body.MaxTokens
	}
	if body.Temperature != nil {
		req.Temperature = *body.Temperature
	}
	if body.TopP != nil {
		req.TopP = *body.TopP
	}
	if body.Stop != nil {
		req.Stop = body.Stop
	}
	return req, nil
}
