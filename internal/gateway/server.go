package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/aescanero/dago-task-gateway/internal/dispatch"
	"github.com/aescanero/dago-task-gateway/internal/domain"
	"github.com/aescanero/dago-task-gateway/internal/events"
	"github.com/aescanero/dago-task-gateway/internal/normalize"
	"github.com/aescanero/dago-task-gateway/internal/pool"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// RequestIDHeader carries the per-request identifier.
const RequestIDHeader = "X-Request-ID"

// Dispatcher runs one inference request on a worker.
type Dispatcher interface {
	Dispatch(ctx context.Context, req domain.InferenceRequest) (*dispatch.Result, error)
}

// Normalizer turns raw worker output into a routing decision.
type Normalizer interface {
	Normalize(raw domain.RawOutput, prompt string) normalize.Result
}

// Option configures a Server.
type Option func(*Server)

// WithMaxPromptWords sets the prompt word limit. The default is 100.
func WithMaxPromptWords(n int) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxWords = n
		}
	}
}

// WithDefaults sets the sampling parameters used when a request gives none.
func WithDefaults(req domain.InferenceRequest) Option {
	return func(s *Server) {
		s.defaults = req
	}
}

// WithAttempts sets how many dispatches a request may use. The default is one.
func WithAttempts(n int) Option {
	return func(s *Server) {
		if n > 0 {
			s.attempts = n
		}
	}
}

// WithDiagnostics adds stage, worker and failure details to /gen responses.
func WithDiagnostics(enabled bool) Option {
	return func(s *Server) {
		s.diagnostics = enabled
	}
}

// WithPublisher sets where decision events go.
func WithPublisher(p events.Publisher) Option {
	return func(s *Server) {
		if p != nil {
			s.publisher = p
		}
	}
}

// Server is the gateway HTTP server.
type Server struct {
	port        int
	pool        *pool.Pool
	dispatcher  Dispatcher
	normalizer  Normalizer
	publisher   events.Publisher
	maxWords    int
	defaults    domain.InferenceRequest
	attempts    int
	diagnostics bool
	logger      *zap.Logger
	server      *http.Server
}

// NewServer creates a gateway server.
func NewServer(port int, p *pool.Pool, d Dispatcher, n Normalizer, logger *zap.Logger, opts ...Option) *Server {
	s := &Server{
		port:       port,
		pool:       p,
		dispatcher: d,
		normalizer: n,
		publisher:  events.NopPublisher{},
		maxWords:   100,
		defaults: domain.InferenceRequest{
			MaxTokens:   150,
			Temperature: 0.1,
			TopP:        0.8,
			Stop:        []string{"\n\n", "Question:"},
		},
		attempts: 1,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the HTTP handler with all routes registered.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /gen", s.handleGen)
	mux.HandleFunc("POST /gen", s.handleGen)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /ready", s.handleReady)

	return s.withRequestID(s.withRecovery(mux))
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	s.logger.Info("starting gateway", zap.Int("port", s.port))

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("gateway server error", zap.Error(err))
		}
	}()

	return nil
}

// Stop stops the HTTP server
func (s *Server) Stop() error {
	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s.logger.Info("stopping gateway")
	return s.server.Shutdown(ctx)
}

type requestIDKey struct{}

func (s *Server) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey{}, id)))
	})
}

func (s *Server) withRecovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("request panicked",
					zap.String("request_id", requestID(r.Context())),
					zap.Any("panic", rec),
				)
				s.respondError(w, http.StatusInternalServerError, "Internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func requestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status          string `json:"status"`
	ModelsConnected int    `json:"models_connected"`
}

// handleHealth reports the live worker count without probing.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, HealthResponse{
		Status:          "ok",
		ModelsConnected: s.pool.LiveCount(),
	})
}

// handleReady handles the /ready endpoint
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.pool.LiveCount() == 0 {
		s.respondJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "not ready",
			"reason": "no live workers",
		})
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]string{
		"status": "ready",
	})
}

// respondJSON sends a JSON response
func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("failed to encode response", zap.Error(err))
	}
}

// ErrorResponse is the body of every non-200 /gen answer.
type ErrorResponse struct {
	Error string `json:"error"`
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, ErrorResponse{Error: message})
}
