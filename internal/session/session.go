package session

import (
	"context"
	"errors"

	"github.com/aescanero/dago-task-gateway/internal/domain"
	"github.com/aescanero/dago-task-gateway/internal/workerrpc"
	"golang.org/x/sync/semaphore"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
)

// Session is an authenticated connection to one worker.
type Session struct {
	address string
	conn    *grpc.ClientConn
	client  *workerrpc.GeneratorClient
	health  healthpb.HealthClient
	calls   *semaphore.Weighted
}

// Address returns the worker address.
func (s *Session) Address() string {
	return s.address
}

// Generate runs one generation call. Errors are *domain.TimeoutError,
// *domain.ConnectionError, *domain.WorkerFailure, or the caller's own
// cancellation error.
func (s *Session) Generate(ctx context.Context, req domain.InferenceRequest) (string, error) {
	if s.calls != nil {
		if err := s.calls.Acquire(ctx, 1); err != nil {
			return "", s.classify(ctx, err)
		}
		defer s.calls.Release(1)
	}

	resp, err := s.client.Generate(ctx, workerrpc.NewGenerateRequest(req))
	if err != nil {
		return "", s.classify(ctx, err)
	}
	if resp.Error != "" {
		return "", &domain.WorkerFailure{Address: s.address, Message: resp.Error}
	}
	return resp.Text, nil
}

func (s *Session) classify(ctx context.Context, err error) error {
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded), status.Code(err) == codes.DeadlineExceeded:
		return &domain.TimeoutError{Address: s.address}
	case errors.Is(ctx.Err(), context.Canceled):
		return ctx.Err()
	default:
		return &domain.ConnectionError{Address: s.address, Err: err}
	}
}
