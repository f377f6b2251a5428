package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNoWorkersAvailable is returned when no endpoint is live.
	ErrNoWorkersAvailable = errors.New("no workers available")

	// ErrStartup is returned when no worker is reachable at boot.
	ErrStartup = errors.New("no reachable workers at startup")
)

// ValidationError reports bad client input.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// ConnectionError reports that a worker could not be reached or refused the
// credential.
type ConnectionError struct {
	Address string
	Err     error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connection to worker %s failed: %v", e.Address, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// TimeoutError reports that a worker call exceeded its deadline.
type TimeoutError struct {
	Address string
	After   time.Duration
}

func (e *TimeoutError) Error() string {
	if e.After > 0 {
		return fmt.Sprintf("worker %s timed out after %s", e.Address, e.After)
	}
	return fmt.Sprintf("worker %s timed out", e.Address)
}

// WorkerFailure is a tagged failure returned by the worker itself.
type WorkerFailure struct {
	Address string
	Message string
}

func (e *WorkerFailure) Error() string {
	return fmt.Sprintf("worker %s failed: %s", e.Address, e.Message)
}

// FailureKind classifies a dispatch error.
func FailureKind(err error) string {
	var timeoutErr *TimeoutError
	var workerErr *WorkerFailure
	switch {
	case errors.As(err, &timeoutErr):
		return FailureTimeout
	case errors.As(err, &workerErr):
		return FailureWorker
	default:
		return FailureConnection
	}
}

// IsUnreachable reports whether err should take an endpoint out of rotation
// immediately.
func IsUnreachable(err error) bool {
	var connErr *ConnectionError
	var timeoutErr *TimeoutError
	return errors.As(err, &connErr) || errors.As(err, &timeoutErr)
}
