// Package dispatch selects one live worker per request and runs the call
// under a hard deadline.
package dispatch

import (
	"context"
	"errors"
	"time"

	"github.com/aescanero/dago-task-gateway/internal/domain"
	"github.com/aescanero/dago-task-gateway/internal/pool"
	"go.uber.org/zap"
)

// Connector hands out workers for endpoints. session.Manager implements it.
type Connector interface {
	Connect(ctx context.Context, ep *pool.Endpoint) (domain.Worker, error)
	Invalidate(ep *pool.Endpoint)
}

// Result describes one dispatched call.
type Result struct {
	Endpoint string
	Text     string
	Latency  time.Duration
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithPolicy sets the selection policy. The default is uniform random.
func WithPolicy(policy pool.SelectionPolicy) Option {
	return func(d *Dispatcher) {
		if policy != nil {
			d.policy = policy
		}
	}
}

// WithTimeout sets the per-call deadline.
func WithTimeout(timeout time.Duration) Option {
	return func(d *Dispatcher) {
		if timeout > 0 {
			d.timeout = timeout
		}
	}
}

// WithFailureThreshold sets how many consecutive worker-reported failures
// take an endpoint out of rotation.
func WithFailureThreshold(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.failureThreshold = n
		}
	}
}

// Dispatcher routes requests to live workers.
type Dispatcher struct {
	pool             *pool.Pool
	connector        Connector
	policy           pool.SelectionPolicy
	timeout          time.Duration
	failureThreshold int
	logger           *zap.Logger
}

// New creates a dispatcher over p.
func New(p *pool.Pool, connector Connector, logger *zap.Logger, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		pool:             p,
		connector:        connector,
		policy:           pool.NewRandomPolicy(),
		timeout:          30 * time.Second,
		failureThreshold: 1,
		logger:           logger,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch sends req to exactly one live worker. It fails fast with
// domain.ErrNoWorkersAvailable when nothing is live and never retries on a
// different endpoint. On failure the returned Result still names the chosen
// endpoint.
func (d *Dispatcher) Dispatch(ctx context.Context, req domain.InferenceRequest) (*Result, error) {
	ep := d.policy.Choose(d.pool.Live())
	if ep == nil {
		return nil, domain.ErrNoWorkersAvailable
	}

	callCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	start := time.Now()
	text, err := d.call(callCtx, ep, req)
	result := &Result{Endpoint: ep.Address, Latency: time.Since(start)}
	if err != nil {
		return result, d.handleFailure(ep, err)
	}

	ep.RecordSuccess()
	result.Text = text
	d.logger.Debug("dispatch succeeded",
		zap.String("endpoint", ep.Address),
		zap.Duration("latency", result.Latency),
	)
	return result, nil
}

// call runs the worker call in its own goroutine so a worker that ignores
// cancellation cannot hold the request past its deadline.
func (d *Dispatcher) call(ctx context.Context, ep *pool.Endpoint, req domain.InferenceRequest) (string, error) {
	type outcome struct {
		text string
		err  error
	}
	done := make(chan outcome, 1)

	go func() {
		w, err := d.connector.Connect(ctx, ep)
		if err != nil {
			done <- outcome{err: err}
			return
		}
		text, err := w.Generate(ctx, req)
		done <- outcome{text: text, err: err}
	}()

	select {
	case out := <-done:
		return out.text, out.err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", &domain.TimeoutError{Address: ep.Address, After: d.timeout}
		}
		return "", ctx.Err()
	}
}

func (d *Dispatcher) handleFailure(ep *pool.Endpoint, err error) error {
	if errors.Is(err, context.Canceled) {
		d.logger.Debug("dispatch cancelled by caller", zap.String("endpoint", ep.Address))
		return err
	}

	var workerErr *domain.WorkerFailure
	if errors.As(err, &workerErr) {
		quarantined := ep.RecordFailure(d.failureThreshold)
		d.logger.Warn("worker reported failure",
			zap.String("endpoint", ep.Address),
			zap.Int("consecutive_failures", ep.Failures()),
			zap.Bool("quarantined", quarantined),
			zap.Error(err),
		)
		return err
	}

	if !domain.IsUnreachable(err) {
		err = &domain.ConnectionError{Address: ep.Address, Err: err}
	}
	d.connector.Invalidate(ep)
	ep.MarkUnreachable()
	d.logger.Warn("worker marked unreachable",
		zap.String("endpoint", ep.Address),
		zap.Error(err),
	)
	return err
}
