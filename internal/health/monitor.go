package health

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/aescanero/dago-task-gateway/internal/domain"
	"github.com/aescanero/dago-task-gateway/internal/pool"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Prober checks that an endpoint is reachable and accepts our credential.
type Prober interface {
	Probe(ctx context.Context, ep *pool.Endpoint) error
}

// TransitionFunc observes endpoint state changes.
type TransitionFunc func(ep *pool.Endpoint, to pool.State, cause error)

// Option configures a Monitor.
type Option func(*Monitor)

// WithInterval sets the time between probe rounds.
func WithInterval(d time.Duration) Option {
	return func(m *Monitor) {
		if d > 0 {
			m.interval = d
		}
	}
}

// WithProbeTimeout bounds each probe.
func WithProbeTimeout(d time.Duration) Option {
	return func(m *Monitor) {
		if d > 0 {
			m.timeout = d
		}
	}
}

// WithTransitionFunc registers a callback for state changes.
func WithTransitionFunc(fn TransitionFunc) Option {
	return func(m *Monitor) {
		m.onTransition = fn
	}
}

// Monitor periodically probes the pool.
type Monitor struct {
	pool         *pool.Pool
	prober       Prober
	interval     time.Duration
	timeout      time.Duration
	onTransition TransitionFunc
	logger       *zap.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewMonitor creates a monitor. Defaults: 10s interval, 3s probe timeout.
func NewMonitor(p *pool.Pool, prober Prober, logger *zap.Logger, opts ...Option) *Monitor {
	m := &Monitor{
		pool:     p,
		prober:   prober,
		interval: 10 * time.Second,
		timeout:  3 * time.Second,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// ProbeAll probes every endpoint concurrently and returns the live count.
func (m *Monitor) ProbeAll(ctx context.Context) int {
	var g errgroup.Group
	for _, ep := range m.pool.Endpoints() {
		g.Go(func() error {
			m.probe(ctx, ep)
			return nil
		})
	}
	_ = g.Wait()

	return m.pool.LiveCount()
}

func (m *Monitor) probe(ctx context.Context, ep *pool.Endpoint) {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	err := m.prober.Probe(ctx, ep)
	if err != nil {
		// a shutdown in progress says nothing about the worker
		if ctx.Err() != nil && ctx.Err() != context.DeadlineExceeded {
			return
		}
		if ep.MarkUnreachable() {
			m.logger.Warn("worker unreachable",
				zap.String("address", ep.Address),
				zap.Error(err),
			)
			m.notify(ep, pool.StateUnreachable, err)
		}
		return
	}

	if ep.MarkLive() {
		m.logger.Info("worker live", zap.String("address", ep.Address))
		m.notify(ep, pool.StateLive, nil)
	}
}

func (m *Monitor) notify(ep *pool.Endpoint, to pool.State, cause error) {
	if m.onTransition != nil {
		m.onTransition(ep, to, cause)
	}
}

// Bootstrap runs the first probe round. It fails with domain.ErrStartup when
// no endpoint is live.
func (m *Monitor) Bootstrap(ctx context.Context) error {
	live := m.ProbeAll(ctx)

	m.logger.Info("worker pool probed",
		zap.Int("live", live),
		zap.Int("total", m.pool.Size()),
	)

	if live == 0 {
		return fmt.Errorf("%w: none of %d workers reachable", domain.ErrStartup, m.pool.Size())
	}
	return nil
}

// Start probes the pool every interval until Stop is called.
func (m *Monitor) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.done = make(chan struct{})

	m.logger.Info("starting health monitor", zap.Duration("interval", m.interval))

	go func(done chan struct{}) {
		defer close(done)
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.ProbeAll(ctx)
			}
		}
	}(m.done)
}

// Stop halts periodic probing and waits for the current round to end.
func (m *Monitor) Stop() {
	m.mu.Lock()
	cancel, done := m.cancel, m.done
	m.cancel, m.done = nil, nil
	m.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	m.logger.Info("health monitor stopped")
}
