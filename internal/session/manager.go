package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/aescanero/dago-task-gateway/internal/domain"
	"github.com/aescanero/dago-task-gateway/internal/pool"
	"github.com/aescanero/dago-task-gateway/internal/workerrpc"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// Option configures a Manager.
type Option func(*Manager)

// WithDialOptions appends gRPC dial options to every connection.
func WithDialOptions(opts ...grpc.DialOption) Option {
	return func(m *Manager) {
		m.dialOpts = append(m.dialOpts, opts...)
	}
}

// WithConnectTimeout bounds the health check that verifies a new session.
func WithConnectTimeout(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.connectTimeout = d
		}
	}
}

// WithSerializedCalls enables or disables the per-endpoint call lock.
func WithSerializedCalls(enabled bool) Option {
	return func(m *Manager) {
		m.serialize = enabled
	}
}

// Manager creates, caches and drops worker sessions.
type Manager struct {
	slots          map[string]*slot
	dialOpts       []grpc.DialOption
	connectTimeout time.Duration
	serialize      bool
	logger         *zap.Logger
}

type slot struct {
	mu      sync.Mutex
	session *Session
	calls   *semaphore.Weighted
}

// NewManager creates a manager for every endpoint in p.
func NewManager(p *pool.Pool, logger *zap.Logger, opts ...Option) *Manager {
	m := &Manager{
		slots:          make(map[string]*slot, p.Size()),
		connectTimeout: 5 * time.Second,
		serialize:      true,
		logger:         logger,
	}
	for _, opt := range opts {
		opt(m)
	}
	for _, ep := range p.Endpoints() {
		sl := &slot{}
		if m.serialize {
			sl.calls = semaphore.NewWeighted(1)
		}
		m.slots[ep.Address] = sl
	}
	return m
}

// Connect returns the cached session for ep, establishing and verifying a new
// one if needed. It is safe to call repeatedly.
func (m *Manager) Connect(ctx context.Context, ep *pool.Endpoint) (domain.Worker, error) {
	s, err := m.connect(ctx, ep)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (m *Manager) connect(ctx context.Context, ep *pool.Endpoint) (*Session, error) {
	sl, err := m.slotFor(ep)
	if err != nil {
		return nil, err
	}

	sl.mu.Lock()
	defer sl.mu.Unlock()

	if sl.session != nil {
		return sl.session, nil
	}

	conn, err := workerrpc.Dial(ep.Address, ep.Credential, m.dialOpts...)
	if err != nil {
		return nil, &domain.ConnectionError{Address: ep.Address, Err: err}
	}

	s := &Session{
		address: ep.Address,
		conn:    conn,
		client:  workerrpc.NewGeneratorClient(conn),
		health:  healthpb.NewHealthClient(conn),
		calls:   sl.calls,
	}
	if err := m.check(ctx, s); err != nil {
		_ = conn.Close()
		return nil, err
	}

	sl.session = s
	m.logger.Info("worker session established", zap.String("address", ep.Address))
	return s, nil
}

// Invalidate drops the cached session for ep, forcing a reconnect on next use.
func (m *Manager) Invalidate(ep *pool.Endpoint) {
	sl, err := m.slotFor(ep)
	if err != nil {
		return
	}

	sl.mu.Lock()
	s := sl.session
	sl.session = nil
	sl.mu.Unlock()

	if s == nil {
		return
	}
	if err := s.conn.Close(); err != nil {
		m.logger.Debug("failed to close worker session",
			zap.String("address", ep.Address),
			zap.Error(err),
		)
	}
	m.logger.Info("worker session invalidated", zap.String("address", ep.Address))
}

// Probe verifies that ep answers a health check, connecting if necessary.
// A failed probe invalidates the session.
func (m *Manager) Probe(ctx context.Context, ep *pool.Endpoint) error {
	sl, err := m.slotFor(ep)
	if err != nil {
		return err
	}

	sl.mu.Lock()
	cached := sl.session
	sl.mu.Unlock()

	if cached == nil {
		_, err := m.connect(ctx, ep)
		return err
	}
	if err := m.check(ctx, cached); err != nil {
		m.Invalidate(ep)
		return err
	}
	return nil
}

// Close drops every session.
func (m *Manager) Close() error {
	for address, sl := range m.slots {
		sl.mu.Lock()
		s := sl.session
		sl.session = nil
		sl.mu.Unlock()
		if s == nil {
			continue
		}
		if err := s.conn.Close(); err != nil {
			m.logger.Warn("failed to close worker session",
				zap.String("address", address),
				zap.Error(err),
			)
		}
	}
	return nil
}

func (m *Manager) check(ctx context.Context, s *Session) error {
	ctx, cancel := context.WithTimeout(ctx, m.connectTimeout)
	defer cancel()

	resp, err := s.health.Check(ctx, &healthpb.HealthCheckRequest{})
	if err != nil {
		return &domain.ConnectionError{Address: s.address, Err: err}
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		return &domain.ConnectionError{
			Address: s.address,
			Err:     fmt.Errorf("worker reports %s", resp.GetStatus()),
		}
	}
	return nil
}

func (m *Manager) slotFor(ep *pool.Endpoint) (*slot, error) {
	sl, ok := m.slots[ep.Address]
	if !ok {
		return nil, &domain.ConnectionError{
			Address: ep.Address,
			Err:     fmt.Errorf("endpoint is not part of the pool"),
		}
	}
	return sl, nil
}
