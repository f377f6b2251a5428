package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aescanero/dago-task-gateway/internal/domain"
	"github.com/aescanero/dago-task-gateway/internal/pool"
	"go.uber.org/zap/zaptest"
)

type scriptedWorker struct {
	text  string
	err   error
	block bool
}

func (w *scriptedWorker) Generate(ctx context.Context, _ domain.InferenceRequest) (string, error) {
	if w.block {
		// Ignores ctx on purpose: the dispatcher must not wait for it.
		select {}
	}
	return w.text, w.err
}

type fakeConnector struct {
	mu          sync.Mutex
	workers     map[string]domain.Worker
	connectErr  map[string]error
	connects    atomic.Int32
	invalidated []string
}

func newFakeConnector() *fakeConnector {
	return &fakeConnector{
		workers:    make(map[string]domain.Worker),
		connectErr: make(map[string]error),
	}
}

func (c *fakeConnector) Connect(_ context.Context, ep *pool.Endpoint) (domain.Worker, error) {
	c.connects.Add(1)
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.connectErr[ep.Address]; err != nil {
		return nil, err
	}
	return c.workers[ep.Address], nil
}

func (c *fakeConnector) Invalidate(ep *pool.Endpoint) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.invalidated = append(c.invalidated, ep.Address)
}

// firstPolicy always picks the first live endpoint.
type firstPolicy struct{}

func (firstPolicy) Choose(live []*pool.Endpoint) *pool.Endpoint {
	if len(live) == 0 {
		return nil
	}
	return live[0]
}

func livePool(t *testing.T, addrs ...string) *pool.Pool {
	t.Helper()
	specs := make([]pool.Spec, 0, len(addrs))
	for _, addr := range addrs {
		specs = append(specs, pool.Spec{Address: addr})
	}
	p, err := pool.New(specs)
	if err != nil {
		t.Fatalf("pool: %v", err)
	}
	for _, ep := range p.Endpoints() {
		ep.MarkLive()
	}
	return p
}

var req = domain.InferenceRequest{Prompt: "draw a cat", MaxTokens: 60, Temperature: 0.1, TopP: 0.8}

func TestDispatchSuccess(t *testing.T) {
	p := livePool(t, "a:1")
	conn := newFakeConnector()
	conn.workers["a:1"] = &scriptedWorker{text: "ok"}
	d := New(p, conn, zaptest.NewLogger(t))

	res, err := d.Dispatch(context.Background(), req)
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if res.Text != "ok" || res.Endpoint != "a:1" {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestDispatchPoolExhausted(t *testing.T) {
	p := livePool(t, "a:1", "b:2")
	for _, ep := range p.Endpoints() {
		ep.MarkUnreachable()
	}
	conn := newFakeConnector()
	d := New(p, conn, zaptest.NewLogger(t))

	_, err := d.Dispatch(context.Background(), req)
	if !errors.Is(err, domain.ErrNoWorkersAvailable) {
		t.Fatalf("expected ErrNoWorkersAvailable, got %v", err)
	}
	if conn.connects.Load() != 0 {
		t.Fatalf("expected no connection attempts, got %d", conn.connects.Load())
	}
}

func TestDispatchQuarantinesFailedEndpoint(t *testing.T) {
	p := livePool(t, "a:1", "b:2")
	conn := newFakeConnector()
	conn.connectErr["a:1"] = &domain.ConnectionError{Address: "a:1", Err: fmt.Errorf("refused")}
	conn.workers["b:2"] = &scriptedWorker{text: "ok"}
	d := New(p, conn, zaptest.NewLogger(t), WithPolicy(firstPolicy{}))

	_, err := d.Dispatch(context.Background(), req)
	var connErr *domain.ConnectionError
	if !errors.As(err, &connErr) {
		t.Fatalf("expected connection error, got %v", err)
	}
	a, _ := p.Lookup("a:1")
	if a.Live() {
		t.Fatalf("failed endpoint should be unreachable")
	}
	if len(conn.invalidated) != 1 || conn.invalidated[0] != "a:1" {
		t.Fatalf("expected session invalidation, got %v", conn.invalidated)
	}

	for i := 0; i < 20; i++ {
		res, err := d.Dispatch(context.Background(), req)
		if err != nil {
			t.Fatalf("dispatch %d: %v", i, err)
		}
		if res.Endpoint != "b:2" {
			t.Fatalf("quarantined endpoint selected again")
		}
	}

	a.MarkLive()
	res, _ := d.Dispatch(context.Background(), req)
	if res.Endpoint != "a:1" {
		t.Fatalf("expected recovered endpoint to be selectable")
	}
}

func TestDispatchDoesNotRetryElsewhere(t *testing.T) {
	p := livePool(t, "a:1", "b:2")
	conn := newFakeConnector()
	conn.workers["a:1"] = &scriptedWorker{err: &domain.ConnectionError{Address: "a:1", Err: fmt.Errorf("reset")}}
	conn.workers["b:2"] = &scriptedWorker{text: "ok"}
	d := New(p, conn, zaptest.NewLogger(t), WithPolicy(firstPolicy{}))

	if _, err := d.Dispatch(context.Background(), req); err == nil {
		t.Fatalf("expected the failure to surface")
	}
	if conn.connects.Load() != 1 {
		t.Fatalf("expected a single connection attempt, got %d", conn.connects.Load())
	}
}

func TestDispatchTimeoutAbandonsCall(t *testing.T) {
	p := livePool(t, "a:1")
	conn := newFakeConnector()
	conn.workers["a:1"] = &scriptedWorker{block: true}
	d := New(p, conn, zaptest.NewLogger(t), WithTimeout(50*time.Millisecond))

	start := time.Now()
	_, err := d.Dispatch(context.Background(), req)
	elapsed := time.Since(start)

	var timeoutErr *domain.TimeoutError
	if !errors.As(err, &timeoutErr) {
		t.Fatalf("expected timeout, got %v", err)
	}
	if elapsed > time.Second {
		t.Fatalf("dispatch waited %s for a hung worker", elapsed)
	}
	a, _ := p.Lookup("a:1")
	if a.Live() {
		t.Fatalf("timed out endpoint should be unreachable")
	}
}

func TestDispatchWorkerFailureThreshold(t *testing.T) {
	p := livePool(t, "a:1")
	conn := newFakeConnector()
	conn.workers["a:1"] = &scriptedWorker{err: &domain.WorkerFailure{Address: "a:1", Message: "cuda error"}}
	d := New(p, conn, zaptest.NewLogger(t), WithFailureThreshold(2))
	a, _ := p.Lookup("a:1")

	_, err := d.Dispatch(context.Background(), req)
	var failure *domain.WorkerFailure
	if !errors.As(err, &failure) {
		t.Fatalf("expected worker failure, got %v", err)
	}
	if !a.Live() {
		t.Fatalf("one failure below threshold should leave the endpoint live")
	}
	if len(conn.invalidated) != 0 {
		t.Fatalf("worker failure should not drop the session")
	}

	_, _ = d.Dispatch(context.Background(), req)
	if a.Live() {
		t.Fatalf("endpoint should be quarantined after reaching the threshold")
	}
}

func TestDispatchDefaultThresholdQuarantinesOnFirstFailure(t *testing.T) {
	p := livePool(t, "a:1")
	conn := newFakeConnector()
	conn.workers["a:1"] = &scriptedWorker{err: &domain.WorkerFailure{Address: "a:1", Message: "boom"}}
	d := New(p, conn, zaptest.NewLogger(t))

	_, _ = d.Dispatch(context.Background(), req)
	a, _ := p.Lookup("a:1")
	if a.Live() {
		t.Fatalf("expected quarantine after one failure")
	}
}

func TestDispatchCallerCancellationKeepsEndpointLive(t *testing.T) {
	p := livePool(t, "a:1")
	conn := newFakeConnector()
	conn.workers["a:1"] = &scriptedWorker{block: true}
	d := New(p, conn, zaptest.NewLogger(t), WithTimeout(time.Minute))

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	_, err := d.Dispatch(ctx, req)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
	a, _ := p.Lookup("a:1")
	if !a.Live() {
		t.Fatalf("caller cancellation must not quarantine the endpoint")
	}
}

func TestDispatchWrapsUnknownErrors(t *testing.T) {
	p := livePool(t, "a:1")
	conn := newFakeConnector()
	conn.workers["a:1"] = &scriptedWorker{err: fmt.Errorf("mystery")}
	d := New(p, conn, zaptest.NewLogger(t))

	_, err := d.Dispatch(context.Background(), req)
	var connErr *domain.ConnectionError
	if !errors.As(err, &connErr) {
		t.Fatalf("expected wrapped connection error, got %v", err)
	}
}
