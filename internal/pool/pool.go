package pool

import (
	"fmt"
	"strings"
	"sync/atomic"
	"time"
)

// State is the liveness of an endpoint.
type State int32

const (
	StateUnknown State = iota
	StateLive
	StateUnreachable
)

func (s State) String() string {
	switch s {
	case StateLive:
		return "live"
	case StateUnreachable:
		return "unreachable"
	default:
		return "unknown"
	}
}

// Spec describes one endpoint in configuration.
type Spec struct {
	Address    string `yaml:"address"`
	Credential string `yaml:"credential"`
}

// Endpoint is one worker address with its liveness state.
type Endpoint struct {
	Address    string
	Credential string

	state    atomic.Int32
	failures atomic.Int32
	changed  atomic.Int64
}

func newEndpoint(spec Spec) *Endpoint {
	ep := &Endpoint{Address: spec.Address, Credential: spec.Credential}
	ep.changed.Store(time.Now().UnixNano())
	return ep
}

// State returns the current liveness state.
func (e *Endpoint) State() State {
	return State(e.state.Load())
}

// Live reports whether the endpoint may be selected.
func (e *Endpoint) Live() bool {
	return e.State() == StateLive
}

// MarkLive marks the endpoint live and clears its failure count. It reports
// whether the state changed.
func (e *Endpoint) MarkLive() bool {
	e.failures.Store(0)
	return e.transition(StateLive)
}

// MarkUnreachable takes the endpoint out of rotation. It reports whether the
// state changed.
func (e *Endpoint) MarkUnreachable() bool {
	return e.transition(StateUnreachable)
}

// RecordFailure counts a worker-reported failure. Once threshold consecutive
// failures are seen the endpoint is marked unreachable and RecordFailure
// returns true.
func (e *Endpoint) RecordFailure(threshold int) bool {
	if threshold <= 0 {
		threshold = 1
	}
	n := e.failures.Add(1)
	if int(n) < threshold {
		return false
	}
	e.MarkUnreachable()
	return true
}

// RecordSuccess clears the consecutive failure count.
func (e *Endpoint) RecordSuccess() {
	e.failures.Store(0)
}

// Failures returns the consecutive failure count.
func (e *Endpoint) Failures() int {
	return int(e.failures.Load())
}

// Since returns when the state last changed.
func (e *Endpoint) Since() time.Time {
	return time.Unix(0, e.changed.Load())
}

func (e *Endpoint) transition(to State) bool {
	from := State(e.state.Swap(int32(to)))
	if from == to {
		return false
	}
	e.changed.Store(time.Now().UnixNano())
	return true
}

// Pool is the ordered set of worker endpoints, unique by address.
type Pool struct {
	endpoints []*Endpoint
	index     map[string]*Endpoint
}

// New builds a pool from endpoint specs.
func New(specs []Spec) (*Pool, error) {
	if len(specs) == 0 {
		return nil, fmt.Errorf("worker pool requires at least one endpoint")
	}

	p := &Pool{
		endpoints: make([]*Endpoint, 0, len(specs)),
		index:     make(map[string]*Endpoint, len(specs)),
	}
	for i, spec := range specs {
		spec.Address = strings.TrimSpace(spec.Address)
		if spec.Address == "" {
			return nil, fmt.Errorf("endpoint %d: address is required", i)
		}
		if _, ok := p.index[spec.Address]; ok {
			return nil, fmt.Errorf("endpoint %d: duplicate address %s", i, spec.Address)
		}
		ep := newEndpoint(spec)
		p.endpoints = append(p.endpoints, ep)
		p.index[spec.Address] = ep
	}

	return p, nil
}

// Endpoints returns every endpoint regardless of state.
func (p *Pool) Endpoints() []*Endpoint {
	out := make([]*Endpoint, len(p.endpoints))
	copy(out, p.endpoints)
	return out
}

// Lookup finds an endpoint by address.
func (p *Pool) Lookup(address string) (*Endpoint, bool) {
	ep, ok := p.index[address]
	return ep, ok
}

// Live returns a snapshot of the endpoints currently marked live.
func (p *Pool) Live() []*Endpoint {
	live := make([]*Endpoint, 0, len(p.endpoints))
	for _, ep := range p.endpoints {
		if ep.Live() {
			live = append(live, ep)
		}
	}
	return live
}

// LiveCount returns the number of live endpoints without probing.
func (p *Pool) LiveCount() int {
	n := 0
	for _, ep := range p.endpoints {
		if ep.Live() {
			n++
		}
	}
	return n
}

// Size returns the number of endpoints.
func (p *Pool) Size() int {
	return len(p.endpoints)
}

// Status is a point-in-time view of one endpoint.
type Status struct {
	Address  string    `json:"address"`
	State    string    `json:"state"`
	Failures int       `json:"failures"`
	Since    time.Time `json:"since"`
}

// Snapshot returns the state of every endpoint.
func (p *Pool) Snapshot() []Status {
	out := make([]Status, 0, len(p.endpoints))
	for _, ep := range p.endpoints {
		out = append(out, Status{
			Address:  ep.Address,
			State:    ep.State().String(),
			Failures: ep.Failures(),
			Since:    ep.Since(),
		})
	}
	return out
}
