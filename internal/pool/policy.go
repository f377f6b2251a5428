package pool

import (
	"fmt"
	"math/rand/v2"
	"sync/atomic"
)

// SelectionPolicy picks one endpoint from the live set. Implementations must
// be safe for concurrent use and return nil only for an empty set.
type SelectionPolicy interface {
	Choose(live []*Endpoint) *Endpoint
}

// Policy names accepted by PolicyByName.
const (
	PolicyRandom     = "random"
	PolicyRoundRobin = "round-robin"
)

// RandomPolicy picks uniformly at random on every call.
type RandomPolicy struct {
	intn func(n int) int
}

// NewRandomPolicy returns the default uniform random policy.
func NewRandomPolicy() *RandomPolicy {
	return &RandomPolicy{intn: rand.IntN}
}

// Choose returns a uniformly random endpoint.
func (p *RandomPolicy) Choose(live []*Endpoint) *Endpoint {
	if len(live) == 0 {
		return nil
	}
	return live[p.intn(len(live))]
}

// RoundRobinPolicy cycles through the live set.
type RoundRobinPolicy struct {
	next atomic.Uint64
}

// NewRoundRobinPolicy returns a round-robin policy.
func NewRoundRobinPolicy() *RoundRobinPolicy {
	return &RoundRobinPolicy{}
}

// Choose returns the next endpoint in rotation.
func (p *RoundRobinPolicy) Choose(live []*Endpoint) *Endpoint {
	if len(live) == 0 {
		return nil
	}
	n := p.next.Add(1) - 1
	return live[n%uint64(len(live))]
}

// PolicyByName resolves a configured policy name.
func PolicyByName(name string) (SelectionPolicy, error) {
	switch name {
	case "", PolicyRandom:
		return NewRandomPolicy(), nil
	case PolicyRoundRobin:
		return NewRoundRobinPolicy(), nil
	default:
		return nil, fmt.Errorf("unknown selection policy: %s", name)
	}
}
