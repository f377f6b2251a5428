// Package pool holds the static set of worker endpoints and their liveness.
//
// The pool is built once at startup and passed explicitly to the dispatcher,
// the health monitor and the gateway. Membership never changes at runtime;
// only each endpoint's state does, and that state is kept in per-endpoint
// atomics so the dispatch hot path never takes a pool-wide lock.
//
// Example usage:
//
//	p, err := pool.New([]pool.Spec{
//	    {Address: "localhost:7002", Credential: secret},
//	    {Address: "localhost:7003", Credential: secret},
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	policy := pool.NewRandomPolicy()
//	ep := policy.Choose(p.Live())
package pool
