// Package health keeps worker endpoint states current by probing them.
//
// A Monitor probes every endpoint concurrently, marks it live or unreachable
// and logs each transition. Bootstrap runs the first round and refuses to
// start with no live worker; Start runs further rounds on an interval so that
// quarantined workers rejoin the rotation once they answer again.
package health
