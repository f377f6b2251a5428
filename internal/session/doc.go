// Package session owns the authenticated gRPC sessions to each worker.
//
// Sessions are created lazily on first use, verified with a health check
// (which also proves the shared secret), and cached per endpoint for the
// process lifetime. A failed call invalidates the session so the next use
// reconnects. When calls are serialized, each endpoint has a call lock that
// outlives reconnects, so concurrent requests routed to a single-threaded
// worker queue up to their own deadline instead of overlapping.
//
// Example usage:
//
//	mgr := session.NewManager(p, logger, session.WithConnectTimeout(5*time.Second))
//	defer mgr.Close()
//
//	w, err := mgr.Connect(ctx, ep)
//	if err != nil {
//	    mgr.Invalidate(ep)
//	    return err
//	}
//	text, err := w.Generate(ctx, req)
package session
