// Package domain defines the values shared by the gateway and its workers.
//
// An InferenceRequest is built once per /gen call, validated, and sent to a
// single worker. The worker answers with a RawOutput: either text or a
// Failure describing what went wrong. The normalizer turns that output into a
// RoutingDecision, which always names a valid final decision.
//
// Errors follow a small taxonomy:
//
//   - ValidationError: bad input, reported to the caller as 400
//   - ConnectionError, TimeoutError: the endpoint is marked unreachable
//   - WorkerFailure: the worker reported its own internal error
//   - ErrNoWorkersAvailable: no live endpoint, reported as 503
//   - ErrStartup: no endpoint reachable at boot
//
// Example usage:
//
//	req := domain.InferenceRequest{Prompt: "draw a cat", MaxTokens: 150, Temperature: 0.2, TopP: 0.8}
//	if err := req.Validate(); err != nil {
//	    return err
//	}
//
//	fallback := domain.FallbackDecision(req.Prompt)
//	fmt.Println(fallback.FinalDecision) // "text"
package domain
