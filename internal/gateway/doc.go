// Package gateway serves the public HTTP API.
//
// Endpoints:
//   - GET /gen?prompt=...      route a prompt with the default sampling parameters
//   - POST /gen                route a prompt; the JSON body may override
//     max_tokens, temperature, top_p and stop
//   - GET /health              liveness plus the number of live workers
//   - GET /ready               200 only while at least one worker is live
//
// A /gen request is answered with exactly one envelope or one error. Worker
// failures never surface as errors: the request falls back to routing the
// prompt to the text tool. Only an empty pool (503) and bad input (400) are
// reported to the caller.
//
// Every response carries an X-Request-ID header.
package gateway
