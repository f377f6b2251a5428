// Package workerrpc defines the wire contract between the gateway and its
// model workers.
//
// Workers expose a single gRPC service, taskgateway.worker.v1.Generator, with
// one unary method, Generate. Messages are plain Go structs carried by a JSON
// codec registered under the "json" content subtype, so no generated code is
// needed. Workers also serve the standard grpc.health.v1 service, which the
// gateway uses as its liveness probe.
//
// Every call carries the pool's shared secret in the x-worker-credential
// metadata key. Servers install AuthUnaryInterceptor to reject calls with a
// missing or wrong secret, health checks included.
package workerrpc
