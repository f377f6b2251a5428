// Package worker implements the model worker process: a gRPC Generator
// service that turns a user request into routing JSON with a language model.
//
// A worker owns exactly one Engine. The Service renders the routing prompt,
// runs the engine and reports engine problems inside the response instead of
// as RPC errors, so the gateway can tell a broken model from a broken
// connection.
//
// Example usage:
//
//	engine, err := worker.NewEngine(ctx, worker.EngineConfig{
//	    Kind:    "openai",
//	    BaseURL: "http://localhost:8080/v1",
//	    Model:   "phi-3.5-mini-instruct",
//	}, logger)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	svc, err := worker.NewService(engine, logger)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	srv := worker.NewServer("worker-1", svc, secret, logger)
//	lis, _ := net.Listen("tcp", ":7002")
//	srv.Start(lis)
//	defer srv.Stop()
//
// Engines:
//   - openai - OpenAI compatible chat completions (llama.cpp, vLLM, Ollama, OpenAI)
//   - anthropic - Anthropic Messages API
//   - google - Gemini GenerateContent
//   - dago - shared dago-adapters LLM client
//   - mock - deterministic keyword router for local runs
package worker
