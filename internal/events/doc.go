// Package events publishes routing decisions to a Redis stream.
//
// Publishing is fire-and-forget: events go through a bounded buffer and are
// dropped when it is full, so a slow or absent Redis never delays a request.
// Decisions that ended in the fallback because of an upstream failure are
// also written to "<stream>.errors".
//
// Example usage:
//
//	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//	pub := events.NewRedisPublisher(client, "gateway.decided", 256, logger)
//	defer pub.Close()
//
//	pub.Publish(events.Event{RequestID: id, Prompt: prompt, Decision: d})
package events
