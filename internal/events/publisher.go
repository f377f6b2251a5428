package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aescanero/dago-task-gateway/internal/domain"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Event describes one answered gateway request.
type Event struct {
	RequestID string                 `json:"request_id"`
	Prompt    string                 `json:"prompt"`
	WordCount int                    `json:"word_count"`
	Decision  domain.RoutingDecision `json:"decision"`
	Stage     string                 `json:"stage"`
	Reason    string                 `json:"reason,omitempty"`
	Worker    string                 `json:"worker,omitempty"`
	Failure   *domain.Failure        `json:"failure,omitempty"`
	Latency   time.Duration          `json:"latency_ns"`
	Timestamp time.Time              `json:"timestamp"`
}

// Publisher accepts events without blocking.
type Publisher interface {
	Publish(e Event)
	Close() error
}

// StreamClient is the subset of the Redis client used for publishing.
type StreamClient interface {
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
}

// RedisPublisher writes events to a Redis stream from a background goroutine.
type RedisPublisher struct {
	client  StreamClient
	stream  string
	timeout time.Duration
	logger  *zap.Logger

	mu      sync.RWMutex
	closed  bool
	queue   chan Event
	done    chan struct{}
	dropped atomic.Int64
}

// NewRedisPublisher starts a publisher with room for buffer pending events.
func NewRedisPublisher(client StreamClient, stream string, buffer int, logger *zap.Logger) *RedisPublisher {
	if buffer <= 0 {
		buffer = 1
	}
	p := &RedisPublisher{
		client:  client,
		stream:  stream,
		timeout: 2 * time.Second,
		logger:  logger,
		queue:   make(chan Event, buffer),
		done:    make(chan struct{}),
	}
	go p.run()
	return p
}

// Publish enqueues e, or drops it when the buffer is full.
func (p *RedisPublisher) Publish(e Event) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return
	}

	select {
	case p.queue <- e:
	default:
		n := p.dropped.Add(1)
		p.logger.Debug("event buffer full, dropping decision event",
			zap.String("request_id", e.RequestID),
			zap.Int64("dropped_total", n),
		)
	}
}

// Dropped returns how many events were discarded.
func (p *RedisPublisher) Dropped() int64 {
	return p.dropped.Load()
}

// Close flushes pending events and stops the publisher.
func (p *RedisPublisher) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()

	<-p.done
	return nil
}

func (p *RedisPublisher) run() {
	defer close(p.done)
	for e := range p.queue {
		if err := p.write(p.stream, e); err != nil {
			p.logger.Warn("failed to publish decision event",
				zap.String("request_id", e.RequestID),
				zap.Error(err),
			)
		}
		if e.Failure != nil {
			if err := p.write(p.stream+".errors", e); err != nil {
				p.logger.Warn("failed to publish error event",
					zap.String("request_id", e.RequestID),
					zap.Error(err),
				)
			}
		}
	}
}

func (p *RedisPublisher) write(stream string, e Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	_, err = p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		Values: map[string]interface{}{
			"data": string(data),
		},
	}).Result()
	if err != nil {
		return fmt.Errorf("failed to publish to stream %s: %w", stream, err)
	}

	return nil
}

// NopPublisher discards every event.
type NopPublisher struct{}

// Publish does nothing.
func (NopPublisher) Publish(Event) {}

// Close does nothing.
func (NopPublisher) Close() error { return nil }
