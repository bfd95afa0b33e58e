package tracking

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// Stream is the Redis Stream carrying open/click events for the analytics
// consumers.
const Stream = "tracking:events"

// Publisher emits tracking events without blocking the request path.
type Publisher struct {
	rdb    *redis.Client
	stream string
	maxLen int64
}

// NewPublisher creates a publisher writing to the default stream, capped at
// roughly one million entries.
func NewPublisher(rdb *redis.Client) *Publisher {
	return &Publisher{rdb: rdb, stream: Stream, maxLen: 1_000_000}
}

// Publish appends the event to the stream. Errors are logged and dropped;
// tracking must never fail a pixel or redirect response.
func (p *Publisher) Publish(ctx context.Context, evt Event) {
	body, err := json.Marshal(evt)
	if err != nil {
		log.Printf("[Tracking] marshal event: %v", err)
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		err := p.rdb.XAdd(ctx, &redis.XAddArgs{
			Stream: p.stream,
			MaxLen: p.maxLen,
			Approx: true,
			Values: map[string]interface{}{"event": string(body)},
		}).Err()
		if err != nil {
			log.Printf("[Tracking] publish %s event: %v", evt.EventType, err)
		}
	}()
}
