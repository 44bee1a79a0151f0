package events

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisStore appends events to a capped Redis stream.
type RedisStore struct {
	R      *redis.Client
	Stream string
	MaxLen int64
}

func (s RedisStore) stream() string {
	if s.Stream == "" {
		return "events"
	}
	return s.Stream
}

// Append adds the event to the stream, trimming it approximately to MaxLen entries.
func (s RedisStore) Append(ctx context.Context, event Event) error {
	if s.R == nil {
		return fmt.Errorf("events: redis client not configured")
	}
	maxLen := s.MaxLen
	if maxLen <= 0 {
		maxLen = 10000
	}
	return s.R.XAdd(ctx, &redis.XAddArgs{
		Stream: s.stream(),
		MaxLen: maxLen,
		Approx: true,
		Values: map[string]any{
			"id":          event.ID,
			"topic":       event.Topic,
			"aggregateId": event.AggregateID,
			"payload":     string(event.Payload),
			"occurredAt":  event.OccurredAt.UnixMilli(),
		},
	}).Err()
}
