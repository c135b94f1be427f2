package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// ScheduleDelivery holds deliveries that are not due yet, scored by not_before.
const ScheduleDelivery = "schedule:delivery"

// Scheduler parks events until they are due and moves due events onto the stream.
type Scheduler interface {
	// Schedule parks the event until its NotBefore time.
	Schedule(ctx context.Context, event DeliveryEvent) error

	// PromoteDue moves up to limit events due at now onto the delivery stream.
	// Returns how many were moved.
	PromoteDue(ctx context.Context, now time.Time, limit int64) (int, error)
}

// RedisScheduler implements Scheduler with a sorted set next to the delivery stream.
type RedisScheduler struct {
	client *redis.Client
	key    string
	stream string
}

// NewScheduler creates a Scheduler feeding StreamDelivery.
func NewScheduler(client *redis.Client) Scheduler {
	return &RedisScheduler{client: client, key: ScheduleDelivery, stream: StreamDelivery}
}

// promoteScript moves due members to the stream. ZREM and XADD run in one script,
// so concurrent promoters never move the same member twice.
var promoteScript = redis.NewScript(`
local due = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, ARGV[2])
for _, item in ipairs(due) do
	redis.call('ZREM', KEYS[1], item)
	redis.call('XADD', KEYS[2], '*', 'type', ARGV[3], 'data', item)
end
return #due
`)

// Schedule adds the event to the sorted set with its NotBefore as the score.
func (s *RedisScheduler) Schedule(ctx context.Context, event DeliveryEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	if err := s.client.ZAdd(ctx, s.key, redis.Z{
		Score:  float64(event.NotBefore),
		Member: string(data),
	}).Err(); err != nil {
		log.Printf("[Scheduler] Schedule FAILED: activity=%s(%s) inbox=%s err=%v",
			event.ActivityType, event.ActivityID, event.InboxURL, err)
		return fmt.Errorf("zadd scheduled event: %w", err)
	}

	log.Printf("[Scheduler] Scheduled: activity=%s(%s) inbox=%s attempt=%d due=%s",
		event.ActivityType, event.ActivityID, event.InboxURL, event.Attempts,
		time.UnixMilli(event.NotBefore).UTC().Format(time.RFC3339))
	return nil
}

// PromoteDue moves events with not_before <= now onto the stream.
func (s *RedisScheduler) PromoteDue(ctx context.Context, now time.Time, limit int64) (int, error) {
	moved, err := promoteScript.Run(ctx, s.client,
		[]string{s.key, s.stream},
		now.UnixMilli(), limit, EventDeliverActivity,
	).Int()
	if err != nil {
		return 0, fmt.Errorf("promote scheduled events: %w", err)
	}
	return moved, nil
}
