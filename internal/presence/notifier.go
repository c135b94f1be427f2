package presence

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// ChannelPrefix is the Pub/Sub channel prefix a user's live sessions subscribe to.
const ChannelPrefix = "presence:user:"

const publishTimeout = 2 * time.Second

// Message is the JSON envelope published for every event.
type Message struct {
	Event     string      `json:"event"`
	Payload   interface{} `json:"payload"`
	Timestamp int64       `json:"timestamp"`
}

// RedisNotifier pushes events to live sessions over Redis Pub/Sub.
// Delivery is best-effort: Notify returns immediately and failures are only logged.
type RedisNotifier struct {
	client *redis.Client
}

func NewRedisNotifier(client *redis.Client) *RedisNotifier {
	return &RedisNotifier{client: client}
}

// Channel returns the channel for userID.
func Channel(userID int64) string {
	return fmt.Sprintf("%s%d", ChannelPrefix, userID)
}

func (n *RedisNotifier) Notify(ctx context.Context, userID int64, event string, payload interface{}) {
	data, err := json.Marshal(Message{Event: event, Payload: payload, Timestamp: time.Now().Unix()})
	if err != nil {
		log.Printf("[Presence] Failed to encode event=%s user=%d: %v", event, userID, err)
		return
	}

	// Detached from the request so a finished request does not cancel the push.
	go n.publish(context.WithoutCancel(ctx), userID, event, data)
}

func (n *RedisNotifier) publish(ctx context.Context, userID int64, event string, data []byte) {
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	if err := n.client.Publish(ctx, Channel(userID), data).Err(); err != nil {
		log.Printf("[Presence] Failed to publish event=%s user=%d: %v", event, userID, err)
	}
}
