package queue

import (
	"encoding/json"
	"fmt"
	"time"
)

// Event types for the delivery stream
const (
	EventDeliverActivity = "deliver_activity"
)

// Stream names
const (
	StreamDelivery = "stream:delivery"
)

// Consumer group name for delivery workers
const (
	ConsumerGroupDelivery = "delivery_workers"
)

// DeliveryEvent is one activity addressed to one inbox.
type DeliveryEvent struct {
	Type      string `json:"type"`
	Timestamp int64  `json:"timestamp"` // Unix timestamp when the delivery was first requested

	ActivityID   string          `json:"activity_id"`
	ActivityType string          `json:"activity_type"`
	Activity     json.RawMessage `json:"activity"`
	InboxURL     string          `json:"inbox_url"`

	// Acting actor; the sender signs on its behalf.
	ActorID  int64  `json:"actor_id,omitempty"`
	ActorURL string `json:"actor_url"`

	Attempts  int   `json:"attempts"`
	NotBefore int64 `json:"not_before,omitempty"` // Unix millis; zero means deliver now
}

// NewDeliveryEvent creates the first attempt of a delivery.
func NewDeliveryEvent(activityID, activityType string, activity []byte, inboxURL string, actorID int64, actorURL string) DeliveryEvent {
	return DeliveryEvent{
		Type:         EventDeliverActivity,
		Timestamp:    time.Now().Unix(),
		ActivityID:   activityID,
		ActivityType: activityType,
		Activity:     activity,
		InboxURL:     inboxURL,
		ActorID:      actorID,
		ActorURL:     actorURL,
	}
}

// Retry returns a copy of the event for the next attempt, due after delay.
func (e DeliveryEvent) Retry(delay time.Duration) DeliveryEvent {
	next := e
	next.Attempts++
	next.NotBefore = time.Now().Add(delay).UnixMilli()
	return next
}

// Wait returns how long until the event is due. Zero when it is due now.
func (e DeliveryEvent) Wait(now time.Time) time.Duration {
	if e.NotBefore == 0 {
		return 0
	}
	if d := time.UnixMilli(e.NotBefore).Sub(now); d > 0 {
		return d
	}
	return 0
}

// ToMap converts the event to a map for Redis XADD.
func (e DeliveryEvent) ToMap() (map[string]interface{}, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("marshal event: %w", err)
	}
	return map[string]interface{}{
		"type": e.Type,
		"data": string(data),
	}, nil
}

// ParseDeliveryEvent parses a DeliveryEvent from Redis stream message values.
func ParseDeliveryEvent(values map[string]interface{}) (DeliveryEvent, error) {
	data, ok := values["data"].(string)
	if !ok {
		return DeliveryEvent{}, fmt.Errorf("missing or invalid 'data' field")
	}

	var event DeliveryEvent
	if err := json.Unmarshal([]byte(data), &event); err != nil {
		return DeliveryEvent{}, fmt.Errorf("unmarshal event: %w", err)
	}
	return event, nil
}
