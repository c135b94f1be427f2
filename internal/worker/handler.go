package worker

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/jpillora/backoff"

	"fedfollow/internal/queue"
)

const (
	// DefaultMaxAttempts is how many times a delivery is tried before it is dropped.
	DefaultMaxAttempts = 5

	defaultRetryMin = 2 * time.Second
	defaultRetryMax = 5 * time.Minute
)

// LocalInboxes reports whether an inbox belongs to this server.
// Local relationship state is applied in-process, so those deliveries are skipped.
type LocalInboxes interface {
	IsLocalInbox(inboxURL string) bool
}

// Handler sends delivery events and schedules retries for the ones that fail.
// It never waits on an event that is not due; those go back to the scheduler.
type Handler struct {
	sender      Sender
	scheduler   queue.Scheduler // Can be nil; failed deliveries are then dropped
	local       LocalInboxes
	maxAttempts int
	retry       *backoff.Backoff
}

// NewHandler creates a delivery handler.
func NewHandler(sender Sender, scheduler queue.Scheduler, local LocalInboxes, maxAttempts int) *Handler {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	return &Handler{
		sender:      sender,
		scheduler:   scheduler,
		local:       local,
		maxAttempts: maxAttempts,
		retry: &backoff.Backoff{
			Min:    defaultRetryMin,
			Max:    defaultRetryMax,
			Factor: 2,
			Jitter: true,
		},
	}
}

// HandleEvent delivers one event. An error means the event was neither delivered
// nor rescheduled; the caller acks either way.
func (h *Handler) HandleEvent(ctx context.Context, event queue.DeliveryEvent) error {
	if event.Type != queue.EventDeliverActivity {
		log.Printf("[Worker] Unknown event type: %s", event.Type)
		return fmt.Errorf("unknown event type: %s", event.Type)
	}

	if h.local != nil && h.local.IsLocalInbox(event.InboxURL) {
		log.Printf("[Worker] Skipping local inbox: activity=%s(%s) inbox=%s",
			event.ActivityType, event.ActivityID, event.InboxURL)
		return nil
	}

	if event.Wait(time.Now()) > 0 {
		log.Printf("[Worker] Not due yet, parking: activity=%s(%s) inbox=%s attempt=%d",
			event.ActivityType, event.ActivityID, event.InboxURL, event.Attempts+1)
		return h.park(ctx, event)
	}

	startTime := time.Now()
	err := h.sender.Send(ctx, event.InboxURL, event.Activity)
	if err == nil {
		log.Printf("[Worker] Delivered: activity=%s(%s) inbox=%s attempt=%d duration=%v",
			event.ActivityType, event.ActivityID, event.InboxURL, event.Attempts+1, time.Since(startTime))
		return nil
	}

	var permanent *PermanentError
	if errors.As(err, &permanent) {
		log.Printf("[Worker] Delivery refused: activity=%s(%s) inbox=%s err=%v",
			event.ActivityType, event.ActivityID, event.InboxURL, err)
		return err
	}

	if event.Attempts+1 >= h.maxAttempts {
		log.Printf("[Worker] Delivery FAILED, giving up: activity=%s(%s) inbox=%s attempts=%d err=%v",
			event.ActivityType, event.ActivityID, event.InboxURL, event.Attempts+1, err)
		return fmt.Errorf("deliver %s to %s after %d attempts: %w", event.ActivityID, event.InboxURL, event.Attempts+1, err)
	}

	log.Printf("[Worker] Delivery failed, retrying: activity=%s(%s) inbox=%s attempt=%d err=%v",
		event.ActivityType, event.ActivityID, event.InboxURL, event.Attempts+1, err)
	return h.park(ctx, event.Retry(h.retry.ForAttempt(float64(event.Attempts))))
}

func (h *Handler) park(ctx context.Context, event queue.DeliveryEvent) error {
	if h.scheduler == nil {
		return fmt.Errorf("deliver %s to %s: no scheduler for retry", event.ActivityID, event.InboxURL)
	}
	// A send cut short by shutdown still gets parked.
	if err := h.scheduler.Schedule(context.WithoutCancel(ctx), event); err != nil {
		return fmt.Errorf("schedule %s: %w", event.ActivityID, err)
	}
	return nil
}
