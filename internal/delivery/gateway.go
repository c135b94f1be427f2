package delivery

import (
	"context"
	"fmt"
	"log"
	"sync"

	"fedfollow/internal/activitypub"
	"fedfollow/internal/model"
	"fedfollow/internal/queue"
)

// QueueGateway hands activities to the delivery stream. Workers drain the stream,
// POST to remote inboxes and retry; nothing here waits for the remote server.
type QueueGateway struct {
	publisher queue.Publisher
}

func NewQueueGateway(publisher queue.Publisher) *QueueGateway {
	return &QueueGateway{publisher: publisher}
}

// Deliver enqueues activity for inboxURL on behalf of actingActor.
func (g *QueueGateway) Deliver(ctx context.Context, activity *activitypub.Activity, inboxURL string, actingActor *model.Actor) error {
	event, err := newEvent(activity, inboxURL, actingActor)
	if err != nil {
		return err
	}

	if _, err := g.publisher.Publish(ctx, queue.StreamDelivery, event); err != nil {
		return fmt.Errorf("enqueue %s for %s: %w", activity.Type, inboxURL, err)
	}
	return nil
}

// EventHandler processes one delivery event.
type EventHandler interface {
	HandleEvent(ctx context.Context, event queue.DeliveryEvent) error
}

// InlineGateway delivers in a background goroutine without a queue.
// It serves single-process setups with no Redis; failed sends are not retried.
type InlineGateway struct {
	handler  EventHandler
	inflight sync.WaitGroup
}

func NewInlineGateway(handler EventHandler) *InlineGateway {
	return &InlineGateway{handler: handler}
}

func (g *InlineGateway) Deliver(ctx context.Context, activity *activitypub.Activity, inboxURL string, actingActor *model.Actor) error {
	event, err := newEvent(activity, inboxURL, actingActor)
	if err != nil {
		return err
	}

	g.inflight.Add(1)
	go func() {
		defer g.inflight.Done()
		if err := g.handler.HandleEvent(context.WithoutCancel(ctx), event); err != nil {
			log.Printf("[InlineGateway] Delivery failed: activity=%s(%s) inbox=%s err=%v",
				event.ActivityType, event.ActivityID, event.InboxURL, err)
		}
	}()
	return nil
}

// Wait blocks until every delivery started so far has finished, or ctx is done.
func (g *InlineGateway) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		g.inflight.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func newEvent(activity *activitypub.Activity, inboxURL string, actingActor *model.Actor) (queue.DeliveryEvent, error) {
	if inboxURL == "" {
		return queue.DeliveryEvent{}, fmt.Errorf("deliver %s %s: empty inbox url", activity.Type, activity.ID)
	}

	body, err := activity.Marshal()
	if err != nil {
		return queue.DeliveryEvent{}, err
	}

	var actorID int64
	if actingActor != nil {
		actorID = actingActor.ID
	}
	return queue.NewDeliveryEvent(activity.ID, activity.Type, body, inboxURL, actorID, activity.Actor), nil
}
