package activitypub

import (
	"time"

	"github.com/google/uuid"
)

// Builder turns relationship intents into activity payloads.
type Builder struct {
	now func() time.Time
}

func NewBuilder() *Builder {
	return &Builder{now: time.Now}
}

// BuildFollow creates the Follow sent when actorURL asks to follow targetURL.
func (b *Builder) BuildFollow(actorURL, targetURL string, issuedAt time.Time) *Activity {
	return ReconstructFollow(actorURL, targetURL, issuedAt)
}

// BuildAccept wraps the original Follow in an Accept issued by actorURL, the followee.
func (b *Builder) BuildAccept(actorURL string, original *Activity) *Activity {
	return b.wrap(TypeAccept, actorURL, original, original.Actor)
}

// BuildReject wraps the original Follow in a Reject issued by actorURL, the followee.
func (b *Builder) BuildReject(actorURL string, original *Activity) *Activity {
	return b.wrap(TypeReject, actorURL, original, original.Actor)
}

// BuildUndo wraps an activity previously issued by actorURL.
func (b *Builder) BuildUndo(actorURL string, original *Activity) *Activity {
	return b.wrap(TypeUndo, actorURL, original, original.ObjectURL())
}

func (b *Builder) wrap(activityType, actorURL string, original *Activity, audience string) *Activity {
	inner := *original
	inner.Context = ""

	a := &Activity{
		Context:   ContextActivityStreams,
		ID:        actorURL + "#activities/" + uuid.NewString(),
		Type:      activityType,
		Actor:     actorURL,
		Object:    &inner,
		Published: b.now().UTC().Format(time.RFC3339Nano),
	}
	if audience != "" {
		a.To = []string{audience}
	}
	return a
}
