package activitypub

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	ContextActivityStreams = "https://www.w3.org/ns/activitystreams"
)

// Activity types handled by the follow protocol.
const (
	TypeFollow = "Follow"
	TypeAccept = "Accept"
	TypeReject = "Reject"
	TypeUndo   = "Undo"
)

// Activity is the JSON-LD payload handed to the delivery gateway.
// Object is either a URL string or a nested *Activity.
type Activity struct {
	Context   string      `json:"@context,omitempty"`
	ID        string      `json:"id"`
	Type      string      `json:"type"`
	Actor     string      `json:"actor"`
	Object    interface{} `json:"object"`
	To        []string    `json:"to,omitempty"`
	Published string      `json:"published,omitempty"`
}

// ObjectActivity returns the wrapped activity, or nil when Object is a plain URL.
func (a *Activity) ObjectActivity() *Activity {
	inner, _ := a.Object.(*Activity)
	return inner
}

// ObjectURL returns Object when it is a URL string.
func (a *Activity) ObjectURL() string {
	s, _ := a.Object.(string)
	return s
}

// Marshal encodes the activity for the wire.
func (a *Activity) Marshal() ([]byte, error) {
	data, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("marshal activity: %w", err)
	}
	return data, nil
}

// followNamespace scopes the name-based ids of reconstructed Follow activities.
var followNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("fedfollow:follow"))

// FollowActivityID derives the id of a Follow from actor, target and the millisecond the
// relationship row was created. The same inputs always yield the same id, which is how
// Unfollow, Accept and Reject refer back to a Follow that was never stored.
func FollowActivityID(actorURL, targetURL string, issuedAt time.Time) string {
	name := fmt.Sprintf("%s %s %d", actorURL, targetURL, issuedAt.UnixMilli())
	return actorURL + "#follows/" + uuid.NewSHA1(followNamespace, []byte(name)).String()
}

// ReconstructFollow rebuilds the Follow activity for a relationship edge. It is the single
// helper every call site uses, so the Follow, Undo, Accept and Reject payloads never drift.
func ReconstructFollow(actorURL, targetURL string, issuedAt time.Time) *Activity {
	return &Activity{
		Context:   ContextActivityStreams,
		ID:        FollowActivityID(actorURL, targetURL, issuedAt),
		Type:      TypeFollow,
		Actor:     actorURL,
		Object:    targetURL,
		To:        []string{targetURL},
		Published: issuedAt.UTC().Truncate(time.Millisecond).Format(time.RFC3339Nano),
	}
}
