package model

// Presence event names pushed to a local user's live sessions.
const (
	EventFollowPending  = "FOLLOW_PENDING"
	EventFollowAccepted = "FOLLOW_ACCEPTED"
	EventFollowRejected = "FOLLOW_REJECTED"
	EventFollowRemoved  = "FOLLOW_REMOVED"
	EventFollowRequest  = "FOLLOW_REQUEST" // someone asked to follow you (manual review)
	EventNewFollower    = "NEW_FOLLOWER"   // someone followed you (auto-accepted)
)

// FollowEventPayload is the body of every follow-related presence event.
type FollowEventPayload struct {
	ActorURL   string `json:"actorUrl"`
	Handle     string `json:"handle,omitempty"`
	IsAccepted bool   `json:"isAccepted"`
	FollowerID int64  `json:"followerId,omitempty"`
}
