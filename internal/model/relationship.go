package model

import "time"

// Following records that local actor UserID wants to receive ActorURL's activity.
type Following struct {
	ID             int64     `db:"id" json:"id"`
	UserID         int64     `db:"user_id" json:"user_id"`
	ActorURL       string    `db:"actor_url" json:"actor_url"`
	Accepted       bool      `db:"accepted" json:"accepted"`
	InboxURL       string    `db:"inbox_url" json:"inbox_url"`
	SharedInboxURL string    `db:"shared_inbox_url" json:"shared_inbox_url,omitempty"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}

// Follower records that ActorURL follows local actor UserID.
type Follower struct {
	ID             int64     `db:"id" json:"id"`
	UserID         int64     `db:"user_id" json:"-"`
	ActorURL       string    `db:"actor_url" json:"actor_url"`
	Accepted       bool      `db:"accepted" json:"accepted"`
	InboxURL       string    `db:"inbox_url" json:"inbox_url"`
	SharedInboxURL string    `db:"shared_inbox_url" json:"shared_inbox_url,omitempty"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}

// DeliveryInbox returns the inbox an Accept or Reject for this follower is addressed to.
func (f *Follower) DeliveryInbox() string {
	if f.SharedInboxURL != "" {
		return f.SharedInboxURL
	}
	return f.InboxURL
}

// FollowStatus is the read-only view of one Following edge.
type FollowStatus struct {
	IsFollowing bool `json:"isFollowing"`
	IsAccepted  bool `json:"isAccepted"`
}

// FollowResult acknowledges a Follow call. Accepted is set for local targets only;
// a remote target answers later with Accept or Reject.
type FollowResult struct {
	ActorURL string `json:"actor_url"`
	Remote   bool   `json:"remote"`
	Accepted *bool  `json:"accepted,omitempty"`
}

// PendingFollowersResponse is returned by GET /followers/pending.
type PendingFollowersResponse struct {
	Followers []Follower `json:"followers"`
}
