package model

import (
	"strings"
	"time"
)

// AcceptPolicy decides how incoming follow requests for a local actor are handled.
// It is resolved once when the actor is loaded and never re-read mid-operation.
type AcceptPolicy int

const (
	// AcceptPolicyAuto accepts every incoming follow request immediately.
	AcceptPolicyAuto AcceptPolicy = iota
	// AcceptPolicyManual leaves incoming requests pending until the owner reviews them.
	AcceptPolicyManual
)

func (p AcceptPolicy) String() string {
	if p == AcceptPolicyManual {
		return "manual_review"
	}
	return "auto_accept"
}

// PolicyFromSetting maps the nullable auto_accept_followers column onto a policy.
// An unset value behaves as open-follow.
func PolicyFromSetting(autoAccept *bool) AcceptPolicy {
	if autoAccept != nil && !*autoAccept {
		return AcceptPolicyManual
	}
	return AcceptPolicyAuto
}

// Actor is a followable identity, local or remote.
type Actor struct {
	ID               int64     `db:"id" json:"id,omitempty"`
	Username         string    `db:"username" json:"username"` // username, or username@domain for remote actors
	IsRemote         bool      `db:"is_remote" json:"is_remote"`
	ExternalActorURL string    `db:"external_actor_url" json:"-"` // remote actors only
	InboxURL         string    `db:"inbox_url" json:"inbox_url"`
	SharedInboxURL   string    `db:"shared_inbox_url" json:"shared_inbox_url,omitempty"`
	AutoAccept       *bool     `db:"auto_accept_followers" json:"-"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`

	// Policy is derived from AutoAccept when the actor is loaded.
	Policy AcceptPolicy `db:"-" json:"-"`
}

// DeliveryInbox returns the shared inbox when the actor advertises one, else its personal inbox.
func (a *Actor) DeliveryInbox() string {
	if a.SharedInboxURL != "" {
		return a.SharedInboxURL
	}
	return a.InboxURL
}

// IsRemoteHandle reports whether a handle addresses an actor on another server.
func IsRemoteHandle(handle string) bool {
	return strings.Contains(handle, "@")
}

// NormalizeHandle accepts the "@bob@remote.example" form for "bob@remote.example".
// The leading "@" is only dropped when another "@" follows, so "@alice" stays remote.
func NormalizeHandle(handle string) string {
	handle = strings.TrimSpace(handle)
	if rest, ok := strings.CutPrefix(handle, "@"); ok && strings.Contains(rest, "@") {
		return rest
	}
	return handle
}

// RemoteActorRef describes a remote actor as delivered by the (already verified) inbox pathway.
type RemoteActorRef struct {
	ActorURL       string
	InboxURL       string
	SharedInboxURL string
}

// DeliveryInbox mirrors Actor.DeliveryInbox for a remote reference.
func (r RemoteActorRef) DeliveryInbox() string {
	if r.SharedInboxURL != "" {
		return r.SharedInboxURL
	}
	return r.InboxURL
}
