package repository

import (
	"context"

	"fedfollow/internal/model"
)

type ActorRepository interface {
	// GetByHandle matches (username, is_remote) exactly, so a local and a remote
	// actor may share a username.
	GetByHandle(ctx context.Context, username string, isRemote bool) (*model.Actor, error)
	GetByID(ctx context.Context, id int64) (*model.Actor, error)
}

// RelationshipRepository is the two-sided bookkeeping for follow edges.
// Every row is keyed by (userID, actorURL); userID is always the local side.
type RelationshipRepository interface {
	// GetFollowing returns nil, nil when no row exists.
	GetFollowing(ctx context.Context, userID int64, actorURL string) (*model.Following, error)
	// CreateFollowing fails with model.ErrConflict when the row already exists.
	CreateFollowing(ctx context.Context, f *model.Following) error
	// ReplaceFollowing removes the pending row staleID and creates f in one step.
	// On model.ErrConflict the stale row is left in place.
	ReplaceFollowing(ctx context.Context, staleID int64, f *model.Following) error
	// SetFollowingAccepted returns model.ErrNotFollowing when no row exists.
	SetFollowingAccepted(ctx context.Context, userID int64, actorURL string) error
	// DeleteFollowing is idempotent.
	DeleteFollowing(ctx context.Context, userID int64, actorURL string) error

	// UpsertFollower creates the row or refreshes only accepted and inbox metadata.
	UpsertFollower(ctx context.Context, f *model.Follower) error
	// DeleteFollowerByActor is idempotent.
	DeleteFollowerByActor(ctx context.Context, userID int64, actorURL string) error
	// ListPendingFollowers returns unaccepted followers, newest first.
	ListPendingFollowers(ctx context.Context, userID int64) ([]model.Follower, error)
	// GetFollowerByID returns nil, nil when no row exists.
	GetFollowerByID(ctx context.Context, id int64) (*model.Follower, error)
	MarkFollowerAccepted(ctx context.Context, id int64) error
	DeleteFollowerByID(ctx context.Context, id int64) error

	// ApplyLocalFollow writes both sides of a same-server follow atomically:
	// the Follower row is upserted and the Following row created with the same accepted value.
	// A non-zero staleID names a pending Following row the new one supersedes.
	ApplyLocalFollow(ctx context.Context, staleID int64, following *model.Following, follower *model.Follower) error
	// RemoveLocalFollow deletes both sides of a same-server follow atomically.
	RemoveLocalFollow(ctx context.Context, requesterID int64, targetURL string, targetID int64, requesterURL string) error
	// AcceptLocalFollow marks the Follower row accepted and flips the requester's Following row.
	AcceptLocalFollow(ctx context.Context, followerID int64, requesterID int64, targetURL string) error
	// RejectLocalFollow deletes the Follower row and the requester's Following row.
	RejectLocalFollow(ctx context.Context, followerID int64, requesterID int64, targetURL string) error
}
