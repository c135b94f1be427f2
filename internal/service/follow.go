package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"fedfollow/internal/activitypub"
	"fedfollow/internal/model"
	"fedfollow/internal/repository"
)

// ActivityBuilder turns relationship intents into activity payloads.
type ActivityBuilder interface {
	BuildFollow(actorURL, targetURL string, issuedAt time.Time) *activitypub.Activity
	BuildAccept(actorURL string, original *activitypub.Activity) *activitypub.Activity
	BuildReject(actorURL string, original *activitypub.Activity) *activitypub.Activity
	BuildUndo(actorURL string, original *activitypub.Activity) *activitypub.Activity
}

// DeliveryGateway sends a built activity to an inbox. Retries are its own business.
type DeliveryGateway interface {
	Deliver(ctx context.Context, activity *activitypub.Activity, inboxURL string, actingActor *model.Actor) error
}

// PresenceNotifier pushes an event to a local user's live sessions. It must not block.
type PresenceNotifier interface {
	Notify(ctx context.Context, userID int64, event string, payload interface{})
}

// FollowService is the follow protocol state machine. Each edge moves
// NONE -> PENDING -> ACCEPTED, collapses straight to ACCEPTED for auto-accepting
// local targets, and always returns to NONE by deletion.
//
// Relationship rows are committed before any delivery is attempted, and a failed
// delivery never undoes them.
type FollowService struct {
	resolver      *ActorResolver
	relationships repository.RelationshipRepository
	builder       ActivityBuilder
	gateway       DeliveryGateway
	notifier      PresenceNotifier // Can be nil if presence is not configured

	now func() time.Time
}

func NewFollowService(
	resolver *ActorResolver,
	relationships repository.RelationshipRepository,
	builder ActivityBuilder,
	gateway DeliveryGateway,
	notifier PresenceNotifier,
) *FollowService {
	return &FollowService{
		resolver:      resolver,
		relationships: relationships,
		builder:       builder,
		gateway:       gateway,
		notifier:      notifier,
		now:           storedNow,
	}
}

// storedNow is millisecond precision so Follow ids derived from a row's
// created_at survive the round trip through Postgres.
func storedNow() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}

// Follow asks requesterID to follow targetHandle. Only a local target can come back accepted.
func (s *FollowService) Follow(ctx context.Context, requesterID int64, targetHandle string) (*model.FollowResult, error) {
	requester, requesterURL, err := s.loadRequester(ctx, requesterID)
	if err != nil {
		return nil, err
	}

	target, err := s.resolver.Resolve(ctx, targetHandle)
	if err != nil {
		return nil, err
	}
	targetURL, err := s.resolver.ActorURL(target)
	if err != nil {
		return nil, err
	}

	if (!target.IsRemote && target.ID == requester.ID) || targetURL == requesterURL {
		return nil, model.ErrCannotFollowSelf
	}

	existing, err := s.relationships.GetFollowing(ctx, requester.ID, targetURL)
	if err != nil {
		return nil, err
	}
	// A new attempt supersedes a stale pending request in the same write.
	var staleID int64
	if existing != nil {
		if existing.Accepted {
			return nil, model.ErrAlreadyFollowing
		}
		staleID = existing.ID
	}

	if target.IsRemote {
		return s.followRemote(ctx, requester, requesterURL, target, targetURL, staleID)
	}
	return s.followLocal(ctx, requester, requesterURL, target, targetURL, staleID)
}

// followLocal writes both sides at once; there is no remote party to wait for.
func (s *FollowService) followLocal(ctx context.Context, requester *model.Actor, requesterURL string, target *model.Actor, targetURL string, staleID int64) (*model.FollowResult, error) {
	accepted := target.Policy == model.AcceptPolicyAuto
	now := s.now()

	following := &model.Following{
		UserID:         requester.ID,
		ActorURL:       targetURL,
		Accepted:       accepted,
		InboxURL:       target.InboxURL,
		SharedInboxURL: target.SharedInboxURL,
		CreatedAt:      now,
	}
	follower := &model.Follower{
		UserID:         target.ID,
		ActorURL:       requesterURL,
		Accepted:       accepted,
		InboxURL:       requester.InboxURL,
		SharedInboxURL: requester.SharedInboxURL,
		CreatedAt:      now,
	}

	if err := s.relationships.ApplyLocalFollow(ctx, staleID, following, follower); err != nil {
		return nil, err
	}

	log.Printf("[FollowService] Local follow: requester=%d target=%d accepted=%t policy=%s",
		requester.ID, target.ID, accepted, target.Policy)

	requesterEvent, targetEvent := model.EventFollowPending, model.EventFollowRequest
	if accepted {
		requesterEvent, targetEvent = model.EventFollowAccepted, model.EventNewFollower
	}
	s.notify(ctx, requester.ID, requesterEvent, model.FollowEventPayload{
		ActorURL:   targetURL,
		Handle:     target.Username,
		IsAccepted: accepted,
	})
	s.notify(ctx, target.ID, targetEvent, model.FollowEventPayload{
		ActorURL:   requesterURL,
		Handle:     requester.Username,
		IsAccepted: accepted,
		FollowerID: follower.ID,
	})

	return &model.FollowResult{ActorURL: targetURL, Remote: false, Accepted: &accepted}, nil
}

// followRemote records the intent as pending; only the remote server's Accept can flip it.
func (s *FollowService) followRemote(ctx context.Context, requester *model.Actor, requesterURL string, target *model.Actor, targetURL string, staleID int64) (*model.FollowResult, error) {
	following := &model.Following{
		UserID:         requester.ID,
		ActorURL:       targetURL,
		Accepted:       false,
		InboxURL:       target.InboxURL,
		SharedInboxURL: target.SharedInboxURL,
		CreatedAt:      s.now(),
	}

	var err error
	if staleID != 0 {
		err = s.relationships.ReplaceFollowing(ctx, staleID, following)
	} else {
		err = s.relationships.CreateFollowing(ctx, following)
	}
	if err != nil {
		return nil, err
	}

	follow := s.builder.BuildFollow(requesterURL, targetURL, following.CreatedAt)
	s.deliver(ctx, follow, target.DeliveryInbox(), requester)

	s.notify(ctx, requester.ID, model.EventFollowPending, model.FollowEventPayload{
		ActorURL:   targetURL,
		Handle:     target.Username,
		IsAccepted: false,
	})

	return &model.FollowResult{ActorURL: targetURL, Remote: true}, nil
}

// Unfollow removes requesterID's Following row for targetHandle, pending or accepted,
// and sends an Undo of the original Follow.
func (s *FollowService) Unfollow(ctx context.Context, requesterID int64, targetHandle string) error {
	requester, requesterURL, err := s.loadRequester(ctx, requesterID)
	if err != nil {
		return err
	}

	target, err := s.resolver.Resolve(ctx, targetHandle)
	if err != nil {
		return err
	}
	targetURL, err := s.resolver.ActorURL(target)
	if err != nil {
		return err
	}

	existing, err := s.relationships.GetFollowing(ctx, requester.ID, targetURL)
	if err != nil {
		return err
	}
	if existing == nil {
		return model.ErrNotFollowing
	}

	if target.IsRemote {
		err = s.relationships.DeleteFollowing(ctx, requester.ID, targetURL)
	} else {
		err = s.relationships.RemoveLocalFollow(ctx, requester.ID, targetURL, target.ID, requesterURL)
	}
	if err != nil {
		return err
	}

	log.Printf("[FollowService] Unfollow: requester=%d target=%s was_accepted=%t",
		requester.ID, targetURL, existing.Accepted)

	follow := s.builder.BuildFollow(requesterURL, targetURL, existing.CreatedAt)
	s.deliver(ctx, s.builder.BuildUndo(requesterURL, follow), target.DeliveryInbox(), requester)

	s.notify(ctx, requester.ID, model.EventFollowRemoved, model.FollowEventPayload{
		ActorURL: targetURL,
		Handle:   target.Username,
	})
	return nil
}

// AcceptFollower approves a pending follow request addressed to ownerID.
// Accepting twice is an error, not a no-op.
func (s *FollowService) AcceptFollower(ctx context.Context, ownerID, followerID int64) error {
	owner, ownerURL, follower, err := s.loadOwnedFollower(ctx, ownerID, followerID)
	if err != nil {
		return err
	}
	if follower.Accepted {
		return model.ErrAlreadyAccepted
	}

	requester := s.resolver.ResolveLocalURL(ctx, follower.ActorURL)
	if requester != nil {
		err = s.relationships.AcceptLocalFollow(ctx, follower.ID, requester.ID, ownerURL)
	} else {
		err = s.relationships.MarkFollowerAccepted(ctx, follower.ID)
	}
	if err != nil {
		return err
	}

	log.Printf("[FollowService] Accepted follower: owner=%d follower=%d actor=%s local=%t",
		owner.ID, follower.ID, follower.ActorURL, requester != nil)

	follow := s.builder.BuildFollow(follower.ActorURL, ownerURL, follower.CreatedAt)
	s.deliver(ctx, s.builder.BuildAccept(ownerURL, follow), follower.DeliveryInbox(), owner)

	if requester != nil {
		s.notify(ctx, requester.ID, model.EventFollowAccepted, model.FollowEventPayload{
			ActorURL:   ownerURL,
			Handle:     owner.Username,
			IsAccepted: true,
		})
	}
	return nil
}

// RejectFollower deletes a follower record owned by ownerID, whatever its state.
func (s *FollowService) RejectFollower(ctx context.Context, ownerID, followerID int64) error {
	owner, ownerURL, follower, err := s.loadOwnedFollower(ctx, ownerID, followerID)
	if err != nil {
		return err
	}

	requester := s.resolver.ResolveLocalURL(ctx, follower.ActorURL)
	if requester != nil {
		err = s.relationships.RejectLocalFollow(ctx, follower.ID, requester.ID, ownerURL)
	} else {
		err = s.relationships.DeleteFollowerByID(ctx, follower.ID)
	}
	if err != nil {
		return err
	}

	log.Printf("[FollowService] Rejected follower: owner=%d follower=%d actor=%s local=%t",
		owner.ID, follower.ID, follower.ActorURL, requester != nil)

	follow := s.builder.BuildFollow(follower.ActorURL, ownerURL, follower.CreatedAt)
	s.deliver(ctx, s.builder.BuildReject(ownerURL, follow), follower.DeliveryInbox(), owner)

	if requester != nil {
		s.notify(ctx, requester.ID, model.EventFollowRejected, model.FollowEventPayload{
			ActorURL: ownerURL,
			Handle:   owner.Username,
		})
	}
	return nil
}

// FollowStatus reports whether callerID follows targetHandle. A nil caller gets the zero status.
func (s *FollowService) FollowStatus(ctx context.Context, callerID *int64, targetHandle string) (*model.FollowStatus, error) {
	if callerID == nil {
		return &model.FollowStatus{}, nil
	}

	target, err := s.resolver.Resolve(ctx, targetHandle)
	if err != nil {
		return nil, err
	}
	targetURL, err := s.resolver.ActorURL(target)
	if err != nil {
		return nil, err
	}

	existing, err := s.relationships.GetFollowing(ctx, *callerID, targetURL)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return &model.FollowStatus{}, nil
	}
	return &model.FollowStatus{IsFollowing: true, IsAccepted: existing.Accepted}, nil
}

// ListPendingFollowers returns follow requests awaiting userID's review, newest first.
func (s *FollowService) ListPendingFollowers(ctx context.Context, userID int64) ([]model.Follower, error) {
	return s.relationships.ListPendingFollowers(ctx, userID)
}

// loadRequester resolves the acting local actor. Remote actors never originate local calls.
func (s *FollowService) loadRequester(ctx context.Context, requesterID int64) (*model.Actor, string, error) {
	requester, err := s.resolver.ResolveByID(ctx, requesterID)
	if err != nil {
		return nil, "", err
	}
	if requester.IsRemote {
		return nil, "", fmt.Errorf("actor %d is remote: %w", requesterID, model.ErrUnauthorized)
	}
	requesterURL, err := s.resolver.ActorURL(requester)
	if err != nil {
		return nil, "", err
	}
	return requester, requesterURL, nil
}

// loadOwnedFollower loads a follower record and masks ownership mismatches as not found.
func (s *FollowService) loadOwnedFollower(ctx context.Context, ownerID, followerID int64) (*model.Actor, string, *model.Follower, error) {
	follower, err := s.relationships.GetFollowerByID(ctx, followerID)
	if err != nil {
		return nil, "", nil, err
	}
	if follower == nil || follower.UserID != ownerID {
		return nil, "", nil, model.ErrFollowerNotFound
	}

	owner, ownerURL, err := s.loadRequester(ctx, ownerID)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return nil, "", nil, model.ErrFollowerNotFound
		}
		return nil, "", nil, err
	}
	return owner, ownerURL, follower, nil
}

// deliver hands an activity to the gateway. Failures are logged and swallowed:
// the relationship rows are already committed and remain the record of intent.
func (s *FollowService) deliver(ctx context.Context, activity *activitypub.Activity, inboxURL string, actor *model.Actor) {
	if err := s.gateway.Deliver(ctx, activity, inboxURL, actor); err != nil {
		log.Printf("[FollowService] Failed to deliver %s: id=%s inbox=%s err=%v",
			activity.Type, activity.ID, inboxURL, err)
		return
	}
	log.Printf("[FollowService] Queued %s: id=%s inbox=%s", activity.Type, activity.ID, inboxURL)
}

func (s *FollowService) notify(ctx context.Context, userID int64, event string, payload model.FollowEventPayload) {
	if s.notifier == nil {
		return
	}
	s.notifier.Notify(ctx, userID, event, payload)
}
