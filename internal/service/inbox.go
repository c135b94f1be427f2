package service

import (
	"context"
	"log"

	"fedfollow/internal/model"
)

// The Receive* operations apply activities that arrived through the inbox pathway.
// Parsing and signature verification happen before these are called.

// ReceiveFollow records a remote actor's request to follow localHandle. Under the
// auto-accept policy the Follower row is accepted at once and an Accept goes back.
func (s *FollowService) ReceiveFollow(ctx context.Context, localHandle string, remote model.RemoteActorRef) (*model.Follower, error) {
	if remote.ActorURL == "" {
		return nil, model.ErrInvalidActorURL
	}

	target, err := s.resolver.Resolve(ctx, localHandle)
	if err != nil {
		return nil, err
	}
	if target.IsRemote {
		return nil, model.ErrActorNotFound
	}
	targetURL, err := s.resolver.ActorURL(target)
	if err != nil {
		return nil, err
	}
	if remote.ActorURL == targetURL {
		return nil, model.ErrCannotFollowSelf
	}

	accepted := target.Policy == model.AcceptPolicyAuto
	follower := &model.Follower{
		UserID:         target.ID,
		ActorURL:       remote.ActorURL,
		Accepted:       accepted,
		InboxURL:       remote.InboxURL,
		SharedInboxURL: remote.SharedInboxURL,
		CreatedAt:      s.now(),
	}
	if err := s.relationships.UpsertFollower(ctx, follower); err != nil {
		return nil, err
	}

	log.Printf("[FollowService] Received follow: target=%d actor=%s accepted=%t",
		target.ID, remote.ActorURL, accepted)

	event := model.EventFollowRequest
	if accepted {
		event = model.EventNewFollower
		follow := s.builder.BuildFollow(remote.ActorURL, targetURL, follower.CreatedAt)
		s.deliver(ctx, s.builder.BuildAccept(targetURL, follow), remote.DeliveryInbox(), target)
	}
	s.notify(ctx, target.ID, event, model.FollowEventPayload{
		ActorURL:   remote.ActorURL,
		IsAccepted: accepted,
		FollowerID: follower.ID,
	})

	return follower, nil
}

// ReceiveAccept flips localUserID's Following row for remoteActorURL to accepted.
func (s *FollowService) ReceiveAccept(ctx context.Context, localUserID int64, remoteActorURL string) error {
	if err := s.relationships.SetFollowingAccepted(ctx, localUserID, remoteActorURL); err != nil {
		return err
	}

	log.Printf("[FollowService] Follow accepted remotely: user=%d actor=%s", localUserID, remoteActorURL)

	s.notify(ctx, localUserID, model.EventFollowAccepted, model.FollowEventPayload{
		ActorURL:   remoteActorURL,
		IsAccepted: true,
	})
	return nil
}

// ReceiveReject drops localUserID's Following row for remoteActorURL. A missing row is not an error.
func (s *FollowService) ReceiveReject(ctx context.Context, localUserID int64, remoteActorURL string) error {
	existing, err := s.relationships.GetFollowing(ctx, localUserID, remoteActorURL)
	if err != nil {
		return err
	}
	if existing == nil {
		return nil
	}

	if err := s.relationships.DeleteFollowing(ctx, localUserID, remoteActorURL); err != nil {
		return err
	}

	log.Printf("[FollowService] Follow rejected remotely: user=%d actor=%s", localUserID, remoteActorURL)

	s.notify(ctx, localUserID, model.EventFollowRejected, model.FollowEventPayload{
		ActorURL: remoteActorURL,
	})
	return nil
}

// ReceiveUndoFollow removes remoteActorURL from localHandle's followers. Idempotent.
func (s *FollowService) ReceiveUndoFollow(ctx context.Context, localHandle, remoteActorURL string) error {
	target, err := s.resolver.Resolve(ctx, localHandle)
	if err != nil {
		return err
	}
	if target.IsRemote {
		return model.ErrActorNotFound
	}

	if err := s.relationships.DeleteFollowerByActor(ctx, target.ID, remoteActorURL); err != nil {
		return err
	}

	log.Printf("[FollowService] Follow undone remotely: target=%d actor=%s", target.ID, remoteActorURL)
	return nil
}
