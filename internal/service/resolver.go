package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"fedfollow/internal/model"
	"fedfollow/internal/repository"
)

// ActorResolver turns handles into canonical actor records and actor URLs.
// Remote descriptors are cached for a short TTL; local actors are always read
// fresh so their accept policy is never stale.
type ActorResolver struct {
	actors  repository.ActorRepository
	baseURL string
	remote  *expirable.LRU[string, model.Actor]
}

// NewActorResolver creates a resolver rooted at baseURL. A cacheSize of zero disables caching.
func NewActorResolver(actors repository.ActorRepository, baseURL string, cacheSize int, cacheTTL time.Duration) *ActorResolver {
	r := &ActorResolver{
		actors:  actors,
		baseURL: strings.TrimRight(baseURL, "/"),
	}
	if cacheSize > 0 {
		r.remote = expirable.NewLRU[string, model.Actor](cacheSize, nil, cacheTTL)
	}
	return r
}

// Resolve looks up a handle. Handles containing "@" are remote.
func (r *ActorResolver) Resolve(ctx context.Context, handle string) (*model.Actor, error) {
	handle = model.NormalizeHandle(handle)
	if handle == "" {
		return nil, model.ErrActorNotFound
	}
	isRemote := model.IsRemoteHandle(handle)

	if isRemote && r.remote != nil {
		if cached, ok := r.remote.Get(handle); ok {
			return &cached, nil
		}
	}

	actor, err := r.actors.GetByHandle(ctx, handle, isRemote)
	if err != nil {
		return nil, err
	}

	if isRemote {
		if r.remote != nil {
			r.remote.Add(handle, *actor)
		}
		return actor, nil
	}
	return r.withLocalInboxes(actor), nil
}

// ResolveByID loads an actor by its local id.
func (r *ActorResolver) ResolveByID(ctx context.Context, id int64) (*model.Actor, error) {
	actor, err := r.actors.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if actor.IsRemote {
		return actor, nil
	}
	return r.withLocalInboxes(actor), nil
}

// ResolveLocalURL returns the local actor behind actorURL, or nil when the URL
// is not one of ours or no longer resolves.
func (r *ActorResolver) ResolveLocalURL(ctx context.Context, actorURL string) *model.Actor {
	username, ok := r.LocalUsername(actorURL)
	if !ok {
		return nil
	}
	actor, err := r.actors.GetByHandle(ctx, username, false)
	if err != nil {
		return nil
	}
	return r.withLocalInboxes(actor)
}

// ActorURL returns the canonical federation identity of actor.
func (r *ActorResolver) ActorURL(actor *model.Actor) (string, error) {
	if !actor.IsRemote {
		return r.LocalActorURL(actor.Username), nil
	}
	if actor.ExternalActorURL == "" {
		return "", fmt.Errorf("actor %q: %w", actor.Username, model.ErrInvalidActorURL)
	}
	return actor.ExternalActorURL, nil
}

func (r *ActorResolver) LocalActorURL(username string) string {
	return r.baseURL + "/users/" + username
}

func (r *ActorResolver) LocalInboxURL(username string) string {
	return r.LocalActorURL(username) + "/inbox"
}

func (r *ActorResolver) SharedInboxURL() string {
	return r.baseURL + "/inbox"
}

// LocalUsername extracts the username from a local actor URL.
func (r *ActorResolver) LocalUsername(actorURL string) (string, bool) {
	prefix := r.baseURL + "/users/"
	if !strings.HasPrefix(actorURL, prefix) {
		return "", false
	}
	username := strings.TrimPrefix(actorURL, prefix)
	if username == "" || strings.ContainsAny(username, "/#?@") {
		return "", false
	}
	return username, true
}

// IsLocalInbox reports whether inboxURL is one of this server's synthetic inboxes.
func (r *ActorResolver) IsLocalInbox(inboxURL string) bool {
	return inboxURL == r.SharedInboxURL() || strings.HasPrefix(inboxURL, r.baseURL+"/users/")
}

func (r *ActorResolver) withLocalInboxes(actor *model.Actor) *model.Actor {
	if actor.InboxURL == "" {
		actor.InboxURL = r.LocalInboxURL(actor.Username)
	}
	return actor
}
