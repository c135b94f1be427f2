package model

import (
	"errors"
	"fmt"
)

// Stable machine-readable codes returned to API clients.
const (
	CodeNotFound         = "NOT_FOUND"
	CodeConflict         = "CONFLICT"
	CodeAlreadyFollowing = "ALREADY_FOLLOWING"
	CodeAlreadyAccepted  = "ALREADY_ACCEPTED"
	CodeNotFollowing     = "NOT_FOLLOWING"
	CodeSelfFollow       = "SELF_FOLLOW"
	CodeUnauthorized     = "UNAUTHORIZED"
	CodeBadRequest       = "BAD_REQUEST"
	CodeInternal         = "INTERNAL_ERROR"

	CodeTokenExpired = "TOKEN_EXPIRED"
	CodeTokenInvalid = "TOKEN_INVALID"
)

var (
	// ErrNotFound is the common parent of every "does not exist" error.
	ErrNotFound = errors.New("not found")

	// ErrActorNotFound is returned when a handle or actor id does not resolve.
	ErrActorNotFound = fmt.Errorf("actor %w", ErrNotFound)

	// ErrFollowerNotFound is returned for a missing follower record, and also for one
	// owned by someone else so existence is not leaked.
	ErrFollowerNotFound = fmt.Errorf("follower %w", ErrNotFound)

	// ErrConflict is returned when a concurrent request already created the same relationship row.
	ErrConflict = errors.New("relationship already exists")

	ErrAlreadyFollowing = errors.New("already following this actor")
	ErrAlreadyAccepted  = errors.New("follow request already accepted")
	ErrNotFollowing     = errors.New("not following this actor")
	ErrCannotFollowSelf = errors.New("cannot follow yourself")
	ErrUnauthorized     = errors.New("authentication required")

	// ErrInvalidActorURL is a data-integrity error: a remote actor without a stored actor URL.
	ErrInvalidActorURL = errors.New("remote actor has no actor url")
)

// ErrorCode maps an engine error onto its stable code. Unknown errors map to CodeInternal.
func ErrorCode(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotFound):
		return CodeNotFound
	case errors.Is(err, ErrConflict):
		return CodeConflict
	case errors.Is(err, ErrAlreadyFollowing):
		return CodeAlreadyFollowing
	case errors.Is(err, ErrAlreadyAccepted):
		return CodeAlreadyAccepted
	case errors.Is(err, ErrNotFollowing):
		return CodeNotFollowing
	case errors.Is(err, ErrCannotFollowSelf):
		return CodeSelfFollow
	case errors.Is(err, ErrUnauthorized):
		return CodeUnauthorized
	default:
		return CodeInternal
	}
}
