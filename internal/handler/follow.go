package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"fedfollow/internal/httputil"
	"fedfollow/internal/model"
	"fedfollow/internal/service"
	"fedfollow/internal/transport/http/middleware"
)

type FollowHandler struct {
	followService *service.FollowService
}

func NewFollowHandler(followService *service.FollowService) *FollowHandler {
	return &FollowHandler{
		followService: followService,
	}
}

// Follow handles POST /users/{handle}/follow.
func (h *FollowHandler) Follow(w http.ResponseWriter, r *http.Request) {
	callerID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "Authentication required")
		return
	}

	result, err := h.followService.Follow(r.Context(), callerID, chi.URLParam(r, "handle"))
	if err != nil {
		httputil.WriteServiceError(w, err, "Failed to follow actor")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, result)
}

// Unfollow handles DELETE /users/{handle}/follow.
func (h *FollowHandler) Unfollow(w http.ResponseWriter, r *http.Request) {
	callerID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "Authentication required")
		return
	}

	if err := h.followService.Unfollow(r.Context(), callerID, chi.URLParam(r, "handle")); err != nil {
		httputil.WriteServiceError(w, err, "Failed to unfollow actor")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]string{
		"message": "Successfully unfollowed actor",
	})
}

// FollowStatus handles GET /users/{handle}/follow-status. Authentication is optional.
func (h *FollowHandler) FollowStatus(w http.ResponseWriter, r *http.Request) {
	var callerID *int64
	if id, ok := middleware.GetUserIDFromContext(r.Context()); ok {
		callerID = &id
	}

	status, err := h.followService.FollowStatus(r.Context(), callerID, chi.URLParam(r, "handle"))
	if err != nil {
		httputil.WriteServiceError(w, err, "Failed to fetch follow status")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, status)
}

// ListPending handles GET /followers/pending.
func (h *FollowHandler) ListPending(w http.ResponseWriter, r *http.Request) {
	callerID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "Authentication required")
		return
	}

	followers, err := h.followService.ListPendingFollowers(r.Context(), callerID)
	if err != nil {
		httputil.WriteServiceError(w, err, "Failed to fetch pending followers")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, model.PendingFollowersResponse{Followers: followers})
}

// Accept handles POST /followers/{followerId}/accept.
func (h *FollowHandler) Accept(w http.ResponseWriter, r *http.Request) {
	callerID, followerID, ok := h.followerRequest(w, r)
	if !ok {
		return
	}

	if err := h.followService.AcceptFollower(r.Context(), callerID, followerID); err != nil {
		httputil.WriteServiceError(w, err, "Failed to accept follower")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]string{
		"message": "Follower accepted",
	})
}

// Reject handles POST /followers/{followerId}/reject.
func (h *FollowHandler) Reject(w http.ResponseWriter, r *http.Request) {
	callerID, followerID, ok := h.followerRequest(w, r)
	if !ok {
		return
	}

	if err := h.followService.RejectFollower(r.Context(), callerID, followerID); err != nil {
		httputil.WriteServiceError(w, err, "Failed to reject follower")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]string{
		"message": "Follower rejected",
	})
}

func (h *FollowHandler) followerRequest(w http.ResponseWriter, r *http.Request) (int64, int64, bool) {
	callerID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "Authentication required")
		return 0, 0, false
	}

	followerID, err := strconv.ParseInt(chi.URLParam(r, "followerId"), 10, 64)
	if err != nil {
		httputil.WriteBadRequest(w, "Invalid follower ID")
		return 0, 0, false
	}
	return callerID, followerID, true
}
