package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"fedfollow/internal/handler"
	"fedfollow/internal/httputil"
	authmw "fedfollow/internal/transport/http/middleware"
)

// RouterConfig holds the dependencies needed to create routes
type RouterConfig struct {
	FollowHandler *handler.FollowHandler
	JWTSecret     string
}

// NewRouter creates and configures a new Chi router with all route groups
func NewRouter(cfg RouterConfig) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	// Anonymous callers get a zero status instead of a 401
	r.With(authmw.OptionalAuthMiddleware(cfg.JWTSecret)).Get("/users/{handle}/follow-status", cfg.FollowHandler.FollowStatus)

	// Protected routes - require authentication
	r.Group(func(r chi.Router) {
		r.Use(authmw.AuthMiddleware(cfg.JWTSecret))

		r.Post("/users/{handle}/follow", cfg.FollowHandler.Follow)
		r.Delete("/users/{handle}/follow", cfg.FollowHandler.Unfollow)

		r.Route("/followers", func(r chi.Router) {
			r.Get("/pending", cfg.FollowHandler.ListPending)
			r.Post("/{followerId}/accept", cfg.FollowHandler.Accept)
			r.Post("/{followerId}/reject", cfg.FollowHandler.Reject)
		})
	})

	return r
}
