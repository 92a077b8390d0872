package app

import (
	"errors"
	"net/http"

	"github.com/calshare/calshare/internal/rest"
	"github.com/calshare/calshare/pkg/user"
	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"
)

// SetupMiddleware wires all HTTP middlewares for the application.
func SetupMiddleware(r *mux.Router, deps *Dependencies) {
	r.Use(userMiddleware(deps.UserRepo))
}

// userMiddleware resolves the X-User-Id header set by the authenticating proxy into the request context.
func userMiddleware(users user.Repo) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			userIdHeader := req.Header.Get("X-User-Id")
			ctx := req.Context()

			if userIdHeader != "" {
				u, err := users.GetUserByUid(ctx, userIdHeader)
				if errors.Is(err, user.ErrUserNotFound) {
					log.Debugf("user not found: %s", userIdHeader)
					rest.WriteError(w, http.StatusForbidden, "User not found", "")
					return
				} else if err != nil {
					log.Errorf("failed to get user: %v", err)
					rest.WriteError(w, http.StatusInternalServerError, "Failed to resolve user", "")
					return
				}
				ctx = user.WithUser(ctx, u)
			}
			next.ServeHTTP(w, req.WithContext(ctx))
		})
	}
}
