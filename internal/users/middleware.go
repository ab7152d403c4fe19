package users

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/bugtrail/bugtrail/internal/platform/httpx"
	"github.com/bugtrail/bugtrail/internal/shared"
)

// IdentityLoader resolves the session's user reference into a full identity
// on every request. The lookup is never cached across requests, so a role
// change or deactivation applies on the next request.
type IdentityLoader struct {
	Repo   Repository
	Logger *slog.Logger
}

// Middleware attaches the resolved identity to the request context. An
// unknown, deactivated or malformed user reference leaves the request
// unauthenticated rather than failing it; later gates return 401.
func (l IdentityLoader) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess := shared.SessionFromContext(r.Context())
		if sess == nil || strings.TrimSpace(sess.User()) == "" {
			next.ServeHTTP(w, r)
			return
		}
		id, err := strconv.ParseInt(strings.TrimSpace(sess.User()), 10, 64)
		if err != nil {
			if l.Logger != nil {
				l.Logger.Warn("session user id malformed", slog.String("value", sess.User()))
			}
			next.ServeHTTP(w, r)
			return
		}
		user, err := l.Repo.FindByID(r.Context(), id)
		if err != nil {
			if !errors.Is(err, shared.ErrNotFound) {
				if l.Logger != nil {
					l.Logger.Error("resolve identity", slog.Any("error", err))
				}
				httpx.Error(w, http.StatusInternalServerError, "internal error")
				return
			}
			next.ServeHTTP(w, r)
			return
		}
		if !user.IsActive {
			next.ServeHTTP(w, r)
			return
		}
		ctx := shared.ContextWithIdentity(r.Context(), user.Identity())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
