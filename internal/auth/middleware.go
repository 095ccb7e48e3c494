package auth

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/nexus-iot/nexus/internal/platform/httpx"
	"github.com/nexus-iot/nexus/internal/rbac"
	"github.com/nexus-iot/nexus/internal/shared"
)

// Middleware attaches the session and resolved principal to each request.
// Requests without a valid session continue anonymously.
type Middleware struct {
	Sessions *shared.SessionManager
	Service  *Service
	Logger   *slog.Logger
}

// Handler wraps next.
func (m Middleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		sess, err := m.Sessions.Load(ctx, r)
		if err != nil {
			m.logger().ErrorContext(ctx, "load session", slog.Any("error", err))
			httpx.RespondError(w, err)
			return
		}
		if sess == nil {
			next.ServeHTTP(w, r)
			return
		}
		ctx = shared.ContextWithSession(ctx, sess)

		principal, err := m.Service.Principal(ctx, sess.UserID)
		switch {
		case errors.Is(err, shared.ErrNotFound):
			m.logger().WarnContext(ctx, "session user missing", slog.String("user_id", sess.UserID.String()))
			next.ServeHTTP(w, r.WithContext(ctx))
			return
		case err != nil:
			m.logger().ErrorContext(ctx, "resolve principal", slog.String("user_id", sess.UserID.String()), slog.Any("error", err))
			httpx.RespondError(w, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(rbac.ContextWithPrincipal(ctx, principal)))
	})
}

// RequireAuthenticated rejects anonymous requests.
func RequireAuthenticated(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := rbac.PrincipalFromContext(r.Context()); !ok {
			httpx.RespondError(w, rbac.ErrAuthenticationRequired)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (m Middleware) logger() *slog.Logger {
	if m.Logger == nil {
		return slog.Default()
	}
	return m.Logger
}
