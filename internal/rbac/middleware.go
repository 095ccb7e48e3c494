package rbac

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nexus-iot/nexus/internal/platform/httpx"
)

// Middleware adapts an Enforcer to HTTP handlers.
type Middleware struct {
	Enforcer *Enforcer
}

// Require rejects requests whose principal does not satisfy req. The call
// site recorded for audit is the matched route pattern.
func (m Middleware) Require(req Requirement) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			err := m.Enforcer.Do(r.Context(), req, callSite(r), func(ctx context.Context) error {
				next.ServeHTTP(w, r.WithContext(ctx))
				return nil
			})
			if err != nil {
				httpx.RespondError(w, err)
			}
		})
	}
}

func callSite(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return r.Method + " " + pattern
		}
	}
	return r.Method + " " + r.URL.Path
}
