package rbac

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/odyssey-erp/odyssey-gateway/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-gateway/internal/shared"
)

// Middleware wires RBAC authorization helpers for HTTP handlers.
type Middleware struct {
	Gate   *Gate
	Logger *slog.Logger
}

// RequireAny ensures the current user has at least one of the required permissions.
func (m Middleware) RequireAny(perms ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			err := m.Gate.AuthorizeAny(r.Context(), shared.PrincipalFromContext(r.Context()), perms...)
			if err != nil {
				m.deny(w, r, "rbac require any", err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireAll ensures the current user has all required permissions.
func (m Middleware) RequireAll(perms ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			err := m.Gate.Authorize(r.Context(), shared.PrincipalFromContext(r.Context()), perms...)
			if err != nil {
				m.deny(w, r, "rbac require all", err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireAuthenticated only checks that the session carries a known principal.
func (m Middleware) RequireAuthenticated() func(http.Handler) http.Handler {
	return m.RequireAll()
}

func (m Middleware) deny(w http.ResponseWriter, r *http.Request, msg string, err error) {
	if m.Logger != nil {
		switch {
		case errors.Is(err, shared.ErrUnauthenticated), errors.Is(err, shared.ErrForbidden):
			m.Logger.Warn(msg, slog.String("path", r.URL.Path), slog.Any("error", err))
		default:
			m.Logger.Error(msg, slog.String("path", r.URL.Path), slog.Any("error", err))
		}
	}
	httpx.RespondError(w, err)
}
