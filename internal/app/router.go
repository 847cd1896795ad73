package app

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-gateway/internal/auth"
	"github.com/odyssey-erp/odyssey-gateway/internal/observability"
	"github.com/odyssey-erp/odyssey-gateway/internal/platform/db"
	"github.com/odyssey-erp/odyssey-gateway/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-gateway/internal/rbac"
	"github.com/odyssey-erp/odyssey-gateway/internal/roles"
	"github.com/odyssey-erp/odyssey-gateway/internal/shared"
	"github.com/odyssey-erp/odyssey-gateway/internal/users"
	"github.com/odyssey-erp/odyssey-gateway/jobs"
)

// StateReporter exposes the connection manager state for health checks.
type StateReporter interface {
	State() db.State
}

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger             *slog.Logger
	Config             *Config
	SessionManager     *shared.SessionManager
	CSRFManager        *shared.CSRFManager
	Database           StateReporter
	AuthHandler        *auth.Handler
	UsersHandler       *users.Handler
	RolesHandler       *roles.Handler
	PermissionsHandler *rbac.PermissionsHandler
	JobHandler         *jobs.Handler
	Metrics            *observability.Metrics
}

type healthResponse struct {
	Status   string `json:"status"`
	Database string `json:"database,omitempty"`
}

// NewRouter constructs the chi.Router with gateway defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()
	// Set before mounting so subrouters inherit them.
	r.NotFound(routeNotFound)
	r.MethodNotAllowed(methodNotAllowed)

	// Probes and scrapes bypass sessions and CSRF.
	r.Get("/healthz", healthHandler(params.Database))
	r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())

	r.Group(func(r chi.Router) {
		for _, mw := range MiddlewareStack(MiddlewareConfig{
			Logger:         params.Logger,
			Config:         params.Config,
			SessionManager: params.SessionManager,
			CSRFManager:    params.CSRFManager,
			Metrics:        params.Metrics,
		}) {
			r.Use(mw)
		}

		r.Route("/api/v1", func(r chi.Router) {
			if params.AuthHandler != nil {
				r.Route("/auth", params.AuthHandler.MountRoutes)
			}
			if params.UsersHandler != nil {
				r.Route("/users", params.UsersHandler.MountRoutes)
			}
			if params.RolesHandler != nil {
				r.Route("/roles", params.RolesHandler.MountRoutes)
			}
			if params.PermissionsHandler != nil {
				r.Route("/permissions", params.PermissionsHandler.MountRoutes)
			}
			if params.JobHandler != nil {
				r.Route("/jobs", params.JobHandler.MountRoutes)
			}
		})
	})

	return r
}

func routeNotFound(w http.ResponseWriter, r *http.Request) {
	httpx.Problem(w, http.StatusNotFound, "Not Found", fmt.Sprintf("no route for %s %s", r.Method, r.URL.Path))
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	httpx.Problem(w, http.StatusMethodNotAllowed, "Method Not Allowed", fmt.Sprintf("%s is not supported on %s", r.Method, r.URL.Path))
}

func healthHandler(database StateReporter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if database == nil {
			httpx.JSON(w, http.StatusOK, healthResponse{Status: "ok"})
			return
		}
		state := database.State()
		resp := healthResponse{Status: "ok", Database: state.String()}
		switch state {
		case db.StateError, db.StateClosed:
			resp.Status = "unavailable"
			httpx.JSON(w, http.StatusServiceUnavailable, resp)
			return
		}
		httpx.JSON(w, http.StatusOK, resp)
	}
}
