package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/uhmwpe-lab/labdata/internal/attachments"
	"github.com/uhmwpe-lab/labdata/internal/auth"
	"github.com/uhmwpe-lab/labdata/internal/observability"
	"github.com/uhmwpe-lab/labdata/internal/platform/httpx"
	"github.com/uhmwpe-lab/labdata/internal/rbac"
	"github.com/uhmwpe-lab/labdata/internal/resinspinning"
	"github.com/uhmwpe-lab/labdata/internal/roles"
	"github.com/uhmwpe-lab/labdata/internal/shared"
	"github.com/uhmwpe-lab/labdata/internal/users"
	"github.com/uhmwpe-lab/labdata/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger         *slog.Logger
	Config         *Config
	SessionManager *shared.SessionManager
	CSRFManager    *shared.CSRFManager

	AuthHandler        *auth.Handler
	RBACHandler        *rbac.Handler
	UsersHandler       *users.Handler
	RolesHandler       *roles.Handler
	ResinHandler       *resinspinning.Handler
	AttachmentsHandler *attachments.Handler
	JobHandler         *jobs.Handler
	Metrics            *observability.Metrics
}

// NewRouter constructs the chi.Router with the application defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:         params.Logger,
		Config:         params.Config,
		SessionManager: params.SessionManager,
		CSRFManager:    params.CSRFManager,
		Metrics:        params.Metrics,
	}) {
		r.Use(mw)
	}

	if params.Config == nil || !params.Config.IsProduction() {
		r.Use(chimw.Logger)
	}

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		httpx.Problem(w, http.StatusNotFound, httpx.TypeNotFound, "Not Found", "")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		httpx.Problem(w, http.StatusMethodNotAllowed, "", "Method Not Allowed", "")
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	mount := func(prefix string, fn func(chi.Router)) {
		r.Route(prefix, fn)
	}
	if params.AuthHandler != nil {
		mount("/auth", params.AuthHandler.MountRoutes)
	}
	if params.RBACHandler != nil {
		mount("/rbac", params.RBACHandler.MountRoutes)
	}
	if params.UsersHandler != nil {
		mount("/users", params.UsersHandler.MountRoutes)
	}
	if params.RolesHandler != nil {
		mount("/roles", params.RolesHandler.MountRoutes)
	}
	if params.ResinHandler != nil {
		mount("/"+resinspinning.ModuleName, params.ResinHandler.MountRoutes)
	}
	if params.AttachmentsHandler != nil {
		mount("/attachments", params.AttachmentsHandler.MountRoutes)
	}
	if params.JobHandler != nil {
		mount("/jobs", params.JobHandler.MountRoutes)
	}

	return r
}
