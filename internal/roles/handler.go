package roles

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/uhmwpe-lab/labdata/internal/platform/httpx"
	"github.com/uhmwpe-lab/labdata/internal/rbac"
	"github.com/uhmwpe-lab/labdata/internal/shared"
)

// Handler manages role management endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
	guard   rbac.Guard
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, guard rbac.Guard) *Handler {
	return &Handler{logger: logger, service: service, guard: guard}
}

// MountRoutes registers role routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.guard.Require(rbac.Need(ModuleName, rbac.ActionRead)))
		r.Get("/", h.listRoles)
		r.Get("/{id}", h.getRole)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.guard.Require(rbac.Need(ModuleName, rbac.ActionWrite)))
		r.Post("/", h.createRole)
		r.Put("/{id}", h.updateRole)
	})
	r.With(h.guard.Require(rbac.Need(ModuleName, rbac.ActionDelete))).Delete("/{id}", h.deleteRole)
}

func (h *Handler) listRoles(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	roles, err := h.service.ListRoles(r.Context(), RoleListFilters{SortBy: q.Get("sort"), SortDir: q.Get("dir")})
	if err != nil {
		h.fail(w, "list roles", err)
		return
	}
	if roles == nil {
		roles = []Role{}
	}
	httpx.JSON(w, http.StatusOK, roles)
}

func (h *Handler) getRole(w http.ResponseWriter, r *http.Request) {
	id, ok := httpx.IDParam(chi.URLParam(r, "id"))
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, httpx.TypeValidation, "Invalid id", "")
		return
	}
	role, err := h.service.GetRole(r.Context(), id)
	if err != nil {
		h.fail(w, "get role", err)
		return
	}
	httpx.JSON(w, http.StatusOK, role)
}

func (h *Handler) createRole(w http.ResponseWriter, r *http.Request) {
	var in RoleInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.Problem(w, http.StatusBadRequest, httpx.TypeValidation, "Invalid request body", err.Error())
		return
	}
	actor, _ := shared.CurrentUserID(r.Context())
	role, err := h.service.CreateRole(r.Context(), actor, in)
	if err != nil {
		h.fail(w, "create role", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, role)
}

func (h *Handler) updateRole(w http.ResponseWriter, r *http.Request) {
	id, ok := httpx.IDParam(chi.URLParam(r, "id"))
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, httpx.TypeValidation, "Invalid id", "")
		return
	}
	var in RoleInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.Problem(w, http.StatusBadRequest, httpx.TypeValidation, "Invalid request body", err.Error())
		return
	}
	actor, _ := shared.CurrentUserID(r.Context())
	role, err := h.service.UpdateRole(r.Context(), actor, id, in)
	if err != nil {
		h.fail(w, "update role", err)
		return
	}
	httpx.JSON(w, http.StatusOK, role)
}

func (h *Handler) deleteRole(w http.ResponseWriter, r *http.Request) {
	id, ok := httpx.IDParam(chi.URLParam(r, "id"))
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, httpx.TypeValidation, "Invalid id", "")
		return
	}
	actor, _ := shared.CurrentUserID(r.Context())
	if err := h.service.DeleteRole(r.Context(), actor, id); err != nil {
		h.fail(w, "delete role", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	h.logger.Warn("roles request failed", slog.String("op", op), slog.Any("error", err))
	httpx.RespondError(w, err)
}
