package rbac

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/uhmwpe-lab/labdata/internal/platform/httpx"
	"github.com/uhmwpe-lab/labdata/internal/shared"
)

// ModuleName is the registry key guarding the rbac admin routes.
const ModuleName = "rbac"

// PermissionViewer is the read side of the engine exposed to the current user.
type PermissionViewer interface {
	PermissionsForModule(ctx context.Context, userID int64, moduleName string) map[Action]bool
	AllPermissions(ctx context.Context, userID int64) map[string]map[Action]bool
}

// Handler serves the registry, the matrix and the caller's own permissions.
type Handler struct {
	logger  *slog.Logger
	service *Service
	viewer  PermissionViewer
	guard   Guard
}

// NewHandler builds a Handler.
func NewHandler(logger *slog.Logger, service *Service, viewer PermissionViewer, guard Guard) *Handler {
	return &Handler{logger: logger, service: service, viewer: viewer, guard: guard}
}

// MountRoutes registers routes under /rbac.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.guard.Require())
		r.Get("/me/permissions", h.myPermissions)
		r.Get("/me/permissions/{module}", h.myModulePermissions)
	})
	r.Route("/modules", func(r chi.Router) {
		r.With(h.guard.Require(Need(ModuleName, ActionRead))).Get("/", h.listModules)
		r.With(h.guard.Require(Need(ModuleName, ActionRead))).Get("/tree", h.moduleTree)
		r.With(h.guard.Require(Need(ModuleName, ActionWrite))).Post("/", h.createModule)
		r.With(h.guard.Require(Need(ModuleName, ActionDelete))).Delete("/{id}", h.deleteModule)
	})
	r.Route("/permissions", func(r chi.Router) {
		r.With(h.guard.Require(Need(ModuleName, ActionRead))).Get("/", h.listPermissions)
		r.With(h.guard.Require(Need(ModuleName, ActionWrite))).Post("/", h.grant)
		r.With(h.guard.Require(Need(ModuleName, ActionWrite))).Put("/{id}", h.update)
		r.With(h.guard.Require(Need(ModuleName, ActionDelete))).Delete("/{id}", h.revoke)
	})
}

func (h *Handler) myPermissions(w http.ResponseWriter, r *http.Request) {
	userID, _ := shared.CurrentUserID(r.Context())
	httpx.JSON(w, http.StatusOK, map[string]any{
		"user_id":     userID,
		"permissions": h.viewer.AllPermissions(r.Context(), userID),
	})
}

func (h *Handler) myModulePermissions(w http.ResponseWriter, r *http.Request) {
	userID, _ := shared.CurrentUserID(r.Context())
	module := chi.URLParam(r, "module")
	httpx.JSON(w, http.StatusOK, map[string]any{
		"module":      module,
		"permissions": h.viewer.PermissionsForModule(r.Context(), userID, module),
	})
}

func (h *Handler) listModules(w http.ResponseWriter, r *http.Request) {
	modules, err := h.service.ListModules(r.Context())
	if err != nil {
		h.fail(w, "list modules", err)
		return
	}
	if modules == nil {
		modules = []Module{}
	}
	httpx.JSON(w, http.StatusOK, modules)
}

func (h *Handler) moduleTree(w http.ResponseWriter, r *http.Request) {
	tree, err := h.service.ModuleTree(r.Context())
	if err != nil {
		h.fail(w, "module tree", err)
		return
	}
	if tree == nil {
		tree = []ModuleNode{}
	}
	httpx.JSON(w, http.StatusOK, tree)
}

func (h *Handler) createModule(w http.ResponseWriter, r *http.Request) {
	var in ModuleInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.Problem(w, http.StatusBadRequest, httpx.TypeValidation, "Invalid request body", err.Error())
		return
	}
	actor, _ := shared.CurrentUserID(r.Context())
	module, err := h.service.CreateModule(r.Context(), actor, in)
	if err != nil {
		h.fail(w, "create module", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, module)
}

func (h *Handler) deleteModule(w http.ResponseWriter, r *http.Request) {
	id, ok := httpx.IDParam(chi.URLParam(r, "id"))
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, httpx.TypeValidation, "Invalid id", "")
		return
	}
	actor, _ := shared.CurrentUserID(r.Context())
	if err := h.service.DeleteModule(r.Context(), actor, id); err != nil {
		h.fail(w, "delete module", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listPermissions(w http.ResponseWriter, r *http.Request) {
	roleID, ok := httpx.IDParam(r.URL.Query().Get("role_id"))
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, httpx.TypeValidation, "role_id is required", "")
		return
	}
	entries, err := h.service.ListRolePermissions(r.Context(), roleID)
	if err != nil {
		h.fail(w, "list permissions", err)
		return
	}
	if entries == nil {
		entries = []Entry{}
	}
	httpx.JSON(w, http.StatusOK, entries)
}

func (h *Handler) grant(w http.ResponseWriter, r *http.Request) {
	var in GrantInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.Problem(w, http.StatusBadRequest, httpx.TypeValidation, "Invalid request body", err.Error())
		return
	}
	actor, _ := shared.CurrentUserID(r.Context())
	entry, err := h.service.GrantPermission(r.Context(), actor, in)
	if err != nil {
		h.fail(w, "grant permission", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, entry)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, ok := httpx.IDParam(chi.URLParam(r, "id"))
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, httpx.TypeValidation, "Invalid id", "")
		return
	}
	var grants Grants
	if err := httpx.DecodeJSON(r, &grants); err != nil {
		httpx.Problem(w, http.StatusBadRequest, httpx.TypeValidation, "Invalid request body", err.Error())
		return
	}
	actor, _ := shared.CurrentUserID(r.Context())
	entry, err := h.service.UpdatePermission(r.Context(), actor, id, grants)
	if err != nil {
		h.fail(w, "update permission", err)
		return
	}
	httpx.JSON(w, http.StatusOK, entry)
}

func (h *Handler) revoke(w http.ResponseWriter, r *http.Request) {
	id, ok := httpx.IDParam(chi.URLParam(r, "id"))
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, httpx.TypeValidation, "Invalid id", "")
		return
	}
	actor, _ := shared.CurrentUserID(r.Context())
	if err := h.service.RevokePermission(r.Context(), actor, id); err != nil {
		h.fail(w, "revoke permission", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	h.logger.Warn("rbac request failed", slog.String("op", op), slog.Any("error", err))
	httpx.RespondError(w, err)
}
