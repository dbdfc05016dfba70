package users

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/uhmwpe-lab/labdata/internal/platform/httpx"
	"github.com/uhmwpe-lab/labdata/internal/rbac"
	"github.com/uhmwpe-lab/labdata/internal/shared"
)

// Handler manages user management endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
	guard   rbac.Guard
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, guard rbac.Guard) *Handler {
	return &Handler{logger: logger, service: service, guard: guard}
}

// MountRoutes registers user routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.guard.Require(rbac.Need(ModuleName, rbac.ActionRead)))
		r.Get("/", h.listUsers)
		r.Get("/{id}", h.getUser)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.guard.Require(rbac.Need(ModuleName, rbac.ActionWrite)))
		r.Post("/", h.createUser)
		r.Put("/{id}", h.updateProfile)
		r.Put("/{id}/password", h.changePassword)
		r.Put("/{id}/role", h.assignRole)
		r.Put("/{id}/enabled", h.setEnabled)
	})
}

func (h *Handler) listUsers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, perPage := shared.PageParams(q)
	filters := ListFilters{Search: q.Get("q"), Page: page, PerPage: perPage}
	if raw := q.Get("active"); raw != "" {
		active, err := strconv.ParseBool(raw)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, httpx.TypeValidation, "Invalid active filter", err.Error())
			return
		}
		filters.Active = &active
	}
	users, pagination, err := h.service.ListUsers(r.Context(), filters)
	if err != nil {
		h.fail(w, "list users", err)
		return
	}
	if users == nil {
		users = []User{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": users, "pagination": pagination})
}

func (h *Handler) getUser(w http.ResponseWriter, r *http.Request) {
	id, ok := h.id(w, r)
	if !ok {
		return
	}
	user, err := h.service.GetUser(r.Context(), id)
	if err != nil {
		h.fail(w, "get user", err)
		return
	}
	httpx.JSON(w, http.StatusOK, user)
}

func (h *Handler) createUser(w http.ResponseWriter, r *http.Request) {
	var in RegisterInput
	if !decode(w, r, &in) {
		return
	}
	actor, _ := shared.CurrentUserID(r.Context())
	user, err := h.service.Register(r.Context(), actor, in)
	if err != nil {
		h.fail(w, "register user", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, user)
}

func (h *Handler) updateProfile(w http.ResponseWriter, r *http.Request) {
	id, ok := h.id(w, r)
	if !ok {
		return
	}
	var in ProfileInput
	if !decode(w, r, &in) {
		return
	}
	actor, _ := shared.CurrentUserID(r.Context())
	user, err := h.service.UpdateProfile(r.Context(), actor, id, in)
	if err != nil {
		h.fail(w, "update user", err)
		return
	}
	httpx.JSON(w, http.StatusOK, user)
}

func (h *Handler) changePassword(w http.ResponseWriter, r *http.Request) {
	id, ok := h.id(w, r)
	if !ok {
		return
	}
	var in PasswordInput
	if !decode(w, r, &in) {
		return
	}
	actor, _ := shared.CurrentUserID(r.Context())
	if err := h.service.ChangePassword(r.Context(), actor, id, in); err != nil {
		h.fail(w, "change password", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) assignRole(w http.ResponseWriter, r *http.Request) {
	id, ok := h.id(w, r)
	if !ok {
		return
	}
	var in struct {
		RoleID int64 `json:"role_id"`
	}
	if !decode(w, r, &in) {
		return
	}
	actor, _ := shared.CurrentUserID(r.Context())
	if err := h.service.AssignRole(r.Context(), actor, id, in.RoleID); err != nil {
		h.fail(w, "assign role", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) setEnabled(w http.ResponseWriter, r *http.Request) {
	id, ok := h.id(w, r)
	if !ok {
		return
	}
	var in struct {
		Enabled *bool `json:"enabled"`
	}
	if !decode(w, r, &in) {
		return
	}
	if in.Enabled == nil {
		httpx.Problem(w, http.StatusBadRequest, httpx.TypeValidation, "enabled is required", "")
		return
	}
	actor, _ := shared.CurrentUserID(r.Context())
	if err := h.service.SetEnabled(r.Context(), actor, id, *in.Enabled); err != nil {
		h.fail(w, "set enabled", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) id(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, ok := httpx.IDParam(chi.URLParam(r, "id"))
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, httpx.TypeValidation, "Invalid id", "")
	}
	return id, ok
}

func decode(w http.ResponseWriter, r *http.Request, target any) bool {
	if err := httpx.DecodeJSON(r, target); err != nil {
		httpx.Problem(w, http.StatusBadRequest, httpx.TypeValidation, "Invalid request body", err.Error())
		return false
	}
	return true
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	h.logger.Warn("users request failed", slog.String("op", op), slog.Any("error", err))
	httpx.RespondError(w, err)
}
