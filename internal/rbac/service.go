package rbac

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/uhmwpe-lab/labdata/internal/platform/httpx"
	"github.com/uhmwpe-lab/labdata/internal/shared"
)

// Conflicts raised by the registry and the matrix.
var (
	ErrDuplicateModule = fmt.Errorf("rbac: module name already registered: %w", httpx.ErrDuplicate)
	ErrDuplicateEntry  = fmt.Errorf("rbac: permission entry already exists for role and module: %w", httpx.ErrDuplicate)
)

// Repository is the persistence port of the registry and the matrix.
type Repository interface {
	SubjectStore
	ModuleStore
	EntryStore

	ListModules(ctx context.Context) ([]Module, error)
	GetModule(ctx context.Context, id int64) (Module, error)
	CreateModule(ctx context.Context, in ModuleInput) (Module, error)
	DeleteModule(ctx context.Context, id int64) error

	RoleExists(ctx context.Context, roleID int64) (bool, error)
	GetEntry(ctx context.Context, id int64) (Entry, error)
	CreateEntry(ctx context.Context, roleID, moduleID int64, grants Grants) (Entry, error)
	UpdateEntry(ctx context.Context, id int64, grants Grants) (Entry, error)
	DeleteEntry(ctx context.Context, id int64) error
}

// ModuleInput registers a module.
type ModuleInput struct {
	Name     string `json:"name" validate:"required,max=100"`
	Route    string `json:"route" validate:"omitempty,max=255"`
	ParentID *int64 `json:"parent_id" validate:"omitempty,gt=0"`
}

// GrantInput creates a permission entry.
type GrantInput struct {
	RoleID   int64 `json:"role_id" validate:"required,gt=0"`
	ModuleID int64 `json:"module_id" validate:"required,gt=0"`
	Grants
}

// Service administers the module registry and the permission matrix.
type Service struct {
	repo     Repository
	audit    shared.AuditRecorder
	validate *validator.Validate
}

// NewService constructs a Service.
func NewService(repo Repository, audit shared.AuditRecorder) *Service {
	if audit == nil {
		audit = shared.NopAudit{}
	}
	return &Service{repo: repo, audit: audit, validate: shared.NewValidator()}
}

// ListModules returns every registered module ordered by name.
func (s *Service) ListModules(ctx context.Context) ([]Module, error) {
	return s.repo.ListModules(ctx)
}

// ModuleTree returns the navigation tree. It plays no part in authorization.
func (s *Service) ModuleTree(ctx context.Context) ([]ModuleNode, error) {
	modules, err := s.repo.ListModules(ctx)
	if err != nil {
		return nil, err
	}
	return BuildTree(modules), nil
}

// CreateModule registers a module. Names are stored exactly as given.
func (s *Service) CreateModule(ctx context.Context, actorID int64, in ModuleInput) (Module, error) {
	if err := shared.ValidateStruct(s.validate, in); err != nil {
		return Module{}, err
	}
	if strings.TrimSpace(in.Name) != in.Name {
		return Module{}, fmt.Errorf("%w: name must not carry surrounding whitespace", httpx.ErrValidation)
	}
	if in.ParentID != nil {
		if _, err := s.repo.GetModule(ctx, *in.ParentID); err != nil {
			if errors.Is(err, ErrNotFound) {
				return Module{}, fmt.Errorf("%w: parent module %d does not exist", httpx.ErrValidation, *in.ParentID)
			}
			return Module{}, err
		}
	}
	module, err := s.repo.CreateModule(ctx, in)
	if err != nil {
		return Module{}, err
	}
	s.record(ctx, actorID, "module.create", "module", module.ID, map[string]any{"name": module.Name})
	return module, nil
}

// DeleteModule removes a module; its permission entries go with it.
func (s *Service) DeleteModule(ctx context.Context, actorID, id int64) error {
	if err := s.repo.DeleteModule(ctx, id); err != nil {
		return err
	}
	s.record(ctx, actorID, "module.delete", "module", id, nil)
	return nil
}

// ListRolePermissions returns the matrix row set of one role.
func (s *Service) ListRolePermissions(ctx context.Context, roleID int64) ([]Entry, error) {
	ok, err := s.repo.RoleExists(ctx, roleID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("rbac: role %d: %w", roleID, httpx.ErrNotFound)
	}
	return s.repo.ListEntriesByRole(ctx, roleID)
}

// GrantPermission creates the entry for (role, module). A second entry for the same pair
// fails with ErrDuplicateEntry; existing rows are never overwritten.
func (s *Service) GrantPermission(ctx context.Context, actorID int64, in GrantInput) (Entry, error) {
	if err := shared.ValidateStruct(s.validate, in); err != nil {
		return Entry{}, err
	}
	ok, err := s.repo.RoleExists(ctx, in.RoleID)
	if err != nil {
		return Entry{}, err
	}
	if !ok {
		return Entry{}, fmt.Errorf("%w: role %d does not exist", httpx.ErrValidation, in.RoleID)
	}
	if _, err := s.repo.GetModule(ctx, in.ModuleID); err != nil {
		if errors.Is(err, ErrNotFound) {
			return Entry{}, fmt.Errorf("%w: module %d does not exist", httpx.ErrValidation, in.ModuleID)
		}
		return Entry{}, err
	}
	entry, err := s.repo.CreateEntry(ctx, in.RoleID, in.ModuleID, in.Grants)
	if err != nil {
		return Entry{}, err
	}
	s.record(ctx, actorID, "permission.grant", "role_permission", entry.ID, grantsMeta(entry))
	return entry, nil
}

// UpdatePermission replaces the flags of an existing entry.
func (s *Service) UpdatePermission(ctx context.Context, actorID, id int64, grants Grants) (Entry, error) {
	entry, err := s.repo.UpdateEntry(ctx, id, grants)
	if err != nil {
		return Entry{}, err
	}
	s.record(ctx, actorID, "permission.update", "role_permission", entry.ID, grantsMeta(entry))
	return entry, nil
}

// RevokePermission deletes an entry, which is equivalent to all flags false.
func (s *Service) RevokePermission(ctx context.Context, actorID, id int64) error {
	entry, err := s.repo.GetEntry(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.DeleteEntry(ctx, id); err != nil {
		return err
	}
	s.record(ctx, actorID, "permission.revoke", "role_permission", id, map[string]any{
		"role_id":   entry.RoleID,
		"module_id": entry.ModuleID,
	})
	return nil
}

func (s *Service) record(ctx context.Context, actorID int64, action, entity string, id int64, meta map[string]any) {
	// Audit failures must not undo a committed change.
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   entity,
		EntityID: strconv.FormatInt(id, 10),
		Meta:     meta,
	})
}

func grantsMeta(e Entry) map[string]any {
	meta := map[string]any{"role_id": e.RoleID, "module_id": e.ModuleID}
	for a, v := range e.AsMap() {
		meta[string(a)] = v
	}
	return meta
}
