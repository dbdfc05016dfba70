package roles

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/uhmwpe-lab/labdata/internal/platform/httpx"
	"github.com/uhmwpe-lab/labdata/internal/shared"
)

// RepositoryPort defines data access methods for roles.
type RepositoryPort interface {
	ListRoles(ctx context.Context, filters RoleListFilters) ([]Role, error)
	GetRole(ctx context.Context, id int64) (Role, error)
	CreateRole(ctx context.Context, name, description string) (Role, error)
	UpdateRole(ctx context.Context, id int64, name, description string) (Role, error)
	DeleteRole(ctx context.Context, id int64) error
}

// Service handles role business logic.
type Service struct {
	repo     RepositoryPort
	audit    shared.AuditRecorder
	validate *validator.Validate
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, audit shared.AuditRecorder) *Service {
	if audit == nil {
		audit = shared.NopAudit{}
	}
	return &Service{repo: repo, audit: audit, validate: shared.NewValidator()}
}

// ListRoles returns all roles.
func (s *Service) ListRoles(ctx context.Context, filters RoleListFilters) ([]Role, error) {
	return s.repo.ListRoles(ctx, filters)
}

// GetRole returns one role.
func (s *Service) GetRole(ctx context.Context, id int64) (Role, error) {
	return s.repo.GetRole(ctx, id)
}

// CreateRole validates and stores a role.
func (s *Service) CreateRole(ctx context.Context, actorID int64, in RoleInput) (Role, error) {
	in, err := s.clean(in)
	if err != nil {
		return Role{}, err
	}
	role, err := s.repo.CreateRole(ctx, in.Name, in.Description)
	if err != nil {
		return Role{}, err
	}
	s.record(ctx, actorID, "role.create", role.ID, map[string]any{"name": role.Name})
	return role, nil
}

// UpdateRole changes name or description. Grants are managed through the permission matrix.
func (s *Service) UpdateRole(ctx context.Context, actorID, id int64, in RoleInput) (Role, error) {
	in, err := s.clean(in)
	if err != nil {
		return Role{}, err
	}
	role, err := s.repo.UpdateRole(ctx, id, in.Name, in.Description)
	if err != nil {
		return Role{}, err
	}
	s.record(ctx, actorID, "role.update", role.ID, map[string]any{"name": role.Name})
	return role, nil
}

// DeleteRole removes a role. Roles still assigned to users are rejected with ErrRoleInUse.
func (s *Service) DeleteRole(ctx context.Context, actorID, id int64) error {
	if err := s.repo.DeleteRole(ctx, id); err != nil {
		return err
	}
	s.record(ctx, actorID, "role.delete", id, nil)
	return nil
}

func (s *Service) clean(in RoleInput) (RoleInput, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Description = strings.TrimSpace(in.Description)
	if err := shared.ValidateStruct(s.validate, in); err != nil {
		return RoleInput{}, err
	}
	if in.Name == "" {
		return RoleInput{}, fmt.Errorf("%w: name is required", httpx.ErrValidation)
	}
	return in, nil
}

func (s *Service) record(ctx context.Context, actorID int64, action string, id int64, meta map[string]any) {
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "role",
		EntityID: strconv.FormatInt(id, 10),
		Meta:     meta,
	})
}
