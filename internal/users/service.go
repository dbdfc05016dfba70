package users

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"

	"github.com/uhmwpe-lab/labdata/internal/shared"
)

// RepositoryPort defines data access methods for users.
type RepositoryPort interface {
	ListUsers(ctx context.Context, filters ListFilters) ([]User, int, error)
	GetUser(ctx context.Context, id int64) (User, error)
	PasswordHash(ctx context.Context, id int64) (string, error)
	CreateUser(ctx context.Context, in NewUser) (User, error)
	UpdateProfile(ctx context.Context, id int64, in ProfileInput) (User, error)
	UpdatePassword(ctx context.Context, id int64, hash string) error
	SetActive(ctx context.Context, id int64, active bool) error
	SetRole(ctx context.Context, id, roleID int64) error
	RoleExists(ctx context.Context, roleID int64) (bool, error)
}

// Service handles user business logic.
type Service struct {
	repo     RepositoryPort
	audit    shared.AuditRecorder
	validate *validator.Validate
	hashCost int
}

// Option customises a Service.
type Option func(*Service)

// WithHashCost overrides the bcrypt cost.
func WithHashCost(cost int) Option {
	return func(s *Service) { s.hashCost = cost }
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, audit shared.AuditRecorder, opts ...Option) *Service {
	if audit == nil {
		audit = shared.NopAudit{}
	}
	s := &Service{repo: repo, audit: audit, validate: shared.NewValidator(), hashCost: bcrypt.DefaultCost}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ListUsers returns one page of users.
func (s *Service) ListUsers(ctx context.Context, filters ListFilters) ([]User, shared.Pagination, error) {
	p := shared.NewPagination(filters.Page, filters.PerPage, 0)
	filters.Page, filters.PerPage = p.Page, p.PerPage
	users, total, err := s.repo.ListUsers(ctx, filters)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return users, shared.NewPagination(filters.Page, filters.PerPage, total), nil
}

// GetUser returns one user.
func (s *Service) GetUser(ctx context.Context, id int64) (User, error) {
	return s.repo.GetUser(ctx, id)
}

// Register creates an enabled account with the given role.
func (s *Service) Register(ctx context.Context, actorID int64, in RegisterInput) (User, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.FullName = strings.TrimSpace(in.FullName)
	if err := shared.ValidateStruct(s.validate, in); err != nil {
		return User{}, err
	}
	if err := s.ensureRole(ctx, in.RoleID); err != nil {
		return User{}, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.hashCost)
	if err != nil {
		return User{}, err
	}
	user, err := s.repo.CreateUser(ctx, NewUser{
		Username:     in.Username,
		PasswordHash: string(hash),
		FullName:     in.FullName,
		Email:        in.Email,
		RoleID:       in.RoleID,
	})
	if err != nil {
		return User{}, err
	}
	s.record(ctx, actorID, "user.register", user.ID, map[string]any{"username": user.Username, "role_id": user.RoleID})
	return user, nil
}

// UpdateProfile changes name and email.
func (s *Service) UpdateProfile(ctx context.Context, actorID, id int64, in ProfileInput) (User, error) {
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.FullName = strings.TrimSpace(in.FullName)
	if err := shared.ValidateStruct(s.validate, in); err != nil {
		return User{}, err
	}
	user, err := s.repo.UpdateProfile(ctx, id, in)
	if err != nil {
		return User{}, err
	}
	s.record(ctx, actorID, "user.update", id, nil)
	return user, nil
}

// ChangePassword verifies the current password before storing the new one.
func (s *Service) ChangePassword(ctx context.Context, actorID, id int64, in PasswordInput) error {
	if err := shared.ValidateStruct(s.validate, in); err != nil {
		return err
	}
	current, err := s.repo.PasswordHash(ctx, id)
	if err != nil {
		return err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(current), []byte(in.Current)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return ErrWrongPassword
		}
		return err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(in.New), s.hashCost)
	if err != nil {
		return err
	}
	if err := s.repo.UpdatePassword(ctx, id, string(hash)); err != nil {
		return err
	}
	s.record(ctx, actorID, "user.password", id, nil)
	return nil
}

// SetEnabled enables or disables an account. Disabled users fail every permission check.
func (s *Service) SetEnabled(ctx context.Context, actorID, id int64, enabled bool) error {
	if !enabled && actorID == id {
		return ErrSelfDeactivate
	}
	if err := s.repo.SetActive(ctx, id, enabled); err != nil {
		return err
	}
	s.record(ctx, actorID, "user.enabled", id, map[string]any{"enabled": enabled})
	return nil
}

// AssignRole moves the user to another role; the next permission check sees it.
func (s *Service) AssignRole(ctx context.Context, actorID, id, roleID int64) error {
	if err := s.ensureRole(ctx, roleID); err != nil {
		return err
	}
	if err := s.repo.SetRole(ctx, id, roleID); err != nil {
		return err
	}
	s.record(ctx, actorID, "user.role", id, map[string]any{"role_id": roleID})
	return nil
}

func (s *Service) ensureRole(ctx context.Context, roleID int64) error {
	if roleID <= 0 {
		return ErrUnknownRole
	}
	ok, err := s.repo.RoleExists(ctx, roleID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrUnknownRole
	}
	return nil
}

func (s *Service) record(ctx context.Context, actorID int64, action string, id int64, meta map[string]any) {
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "user",
		EntityID: strconv.FormatInt(id, 10),
		Meta:     meta,
	})
}
