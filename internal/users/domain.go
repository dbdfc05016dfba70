package users

import (
	"fmt"
	"time"

	"github.com/uhmwpe-lab/labdata/internal/platform/httpx"
)

// ModuleName is the registry key guarding user administration.
const ModuleName = "users"

// Errors returned by the user service.
var (
	ErrNotFound       = fmt.Errorf("user: %w", httpx.ErrNotFound)
	ErrDuplicateUser  = fmt.Errorf("username or email already registered: %w", httpx.ErrDuplicate)
	ErrUnknownRole    = fmt.Errorf("%w: role does not exist", httpx.ErrValidation)
	ErrWrongPassword  = fmt.Errorf("%w: current password is incorrect", httpx.ErrValidation)
	ErrSelfDeactivate = fmt.Errorf("cannot disable own account: %w", httpx.ErrConflict)
)

// User represents a user account for management. The password hash never leaves the repository.
type User struct {
	ID        int64     `json:"id"`
	Username  string    `json:"username"`
	FullName  string    `json:"full_name"`
	Email     string    `json:"email"`
	RoleID    int64     `json:"role_id"`
	RoleName  string    `json:"role_name"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// RegisterInput creates an account.
type RegisterInput struct {
	Username string `json:"username" validate:"required,min=3,max=50,alphanum"`
	Password string `json:"password" validate:"required,min=8,max=72"`
	FullName string `json:"full_name" validate:"max=150"`
	Email    string `json:"email" validate:"required,email,max=255"`
	RoleID   int64  `json:"role_id" validate:"required,gt=0"`
}

// ProfileInput updates contact details.
type ProfileInput struct {
	FullName string `json:"full_name" validate:"max=150"`
	Email    string `json:"email" validate:"required,email,max=255"`
}

// PasswordInput changes a password.
type PasswordInput struct {
	Current string `json:"current_password" validate:"required"`
	New     string `json:"new_password" validate:"required,min=8,max=72"`
}

// NewUser is the persisted form of a registration.
type NewUser struct {
	Username     string
	PasswordHash string
	FullName     string
	Email        string
	RoleID       int64
}

// ListFilters narrows the user listing.
type ListFilters struct {
	Search  string
	Active  *bool
	Page    int
	PerPage int
}
