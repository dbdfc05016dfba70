package roles

import (
	"fmt"
	"time"

	"github.com/uhmwpe-lab/labdata/internal/platform/httpx"
)

// ModuleName is the registry key guarding role administration.
const ModuleName = "roles"

// Errors returned by the role service.
var (
	ErrNotFound      = fmt.Errorf("role: %w", httpx.ErrNotFound)
	ErrDuplicateName = fmt.Errorf("role name already exists: %w", httpx.ErrDuplicate)
	ErrRoleInUse     = fmt.Errorf("role is still assigned to users: %w", httpx.ErrConflict)
)

// Role is a named bundle of permission entries. Users hold exactly one.
type Role struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	UserCount   int       `json:"user_count"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// RoleInput carries create and update payloads.
type RoleInput struct {
	Name        string `json:"name" validate:"required,max=100"`
	Description string `json:"description" validate:"max=500"`
}

// RoleListFilters controls list ordering.
type RoleListFilters struct {
	SortBy  string
	SortDir string
}
