package auth

import (
	"fmt"
	"time"

	"github.com/uhmwpe-lab/labdata/internal/platform/httpx"
	"github.com/uhmwpe-lab/labdata/internal/rbac"
)

// ErrNotFound reports a missing account.
var ErrNotFound = fmt.Errorf("auth: %w", httpx.ErrNotFound)

// User represents an authenticated user account.
type User struct {
	ID           int64
	Username     string
	PasswordHash string
	RoleID       int64
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// UserSummary is the public view returned after login and by status.
type UserSummary struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	FullName string `json:"full_name"`
	Email    string `json:"email"`
	RoleID   int64  `json:"role_id"`
	RoleName string `json:"role_name"`
	IsActive bool   `json:"is_active"`
}

// Status describes the caller's session.
type Status struct {
	LoggedIn    bool                            `json:"logged_in"`
	User        *UserSummary                    `json:"user,omitempty"`
	Permissions map[string]map[rbac.Action]bool `json:"permissions,omitempty"`
}

// ClientInfo is recorded alongside a login session.
type ClientInfo struct {
	IP        string
	UserAgent string
}
