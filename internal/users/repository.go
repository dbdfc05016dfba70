package users

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/uhmwpe-lab/labdata/internal/platform/db"
	"github.com/uhmwpe-lab/labdata/internal/shared"
)

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

var _ RepositoryPort = (*Repository)(nil)

const userSelect = `SELECT u.id, u.username, COALESCE(u.full_name, ''), u.email, u.role_id,
	COALESCE(r.name, ''), u.is_active, u.created_at, u.updated_at
FROM users u LEFT JOIN roles r ON r.id = u.role_id`

func scanUser(row pgx.Row) (User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Username, &u.FullName, &u.Email, &u.RoleID, &u.RoleName, &u.IsActive, &u.CreatedAt, &u.UpdatedAt)
	return u, err
}

// ListUsers returns one page of users plus the total match count.
func (r *Repository) ListUsers(ctx context.Context, filters ListFilters) ([]User, int, error) {
	var (
		where []string
		args  []any
	)
	if s := strings.TrimSpace(filters.Search); s != "" {
		args = append(args, "%"+s+"%")
		where = append(where, fmt.Sprintf("(u.username ILIKE $%d OR u.email ILIKE $%d OR u.full_name ILIKE $%d)", len(args), len(args), len(args)))
	}
	if filters.Active != nil {
		args = append(args, *filters.Active)
		where = append(where, fmt.Sprintf("u.is_active = $%d", len(args)))
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM users u`+clause, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, filters.PerPage, shared.Offset(filters.Page, filters.PerPage))
	query := userSelect + clause + fmt.Sprintf(" ORDER BY u.id LIMIT $%d OFFSET $%d", len(args)-1, len(args))
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var users []User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, 0, err
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return users, total, nil
}

// GetUser loads one user.
func (r *Repository) GetUser(ctx context.Context, id int64) (User, error) {
	u, err := scanUser(r.pool.QueryRow(ctx, userSelect+` WHERE u.id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	return u, err
}

// PasswordHash returns the stored bcrypt hash.
func (r *Repository) PasswordHash(ctx context.Context, id int64) (string, error) {
	var hash string
	err := r.pool.QueryRow(ctx, `SELECT password_hash FROM users WHERE id = $1`, id).Scan(&hash)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	return hash, err
}

// CreateUser inserts an account.
func (r *Repository) CreateUser(ctx context.Context, in NewUser) (User, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `INSERT INTO users (username, password_hash, full_name, email, role_id, is_active)
VALUES ($1, $2, $3, $4, $5, TRUE)
RETURNING id`, in.Username, in.PasswordHash, in.FullName, in.Email, in.RoleID).Scan(&id)
	if err != nil {
		return User{}, mapWriteErr(err)
	}
	return r.GetUser(ctx, id)
}

// UpdateProfile changes contact details.
func (r *Repository) UpdateProfile(ctx context.Context, id int64, in ProfileInput) (User, error) {
	tag, err := r.pool.Exec(ctx, `UPDATE users SET full_name = $2, email = $3, updated_at = NOW() WHERE id = $1`, id, in.FullName, in.Email)
	if err != nil {
		return User{}, mapWriteErr(err)
	}
	if tag.RowsAffected() == 0 {
		return User{}, fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	return r.GetUser(ctx, id)
}

// UpdatePassword stores a new hash.
func (r *Repository) UpdatePassword(ctx context.Context, id int64, hash string) error {
	return r.exec(ctx, id, `UPDATE users SET password_hash = $2, updated_at = NOW() WHERE id = $1`, hash)
}

// SetActive flips the enabled flag.
func (r *Repository) SetActive(ctx context.Context, id int64, active bool) error {
	return r.exec(ctx, id, `UPDATE users SET is_active = $2, updated_at = NOW() WHERE id = $1`, active)
}

// SetRole reassigns the user's role.
func (r *Repository) SetRole(ctx context.Context, id, roleID int64) error {
	return r.exec(ctx, id, `UPDATE users SET role_id = $2, updated_at = NOW() WHERE id = $1`, roleID)
}

// RoleExists reports whether the role id is known.
func (r *Repository) RoleExists(ctx context.Context, roleID int64) (bool, error) {
	var ok bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM roles WHERE id = $1)`, roleID).Scan(&ok)
	return ok, err
}

func (r *Repository) exec(ctx context.Context, id int64, sql string, arg any) error {
	tag, err := r.pool.Exec(ctx, sql, id, arg)
	if err != nil {
		return mapWriteErr(err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	return nil
}

func mapWriteErr(err error) error {
	switch {
	case db.IsUniqueViolation(err):
		return ErrDuplicateUser
	case db.IsForeignKeyViolation(err):
		return ErrUnknownRole
	}
	return err
}
