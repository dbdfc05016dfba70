package roles

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/uhmwpe-lab/labdata/internal/platform/db"
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

var sortColumns = map[string]string{
	"id":         "r.id",
	"name":       "r.name",
	"created_at": "r.created_at",
}

const roleSelect = `SELECT r.id, r.name, COALESCE(r.description, ''),
	(SELECT COUNT(*) FROM users u WHERE u.role_id = r.id)::int,
	r.created_at, r.updated_at
FROM roles r`

func scanRole(row pgx.Row) (Role, error) {
	var role Role
	err := row.Scan(&role.ID, &role.Name, &role.Description, &role.UserCount, &role.CreatedAt, &role.UpdatedAt)
	return role, err
}

// ListRoles returns all roles.
func (r *Repository) ListRoles(ctx context.Context, filters RoleListFilters) ([]Role, error) {
	col, ok := sortColumns[filters.SortBy]
	if !ok {
		col = "r.id"
	}
	dir := "ASC"
	if strings.EqualFold(filters.SortDir, "desc") {
		dir = "DESC"
	}
	rows, err := r.pool.Query(ctx, roleSelect+` ORDER BY `+col+` `+dir)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var roles []Role
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return roles, nil
}

// GetRole loads one role.
func (r *Repository) GetRole(ctx context.Context, id int64) (Role, error) {
	role, err := scanRole(r.pool.QueryRow(ctx, roleSelect+` WHERE r.id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Role{}, fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	return role, err
}

// CreateRole inserts a new role.
func (r *Repository) CreateRole(ctx context.Context, name, description string) (Role, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `INSERT INTO roles (name, description) VALUES ($1, $2) RETURNING id`, name, description).Scan(&id)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return Role{}, ErrDuplicateName
		}
		return Role{}, err
	}
	return r.GetRole(ctx, id)
}

// UpdateRole renames a role or changes its description.
func (r *Repository) UpdateRole(ctx context.Context, id int64, name, description string) (Role, error) {
	tag, err := r.pool.Exec(ctx, `UPDATE roles SET name = $2, description = $3, updated_at = NOW() WHERE id = $1`, id, name, description)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return Role{}, ErrDuplicateName
		}
		return Role{}, err
	}
	if tag.RowsAffected() == 0 {
		return Role{}, fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	return r.GetRole(ctx, id)
}

// DeleteRole removes a role that no user references. Its permission entries cascade.
func (r *Repository) DeleteRole(ctx context.Context, id int64) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		var inUse bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE role_id = $1)`, id).Scan(&inUse); err != nil {
			return err
		}
		if inUse {
			return ErrRoleInUse
		}
		tag, err := tx.Exec(ctx, `DELETE FROM roles WHERE id = $1`, id)
		if err != nil {
			if db.IsForeignKeyViolation(err) {
				return ErrRoleInUse
			}
			return err
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("%w: %d", ErrNotFound, id)
		}
		return nil
	})
}
