package rbac

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/uhmwpe-lab/labdata/internal/platform/db"
	"github.com/uhmwpe-lab/labdata/internal/platform/httpx"
)

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

var _ Repository = (*PGRepository)(nil)

// FindSubject loads the identity view of a user.
func (r *PGRepository) FindSubject(ctx context.Context, userID int64) (Subject, error) {
	var (
		s      Subject
		roleID pgtype.Int8
	)
	err := r.pool.QueryRow(ctx, `SELECT id, role_id, is_active FROM users WHERE id = $1`, userID).
		Scan(&s.UserID, &roleID, &s.Enabled)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Subject{}, fmt.Errorf("user %d: %w", userID, ErrNotFound)
		}
		return Subject{}, err
	}
	if roleID.Valid {
		s.RoleID = roleID.Int64
	}
	return s, nil
}

const moduleColumns = `id, name, COALESCE(route, ''), parent_id, created_at, updated_at`

func scanModule(row pgx.Row) (Module, error) {
	var (
		m      Module
		parent pgtype.Int8
	)
	if err := row.Scan(&m.ID, &m.Name, &m.Route, &parent, &m.CreatedAt, &m.UpdatedAt); err != nil {
		return Module{}, err
	}
	if parent.Valid {
		id := parent.Int64
		m.ParentID = &id
	}
	return m, nil
}

// FindModuleByName matches the name exactly.
func (r *PGRepository) FindModuleByName(ctx context.Context, name string) (Module, error) {
	m, err := scanModule(r.pool.QueryRow(ctx, `SELECT `+moduleColumns+` FROM modules WHERE name = $1`, name))
	if errors.Is(err, pgx.ErrNoRows) {
		return Module{}, fmt.Errorf("module %q: %w", name, ErrNotFound)
	}
	return m, err
}

// GetModule loads a module by id.
func (r *PGRepository) GetModule(ctx context.Context, id int64) (Module, error) {
	m, err := scanModule(r.pool.QueryRow(ctx, `SELECT `+moduleColumns+` FROM modules WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Module{}, fmt.Errorf("module %d: %w", id, ErrNotFound)
	}
	return m, err
}

// ListModules returns every module ordered by name.
func (r *PGRepository) ListModules(ctx context.Context) ([]Module, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+moduleColumns+` FROM modules ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Module
	for rows.Next() {
		m, err := scanModule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// CreateModule inserts a module.
func (r *PGRepository) CreateModule(ctx context.Context, in ModuleInput) (Module, error) {
	route := pgtype.Text{String: in.Route, Valid: in.Route != ""}
	m, err := scanModule(r.pool.QueryRow(ctx, `INSERT INTO modules (name, route, parent_id)
VALUES ($1, $2, $3)
RETURNING `+moduleColumns, in.Name, route, in.ParentID))
	if err != nil {
		if db.IsUniqueViolation(err) {
			return Module{}, ErrDuplicateModule
		}
		if db.IsForeignKeyViolation(err) {
			return Module{}, fmt.Errorf("%w: parent module does not exist", httpx.ErrValidation)
		}
		return Module{}, err
	}
	return m, nil
}

// DeleteModule removes a module. Child modules are detached by the schema.
func (r *PGRepository) DeleteModule(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM modules WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("module %d: %w", id, ErrNotFound)
	}
	return nil
}

// RoleExists reports whether the role id is known.
func (r *PGRepository) RoleExists(ctx context.Context, roleID int64) (bool, error) {
	var ok bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM roles WHERE id = $1)`, roleID).Scan(&ok)
	return ok, err
}

const entryColumns = `p.id, p.role_id, p.module_id, COALESCE(m.name, ''),
	p.can_read, p.can_write, p.can_delete, p.can_import, p.can_export, p.created_at, p.updated_at`

func scanEntry(row pgx.Row) (Entry, error) {
	var e Entry
	err := row.Scan(&e.ID, &e.RoleID, &e.ModuleID, &e.ModuleName,
		&e.CanRead, &e.CanWrite, &e.CanDelete, &e.CanImport, &e.CanExport,
		&e.CreatedAt, &e.UpdatedAt)
	return e, err
}

// FindEntry returns the matrix row for (role, module).
func (r *PGRepository) FindEntry(ctx context.Context, roleID, moduleID int64) (Entry, error) {
	e, err := scanEntry(r.pool.QueryRow(ctx, `SELECT `+entryColumns+`
FROM permissions p LEFT JOIN modules m ON m.id = p.module_id
WHERE p.role_id = $1 AND p.module_id = $2`, roleID, moduleID))
	if errors.Is(err, pgx.ErrNoRows) {
		return Entry{}, fmt.Errorf("entry role=%d module=%d: %w", roleID, moduleID, ErrNotFound)
	}
	return e, err
}

// GetEntry loads one matrix row by id.
func (r *PGRepository) GetEntry(ctx context.Context, id int64) (Entry, error) {
	e, err := scanEntry(r.pool.QueryRow(ctx, `SELECT `+entryColumns+`
FROM permissions p LEFT JOIN modules m ON m.id = p.module_id
WHERE p.id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Entry{}, fmt.Errorf("entry %d: %w", id, ErrNotFound)
	}
	return e, err
}

// ListEntriesByRole returns every row of a role. ModuleName stays empty for rows whose
// module cannot be resolved.
func (r *PGRepository) ListEntriesByRole(ctx context.Context, roleID int64) ([]Entry, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+entryColumns+`
FROM permissions p LEFT JOIN modules m ON m.id = p.module_id
WHERE p.role_id = $1
ORDER BY m.name NULLS LAST, p.id`, roleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// CreateEntry inserts the row for (role, module). The pair is unique.
func (r *PGRepository) CreateEntry(ctx context.Context, roleID, moduleID int64, g Grants) (Entry, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `INSERT INTO permissions
	(role_id, module_id, can_read, can_write, can_delete, can_import, can_export)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING id`, roleID, moduleID, g.CanRead, g.CanWrite, g.CanDelete, g.CanImport, g.CanExport).Scan(&id)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return Entry{}, ErrDuplicateEntry
		}
		if db.IsForeignKeyViolation(err) {
			return Entry{}, fmt.Errorf("%w: role or module does not exist", httpx.ErrValidation)
		}
		return Entry{}, err
	}
	return r.GetEntry(ctx, id)
}

// UpdateEntry replaces all five flags of a row.
func (r *PGRepository) UpdateEntry(ctx context.Context, id int64, g Grants) (Entry, error) {
	tag, err := r.pool.Exec(ctx, `UPDATE permissions
SET can_read = $2, can_write = $3, can_delete = $4, can_import = $5, can_export = $6, updated_at = NOW()
WHERE id = $1`, id, g.CanRead, g.CanWrite, g.CanDelete, g.CanImport, g.CanExport)
	if err != nil {
		return Entry{}, err
	}
	if tag.RowsAffected() == 0 {
		return Entry{}, fmt.Errorf("entry %d: %w", id, ErrNotFound)
	}
	return r.GetEntry(ctx, id)
}

// DeleteEntry removes a row.
func (r *PGRepository) DeleteEntry(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM permissions WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("entry %d: %w", id, ErrNotFound)
	}
	return nil
}
