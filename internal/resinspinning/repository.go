package resinspinning

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
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

const recordSelect = `SELECT r.id, r.batch_number, r.material_grade, COALESCE(r.supplier, ''), COALESCE(r.resin_type, ''),
	r.resin_molecular_weight_g_mol, r.polydispersity_index_pdi, r.intrinsic_viscosity_dl_g,
	r.melting_point_c, r.crystallinity_percent, COALESCE(r.spinning_method, ''), COALESCE(r.solvent_system, ''),
	r.solution_concentration_percent, r.spinning_temperature_c, COALESCE(r.spinneret_specifications, ''),
	COALESCE(r.coagulation_bath_composition, ''), r.coagulation_bath_temperature_c, r.draw_ratio,
	r.heat_treatment_temperature_c, COALESCE(r.remarks, ''),
	r.created_by, COALESCE(cu.username, ''), r.last_modified_by, COALESCE(mu.username, ''),
	r.created_at, r.updated_at
FROM resin_spinning_records r
LEFT JOIN users cu ON cu.id = r.created_by
LEFT JOIN users mu ON mu.id = r.last_modified_by`

func scanRecord(row pgx.Row) (Record, error) {
	var (
		rec                 Record
		createdBy, modifyBy pgtype.Int8
	)
	err := row.Scan(&rec.ID, &rec.BatchNumber, &rec.MaterialGrade, &rec.Supplier, &rec.ResinType,
		&rec.MolecularWeight, &rec.PolydispersityIndex, &rec.IntrinsicViscosity,
		&rec.MeltingPoint, &rec.Crystallinity, &rec.SpinningMethod, &rec.SolventSystem,
		&rec.SolutionConcentration, &rec.SpinningTemperature, &rec.SpinneretSpecifications,
		&rec.CoagulationBathComposition, &rec.CoagulationBathTemperature, &rec.DrawRatio,
		&rec.HeatTreatmentTemperature, &rec.Remarks,
		&createdBy, &rec.CreatedByName, &modifyBy, &rec.LastModifiedByName,
		&rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return Record{}, err
	}
	if createdBy.Valid {
		v := createdBy.Int64
		rec.CreatedBy = &v
	}
	if modifyBy.Valid {
		v := modifyBy.Int64
		rec.LastModifiedBy = &v
	}
	return rec, nil
}

func whereClause(f ListFilters) (string, []any) {
	var (
		conds []string
		args  []any
	)
	add := func(col, val string) {
		if val = strings.TrimSpace(val); val == "" {
			return
		}
		args = append(args, "%"+val+"%")
		conds = append(conds, fmt.Sprintf("r.%s ILIKE $%d", col, len(args)))
	}
	add("batch_number", f.BatchNumber)
	add("material_grade", f.MaterialGrade)
	add("resin_type", f.ResinType)
	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// ListRecords returns one page, newest first, and the total match count.
func (r *Repository) ListRecords(ctx context.Context, f ListFilters) ([]Record, int, error) {
	where, args := whereClause(f)
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM resin_spinning_records r`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	args = append(args, f.PerPage, shared.Offset(f.Page, f.PerPage))
	query := recordSelect + where + fmt.Sprintf(" ORDER BY r.created_at DESC, r.id DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args))
	var out []Record
	err := r.each(ctx, query, args, func(rec Record) error {
		out = append(out, rec)
		return nil
	})
	return out, total, err
}

// StreamRecords calls fn for every match in id order.
func (r *Repository) StreamRecords(ctx context.Context, f ListFilters, fn func(Record) error) error {
	where, args := whereClause(f)
	return r.each(ctx, recordSelect+where+" ORDER BY r.id", args, fn)
}

func (r *Repository) each(ctx context.Context, query string, args []any, fn func(Record) error) error {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return err
		}
		if err := fn(rec); err != nil {
			return err
		}
	}
	return rows.Err()
}

// GetRecord loads one record.
func (r *Repository) GetRecord(ctx context.Context, id int64) (Record, error) {
	rec, err := scanRecord(r.pool.QueryRow(ctx, recordSelect+` WHERE r.id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Record{}, fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	return rec, err
}

func inputArgs(in RecordInput) []any {
	return []any{
		in.BatchNumber, in.MaterialGrade, nullText(in.Supplier), in.ResinType,
		in.MolecularWeight, in.PolydispersityIndex, in.IntrinsicViscosity,
		in.MeltingPoint, in.Crystallinity, nullText(in.SpinningMethod), nullText(in.SolventSystem),
		in.SolutionConcentration, in.SpinningTemperature, nullText(in.SpinneretSpecifications),
		nullText(in.CoagulationBathComposition), in.CoagulationBathTemperature, in.DrawRatio,
		in.HeatTreatmentTemperature, nullText(in.Remarks),
	}
}

func nullText(s string) pgtype.Text {
	return pgtype.Text{String: s, Valid: s != ""}
}

// CreateRecord inserts a record attributed to actorID.
func (r *Repository) CreateRecord(ctx context.Context, in RecordInput, actorID int64) (Record, error) {
	args := append(inputArgs(in), actorID)
	var id int64
	err := r.pool.QueryRow(ctx, `INSERT INTO resin_spinning_records (
	batch_number, material_grade, supplier, resin_type,
	resin_molecular_weight_g_mol, polydispersity_index_pdi, intrinsic_viscosity_dl_g,
	melting_point_c, crystallinity_percent, spinning_method, solvent_system,
	solution_concentration_percent, spinning_temperature_c, spinneret_specifications,
	coagulation_bath_composition, coagulation_bath_temperature_c, draw_ratio,
	heat_treatment_temperature_c, remarks, created_by, last_modified_by
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $20)
RETURNING id`, args...).Scan(&id)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return Record{}, fmt.Errorf("%w: %s", ErrDuplicateBatch, in.BatchNumber)
		}
		return Record{}, err
	}
	return r.GetRecord(ctx, id)
}

// UpdateRecord replaces the writable fields of a record.
func (r *Repository) UpdateRecord(ctx context.Context, id int64, in RecordInput, actorID int64) (Record, error) {
	args := append([]any{id}, inputArgs(in)...)
	args = append(args, actorID)
	tag, err := r.pool.Exec(ctx, `UPDATE resin_spinning_records SET
	batch_number = $2, material_grade = $3, supplier = $4, resin_type = $5,
	resin_molecular_weight_g_mol = $6, polydispersity_index_pdi = $7, intrinsic_viscosity_dl_g = $8,
	melting_point_c = $9, crystallinity_percent = $10, spinning_method = $11, solvent_system = $12,
	solution_concentration_percent = $13, spinning_temperature_c = $14, spinneret_specifications = $15,
	coagulation_bath_composition = $16, coagulation_bath_temperature_c = $17, draw_ratio = $18,
	heat_treatment_temperature_c = $19, remarks = $20, last_modified_by = $21, updated_at = NOW()
WHERE id = $1`, args...)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return Record{}, fmt.Errorf("%w: %s", ErrDuplicateBatch, in.BatchNumber)
		}
		return Record{}, err
	}
	if tag.RowsAffected() == 0 {
		return Record{}, fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	return r.GetRecord(ctx, id)
}

// DeleteRecord removes a record.
func (r *Repository) DeleteRecord(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM resin_spinning_records WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	return nil
}
