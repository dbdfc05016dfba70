package attachments

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/uhmwpe-lab/labdata/internal/platform/db"
)

// Repository provides PostgreSQL backed persistence for attachment metadata.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

var _ RepositoryPort = (*Repository)(nil)

const attachmentSelect = `SELECT a.id, a.module, a.record_id, a.original_name, a.stored_name,
	COALESCE(a.content_type, ''), a.size_bytes, a.uploaded_by, COALESCE(u.username, ''), a.uploaded_at
FROM attachments a
LEFT JOIN users u ON u.id = a.uploaded_by`

func scanAttachment(row pgx.Row) (Attachment, error) {
	var (
		a          Attachment
		uploadedBy pgtype.Int8
	)
	if err := row.Scan(&a.ID, &a.Module, &a.RecordID, &a.OriginalName, &a.StoredName,
		&a.ContentType, &a.SizeBytes, &uploadedBy, &a.UploaderUsername, &a.UploadedAt); err != nil {
		return Attachment{}, err
	}
	if uploadedBy.Valid {
		v := uploadedBy.Int64
		a.UploadedBy = &v
	}
	return a, nil
}

// Create stores attachment metadata.
func (r *Repository) Create(ctx context.Context, in NewAttachment) (Attachment, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `INSERT INTO attachments (module, record_id, original_name, stored_name, content_type, size_bytes, uploaded_by)
VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, $7) RETURNING id`,
		in.Module, in.RecordID, in.OriginalName, in.StoredName, in.ContentType, in.SizeBytes, in.UploadedBy).Scan(&id)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return Attachment{}, fmt.Errorf("stored name collision: %w", err)
		}
		return Attachment{}, err
	}
	return r.Get(ctx, id)
}

// Get loads one attachment.
func (r *Repository) Get(ctx context.Context, id int64) (Attachment, error) {
	a, err := scanAttachment(r.pool.QueryRow(ctx, attachmentSelect+` WHERE a.id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Attachment{}, ErrNotFound
	}
	return a, err
}

// ListForRecord returns a record's attachments, newest first.
func (r *Repository) ListForRecord(ctx context.Context, module string, recordID int64) ([]Attachment, error) {
	rows, err := r.pool.Query(ctx, attachmentSelect+` WHERE a.module = $1 AND a.record_id = $2 ORDER BY a.uploaded_at DESC, a.id DESC`, module, recordID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Attachment
	for rows.Next() {
		a, err := scanAttachment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// Delete removes one metadata row.
func (r *Repository) Delete(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM attachments WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteForRecord removes every row of a record and returns the stored names that were freed.
func (r *Repository) DeleteForRecord(ctx context.Context, module string, recordID int64) ([]string, error) {
	rows, err := r.pool.Query(ctx, `DELETE FROM attachments WHERE module = $1 AND record_id = $2 RETURNING stored_name`, module, recordID)
	if err != nil {
		return nil, err
	}
	names, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, err
	}
	return names, nil
}
