package resinspinning

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/uhmwpe-lab/labdata/internal/platform/httpx"
	"github.com/uhmwpe-lab/labdata/internal/shared"
)

// RepositoryPort defines data access methods for records.
type RepositoryPort interface {
	ListRecords(ctx context.Context, f ListFilters) ([]Record, int, error)
	StreamRecords(ctx context.Context, f ListFilters, fn func(Record) error) error
	GetRecord(ctx context.Context, id int64) (Record, error)
	CreateRecord(ctx context.Context, in RecordInput, actorID int64) (Record, error)
	UpdateRecord(ctx context.Context, id int64, in RecordInput, actorID int64) (Record, error)
	DeleteRecord(ctx context.Context, id int64) error
}

// AttachmentPurger removes the files attached to a deleted record.
type AttachmentPurger interface {
	PurgeRecord(ctx context.Context, module string, recordID int64) error
}

// Service handles record business logic.
type Service struct {
	repo     RepositoryPort
	audit    shared.AuditRecorder
	purger   AttachmentPurger
	logger   *slog.Logger
	validate *validator.Validate
}

// NewService builds Service instance. purger may be nil.
func NewService(repo RepositoryPort, audit shared.AuditRecorder, purger AttachmentPurger, logger *slog.Logger) *Service {
	if audit == nil {
		audit = shared.NopAudit{}
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Service{repo: repo, audit: audit, purger: purger, logger: logger, validate: shared.NewValidator()}
}

// ListRecords returns one page of records.
func (s *Service) ListRecords(ctx context.Context, f ListFilters) ([]Record, shared.Pagination, error) {
	p := shared.NewPagination(f.Page, f.PerPage, 0)
	f.Page, f.PerPage = p.Page, p.PerPage
	records, total, err := s.repo.ListRecords(ctx, f)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return records, shared.NewPagination(f.Page, f.PerPage, total), nil
}

// GetRecord returns one record.
func (s *Service) GetRecord(ctx context.Context, id int64) (Record, error) {
	return s.repo.GetRecord(ctx, id)
}

// CreateRecord validates and stores a record.
func (s *Service) CreateRecord(ctx context.Context, actorID int64, in RecordInput) (Record, error) {
	in, err := s.clean(in)
	if err != nil {
		return Record{}, err
	}
	rec, err := s.repo.CreateRecord(ctx, in, actorID)
	if err != nil {
		return Record{}, err
	}
	s.record(ctx, actorID, "resin_spinning.create", rec.ID, map[string]any{"batch_number": rec.BatchNumber})
	return rec, nil
}

// UpdateRecord replaces the writable fields of a record.
func (s *Service) UpdateRecord(ctx context.Context, actorID, id int64, in RecordInput) (Record, error) {
	in, err := s.clean(in)
	if err != nil {
		return Record{}, err
	}
	rec, err := s.repo.UpdateRecord(ctx, id, in, actorID)
	if err != nil {
		return Record{}, err
	}
	s.record(ctx, actorID, "resin_spinning.update", rec.ID, map[string]any{"batch_number": rec.BatchNumber})
	return rec, nil
}

// DeleteRecord removes a record and then its attachments.
func (s *Service) DeleteRecord(ctx context.Context, actorID, id int64) error {
	if err := s.repo.DeleteRecord(ctx, id); err != nil {
		return err
	}
	if s.purger != nil {
		if err := s.purger.PurgeRecord(ctx, ModuleName, id); err != nil {
			s.logger.Warn("purge attachments", slog.Int64("record_id", id), slog.Any("error", err))
		}
	}
	s.record(ctx, actorID, "resin_spinning.delete", id, nil)
	return nil
}

// Import reads a CSV file and creates one record per valid row. Invalid rows and
// duplicate batch numbers are reported and skipped; they never abort the import.
func (s *Service) Import(ctx context.Context, actorID int64, r io.Reader) (ImportResult, error) {
	reader, err := newCSVReader(r)
	if err != nil {
		return ImportResult{}, fmt.Errorf("%w: %v", httpx.ErrValidation, err)
	}
	result := ImportResult{Errors: []RowError{}}
	fail := func(line int, batch string, err error) {
		result.FailureCount++
		result.Errors = append(result.Errors, RowError{Row: line, BatchNumber: batch, Error: err.Error()})
	}
	for {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		row, err := reader.next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return result, fmt.Errorf("%w: %v", httpx.ErrValidation, err)
		}
		if row.err != nil {
			fail(row.line, row.input.BatchNumber, row.err)
			continue
		}
		in, err := s.clean(row.input)
		if err != nil {
			fail(row.line, row.input.BatchNumber, err)
			continue
		}
		if _, err := s.repo.CreateRecord(ctx, in, actorID); err != nil {
			if errors.Is(err, httpx.ErrDuplicate) {
				fail(row.line, in.BatchNumber, err)
				continue
			}
			return result, err
		}
		result.SuccessCount++
	}
	s.record(ctx, actorID, "resin_spinning.import", 0, map[string]any{
		"success_count": result.SuccessCount,
		"failure_count": result.FailureCount,
	})
	return result, nil
}

// Export streams every record matching f as CSV.
func (s *Service) Export(ctx context.Context, f ListFilters, w io.Writer) error {
	streamer := newCSVStreamer(w)
	if err := streamer.writeRow(exportHeader()); err != nil {
		return err
	}
	if err := s.repo.StreamRecords(ctx, f, func(rec Record) error {
		return streamer.writeRow(exportRow(rec))
	}); err != nil {
		return err
	}
	return streamer.Flush()
}

func (s *Service) clean(in RecordInput) (RecordInput, error) {
	for _, field := range []*string{
		&in.BatchNumber, &in.MaterialGrade, &in.Supplier, &in.ResinType, &in.SpinningMethod,
		&in.SolventSystem, &in.SpinneretSpecifications, &in.CoagulationBathComposition,
	} {
		*field = strings.TrimSpace(*field)
	}
	if in.ResinType == "" {
		in.ResinType = DefaultResinType
	}
	if err := shared.ValidateStruct(s.validate, in); err != nil {
		return RecordInput{}, err
	}
	return in, nil
}

func (s *Service) record(ctx context.Context, actorID int64, action string, id int64, meta map[string]any) {
	entityID := "batch"
	if id > 0 {
		entityID = strconv.FormatInt(id, 10)
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "resin_spinning_record",
		EntityID: entityID,
		Meta:     meta,
	})
}
