package attachments

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/uhmwpe-lab/labdata/internal/shared"
)

// RepositoryPort is the persistence the service needs.
type RepositoryPort interface {
	Create(ctx context.Context, in NewAttachment) (Attachment, error)
	Get(ctx context.Context, id int64) (Attachment, error)
	ListForRecord(ctx context.Context, module string, recordID int64) ([]Attachment, error)
	Delete(ctx context.Context, id int64) error
	DeleteForRecord(ctx context.Context, module string, recordID int64) ([]string, error)
}

// Store holds attachment bodies.
type Store interface {
	Save(module, ext string, r io.Reader, maxBytes int64) (StoredFile, error)
	Open(module, stored string) (io.ReadSeekCloser, error)
	Remove(module, stored string) error
}

// Service coordinates metadata rows and stored bodies.
type Service struct {
	repo     RepositoryPort
	store    Store
	audit    shared.AuditRecorder
	logger   *slog.Logger
	maxBytes int64
	allowed  map[string]bool
}

// Option customises Service.
type Option func(*Service)

// WithMaxBytes caps the size of a single upload.
func WithMaxBytes(n int64) Option {
	return func(s *Service) { s.maxBytes = n }
}

// WithAllowedExtensions restricts uploads to the given extensions (".pdf" or "pdf").
// An empty list allows everything.
func WithAllowedExtensions(exts []string) Option {
	return func(s *Service) {
		s.allowed = make(map[string]bool, len(exts))
		for _, ext := range exts {
			ext = strings.ToLower(strings.TrimSpace(ext))
			if ext == "" {
				continue
			}
			if !strings.HasPrefix(ext, ".") {
				ext = "." + ext
			}
			s.allowed[ext] = true
		}
	}
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, store Store, audit shared.AuditRecorder, logger *slog.Logger, opts ...Option) *Service {
	if audit == nil {
		audit = shared.NopAudit{}
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	s := &Service{repo: repo, store: store, audit: audit, logger: logger}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// MaxBytes reports the configured upload limit.
func (s *Service) MaxBytes() int64 { return s.maxBytes }

// cleanName keeps the base name only and drops control characters.
func cleanName(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, `\`, "/"))
	name = strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, name)
	name = strings.TrimSpace(name)
	if name == "." || name == "/" {
		return ""
	}
	return name
}

// Upload stores body against module/recordID.
func (s *Service) Upload(ctx context.Context, actorID int64, module string, recordID int64, filename string, body io.Reader) (Attachment, error) {
	name := cleanName(filename)
	if name == "" {
		return Attachment{}, fmt.Errorf("%w: no file selected", ErrEmptyFile)
	}
	ext := strings.ToLower(filepath.Ext(name))
	if len(s.allowed) > 0 && !s.allowed[ext] {
		return Attachment{}, fmt.Errorf("%w: %q", ErrExtensionBlocked, ext)
	}
	stored, err := s.store.Save(module, ext, body, s.maxBytes)
	if err != nil {
		return Attachment{}, err
	}
	att, err := s.repo.Create(ctx, NewAttachment{
		Module:       module,
		RecordID:     recordID,
		OriginalName: name,
		StoredName:   stored.Name,
		ContentType:  stored.ContentType,
		SizeBytes:    stored.Size,
		UploadedBy:   actorID,
	})
	if err != nil {
		if rmErr := s.store.Remove(module, stored.Name); rmErr != nil {
			s.logger.Warn("remove orphaned upload", slog.String("stored_name", stored.Name), slog.Any("error", rmErr))
		}
		return Attachment{}, err
	}
	s.record(ctx, actorID, "attachment.upload", att.ID, map[string]any{
		"module": module, "record_id": recordID, "file": name,
	})
	return att, nil
}

// List returns a record's attachments.
func (s *Service) List(ctx context.Context, module string, recordID int64) ([]Attachment, error) {
	return s.repo.ListForRecord(ctx, module, recordID)
}

// Get returns one attachment's metadata.
func (s *Service) Get(ctx context.Context, id int64) (Attachment, error) {
	return s.repo.Get(ctx, id)
}

// Open returns the stored body of att. The caller closes it.
func (s *Service) Open(att Attachment) (io.ReadSeekCloser, error) {
	return s.store.Open(att.Module, att.StoredName)
}

// Delete removes the row first and then the body. A body that cannot be removed is
// logged and left behind.
func (s *Service) Delete(ctx context.Context, actorID int64, att Attachment) error {
	if err := s.repo.Delete(ctx, att.ID); err != nil {
		return err
	}
	if err := s.store.Remove(att.Module, att.StoredName); err != nil {
		s.logger.Warn("remove attachment file", slog.Int64("attachment_id", att.ID), slog.Any("error", err))
	}
	s.record(ctx, actorID, "attachment.delete", att.ID, map[string]any{"module": att.Module, "record_id": att.RecordID})
	return nil
}

// PurgeRecord drops every attachment of a deleted record.
func (s *Service) PurgeRecord(ctx context.Context, module string, recordID int64) error {
	names, err := s.repo.DeleteForRecord(ctx, module, recordID)
	if err != nil {
		return err
	}
	for _, name := range names {
		if err := s.store.Remove(module, name); err != nil {
			s.logger.Warn("remove attachment file", slog.String("stored_name", name), slog.Any("error", err))
		}
	}
	return nil
}

func (s *Service) record(ctx context.Context, actorID int64, action string, id int64, meta map[string]any) {
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "attachment",
		EntityID: strconv.FormatInt(id, 10),
		Meta:     meta,
	})
}
