package attachments

import (
	"context"
	"errors"
	"log/slog"
	"mime"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/uhmwpe-lab/labdata/internal/platform/httpx"
	"github.com/uhmwpe-lab/labdata/internal/rbac"
	"github.com/uhmwpe-lab/labdata/internal/shared"
)

// multipartMemory is held in memory before multipart parts spill to temp files.
const multipartMemory = 8 << 20

// Parent is a record module that accepts attachments. Exists reports a missing record
// with a not-found error.
type Parent struct {
	Module string
	Exists func(ctx context.Context, id int64) error
}

// Handler exposes attachment endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
	guard   rbac.Guard
	parents []Parent
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, guard rbac.Guard, parents ...Parent) *Handler {
	return &Handler{logger: logger, service: service, guard: guard, parents: parents}
}

// MountRoutes registers attachment routes. Upload and list are declared per parent module;
// download and delete resolve the parent module from the stored row.
func (h *Handler) MountRoutes(r chi.Router) {
	for _, p := range h.parents {
		r.With(h.guard.Require(rbac.Need(p.Module, rbac.ActionWrite))).Post("/"+p.Module+"/{recordID}", h.upload(p))
		r.With(h.guard.Require(rbac.Need(p.Module, rbac.ActionRead))).Get("/"+p.Module+"/{recordID}", h.list(p))
	}
	r.Get("/{id}/download", h.download)
	r.Delete("/{id}", h.delete)
}

func (h *Handler) recordID(w http.ResponseWriter, r *http.Request, p Parent) (int64, bool) {
	id, ok := httpx.IDParam(chi.URLParam(r, "recordID"))
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, httpx.TypeValidation, "Invalid record id", "")
		return 0, false
	}
	if p.Exists != nil {
		if err := p.Exists(r.Context(), id); err != nil {
			h.fail(w, "load parent record", err)
			return 0, false
		}
	}
	return id, true
}

func (h *Handler) upload(p Parent) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		recordID, ok := h.recordID(w, r, p)
		if !ok {
			return
		}
		if limit := h.service.MaxBytes(); limit > 0 {
			// Room for the multipart envelope on top of the file itself.
			r.Body = http.MaxBytesReader(w, r.Body, limit+1<<20)
		}
		if err := r.ParseMultipartForm(multipartMemory); err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				httpx.Problem(w, http.StatusRequestEntityTooLarge, httpx.TypeValidation, "File too large", "")
				return
			}
			httpx.Problem(w, http.StatusBadRequest, httpx.TypeValidation, "Invalid upload", err.Error())
			return
		}
		defer func() { _ = r.MultipartForm.RemoveAll() }()
		file, header, err := r.FormFile("file")
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, httpx.TypeValidation, "Missing upload", "form field \"file\" is required")
			return
		}
		defer file.Close()

		actor, _ := shared.CurrentUserID(r.Context())
		att, err := h.service.Upload(r.Context(), actor, p.Module, recordID, header.Filename, file)
		if err != nil {
			h.fail(w, "upload attachment", err)
			return
		}
		httpx.JSON(w, http.StatusCreated, att)
	}
}

func (h *Handler) list(p Parent) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		recordID, ok := h.recordID(w, r, p)
		if !ok {
			return
		}
		items, err := h.service.List(r.Context(), p.Module, recordID)
		if err != nil {
			h.fail(w, "list attachments", err)
			return
		}
		if items == nil {
			items = []Attachment{}
		}
		httpx.JSON(w, http.StatusOK, map[string]any{"data": items})
	}
}

// load authenticates, fetches the row and then authorizes against its parent module.
// Anonymous callers never learn whether an id exists.
func (h *Handler) load(w http.ResponseWriter, r *http.Request, action rbac.Action) (Attachment, bool) {
	if err := h.guard.Check(r); err != nil {
		rbac.WriteDenial(w, r, err)
		return Attachment{}, false
	}
	id, ok := httpx.IDParam(chi.URLParam(r, "id"))
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, httpx.TypeValidation, "Invalid id", "")
		return Attachment{}, false
	}
	att, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.fail(w, "get attachment", err)
		return Attachment{}, false
	}
	if err := h.guard.Check(r, rbac.Need(att.Module, action)); err != nil {
		rbac.WriteDenial(w, r, err)
		return Attachment{}, false
	}
	return att, true
}

func (h *Handler) download(w http.ResponseWriter, r *http.Request) {
	att, ok := h.load(w, r, rbac.ActionRead)
	if !ok {
		return
	}
	body, err := h.service.Open(att)
	if err != nil {
		h.fail(w, "open attachment", err)
		return
	}
	defer body.Close()
	if att.ContentType != "" {
		w.Header().Set("Content-Type", att.ContentType)
	}
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": att.OriginalName}))
	http.ServeContent(w, r, att.OriginalName, att.UploadedAt, body)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	att, ok := h.load(w, r, rbac.ActionDelete)
	if !ok {
		return
	}
	actor, _ := shared.CurrentUserID(r.Context())
	if err := h.service.Delete(r.Context(), actor, att); err != nil {
		h.fail(w, "delete attachment", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if errors.Is(err, ErrTooLarge) {
		httpx.Problem(w, http.StatusRequestEntityTooLarge, httpx.TypeValidation, "File too large", err.Error())
		return
	}
	h.logger.Warn("attachment request failed", slog.String("op", op), slog.Any("error", err))
	httpx.RespondError(w, err)
}
