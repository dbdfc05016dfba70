package resinspinning

import (
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/uhmwpe-lab/labdata/internal/platform/httpx"
	"github.com/uhmwpe-lab/labdata/internal/rbac"
	"github.com/uhmwpe-lab/labdata/internal/shared"
)

// Handler exposes the record endpoints.
type Handler struct {
	logger         *slog.Logger
	service        *Service
	guard          rbac.Guard
	maxImportBytes int64
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, guard rbac.Guard, maxImportBytes int64) *Handler {
	return &Handler{logger: logger, service: service, guard: guard, maxImportBytes: maxImportBytes}
}

// MountRoutes registers record routes.
func (h *Handler) MountRoutes(r chi.Router) {
	read := rbac.Need(ModuleName, rbac.ActionRead)
	write := rbac.Need(ModuleName, rbac.ActionWrite)

	r.With(h.guard.Require(read)).Get("/", h.list)
	r.With(h.guard.Require(rbac.Need(ModuleName, rbac.ActionExport))).Get("/export", h.export)
	r.With(h.guard.Require(rbac.Need(ModuleName, rbac.ActionImport), write)).Post("/import", h.importCSV)
	r.With(h.guard.Require(read)).Get("/{id}", h.get)
	r.With(h.guard.Require(write)).Post("/", h.create)
	r.With(h.guard.Require(write)).Put("/{id}", h.update)
	r.With(h.guard.Require(rbac.Need(ModuleName, rbac.ActionDelete))).Delete("/{id}", h.delete)
}

func filtersFromQuery(r *http.Request) ListFilters {
	q := r.URL.Query()
	page, perPage := shared.PageParams(q)
	return ListFilters{
		BatchNumber:   q.Get("batch_number"),
		MaterialGrade: q.Get("material_grade"),
		ResinType:     q.Get("resin_type"),
		Page:          page,
		PerPage:       perPage,
	}
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	records, pagination, err := h.service.ListRecords(r.Context(), filtersFromQuery(r))
	if err != nil {
		h.fail(w, "list records", err)
		return
	}
	if records == nil {
		records = []Record{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": records, "pagination": pagination})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := h.id(w, r)
	if !ok {
		return
	}
	rec, err := h.service.GetRecord(r.Context(), id)
	if err != nil {
		h.fail(w, "get record", err)
		return
	}
	httpx.JSON(w, http.StatusOK, rec)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var in RecordInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.Problem(w, http.StatusBadRequest, httpx.TypeValidation, "Invalid request body", err.Error())
		return
	}
	actor, _ := shared.CurrentUserID(r.Context())
	rec, err := h.service.CreateRecord(r.Context(), actor, in)
	if err != nil {
		h.fail(w, "create record", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, rec)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, ok := h.id(w, r)
	if !ok {
		return
	}
	var in RecordInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.Problem(w, http.StatusBadRequest, httpx.TypeValidation, "Invalid request body", err.Error())
		return
	}
	actor, _ := shared.CurrentUserID(r.Context())
	rec, err := h.service.UpdateRecord(r.Context(), actor, id, in)
	if err != nil {
		h.fail(w, "update record", err)
		return
	}
	httpx.JSON(w, http.StatusOK, rec)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	id, ok := h.id(w, r)
	if !ok {
		return
	}
	actor, _ := shared.CurrentUserID(r.Context())
	if err := h.service.DeleteRecord(r.Context(), actor, id); err != nil {
		h.fail(w, "delete record", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) export(w http.ResponseWriter, r *http.Request) {
	filename := fmt.Sprintf("resin-spinning-%s.csv", time.Now().UTC().Format("20060102-150405"))
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": filename}))
	w.WriteHeader(http.StatusOK)
	if err := h.service.Export(r.Context(), filtersFromQuery(r), w); err != nil {
		// Headers are already sent; the truncated body is all the client gets.
		h.logger.Error("export records", slog.Any("error", err))
	}
}

// importCSV accepts either a multipart upload in field "file" or a raw text/csv body.
func (h *Handler) importCSV(w http.ResponseWriter, r *http.Request) {
	if h.maxImportBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxImportBytes)
	}
	var src io.Reader = r.Body
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		file, _, err := r.FormFile("file")
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, httpx.TypeValidation, "Missing upload", err.Error())
			return
		}
		defer file.Close()
		src = file
	}
	actor, _ := shared.CurrentUserID(r.Context())
	result, err := h.service.Import(r.Context(), actor, src)
	if err != nil {
		h.fail(w, "import records", err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) id(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, ok := httpx.IDParam(chi.URLParam(r, "id"))
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, httpx.TypeValidation, "Invalid id", "")
	}
	return id, ok
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	h.logger.Warn("resin spinning request failed", slog.String("op", op), slog.Any("error", err))
	httpx.RespondError(w, err)
}
