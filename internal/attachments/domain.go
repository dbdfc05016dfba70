// Package attachments stores files uploaded against lab records.
package attachments

import (
	"fmt"
	"time"

	"github.com/uhmwpe-lab/labdata/internal/platform/httpx"
)

var (
	ErrNotFound         = fmt.Errorf("attachment: %w", httpx.ErrNotFound)
	ErrEmptyFile        = fmt.Errorf("%w: file is empty", httpx.ErrValidation)
	ErrTooLarge         = fmt.Errorf("%w: file exceeds the upload limit", httpx.ErrValidation)
	ErrExtensionBlocked = fmt.Errorf("%w: file type not allowed", httpx.ErrValidation)
)

// Attachment is the metadata row for one stored file. The parent is identified by module
// name and record id; permission checks use the parent module.
type Attachment struct {
	ID               int64     `json:"attachment_id"`
	Module           string    `json:"parent_module_name"`
	RecordID         int64     `json:"parent_record_id"`
	OriginalName     string    `json:"original_file_name"`
	StoredName       string    `json:"-"`
	ContentType      string    `json:"file_type"`
	SizeBytes        int64     `json:"file_size_bytes"`
	UploadedBy       *int64    `json:"uploaded_by_user_id"`
	UploaderUsername string    `json:"uploader_username,omitempty"`
	UploadedAt       time.Time `json:"upload_timestamp"`
}

// NewAttachment is the insert payload.
type NewAttachment struct {
	Module       string
	RecordID     int64
	OriginalName string
	StoredName   string
	ContentType  string
	SizeBytes    int64
	UploadedBy   int64
}
