package attachments

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
)

// sniffLen is how much of an upload is read to detect its content type.
const sniffLen = 3072

// FileStore keeps attachment bodies under root/<module>/<uuid><ext>.
type FileStore struct {
	root string
}

// NewFileStore creates root when missing.
func NewFileStore(root string) (*FileStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &FileStore{root: root}, nil
}

// StoredFile describes a body written by Save.
type StoredFile struct {
	Name        string
	Size        int64
	ContentType string
}

func (s *FileStore) path(module, stored string) (string, error) {
	if module == "" || stored == "" || strings.ContainsAny(module+stored, `/\`) || strings.Contains(module+stored, "..") {
		return "", fmt.Errorf("invalid storage path %q/%q", module, stored)
	}
	return filepath.Join(s.root, module, stored), nil
}

// Save copies r into a fresh file. Bodies larger than maxBytes are removed and reported
// as ErrTooLarge; maxBytes <= 0 disables the limit.
func (s *FileStore) Save(module, ext string, r io.Reader, maxBytes int64) (StoredFile, error) {
	stored := uuid.NewString() + ext
	path, err := s.path(module, stored)
	if err != nil {
		return StoredFile{}, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return StoredFile{}, fmt.Errorf("create module dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return StoredFile{}, fmt.Errorf("create file: %w", err)
	}

	br := bufio.NewReaderSize(r, sniffLen)
	head, _ := br.Peek(sniffLen)
	contentType := mimetype.Detect(head).String()
	if strings.HasPrefix(contentType, "application/octet-stream") {
		if byExt := mime.TypeByExtension(ext); byExt != "" {
			contentType = byExt
		}
	}

	src := io.Reader(br)
	if maxBytes > 0 {
		src = io.LimitReader(br, maxBytes+1)
	}
	size, copyErr := io.Copy(f, src)
	closeErr := f.Close()
	switch {
	case copyErr != nil:
		err = fmt.Errorf("write file: %w", copyErr)
	case closeErr != nil:
		err = fmt.Errorf("close file: %w", closeErr)
	case maxBytes > 0 && size > maxBytes:
		err = ErrTooLarge
	case size == 0:
		err = ErrEmptyFile
	}
	if err != nil {
		_ = os.Remove(path)
		return StoredFile{}, err
	}
	return StoredFile{Name: stored, Size: size, ContentType: contentType}, nil
}

// Open returns the stored body.
func (s *FileStore) Open(module, stored string) (io.ReadSeekCloser, error) {
	path, err := s.path(module, stored)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: file missing on disk", ErrNotFound)
		}
		return nil, err
	}
	return f, nil
}

var _ Store = (*FileStore)(nil)

// Remove deletes a stored body. A missing file is not an error.
func (s *FileStore) Remove(module, stored string) error {
	path, err := s.path(module, stored)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
