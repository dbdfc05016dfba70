package attachments

import (
	"context"
	"sort"
	"time"
)

type memoryRepo struct {
	rows   map[int64]Attachment
	nextID int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{rows: map[int64]Attachment{}, nextID: 1}
}

func (m *memoryRepo) Create(_ context.Context, in NewAttachment) (Attachment, error) {
	id := m.nextID
	m.nextID++
	by := in.UploadedBy
	a := Attachment{
		ID:           id,
		Module:       in.Module,
		RecordID:     in.RecordID,
		OriginalName: in.OriginalName,
		StoredName:   in.StoredName,
		ContentType:  in.ContentType,
		SizeBytes:    in.SizeBytes,
		UploadedBy:   &by,
		UploadedAt:   time.Date(2026, 3, 1, 0, 0, int(id), 0, time.UTC),
	}
	m.rows[id] = a
	return a, nil
}

func (m *memoryRepo) Get(_ context.Context, id int64) (Attachment, error) {
	a, ok := m.rows[id]
	if !ok {
		return Attachment{}, ErrNotFound
	}
	return a, nil
}

func (m *memoryRepo) ListForRecord(_ context.Context, module string, recordID int64) ([]Attachment, error) {
	var out []Attachment
	for _, a := range m.rows {
		if a.Module == module && a.RecordID == recordID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (m *memoryRepo) Delete(_ context.Context, id int64) error {
	if _, ok := m.rows[id]; !ok {
		return ErrNotFound
	}
	delete(m.rows, id)
	return nil
}

func (m *memoryRepo) DeleteForRecord(_ context.Context, module string, recordID int64) ([]string, error) {
	var names []string
	for id, a := range m.rows {
		if a.Module == module && a.RecordID == recordID {
			names = append(names, a.StoredName)
			delete(m.rows, id)
		}
	}
	return names, nil
}
