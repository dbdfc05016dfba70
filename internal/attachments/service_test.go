package attachments

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uhmwpe-lab/labdata/internal/platform/httpx"
)

func newTestService(t *testing.T, opts ...Option) (*Service, *memoryRepo, string) {
	t.Helper()
	dir := t.TempDir()
	store, err := NewFileStore(dir)
	require.NoError(t, err)
	repo := newMemoryRepo()
	return NewService(repo, store, nil, nil, opts...), repo, dir
}

func TestUploadStoresBodyUnderModule(t *testing.T) {
	svc, repo, dir := newTestService(t, WithAllowedExtensions([]string{"pdf", ".TXT"}), WithMaxBytes(64))
	ctx := context.Background()

	att, err := svc.Upload(ctx, 3, "resin-spinning", 9, `C:\lab\notes.txt`, strings.NewReader("spin log"))
	require.NoError(t, err)
	assert.Equal(t, "notes.txt", att.OriginalName)
	assert.Equal(t, int64(8), att.SizeBytes)
	assert.True(t, strings.HasSuffix(att.StoredName, ".txt"))
	assert.True(t, strings.HasPrefix(att.ContentType, "text/plain"))

	data, err := os.ReadFile(filepath.Join(dir, "resin-spinning", att.StoredName))
	require.NoError(t, err)
	assert.Equal(t, "spin log", string(data))

	body, err := svc.Open(repo.rows[att.ID])
	require.NoError(t, err)
	defer body.Close()
	read, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Equal(t, "spin log", string(read))
}

func TestUploadRejections(t *testing.T) {
	svc, repo, dir := newTestService(t, WithAllowedExtensions([]string{".pdf"}), WithMaxBytes(4))
	ctx := context.Background()

	_, err := svc.Upload(ctx, 1, "resin-spinning", 1, "run.exe", strings.NewReader("MZ"))
	assert.ErrorIs(t, err, ErrExtensionBlocked)
	assert.ErrorIs(t, err, httpx.ErrValidation)

	_, err = svc.Upload(ctx, 1, "resin-spinning", 1, "big.pdf", strings.NewReader("%PDF-1.7"))
	assert.ErrorIs(t, err, ErrTooLarge)

	_, err = svc.Upload(ctx, 1, "resin-spinning", 1, "empty.pdf", strings.NewReader(""))
	assert.ErrorIs(t, err, ErrEmptyFile)

	_, err = svc.Upload(ctx, 1, "resin-spinning", 1, "  ", strings.NewReader("x"))
	assert.ErrorIs(t, err, httpx.ErrValidation)

	assert.Empty(t, repo.rows)
	entries, err := os.ReadDir(filepath.Join(dir, "resin-spinning"))
	require.NoError(t, err)
	assert.Empty(t, entries, "rejected uploads leave no files behind")
}

func TestDeleteAndPurge(t *testing.T) {
	svc, repo, dir := newTestService(t)
	ctx := context.Background()

	a1, err := svc.Upload(ctx, 1, "resin-spinning", 7, "a.csv", strings.NewReader("a,b"))
	require.NoError(t, err)
	a2, err := svc.Upload(ctx, 1, "resin-spinning", 7, "b.csv", strings.NewReader("c,d"))
	require.NoError(t, err)
	other, err := svc.Upload(ctx, 1, "resin-spinning", 8, "c.csv", strings.NewReader("e,f"))
	require.NoError(t, err)

	items, err := svc.List(ctx, "resin-spinning", 7)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, a2.ID, items[0].ID)

	require.NoError(t, svc.Delete(ctx, 1, repo.rows[a1.ID]))
	_, err = os.Stat(filepath.Join(dir, "resin-spinning", a1.StoredName))
	assert.True(t, os.IsNotExist(err))
	assert.ErrorIs(t, svc.Delete(ctx, 1, a1), httpx.ErrNotFound)

	require.NoError(t, svc.PurgeRecord(ctx, "resin-spinning", 7))
	_, err = os.Stat(filepath.Join(dir, "resin-spinning", a2.StoredName))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(dir, "resin-spinning", other.StoredName))
	assert.NoError(t, err)
	assert.Len(t, repo.rows, 1)
}

func TestFileStoreRejectsTraversal(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	_, err = store.Open("resin-spinning", "../secret")
	assert.Error(t, err)
	_, err = store.Save("../x", ".txt", strings.NewReader("x"), 0)
	assert.Error(t, err)
	assert.NoError(t, store.Remove("resin-spinning", "missing.txt"))

	_, err = store.Open("resin-spinning", "missing.txt")
	assert.ErrorIs(t, err, ErrNotFound)
}
