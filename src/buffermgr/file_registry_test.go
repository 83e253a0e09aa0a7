package buffermgr

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"odscore/src/models"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestAcquireSharesMapping(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "a.bin", []byte{1, 2, 3, 4})
	fr := NewFileRegistry(4, nil)

	first, err := fr.Acquire(path)
	require.NoError(t, err)
	second, err := fr.Acquire(path)
	require.NoError(t, err)
	require.Same(t, first, second)
	require.Equal(t, []byte{1, 2, 3, 4}, first.Bytes())
	require.Equal(t, int64(4), first.Size())
	require.Equal(t, 1, fr.Mapped())

	require.NoError(t, fr.Release(first))
	require.NoError(t, fr.Release(second))
	// idle mappings stay cached below the limit
	require.Equal(t, 1, fr.Mapped())

	err = fr.Release(first)
	require.True(t, errors.Is(err, models.ErrIOFailure))
	require.NoError(t, fr.CloseAll())
	require.Equal(t, 0, fr.Mapped())
}

func TestAcquireErrors(t *testing.T) {
	dir := t.TempDir()
	fr := NewFileRegistry(4, nil)

	_, err := fr.Acquire(filepath.Join(dir, "missing.bin"))
	require.True(t, errors.Is(err, models.ErrIOFailure), "got %v", err)

	_, err = fr.Acquire(dir)
	require.True(t, errors.Is(err, models.ErrIOFailure), "got %v", err)
	require.Equal(t, 0, fr.Mapped())
}

func TestEmptyFile(t *testing.T) {
	path := writeFile(t, t.TempDir(), "empty.bin", nil)
	fr := NewFileRegistry(4, nil)

	err := fr.WithFile(path, func(data []byte) error {
		require.Len(t, data, 0)
		return nil
	})
	require.NoError(t, err)
	require.NoError(t, fr.CloseAll())
}

func TestEvictsLeastRecentlyUsed(t *testing.T) {
	dir := t.TempDir()
	fr := NewFileRegistry(2, nil)
	var paths []string
	for _, name := range []string{"a.bin", "b.bin", "c.bin"} {
		paths = append(paths, writeFile(t, dir, name, []byte(name)))
	}

	for _, p := range paths {
		require.NoError(t, fr.WithFile(p, func([]byte) error { return nil }))
	}
	require.Equal(t, 2, fr.Mapped())

	// a.bin was the oldest; it is mapped again from disk
	require.NoError(t, fr.WithFile(paths[0], func(data []byte) error {
		require.Equal(t, []byte("a.bin"), data)
		return nil
	}))
	require.Equal(t, 2, fr.Mapped())
}

func TestEvictionSkipsReferencedFiles(t *testing.T) {
	dir := t.TempDir()
	fr := NewFileRegistry(1, nil)
	a, err := fr.Acquire(writeFile(t, dir, "a.bin", []byte("a")))
	require.NoError(t, err)
	b, err := fr.Acquire(writeFile(t, dir, "b.bin", []byte("b")))
	require.NoError(t, err)

	require.NoError(t, fr.Release(b))
	require.Equal(t, 1, fr.Mapped())
	require.Equal(t, []byte("a"), a.Bytes())
	require.NoError(t, fr.Release(a))
	require.Equal(t, 1, fr.Mapped())
}

func TestWithFileReleasesOnError(t *testing.T) {
	path := writeFile(t, t.TempDir(), "a.bin", []byte{9})
	fr := NewFileRegistry(4, nil)

	boom := errors.New("boom")
	err := fr.WithFile(path, func([]byte) error { return boom })
	require.True(t, errors.Is(err, boom))

	func() {
		defer func() { require.NotNil(t, recover()) }()
		_ = fr.WithFile(path, func([]byte) error { panic("decode") })
	}()

	mf, err := fr.Acquire(path)
	require.NoError(t, err)
	require.Equal(t, 1, mf.refCount)
	require.NoError(t, fr.Release(mf))
}

func TestRemapsChangedFile(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "a.bin", []byte{1, 2})
	fr := NewFileRegistry(4, nil)
	require.NoError(t, fr.WithFile(path, func(data []byte) error {
		require.Equal(t, []byte{1, 2}, data)
		return nil
	}))

	require.NoError(t, os.WriteFile(path, []byte{3, 4, 5}, 0o644))
	later := time.Now().Add(time.Minute)
	require.NoError(t, os.Chtimes(path, later, later))

	require.NoError(t, fr.WithFile(path, func(data []byte) error {
		require.Equal(t, []byte{3, 4, 5}, data)
		return nil
	}))
	require.NoError(t, fr.CloseAll())
}
