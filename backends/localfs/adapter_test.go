package localfs

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ebogdum/archivefs/backends"
	"github.com/ebogdum/archivefs/metadata"
)

func newArchive(t *testing.T, opts Options) *LocalFSAdapter {
	t.Helper()
	a, err := NewLocalFSAdapter(t.TempDir(), opts, nil)
	require.NoError(t, err)
	return a
}

func TestCreateFileIsZeroFilled(t *testing.T) {
	ctx := context.Background()
	a := newArchive(t, Options{})

	require.NoError(t, a.CreateFile(ctx, backends.CharPath("/save.bin"), 64))

	f, err := a.OpenFile(ctx, backends.CharPath("/save.bin"), backends.ModeRead)
	require.NoError(t, err)
	defer f.Close()

	size, err := f.Size()
	require.NoError(t, err)
	assert.EqualValues(t, 64, size)

	buf := make([]byte, 64)
	n, err := f.ReadAt(buf, 0)
	require.NoError(t, err)
	assert.Equal(t, 64, n)
	assert.Equal(t, make([]byte, 64), buf)
}

func TestCreateFileErrors(t *testing.T) {
	ctx := context.Background()
	a := newArchive(t, Options{})
	require.NoError(t, a.CreateFile(ctx, backends.CharPath("/exists"), 0))

	tests := []struct {
		name string
		path backends.Path
		want error
	}{
		{"already exists", backends.CharPath("/exists"), metadata.ErrAlreadyExists},
		{"missing parent", backends.CharPath("/nodir/file"), metadata.ErrNotFound},
		{"binary path", backends.BinaryPath([]byte{1}), metadata.ErrInvalidPath},
		{"escaping path", backends.CharPath("/../x"), metadata.ErrInvalidPath},
		{"root", backends.CharPath("/"), metadata.ErrAlreadyExists},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, a.CreateFile(ctx, tt.path, 1), tt.want)
		})
	}
}

func TestOpenFileModes(t *testing.T) {
	ctx := context.Background()
	a := newArchive(t, Options{})

	_, err := a.OpenFile(ctx, backends.CharPath("/missing"), backends.ModeRead)
	assert.ErrorIs(t, err, metadata.ErrNotFound)

	_, err = a.OpenFile(ctx, backends.CharPath("/missing"), 0)
	assert.ErrorIs(t, err, metadata.ErrInvalidMode)

	f, err := a.OpenFile(ctx, backends.CharPath("/new"), backends.ModeWrite|backends.ModeCreate)
	require.NoError(t, err)
	_, err = f.WriteAt([]byte("hello"), 0)
	require.NoError(t, err)
	_, err = f.ReadAt(make([]byte, 1), 0)
	assert.ErrorIs(t, err, metadata.ErrForbidden)
	require.NoError(t, f.Close())

	require.NoError(t, a.CreateDirectory(ctx, backends.CharPath("/dir")))
	_, err = a.OpenFile(ctx, backends.CharPath("/dir"), backends.ModeRead)
	assert.ErrorIs(t, err, metadata.ErrNotAFile)
}

func TestWriteOnlyArchive(t *testing.T) {
	ctx := context.Background()
	a := newArchive(t, Options{WriteOnly: true})

	f, err := a.OpenFile(ctx, backends.CharPath("/w"), backends.ModeWrite|backends.ModeCreate)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	_, err = a.OpenFile(ctx, backends.CharPath("/w"), backends.ModeRead)
	assert.ErrorIs(t, err, metadata.ErrForbidden)

	_, err = a.OpenDirectory(ctx, backends.CharPath("/"))
	assert.ErrorIs(t, err, metadata.ErrForbidden)
}

func TestReadOnlyArchive(t *testing.T) {
	ctx := context.Background()
	a := newArchive(t, Options{ReadOnly: true})

	assert.ErrorIs(t, a.CreateFile(ctx, backends.CharPath("/x"), 0), metadata.ErrReadOnly)
	assert.ErrorIs(t, a.CreateDirectory(ctx, backends.CharPath("/d")), metadata.ErrReadOnly)
	_, err := a.OpenFile(ctx, backends.CharPath("/x"), backends.ModeWrite|backends.ModeCreate)
	assert.ErrorIs(t, err, metadata.ErrReadOnly)
}

func TestDirectoryOperations(t *testing.T) {
	ctx := context.Background()
	a := newArchive(t, Options{})

	require.NoError(t, a.CreateDirectory(ctx, backends.CharPath("/a")))
	assert.ErrorIs(t, a.CreateDirectory(ctx, backends.CharPath("/a")), metadata.ErrAlreadyExists)
	require.NoError(t, a.CreateFile(ctx, backends.CharPath("/a/f"), 3))
	require.NoError(t, a.CreateFile(ctx, backends.CharPath("/.hidden"), 0))

	dir, err := a.OpenDirectory(ctx, backends.CharPath("/"))
	require.NoError(t, err)
	first, err := dir.Read(1)
	require.NoError(t, err)
	rest, err := dir.Read(10)
	require.NoError(t, err)
	end, err := dir.Read(10)
	require.NoError(t, err)
	assert.Empty(t, end)
	require.NoError(t, dir.Close())

	all := append(first, rest...)
	require.Len(t, all, 2)
	byName := map[string]backends.Entry{}
	for _, e := range all {
		byName[e.Name] = e
	}
	assert.True(t, byName["a"].IsDirectory)
	assert.True(t, byName[".hidden"].IsHidden)

	assert.ErrorIs(t, a.DeleteDirectory(ctx, backends.CharPath("/a")), metadata.ErrDirectoryNotEmpty)
	assert.ErrorIs(t, a.DeleteDirectory(ctx, backends.CharPath("/.hidden")), metadata.ErrNotADirectory)
	assert.ErrorIs(t, a.DeleteDirectoryRecursively(ctx, backends.CharPath("/")), metadata.ErrInvalidPath)
	require.NoError(t, a.DeleteDirectoryRecursively(ctx, backends.CharPath("/a")))

	_, err = os.Stat(filepath.Join(a.Root(), "a"))
	assert.True(t, os.IsNotExist(err))
}

func TestRename(t *testing.T) {
	ctx := context.Background()
	a := newArchive(t, Options{})

	require.NoError(t, a.CreateFile(ctx, backends.CharPath("/src"), 5))
	require.NoError(t, a.CreateFile(ctx, backends.CharPath("/taken"), 0))
	require.NoError(t, a.CreateDirectory(ctx, backends.CharPath("/d")))

	assert.ErrorIs(t, a.RenameFile(ctx, backends.CharPath("/src"), backends.CharPath("/taken")), metadata.ErrAlreadyExists)
	assert.ErrorIs(t, a.RenameFile(ctx, backends.CharPath("/nope"), backends.CharPath("/x")), metadata.ErrNotFound)
	assert.ErrorIs(t, a.RenameFile(ctx, backends.CharPath("/d"), backends.CharPath("/x")), metadata.ErrNotAFile)
	assert.ErrorIs(t, a.RenameDirectory(ctx, backends.CharPath("/d"), backends.CharPath("/d/inner")), metadata.ErrInvalidPath)

	require.NoError(t, a.RenameFile(ctx, backends.CharPath("/src"), backends.CharPath("/d/dst")))
	_, err := a.OpenFile(ctx, backends.CharPath("/src"), backends.ModeRead)
	assert.ErrorIs(t, err, metadata.ErrNotFound)

	require.NoError(t, a.RenameDirectory(ctx, backends.CharPath("/d"), backends.CharPath("/e")))
	f, err := a.OpenFile(ctx, backends.CharPath("/e/dst"), backends.ModeRead)
	require.NoError(t, err)
	size, err := f.Size()
	require.NoError(t, err)
	assert.EqualValues(t, 5, size)
	require.NoError(t, f.Close())
}

func TestQuota(t *testing.T) {
	ctx := context.Background()
	a := newArchive(t, Options{MaxBytes: 100})

	free, err := a.FreeBytes(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 100, free)

	require.NoError(t, a.CreateFile(ctx, backends.CharPath("/a"), 60))
	assert.ErrorIs(t, a.CreateFile(ctx, backends.CharPath("/b"), 60), metadata.ErrNotEnoughSpace)

	f, err := a.OpenFile(ctx, backends.CharPath("/a"), backends.ModeWrite)
	require.NoError(t, err)
	defer f.Close()
	_, err = f.WriteAt(make([]byte, 50), 60)
	assert.ErrorIs(t, err, metadata.ErrNotEnoughSpace)
	_, err = f.WriteAt(make([]byte, 40), 60)
	assert.NoError(t, err)

	free, err = a.FreeBytes(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 0, free)
}

func TestDefaultFreeBytes(t *testing.T) {
	a := newArchive(t, Options{})
	free, err := a.FreeBytes(context.Background())
	require.NoError(t, err)
	assert.Equal(t, DefaultFreeBytes, free)
}

func TestLocate(t *testing.T) {
	root := t.TempDir()
	a, err := NewLocalFSAdapter(root, Options{}, nil)
	require.NoError(t, err)
	b, err := NewLocalFSAdapter(filepath.Join(root, "nested"), Options{}, nil)
	require.NoError(t, err)

	abs, err := filepath.Abs(root)
	require.NoError(t, err)
	rootLocation := "file://" + filepath.ToSlash(abs)

	got, err := a.Locate(backends.CharPath("/"))
	require.NoError(t, err)
	assert.Equal(t, rootLocation, got)

	// The same host folder reached through two archives has one location
	viaA, err := a.Locate(backends.CharPath("/nested/file"))
	require.NoError(t, err)
	viaB, err := b.Locate(backends.CharPath("/file"))
	require.NoError(t, err)
	assert.Equal(t, rootLocation+"/nested/file", viaA)
	assert.Equal(t, viaA, viaB)

	_, err = a.Locate(backends.BinaryPath([]byte{1}))
	assert.ErrorIs(t, err, metadata.ErrInvalidPath)
}
