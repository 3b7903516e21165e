package core

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ebogdum/archivefs/archives"
	"github.com/ebogdum/archivefs/backends"
	"github.com/ebogdum/archivefs/backends/localfs"
	"github.com/ebogdum/archivefs/loader"
	"github.com/ebogdum/archivefs/locks"
	"github.com/ebogdum/archivefs/metadata"
	"github.com/ebogdum/archivefs/metadata/memory"
)

var zeroIdentity = archives.Identity{
	SystemID: "00000000000000000000000000000000",
	SDCardID: "00000000000000000000000000000000",
}

// newTestManager returns a manager with every built-in type registered over temp folders
func newTestManager(t *testing.T) (*ArchiveManager, Environment) {
	t.Helper()

	root := t.TempDir()
	env := Environment{
		NANDRoot: filepath.Join(root, "nand"),
		SDMCRoot: filepath.Join(root, "sdmc"),
		Identity: zeroIdentity,
		Store:    memory.NewMemoryStore(),
	}

	m := NewArchiveManager(locks.NewLocalManager(), zap.NewNop(), WithFormatInfoCache(time.Minute, 100))
	require.NoError(t, m.RegisterArchiveTypes(env))
	t.Cleanup(func() { m.Close() })
	return m, env
}

// staticFactory hands out the same backend on every open
type staticFactory struct {
	name    string
	backend backends.ArchiveBackend
	opens   int
}

func (f *staticFactory) Name() string { return f.name }

func (f *staticFactory) Open(ctx context.Context, path backends.Path, programID uint64) (backends.ArchiveBackend, error) {
	f.opens++
	return f.backend, nil
}

func (f *staticFactory) Format(ctx context.Context, path backends.Path, info metadata.FormatInfo, programID uint64) error {
	return metadata.ErrUnsupported
}

func (f *staticFactory) FormatInfo(ctx context.Context, path backends.Path, programID uint64) (metadata.FormatInfo, error) {
	return metadata.FormatInfo{}, metadata.ErrUnsupported
}

// recordingBackend counts native renames
type recordingBackend struct {
	backends.ArchiveBackend
	renames int
}

func (b *recordingBackend) RenameFile(ctx context.Context, src, dst backends.Path) error {
	b.renames++
	return b.ArchiveBackend.RenameFile(ctx, src, dst)
}

func (b *recordingBackend) Close() error { return nil }

// failingWriteBackend accepts file creation but every write fails
type failingWriteBackend struct {
	backends.ArchiveBackend
}

func (b *failingWriteBackend) OpenFile(ctx context.Context, path backends.Path, mode backends.Mode) (backends.File, error) {
	file, err := b.ArchiveBackend.OpenFile(ctx, path, mode)
	if err != nil {
		return nil, err
	}
	if mode.Writable() {
		return &failingFile{File: file}, nil
	}
	return file, nil
}

type failingFile struct {
	backends.File
}

func (f *failingFile) WriteAt(p []byte, off int64) (int, error) {
	return 0, metadata.ErrNotEnoughSpace
}

func newLocalBackend(t *testing.T, name string) *localfs.LocalFSAdapter {
	t.Helper()
	backend, err := localfs.NewLocalFSAdapter(t.TempDir(), localfs.Options{Name: name}, zap.NewNop())
	require.NoError(t, err)
	return backend
}

func writeFile(t *testing.T, m *ArchiveManager, handle ArchiveHandle, path string, content []byte) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, m.CreateFileInArchive(ctx, handle, backends.CharPath(path), int64(len(content))))
	file, err := m.OpenFileFromArchive(ctx, handle, backends.CharPath(path), backends.ModeWrite)
	require.NoError(t, err)
	_, err = file.WriteAt(content, 0)
	require.NoError(t, err)
	require.NoError(t, file.Close())
}

func readFile(t *testing.T, m *ArchiveManager, handle ArchiveHandle, path string) []byte {
	t.Helper()
	file, err := m.OpenFileFromArchive(context.Background(), handle, backends.CharPath(path), backends.ModeRead)
	require.NoError(t, err)
	defer file.Close()
	size, err := file.Size()
	require.NoError(t, err)
	buf := make([]byte, size)
	if size > 0 {
		_, err = file.ReadAt(buf, 0)
		require.NoError(t, err)
	}
	return buf
}

func TestOpenArchive_HandlesStrictlyIncrease(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	var last ArchiveHandle
	for i := 0; i < 5; i++ {
		handle, err := m.OpenArchive(ctx, SDMC, backends.EmptyPath())
		require.NoError(t, err)
		assert.NotZero(t, handle)
		assert.Greater(t, handle, last)
		last = handle
	}

	// Closing never lets a handle value come back
	require.NoError(t, m.CloseArchive(ctx, last))
	next, err := m.OpenArchive(ctx, SDMC, backends.EmptyPath())
	require.NoError(t, err)
	assert.Greater(t, next, last)
}

func TestOpenArchive_UnregisteredTypeAllocatesNothing(t *testing.T) {
	m := NewArchiveManager(nil, nil)
	defer m.Close()
	ctx := context.Background()

	_, err := m.OpenArchive(ctx, SDMC, backends.EmptyPath())
	require.ErrorIs(t, err, ErrArchiveNotRegistered)
	assert.Empty(t, m.OpenHandles())

	require.NoError(t, m.RegisterArchiveType(&staticFactory{name: "static", backend: newLocalBackend(t, "static")}, SDMC))
	handle, err := m.OpenArchive(ctx, SDMC, backends.EmptyPath())
	require.NoError(t, err)
	assert.Equal(t, ArchiveHandle(1), handle)
}

func TestOpenArchive_FactoryErrorPassesThrough(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	_, err := m.OpenArchive(ctx, SaveData, backends.EmptyPath())
	assert.ErrorIs(t, err, metadata.ErrNotFormatted)

	_, err = m.OpenArchive(ctx, ExtSaveData, archives.ExtSaveDataArchivePath(MediaSDMC, 0, 0x8f))
	assert.ErrorIs(t, err, metadata.ErrNotFound)

	// Failed opens consume no handle
	handle, err := m.OpenArchive(ctx, SDMC, backends.EmptyPath())
	require.NoError(t, err)
	assert.Equal(t, ArchiveHandle(1), handle)
}

func TestCloseArchive_InvalidatesHandle(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	handle, err := m.OpenArchive(ctx, SDMC, backends.EmptyPath())
	require.NoError(t, err)
	require.NoError(t, m.CloseArchive(ctx, handle))

	assert.ErrorIs(t, m.CloseArchive(ctx, handle), ErrInvalidHandle)
	assert.ErrorIs(t, m.CloseArchive(ctx, 0), ErrInvalidHandle)
	assert.ErrorIs(t, m.CreateFileInArchive(ctx, handle, backends.CharPath("/a"), 1), ErrInvalidHandle)
	assert.ErrorIs(t, m.DeleteFileFromArchive(ctx, handle, backends.CharPath("/a")), ErrInvalidHandle)
	assert.ErrorIs(t, m.CreateDirectoryFromArchive(ctx, handle, backends.CharPath("/d")), ErrInvalidHandle)
	assert.ErrorIs(t, m.DeleteDirectoryFromArchive(ctx, handle, backends.CharPath("/d")), ErrInvalidHandle)
	assert.ErrorIs(t, m.DeleteDirectoryRecursivelyFromArchive(ctx, handle, backends.CharPath("/d")), ErrInvalidHandle)

	_, err = m.OpenFileFromArchive(ctx, handle, backends.CharPath("/a"), backends.ModeRead)
	assert.ErrorIs(t, err, ErrInvalidHandle)
	_, err = m.OpenDirectoryFromArchive(ctx, handle, backends.CharPath("/"))
	assert.ErrorIs(t, err, ErrInvalidHandle)
	_, err = m.GetFreeBytesInArchive(ctx, handle)
	assert.ErrorIs(t, err, ErrInvalidHandle)
}

func TestRegisterArchiveType_Duplicate(t *testing.T) {
	m, env := newTestManager(t)

	err := m.RegisterArchiveType(&staticFactory{name: "other"}, SDMC)
	assert.ErrorIs(t, err, ErrDuplicateRegistration)

	err = m.RegisterArchiveTypes(env)
	assert.ErrorIs(t, err, ErrDuplicateRegistration)
}

func TestRegisterArchiveTypes_NoSDCard(t *testing.T) {
	m := NewArchiveManager(nil, zap.NewNop())
	defer m.Close()
	require.NoError(t, m.RegisterArchiveTypes(Environment{
		NANDRoot: t.TempDir(),
		Identity: zeroIdentity,
		Store:    memory.NewMemoryStore(),
	}))

	for _, id := range []ArchiveIDCode{SDMC, SDMCWriteOnly, SaveData} {
		_, err := m.OpenArchive(context.Background(), id, backends.EmptyPath())
		assert.ErrorIs(t, err, metadata.ErrUnsupported, id.String())
	}
	assert.Empty(t, m.OpenHandles())
}

func TestRegisterArchiveTypes_MissingStoreCanRetry(t *testing.T) {
	m := NewArchiveManager(nil, zap.NewNop())
	defer m.Close()

	root := t.TempDir()
	env := Environment{SDMCRoot: filepath.Join(root, "sdmc"), Identity: zeroIdentity}
	assert.ErrorIs(t, m.RegisterArchiveTypes(env), ErrStoreRequired)
	assert.ErrorIs(t, m.RegisterArchiveTypes(env), ErrStoreRequired)

	env.Store = memory.NewMemoryStore()
	require.NoError(t, m.RegisterArchiveTypes(env))
	assert.ErrorIs(t, m.RegisterArchiveTypes(env), ErrDuplicateRegistration)
}

func TestFileOperations(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	handle, err := m.OpenArchive(ctx, SDMC, backends.EmptyPath())
	require.NoError(t, err)

	require.NoError(t, m.CreateFileInArchive(ctx, handle, backends.CharPath("/zero.bin"), 32))
	assert.Equal(t, make([]byte, 32), readFile(t, m, handle, "/zero.bin"))

	err = m.CreateFileInArchive(ctx, handle, backends.CharPath("/zero.bin"), 1)
	assert.ErrorIs(t, err, metadata.ErrAlreadyExists)

	require.NoError(t, m.DeleteFileFromArchive(ctx, handle, backends.CharPath("/zero.bin")))
	_, err = m.OpenFileFromArchive(ctx, handle, backends.CharPath("/zero.bin"), backends.ModeRead)
	assert.ErrorIs(t, err, metadata.ErrNotFound)

	free, err := m.GetFreeBytesInArchive(ctx, handle)
	require.NoError(t, err)
	assert.Equal(t, localfs.DefaultFreeBytes, free)
}

func TestDirectoryOperations(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	handle, err := m.OpenArchive(ctx, SDMC, backends.EmptyPath())
	require.NoError(t, err)

	require.NoError(t, m.CreateDirectoryFromArchive(ctx, handle, backends.CharPath("/saves")))
	writeFile(t, m, handle, "/saves/slot1", []byte("data"))

	assert.ErrorIs(t, m.DeleteDirectoryFromArchive(ctx, handle, backends.CharPath("/saves")), metadata.ErrDirectoryNotEmpty)

	dir, err := m.OpenDirectoryFromArchive(ctx, handle, backends.CharPath("/saves"))
	require.NoError(t, err)
	entries, err := dir.Read(10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "slot1", entries[0].Name)
	assert.Equal(t, uint64(4), entries[0].Size)
	require.NoError(t, dir.Close())

	require.NoError(t, m.DeleteDirectoryRecursivelyFromArchive(ctx, handle, backends.CharPath("/saves")))
	_, err = m.OpenDirectoryFromArchive(ctx, handle, backends.CharPath("/saves"))
	assert.ErrorIs(t, err, metadata.ErrNotFound)
}

func TestRenameFileBetweenArchives_SameBackendRenamesNatively(t *testing.T) {
	backend := &recordingBackend{ArchiveBackend: newLocalBackend(t, "shared")}
	m := NewArchiveManager(nil, nil)
	defer m.Close()
	require.NoError(t, m.RegisterArchiveType(&staticFactory{name: "shared", backend: backend}, SDMC))
	ctx := context.Background()

	first, err := m.OpenArchive(ctx, SDMC, backends.EmptyPath())
	require.NoError(t, err)
	second, err := m.OpenArchive(ctx, SDMC, backends.EmptyPath())
	require.NoError(t, err)

	writeFile(t, m, first, "/a.bin", []byte("hello"))
	require.NoError(t, m.RenameFileBetweenArchives(ctx, first, backends.CharPath("/a.bin"), second, backends.CharPath("/b.bin")))

	assert.Equal(t, 1, backend.renames)
	assert.Equal(t, []byte("hello"), readFile(t, m, second, "/b.bin"))
}

func TestRenameFileBetweenArchives_CopiesAcrossBackends(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	info := metadata.FormatInfo{TotalSize: 1 << 20, NumberFiles: 8, NumberDirectories: 8}
	require.NoError(t, m.CreateExtSaveData(ctx, MediaSDMC, 0, 0x8f, []byte("icon"), info))

	sdmc, err := m.OpenArchive(ctx, SDMC, backends.EmptyPath())
	require.NoError(t, err)
	ext, err := m.OpenArchive(ctx, ExtSaveData, archives.ExtSaveDataArchivePath(MediaSDMC, 0, 0x8f))
	require.NoError(t, err)

	writeFile(t, m, sdmc, "/photo.jpg", []byte("jpeg bytes"))
	require.NoError(t, m.RenameFileBetweenArchives(ctx, sdmc, backends.CharPath("/photo.jpg"), ext, backends.CharPath("/photo.jpg")))

	assert.Equal(t, []byte("jpeg bytes"), readFile(t, m, ext, "/photo.jpg"))
	_, err = m.OpenFileFromArchive(ctx, sdmc, backends.CharPath("/photo.jpg"), backends.ModeRead)
	assert.ErrorIs(t, err, metadata.ErrNotFound)
}

func TestRenameFileBetweenArchives_FailedWriteKeepsSource(t *testing.T) {
	m := NewArchiveManager(nil, nil)
	defer m.Close()
	src := newLocalBackend(t, "src")
	dst := &failingWriteBackend{ArchiveBackend: newLocalBackend(t, "dst")}
	require.NoError(t, m.RegisterArchiveType(&staticFactory{name: "src", backend: src}, SDMC))
	require.NoError(t, m.RegisterArchiveType(&staticFactory{name: "dst", backend: dst}, SaveData))
	ctx := context.Background()

	srcHandle, err := m.OpenArchive(ctx, SDMC, backends.EmptyPath())
	require.NoError(t, err)
	dstHandle, err := m.OpenArchive(ctx, SaveData, backends.EmptyPath())
	require.NoError(t, err)

	writeFile(t, m, srcHandle, "/keep.bin", []byte("precious"))

	err = m.RenameFileBetweenArchives(ctx, srcHandle, backends.CharPath("/keep.bin"), dstHandle, backends.CharPath("/keep.bin"))
	require.ErrorIs(t, err, metadata.ErrNotEnoughSpace)

	assert.Equal(t, []byte("precious"), readFile(t, m, srcHandle, "/keep.bin"))
	_, err = m.OpenFileFromArchive(ctx, dstHandle, backends.CharPath("/keep.bin"), backends.ModeRead)
	assert.ErrorIs(t, err, metadata.ErrNotFound, "partial destination must be removed")
}

func TestRenameFileBetweenArchives_ExistingDestination(t *testing.T) {
	m := NewArchiveManager(nil, nil)
	defer m.Close()
	require.NoError(t, m.RegisterArchiveType(&staticFactory{name: "a", backend: newLocalBackend(t, "a")}, SDMC))
	require.NoError(t, m.RegisterArchiveType(&staticFactory{name: "b", backend: newLocalBackend(t, "b")}, SaveData))
	ctx := context.Background()

	a, err := m.OpenArchive(ctx, SDMC, backends.EmptyPath())
	require.NoError(t, err)
	b, err := m.OpenArchive(ctx, SaveData, backends.EmptyPath())
	require.NoError(t, err)

	writeFile(t, m, a, "/f", []byte("source"))
	writeFile(t, m, b, "/f", []byte("target"))

	err = m.RenameFileBetweenArchives(ctx, a, backends.CharPath("/f"), b, backends.CharPath("/f"))
	assert.ErrorIs(t, err, metadata.ErrAlreadyExists)
	assert.Equal(t, []byte("source"), readFile(t, m, a, "/f"))
	assert.Equal(t, []byte("target"), readFile(t, m, b, "/f"))
}

func TestRenameBetweenArchives_InvalidHandle(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	handle, err := m.OpenArchive(ctx, SDMC, backends.EmptyPath())
	require.NoError(t, err)
	writeFile(t, m, handle, "/f", []byte("x"))

	err = m.RenameFileBetweenArchives(ctx, handle, backends.CharPath("/f"), 99, backends.CharPath("/g"))
	assert.ErrorIs(t, err, ErrInvalidHandle)
	err = m.RenameDirectoryBetweenArchives(ctx, 99, backends.CharPath("/d"), handle, backends.CharPath("/e"))
	assert.ErrorIs(t, err, ErrInvalidHandle)

	assert.Equal(t, []byte("x"), readFile(t, m, handle, "/f"))
}

func TestRenameDirectoryBetweenArchives_CopiesTree(t *testing.T) {
	m := NewArchiveManager(nil, nil)
	defer m.Close()
	require.NoError(t, m.RegisterArchiveType(&staticFactory{name: "a", backend: newLocalBackend(t, "a")}, SDMC))
	require.NoError(t, m.RegisterArchiveType(&staticFactory{name: "b", backend: newLocalBackend(t, "b")}, SaveData))
	ctx := context.Background()

	a, err := m.OpenArchive(ctx, SDMC, backends.EmptyPath())
	require.NoError(t, err)
	b, err := m.OpenArchive(ctx, SaveData, backends.EmptyPath())
	require.NoError(t, err)

	require.NoError(t, m.CreateDirectoryFromArchive(ctx, a, backends.CharPath("/tree")))
	require.NoError(t, m.CreateDirectoryFromArchive(ctx, a, backends.CharPath("/tree/nested")))
	require.NoError(t, m.CreateDirectoryFromArchive(ctx, a, backends.CharPath("/tree/empty")))
	writeFile(t, m, a, "/tree/top.bin", []byte("top"))
	writeFile(t, m, a, "/tree/nested/deep.bin", []byte("deep"))
	writeFile(t, m, a, "/tree/nested/blank.bin", nil)

	require.NoError(t, m.RenameDirectoryBetweenArchives(ctx, a, backends.CharPath("/tree"), b, backends.CharPath("/moved")))

	assert.Equal(t, []byte("top"), readFile(t, m, b, "/moved/top.bin"))
	assert.Equal(t, []byte("deep"), readFile(t, m, b, "/moved/nested/deep.bin"))
	assert.Empty(t, readFile(t, m, b, "/moved/nested/blank.bin"))
	dir, err := m.OpenDirectoryFromArchive(ctx, b, backends.CharPath("/moved/empty"))
	require.NoError(t, err)
	require.NoError(t, dir.Close())

	_, err = m.OpenDirectoryFromArchive(ctx, a, backends.CharPath("/tree"))
	assert.ErrorIs(t, err, metadata.ErrNotFound)
}

func TestRenameDirectoryBetweenArchives_FailureKeepsSource(t *testing.T) {
	m := NewArchiveManager(nil, nil)
	defer m.Close()
	require.NoError(t, m.RegisterArchiveType(&staticFactory{name: "a", backend: newLocalBackend(t, "a")}, SDMC))
	require.NoError(t, m.RegisterArchiveType(&staticFactory{name: "b", backend: &failingWriteBackend{ArchiveBackend: newLocalBackend(t, "b")}}, SaveData))
	ctx := context.Background()

	a, err := m.OpenArchive(ctx, SDMC, backends.EmptyPath())
	require.NoError(t, err)
	b, err := m.OpenArchive(ctx, SaveData, backends.EmptyPath())
	require.NoError(t, err)

	require.NoError(t, m.CreateDirectoryFromArchive(ctx, a, backends.CharPath("/tree")))
	writeFile(t, m, a, "/tree/file.bin", []byte("content"))

	err = m.RenameDirectoryBetweenArchives(ctx, a, backends.CharPath("/tree"), b, backends.CharPath("/tree"))
	require.Error(t, err)

	assert.Equal(t, []byte("content"), readFile(t, m, a, "/tree/file.bin"))
	_, err = m.OpenDirectoryFromArchive(ctx, b, backends.CharPath("/tree"))
	assert.ErrorIs(t, err, metadata.ErrNotFound)
}

func TestRenameDirectoryBetweenArchives_RejectsDestinationInsideSource(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	// Every SDMC open builds its own backend over the same folder
	a, err := m.OpenArchive(ctx, SDMC, backends.EmptyPath())
	require.NoError(t, err)
	b, err := m.OpenArchive(ctx, SDMC, backends.EmptyPath())
	require.NoError(t, err)

	require.NoError(t, m.CreateDirectoryFromArchive(ctx, a, backends.CharPath("/d")))
	writeFile(t, m, a, "/d/f", []byte("x"))

	for _, dst := range []string{"/d/sub", "/d", "/d/sub/deeper"} {
		err = m.RenameDirectoryBetweenArchives(ctx, a, backends.CharPath("/d"), b, backends.CharPath(dst))
		assert.ErrorIs(t, err, metadata.ErrInvalidPath, dst)
	}

	assert.Equal(t, []byte("x"), readFile(t, m, a, "/d/f"))
	_, err = m.OpenDirectoryFromArchive(ctx, b, backends.CharPath("/d/sub"))
	assert.ErrorIs(t, err, metadata.ErrNotFound)

	// A sibling whose name starts with the source name is not inside it
	require.NoError(t, m.RenameDirectoryBetweenArchives(ctx, a, backends.CharPath("/d"), b, backends.CharPath("/d2")))
	assert.Equal(t, []byte("x"), readFile(t, m, b, "/d2/f"))
}

func TestLockKey_SharedStorage(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	a, err := m.OpenArchive(ctx, SDMC, backends.EmptyPath())
	require.NoError(t, err)
	b, err := m.OpenArchive(ctx, SDMCWriteOnly, backends.EmptyPath())
	require.NoError(t, err)
	src, err := m.getArchive(a)
	require.NoError(t, err)
	dst, err := m.getArchive(b)
	require.NoError(t, err)

	assert.Equal(t, lockKey(src), lockKey(dst))
	assert.True(t, strings.HasPrefix(lockKey(src), "archive:file://"), lockKey(src))

	opaque := &openArchive{handle: 7, backend: &recordingBackend{}}
	assert.Equal(t, "archive:handle:7", lockKey(opaque))
}

func TestGetArchiveFormatInfo_SharedRecordAcrossTypes(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	const programID = 0x0004000000123400
	require.NoError(t, m.RegisterSelfNCCH(&loader.StaticLoader{ID: programID}))
	other := archives.OtherSaveDataArchivePath(MediaSDMC, programID, true)

	first := metadata.FormatInfo{TotalSize: 4096, NumberFiles: 4}
	require.NoError(t, m.FormatArchive(ctx, SaveData, first, backends.EmptyPath()))
	got, err := m.GetArchiveFormatInfo(ctx, OtherSaveDataGeneral, other)
	require.NoError(t, err)
	assert.Equal(t, first, got)

	second := metadata.FormatInfo{TotalSize: 8192, NumberFiles: 9}
	require.NoError(t, m.FormatArchive(ctx, SaveData, second, backends.EmptyPath()))
	got, err = m.GetArchiveFormatInfo(ctx, OtherSaveDataGeneral, other)
	require.NoError(t, err)
	assert.Equal(t, second, got)

	// And the other way round
	third := metadata.FormatInfo{TotalSize: 16384, NumberFiles: 1}
	require.NoError(t, m.FormatArchive(ctx, OtherSaveDataGeneral, third, other))
	got, err = m.GetArchiveFormatInfo(ctx, SaveData, backends.EmptyPath())
	require.NoError(t, err)
	assert.Equal(t, third, got)
}

func TestGetArchiveFormatInfo_UncachedSeesStoreWrites(t *testing.T) {
	root := t.TempDir()
	store := memory.NewMemoryStore()
	env := Environment{
		NANDRoot: filepath.Join(root, "nand"),
		SDMCRoot: filepath.Join(root, "sdmc"),
		Identity: zeroIdentity,
		Store:    store,
	}
	ctx := context.Background()

	// Two managers over one store stand in for two processes
	reader := NewArchiveManager(nil, zap.NewNop())
	defer reader.Close()
	require.NoError(t, reader.RegisterArchiveTypes(env))
	writer := NewArchiveManager(nil, zap.NewNop())
	defer writer.Close()
	require.NoError(t, writer.RegisterArchiveTypes(env))

	path := archives.SystemSaveDataArchivePath(0, 0x00010017)
	first := metadata.FormatInfo{TotalSize: 100}
	require.NoError(t, writer.FormatArchive(ctx, SystemSaveData, first, path))
	got, err := reader.GetArchiveFormatInfo(ctx, SystemSaveData, path)
	require.NoError(t, err)
	assert.Equal(t, first, got)

	second := metadata.FormatInfo{TotalSize: 200}
	require.NoError(t, writer.FormatArchive(ctx, SystemSaveData, second, path))
	got, err = reader.GetArchiveFormatInfo(ctx, SystemSaveData, path)
	require.NoError(t, err)
	assert.Equal(t, second, got)
}

func TestFormatInfoLifecycle(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()
	path := archives.ExtSaveDataArchivePath(MediaSDMC, 0, 0x1234)

	_, err := m.GetArchiveFormatInfo(ctx, ExtSaveData, path)
	assert.ErrorIs(t, err, metadata.ErrNotFormatted)

	info := metadata.FormatInfo{TotalSize: 0x100000, NumberDirectories: 10, NumberFiles: 20, DuplicateData: true}
	require.NoError(t, m.CreateExtSaveData(ctx, MediaSDMC, 0, 0x1234, []byte("icon"), info))

	got, err := m.GetArchiveFormatInfo(ctx, ExtSaveData, path)
	require.NoError(t, err)
	assert.Equal(t, info, got)

	// Served from the cache the second time
	got, err = m.GetArchiveFormatInfo(ctx, ExtSaveData, path)
	require.NoError(t, err)
	assert.Equal(t, info, got)

	require.NoError(t, m.DeleteExtSaveData(ctx, MediaSDMC, 0, 0x1234))
	_, err = m.GetArchiveFormatInfo(ctx, ExtSaveData, path)
	assert.ErrorIs(t, err, metadata.ErrNotFormatted)

	// Deleting again is a no-op
	assert.NoError(t, m.DeleteExtSaveData(ctx, MediaSDMC, 0, 0x1234))
}

func TestFormatArchive_SaveData(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	app := &loader.StaticLoader{ID: 0x0004000000123400, RomFS: []byte("romfs")}
	require.NoError(t, m.RegisterSelfNCCH(app))
	assert.Equal(t, uint64(0x0004000000123400), m.ProgramID())

	info := metadata.FormatInfo{TotalSize: 4096, NumberFiles: 4, NumberDirectories: 2}
	require.NoError(t, m.FormatArchive(ctx, SaveData, info, backends.EmptyPath()))

	handle, err := m.OpenArchive(ctx, SaveData, backends.EmptyPath())
	require.NoError(t, err)
	writeFile(t, m, handle, "/save.dat", []byte("progress"))

	got, err := m.GetArchiveFormatInfo(ctx, SaveData, backends.EmptyPath())
	require.NoError(t, err)
	assert.Equal(t, info, got)

	free, err := m.GetFreeBytesInArchive(ctx, handle)
	require.NoError(t, err)
	assert.Equal(t, uint64(4096-len("progress")), free)

	// Formatting wipes the content
	require.NoError(t, m.FormatArchive(ctx, SaveData, info, backends.EmptyPath()))
	_, err = m.OpenFileFromArchive(ctx, handle, backends.CharPath("/save.dat"), backends.ModeRead)
	assert.ErrorIs(t, err, metadata.ErrNotFound)

	err = m.FormatArchive(ctx, SDMC, info, backends.EmptyPath())
	assert.ErrorIs(t, err, metadata.ErrUnsupported)
}

func TestRegisterSelfNCCH_ExposesRomFS(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	_, err := m.OpenArchive(ctx, SelfNCCH, backends.EmptyPath())
	assert.ErrorIs(t, err, metadata.ErrNotFound)

	require.NoError(t, m.RegisterSelfNCCH(&loader.StaticLoader{ID: 0x0004000000055d00, RomFS: []byte("romfs")}))

	handle, err := m.OpenArchive(ctx, SelfNCCH, backends.EmptyPath())
	require.NoError(t, err)
	file, err := m.OpenFileFromArchive(ctx, handle, archives.NCCHFilePath(archives.NCCHFileRomFS, ""), backends.ModeRead)
	require.NoError(t, err)
	defer file.Close()

	buf := make([]byte, 5)
	_, err = file.ReadAt(buf, 0)
	require.NoError(t, err)
	assert.Equal(t, []byte("romfs"), buf)
}

func TestCreateExtSaveData_Media(t *testing.T) {
	m, env := newTestManager(t)
	ctx := context.Background()
	info := metadata.FormatInfo{TotalSize: 1 << 16}

	err := m.CreateExtSaveData(ctx, MediaGameCard, 0, 1, nil, info)
	assert.ErrorIs(t, err, metadata.ErrUnsupported)

	require.NoError(t, m.CreateExtSaveData(ctx, MediaNAND, 0x00048000, 0xf000000b, []byte("shared"), info))
	icon := filepath.Join(archives.ExtSaveDataPath(archives.NANDDataDirectory(env.NANDRoot, env.Identity), 0x00048000, 0xf000000b), "icon")
	assert.FileExists(t, icon)

	handle, err := m.OpenArchive(ctx, SharedExtSaveData, archives.ExtSaveDataArchivePath(MediaNAND, 0x00048000, 0xf000000b))
	require.NoError(t, err)
	require.NoError(t, m.CloseArchive(ctx, handle))

	require.NoError(t, m.DeleteExtSaveData(ctx, MediaNAND, 0x00048000, 0xf000000b))
	assert.NoFileExists(t, icon)
}

func TestSystemSaveDataLifecycle(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()
	path := archives.SystemSaveDataArchivePath(0, 0x00010017)

	_, err := m.OpenArchive(ctx, SystemSaveData, path)
	assert.ErrorIs(t, err, metadata.ErrNotFound)

	require.NoError(t, m.CreateSystemSaveData(ctx, 0, 0x00010017))
	handle, err := m.OpenArchive(ctx, SystemSaveData, path)
	require.NoError(t, err)
	writeFile(t, m, handle, "/config", []byte{1, 2, 3})
	require.NoError(t, m.CloseArchive(ctx, handle))

	require.NoError(t, m.DeleteSystemSaveData(ctx, 0, 0x00010017))
	_, err = m.OpenArchive(ctx, SystemSaveData, path)
	assert.ErrorIs(t, err, metadata.ErrNotFound)

	assert.NoError(t, m.DeleteSystemSaveData(ctx, 0, 0x00010017))
}

func TestOpenHandles(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	first, err := m.OpenArchive(ctx, SDMC, backends.EmptyPath())
	require.NoError(t, err)
	second, err := m.OpenArchive(ctx, SDMCWriteOnly, backends.EmptyPath())
	require.NoError(t, err)

	handles := m.OpenHandles()
	require.Len(t, handles, 2)
	assert.Equal(t, HandleInfo{Handle: first, IDCode: SDMC, Type: "SDMC", Backend: "SDMC"}, handles[0])
	assert.Equal(t, second, handles[1].Handle)
	assert.Equal(t, "SDMCWriteOnly", handles[1].Type)

	require.NoError(t, m.Close())
	assert.Empty(t, m.OpenHandles())
}

func TestConcurrentOpenDispatchClose(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	const workers = 8
	const iterations = 25

	var mu sync.Mutex
	seen := make(map[ArchiveHandle]bool)
	errs := make(chan error, workers)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			id := SDMC
			if w%2 == 1 {
				id = SDMCWriteOnly
			}
			for i := 0; i < iterations; i++ {
				handle, err := m.OpenArchive(ctx, id, backends.EmptyPath())
				if err != nil {
					errs <- err
					return
				}

				mu.Lock()
				duplicate := seen[handle]
				seen[handle] = true
				mu.Unlock()
				if duplicate {
					errs <- errors.New("handle issued twice")
					return
				}

				if _, err := m.GetFreeBytesInArchive(ctx, handle); err != nil {
					errs <- err
					return
				}
				if err := m.CloseArchive(ctx, handle); err != nil {
					errs <- err
					return
				}
			}
		}(w)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Error(err)
	}
	assert.Len(t, seen, workers*iterations)
	assert.Empty(t, m.OpenHandles())
}
