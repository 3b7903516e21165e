package archives

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ebogdum/archivefs/backends"
	"github.com/ebogdum/archivefs/backends/localfs"
	"github.com/ebogdum/archivefs/loader"
	"github.com/ebogdum/archivefs/metadata"
	"github.com/ebogdum/archivefs/metadata/memory"
)

var zeroIdentity = Identity{
	SystemID: "00000000000000000000000000000000",
	SDCardID: "00000000000000000000000000000000",
}

func TestHostLayout(t *testing.T) {
	sdmcDir := SDMCDirectory("/sdmc", zeroIdentity)
	assert.Equal(t, "/sdmc/Nintendo 3DS/00000000000000000000000000000000/00000000000000000000000000000000", sdmcDir)
	assert.Equal(t, sdmcDir+"/title/00040000/00123400/data", SaveDataPath(sdmcDir, 0x0004000000123400))
	assert.Equal(t, sdmcDir+"/extdata/00000000/0000008f", ExtSaveDataPath(sdmcDir, 0, 0x8f))

	nandDir := NANDDataDirectory("/nand", zeroIdentity)
	assert.Equal(t, "/nand/data/00000000000000000000000000000000", nandDir)
	assert.Equal(t, nandDir+"/sysdata/00020000/00000000", SystemSaveDataPath(nandDir, 0, 0x00020000))
}

func TestParseMediaType(t *testing.T) {
	for input, want := range map[string]MediaType{"nand": MediaNAND, "SDMC": MediaSDMC, "gamecard": MediaGameCard, "1": MediaSDMC} {
		got, err := ParseMediaType(input)
		require.NoError(t, err, input)
		assert.Equal(t, want, got, input)
	}
	_, err := ParseMediaType("tape")
	assert.Error(t, err)
}

func TestBinaryArchivePaths(t *testing.T) {
	media, high, low, err := DecodeExtSaveDataArchivePath(ExtSaveDataArchivePath(MediaSDMC, 0x00000001, 0x0000008f))
	require.NoError(t, err)
	assert.Equal(t, MediaSDMC, media)
	assert.Equal(t, uint32(1), high)
	assert.Equal(t, uint32(0x8f), low)

	// {media, low, high} little-endian
	assert.Equal(t, []byte{1, 0, 0, 0, 0x8f, 0, 0, 0, 1, 0, 0, 0}, ExtSaveDataArchivePath(MediaSDMC, 1, 0x8f).AsBinary())

	_, _, err = DecodeSystemSaveDataArchivePath(backends.BinaryPath([]byte{1, 2, 3}))
	assert.ErrorIs(t, err, metadata.ErrInvalidPath)
	_, _, err = DecodeSystemSaveDataArchivePath(backends.CharPath("/x"))
	assert.ErrorIs(t, err, metadata.ErrInvalidPath)

	id, media, err := DecodeNCCHArchivePath(NCCHArchivePath(0x0004000000123400, MediaGameCard))
	require.NoError(t, err)
	assert.Equal(t, uint64(0x0004000000123400), id)
	assert.Equal(t, MediaGameCard, media)

	fileType, section, err := DecodeNCCHFilePath(NCCHFilePath(NCCHFileExeFS, "icon"))
	require.NoError(t, err)
	assert.Equal(t, NCCHFileExeFS, fileType)
	assert.Equal(t, "icon", section)
}

func TestSaveDataFactory(t *testing.T) {
	ctx := context.Background()
	sdmcDir := SDMCDirectory(t.TempDir(), zeroIdentity)
	f := NewSaveDataFactory(sdmcDir, memory.NewMemoryStore(), 0, nil)
	const programID = 0x0004000000123400

	_, err := f.Open(ctx, backends.EmptyPath(), programID)
	assert.ErrorIs(t, err, metadata.ErrNotFormatted)
	_, err = f.FormatInfo(ctx, backends.EmptyPath(), programID)
	assert.ErrorIs(t, err, metadata.ErrNotFormatted)

	info := metadata.FormatInfo{TotalSize: 4096, NumberDirectories: 10, NumberFiles: 20}
	require.NoError(t, f.Format(ctx, backends.EmptyPath(), info, programID))

	got, err := f.FormatInfo(ctx, backends.EmptyPath(), programID)
	require.NoError(t, err)
	assert.Equal(t, info, got)

	archive, err := f.Open(ctx, backends.EmptyPath(), programID)
	require.NoError(t, err)
	require.NoError(t, archive.CreateFile(ctx, backends.CharPath("/save.bin"), 1024))
	free, err := archive.FreeBytes(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 4096-1024, free)
	assert.ErrorIs(t, archive.CreateFile(ctx, backends.CharPath("/big.bin"), 8192), metadata.ErrNotEnoughSpace)

	// Formatting again wipes the content
	require.NoError(t, f.Format(ctx, backends.EmptyPath(), info, programID))
	_, err = os.Stat(filepath.Join(SaveDataPath(sdmcDir, programID), "save.bin"))
	assert.True(t, os.IsNotExist(err))

	// Another program's save data is separate
	_, err = f.Open(ctx, backends.EmptyPath(), programID+1)
	assert.ErrorIs(t, err, metadata.ErrNotFormatted)
}

func TestOtherSaveDataFactory(t *testing.T) {
	ctx := context.Background()
	saveData := NewSaveDataFactory(SDMCDirectory(t.TempDir(), zeroIdentity), memory.NewMemoryStore(), 0, nil)
	general := NewOtherSaveDataFactory(saveData, true)
	permitted := NewOtherSaveDataFactory(saveData, false)
	const programID = 0x0004000000055d00
	info := metadata.FormatInfo{TotalSize: 512}

	err := permitted.Format(ctx, OtherSaveDataArchivePath(MediaSDMC, programID, false), info, 0)
	assert.ErrorIs(t, err, metadata.ErrUnsupported)

	require.NoError(t, general.Format(ctx, OtherSaveDataArchivePath(MediaSDMC, programID, true), info, 0))

	// The running program sees the same save data
	got, err := saveData.FormatInfo(ctx, backends.EmptyPath(), programID)
	require.NoError(t, err)
	assert.Equal(t, info, got)

	_, err = permitted.Open(ctx, OtherSaveDataArchivePath(MediaSDMC, programID, false), 0)
	assert.NoError(t, err)
	_, err = permitted.Open(ctx, OtherSaveDataArchivePath(MediaNAND, programID, false), 0)
	assert.ErrorIs(t, err, metadata.ErrNotFound)
	_, err = general.Open(ctx, OtherSaveDataArchivePath(MediaGameCard, programID, true), 0)
	assert.ErrorIs(t, err, metadata.ErrUnsupported)
	// The general variant requires the reserved word
	_, err = general.Open(ctx, OtherSaveDataArchivePath(MediaSDMC, programID, false), 0)
	assert.ErrorIs(t, err, metadata.ErrInvalidPath)
}

func TestExtSaveDataFactory(t *testing.T) {
	ctx := context.Background()
	store := memory.NewMemoryStore()
	mount := SDMCDirectory(t.TempDir(), zeroIdentity)
	f := NewExtSaveDataFactory(mount, false, store, 0, nil)
	path := ExtSaveDataArchivePath(MediaSDMC, 0, 0x8f)

	_, err := f.Open(ctx, path, 0)
	assert.ErrorIs(t, err, metadata.ErrNotFound)

	info := metadata.FormatInfo{TotalSize: 1 << 20, NumberDirectories: 4, NumberFiles: 8, DuplicateData: true}
	require.NoError(t, f.Format(ctx, path, info, 0))
	require.NoError(t, f.WriteIcon(ctx, path, []byte("smdh")))

	icon, err := os.ReadFile(filepath.Join(ExtSaveDataPath(mount, 0, 0x8f), "icon"))
	require.NoError(t, err)
	assert.Equal(t, []byte("smdh"), icon)

	rec, err := store.Get(ctx, "extdata/sdmc/00000000/0000008f")
	require.NoError(t, err)
	assert.Equal(t, info, rec.FormatInfo)
	assert.Equal(t, []byte("smdh"), rec.Icon)
	assert.Equal(t, "ExtSaveData", rec.ArchiveType)

	archive, err := f.Open(ctx, path, 0)
	require.NoError(t, err)
	require.NoError(t, archive.CreateDirectory(ctx, backends.CharPath("/photos")))
	_, err = os.Stat(filepath.Join(ExtSaveDataPath(mount, 0, 0x8f), "user", "photos"))
	assert.NoError(t, err)

	require.NoError(t, f.DeleteContainer(ctx, path))
	_, err = f.Open(ctx, path, 0)
	assert.ErrorIs(t, err, metadata.ErrNotFound)
	_, err = f.FormatInfo(ctx, path, 0)
	assert.ErrorIs(t, err, metadata.ErrNotFormatted)

	// Deleting a missing container succeeds
	assert.NoError(t, f.DeleteContainer(ctx, path))
	assert.ErrorIs(t, f.WriteIcon(ctx, path, []byte("x")), metadata.ErrNotFound)
}

func TestSystemSaveDataFactory(t *testing.T) {
	ctx := context.Background()
	nandDir := NANDDataDirectory(t.TempDir(), zeroIdentity)
	f := NewSystemSaveDataFactory(nandDir, memory.NewMemoryStore(), 0, nil)
	path := SystemSaveDataArchivePath(0, 0x00010026)

	_, err := f.Open(ctx, path, 0)
	assert.ErrorIs(t, err, metadata.ErrNotFound)

	require.NoError(t, f.CreateContainer(ctx, path))
	_, err = os.Stat(SystemSaveDataPath(nandDir, 0, 0x00010026))
	require.NoError(t, err)

	archive, err := f.Open(ctx, path, 0)
	require.NoError(t, err)
	require.NoError(t, archive.CreateFile(ctx, backends.CharPath("/config"), 8))

	_, err = f.FormatInfo(ctx, path, 0)
	assert.ErrorIs(t, err, metadata.ErrNotFormatted)

	require.NoError(t, f.DeleteContainer(ctx, path))
	_, err = f.Open(ctx, path, 0)
	assert.ErrorIs(t, err, metadata.ErrNotFound)
	assert.NoError(t, f.DeleteContainer(ctx, path))
}

func TestSDMCFactory(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	sdmc := NewSDMCFactory(root, false, 0, nil)
	writeOnly := NewSDMCFactory(root, true, 0, nil)

	assert.ErrorIs(t, sdmc.Format(ctx, backends.EmptyPath(), metadata.FormatInfo{}, 0), metadata.ErrUnsupported)
	_, err := sdmc.FormatInfo(ctx, backends.EmptyPath(), 0)
	assert.ErrorIs(t, err, metadata.ErrUnsupported)

	wo, err := writeOnly.Open(ctx, backends.EmptyPath(), 0)
	require.NoError(t, err)
	assert.Equal(t, "SDMCWriteOnly", wo.Name())
	f, err := wo.OpenFile(ctx, backends.CharPath("/dump.bin"), backends.ModeWrite|backends.ModeCreate)
	require.NoError(t, err)
	_, err = f.WriteAt([]byte("data"), 0)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	_, err = wo.OpenDirectory(ctx, backends.CharPath("/"))
	assert.ErrorIs(t, err, metadata.ErrForbidden)

	rw, err := sdmc.Open(ctx, backends.EmptyPath(), 0)
	require.NoError(t, err)
	f, err = rw.OpenFile(ctx, backends.CharPath("/dump.bin"), backends.ModeRead)
	require.NoError(t, err)
	buf := make([]byte, 4)
	_, err = f.ReadAt(buf, 0)
	require.NoError(t, err)
	assert.Equal(t, []byte("data"), buf)
}

type writeOnlyLocal struct {
	*localfs.LocalFSAdapter
	view backends.ArchiveBackend
}

func (w writeOnlyLocal) WriteOnlyView() backends.ArchiveBackend { return w.view }

func TestSDMCFactoryWithBackend(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	shared, err := localfs.NewLocalFSAdapter(root, localfs.Options{Name: "SDMC"}, nil)
	require.NoError(t, err)

	got, err := NewSDMCFactoryWithBackend(shared, false).Open(ctx, backends.EmptyPath(), 0)
	require.NoError(t, err)
	assert.Same(t, shared, got)

	_, err = NewSDMCFactoryWithBackend(shared, true).Open(ctx, backends.EmptyPath(), 0)
	assert.ErrorIs(t, err, metadata.ErrUnsupported)

	view, err := localfs.NewLocalFSAdapter(root, localfs.Options{Name: "SDMCWriteOnly", WriteOnly: true}, nil)
	require.NoError(t, err)
	wo, err := NewSDMCFactoryWithBackend(writeOnlyLocal{shared, view}, true).Open(ctx, backends.EmptyPath(), 0)
	require.NoError(t, err)
	_, err = wo.OpenDirectory(ctx, backends.CharPath("/"))
	assert.ErrorIs(t, err, metadata.ErrForbidden)
}

func TestNCCHFactories(t *testing.T) {
	ctx := context.Background()
	app := &loader.StaticLoader{
		ID:    0x0004000000123400,
		RomFS: []byte("romfs"),
		ExeFS: map[string][]byte{loader.CodeSection: []byte("code"), "banner": []byte("banner")},
	}

	self := NewSelfNCCHFactory(nil)
	_, err := self.Open(ctx, backends.EmptyPath(), 0)
	assert.ErrorIs(t, err, metadata.ErrNotFound)

	require.NoError(t, self.Register(app))
	archive, err := self.Open(ctx, backends.EmptyPath(), 0)
	require.NoError(t, err)

	read := func(a backends.ArchiveBackend, path backends.Path) string {
		t.Helper()
		f, err := a.OpenFile(ctx, path, backends.ModeRead)
		require.NoError(t, err)
		size, err := f.Size()
		require.NoError(t, err)
		buf := make([]byte, size)
		_, err = f.ReadAt(buf, 0)
		require.NoError(t, err)
		return string(buf)
	}

	assert.Equal(t, "romfs", read(archive, NCCHFilePath(NCCHFileRomFS, "")))
	assert.Equal(t, "code", read(archive, NCCHFilePath(NCCHFileCode, "")))
	assert.Equal(t, "banner", read(archive, NCCHFilePath(NCCHFileExeFS, "banner")))

	_, err = archive.OpenFile(ctx, NCCHFilePath(NCCHFileUpdateRomFS, ""), backends.ModeRead)
	assert.ErrorIs(t, err, metadata.ErrNotFound)
	_, err = archive.OpenFile(ctx, NCCHFilePath(9, ""), backends.ModeRead)
	assert.ErrorIs(t, err, metadata.ErrInvalidPath)
	assert.ErrorIs(t, self.Format(ctx, backends.EmptyPath(), metadata.FormatInfo{}, 0), metadata.ErrUnsupported)

	ncch := NewNCCHFactory()
	_, err = ncch.Open(ctx, NCCHArchivePath(app.ID, MediaSDMC), 0)
	assert.ErrorIs(t, err, metadata.ErrNotFound)
	require.NoError(t, ncch.Register(app))
	content, err := ncch.Open(ctx, NCCHArchivePath(app.ID, MediaSDMC), 0)
	require.NoError(t, err)
	assert.Equal(t, "romfs", read(content, NCCHFilePath(NCCHFileRomFS, "")))
}
