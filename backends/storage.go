// Package backends defines the collaborator interfaces of the archive manager: factories that
// produce archive backends for a path, the backends themselves, and the files and directories
// they hand out. Concrete implementations live in the subpackages.
package backends

import (
	"context"
	"io"

	"github.com/ebogdum/archivefs/metadata"
)

// File is an open file inside an archive.
type File interface {
	io.ReaderAt
	io.WriterAt

	// Size returns the current file size in bytes
	Size() (int64, error)

	// Truncate resizes the file, zero-filling any growth
	Truncate(size int64) error

	// Sync flushes buffered writes to the backing storage
	Sync() error

	// Close releases the file
	Close() error
}

// Entry describes one child of an open directory.
type Entry struct {
	Name        string `json:"name"`
	IsDirectory bool   `json:"is_directory"`
	IsHidden    bool   `json:"is_hidden"`
	IsReadOnly  bool   `json:"is_read_only"`
	IsArchive   bool   `json:"is_archive"`
	Size        uint64 `json:"size"`
}

// Directory is an open directory inside an archive.
type Directory interface {
	// Read returns up to max further entries; an empty slice means the listing is exhausted
	Read(max int) ([]Entry, error)

	// Close releases the directory
	Close() error
}

// ArchiveBackend is one open archive instance. Every path is relative to the archive root.
type ArchiveBackend interface {
	// Name identifies the archive kind in logs
	Name() string

	OpenFile(ctx context.Context, path Path, mode Mode) (File, error)
	DeleteFile(ctx context.Context, path Path) error
	RenameFile(ctx context.Context, src, dst Path) error

	// CreateFile creates a file of size bytes, all zero
	CreateFile(ctx context.Context, path Path, size int64) error

	CreateDirectory(ctx context.Context, path Path) error
	DeleteDirectory(ctx context.Context, path Path) error
	DeleteDirectoryRecursively(ctx context.Context, path Path) error
	RenameDirectory(ctx context.Context, src, dst Path) error
	OpenDirectory(ctx context.Context, path Path) (Directory, error)

	// FreeBytes returns the number of bytes that can still be written
	FreeBytes(ctx context.Context) (uint64, error)

	// Close releases any resources held by the instance
	Close() error
}

// ArchiveFactory produces backends for one archive type and performs the type-level operations
// that need no open instance. programID identifies the running program for per-program archives.
type ArchiveFactory interface {
	Name() string
	Open(ctx context.Context, path Path, programID uint64) (ArchiveBackend, error)
	Format(ctx context.Context, path Path, info metadata.FormatInfo, programID uint64) error
	FormatInfo(ctx context.Context, path Path, programID uint64) (metadata.FormatInfo, error)
}

// IconWriter is implemented by factories that keep an icon next to each container.
type IconWriter interface {
	WriteIcon(ctx context.Context, path Path, icon []byte) error
}

// ContainerCreator is implemented by factories whose containers can be created without formatting.
type ContainerCreator interface {
	CreateContainer(ctx context.Context, path Path) error
}

// ContainerDeleter is implemented by factories whose containers can be removed as a whole.
type ContainerDeleter interface {
	DeleteContainer(ctx context.Context, path Path) error
}

// WriteOnlyViewer is implemented by backends that can hand out a view of themselves that rejects
// reads and directory listings.
type WriteOnlyViewer interface {
	WriteOnlyView() ArchiveBackend
}

// Locator is implemented by backends that can name the stored object behind a path. Locations are
// slash-separated URIs; two backends returning the same location reach the same object, and a
// location below another one is inside it.
type Locator interface {
	Locate(path Path) (string, error)
}
