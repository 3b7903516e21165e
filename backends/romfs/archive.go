// Package romfs implements read-only archives over in-memory content, such as the sections of a
// loaded program image. Files are addressed by whatever path scheme the Resolver understands.
package romfs

import (
	"bytes"
	"context"

	"github.com/ebogdum/archivefs/backends"
	"github.com/ebogdum/archivefs/backends/noop"
	"github.com/ebogdum/archivefs/metadata"
)

// Resolver maps a file path to its content.
type Resolver func(ctx context.Context, path backends.Path) ([]byte, error)

// Archive serves files from a Resolver. Every mutation is unsupported.
type Archive struct {
	*noop.NoopAdapter
	resolve Resolver
}

// New creates a read-only archive
func New(name string, resolve Resolver) *Archive {
	return &Archive{NoopAdapter: noop.NewNoopAdapter(name), resolve: resolve}
}

// OpenFile opens a file for reading; any write capability is rejected
func (a *Archive) OpenFile(ctx context.Context, path backends.Path, mode backends.Mode) (backends.File, error) {
	if err := mode.Validate(); err != nil {
		return nil, err
	}
	if mode.Writable() {
		return nil, metadata.ErrReadOnly
	}

	data, err := a.resolve(ctx, path)
	if err != nil {
		return nil, err
	}
	return NewFile(data), nil
}

// File is a read-only view of a byte slice.
type File struct {
	reader *bytes.Reader
}

// NewFile wraps data without copying it
func NewFile(data []byte) *File {
	return &File{reader: bytes.NewReader(data)}
}

func (f *File) ReadAt(p []byte, off int64) (int, error) {
	return f.reader.ReadAt(p, off)
}

func (f *File) WriteAt(p []byte, off int64) (int, error) {
	return 0, metadata.ErrReadOnly
}

func (f *File) Size() (int64, error) {
	return f.reader.Size(), nil
}

func (f *File) Truncate(size int64) error {
	return metadata.ErrReadOnly
}

func (f *File) Sync() error {
	return nil
}

func (f *File) Close() error {
	return nil
}

var (
	_ backends.ArchiveBackend = (*Archive)(nil)
	_ backends.File           = (*File)(nil)
)
