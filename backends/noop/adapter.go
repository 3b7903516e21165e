// Package noop provides an archive factory and backend that reject every operation. It stands in
// for archive types whose content source is not available in this process.
package noop

import (
	"context"
	"fmt"

	"github.com/ebogdum/archivefs/backends"
	"github.com/ebogdum/archivefs/metadata"
)

// NoopFactory is a factory whose archives cannot be opened or formatted
type NoopFactory struct {
	name string
}

// NewNoopFactory creates a factory reporting name in its errors
func NewNoopFactory(name string) *NoopFactory {
	return &NoopFactory{name: name}
}

func (f *NoopFactory) Name() string {
	return f.name
}

// Open always returns ErrUnsupported
func (f *NoopFactory) Open(ctx context.Context, path backends.Path, programID uint64) (backends.ArchiveBackend, error) {
	return nil, fmt.Errorf("%s archive not available: %w", f.name, metadata.ErrUnsupported)
}

// Format always returns ErrUnsupported
func (f *NoopFactory) Format(ctx context.Context, path backends.Path, info metadata.FormatInfo, programID uint64) error {
	return fmt.Errorf("%s archive cannot be formatted: %w", f.name, metadata.ErrUnsupported)
}

// FormatInfo always returns ErrUnsupported
func (f *NoopFactory) FormatInfo(ctx context.Context, path backends.Path, programID uint64) (metadata.FormatInfo, error) {
	return metadata.FormatInfo{}, fmt.Errorf("%s archive has no format info: %w", f.name, metadata.ErrUnsupported)
}

// NoopAdapter is an archive backend that always returns ErrUnsupported
type NoopAdapter struct {
	name string
}

// NewNoopAdapter creates a new noop archive backend
func NewNoopAdapter(name string) *NoopAdapter {
	return &NoopAdapter{name: name}
}

func (n *NoopAdapter) Name() string {
	return n.name
}

func (n *NoopAdapter) unsupported(op string, path backends.Path) error {
	return fmt.Errorf("%s: cannot %s %s: %w", n.name, op, path, metadata.ErrUnsupported)
}

func (n *NoopAdapter) OpenFile(ctx context.Context, path backends.Path, mode backends.Mode) (backends.File, error) {
	return nil, n.unsupported("open file", path)
}

func (n *NoopAdapter) DeleteFile(ctx context.Context, path backends.Path) error {
	return n.unsupported("delete file", path)
}

func (n *NoopAdapter) RenameFile(ctx context.Context, src, dst backends.Path) error {
	return n.unsupported("rename file", src)
}

func (n *NoopAdapter) CreateFile(ctx context.Context, path backends.Path, size int64) error {
	return n.unsupported("create file", path)
}

func (n *NoopAdapter) CreateDirectory(ctx context.Context, path backends.Path) error {
	return n.unsupported("create directory", path)
}

func (n *NoopAdapter) DeleteDirectory(ctx context.Context, path backends.Path) error {
	return n.unsupported("delete directory", path)
}

func (n *NoopAdapter) DeleteDirectoryRecursively(ctx context.Context, path backends.Path) error {
	return n.unsupported("delete directory", path)
}

func (n *NoopAdapter) RenameDirectory(ctx context.Context, src, dst backends.Path) error {
	return n.unsupported("rename directory", src)
}

func (n *NoopAdapter) OpenDirectory(ctx context.Context, path backends.Path) (backends.Directory, error) {
	return nil, n.unsupported("open directory", path)
}

func (n *NoopAdapter) FreeBytes(ctx context.Context) (uint64, error) {
	return 0, nil
}

// Close does nothing for noop backend
func (n *NoopAdapter) Close() error {
	return nil
}

var (
	_ backends.ArchiveFactory = (*NoopFactory)(nil)
	_ backends.ArchiveBackend = (*NoopAdapter)(nil)
)
