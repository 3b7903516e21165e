package core

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/ebogdum/archivefs/backends"
	"github.com/ebogdum/archivefs/core/log"
)

// OpenDirectoryFromArchive opens a directory listing inside the archive behind handle
func (m *ArchiveManager) OpenDirectoryFromArchive(ctx context.Context, handle ArchiveHandle, path backends.Path) (backends.Directory, error) {
	start := time.Now()

	archive, err := m.getArchive(handle)
	if err != nil {
		return nil, err
	}

	dir, err := archive.backend.OpenDirectory(ctx, path)
	m.observe(archive.idCode.String(), "open_directory", start, err)
	return dir, err
}

// CreateDirectoryFromArchive creates a directory inside the archive behind handle
func (m *ArchiveManager) CreateDirectoryFromArchive(ctx context.Context, handle ArchiveHandle, path backends.Path) error {
	return m.directoryOp(ctx, handle, path, "create_directory", func(b backends.ArchiveBackend) error {
		return b.CreateDirectory(ctx, path)
	})
}

// DeleteDirectoryFromArchive deletes an empty directory inside the archive behind handle
func (m *ArchiveManager) DeleteDirectoryFromArchive(ctx context.Context, handle ArchiveHandle, path backends.Path) error {
	return m.directoryOp(ctx, handle, path, "delete_directory", func(b backends.ArchiveBackend) error {
		return b.DeleteDirectory(ctx, path)
	})
}

// DeleteDirectoryRecursivelyFromArchive deletes a directory and everything below it
func (m *ArchiveManager) DeleteDirectoryRecursivelyFromArchive(ctx context.Context, handle ArchiveHandle, path backends.Path) error {
	return m.directoryOp(ctx, handle, path, "delete_directory_recursively", func(b backends.ArchiveBackend) error {
		return b.DeleteDirectoryRecursively(ctx, path)
	})
}

func (m *ArchiveManager) directoryOp(ctx context.Context, handle ArchiveHandle, path backends.Path, operation string, op func(backends.ArchiveBackend) error) error {
	start := time.Now()

	archive, err := m.getArchive(handle)
	if err != nil {
		return err
	}

	err = op(archive.backend)
	m.observe(archive.idCode.String(), operation, start, err)
	if err != nil {
		return err
	}

	m.logger.Debug("Directory operation completed",
		zap.String("operation", operation),
		zap.Uint64("handle", uint64(handle)),
		log.Path("path", path))

	return nil
}
