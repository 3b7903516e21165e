package core

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/ebogdum/archivefs/backends"
	"github.com/ebogdum/archivefs/core/log"
)

// OpenFileFromArchive opens a file inside the archive behind handle
func (m *ArchiveManager) OpenFileFromArchive(ctx context.Context, handle ArchiveHandle, path backends.Path, mode backends.Mode) (backends.File, error) {
	start := time.Now()

	archive, err := m.getArchive(handle)
	if err != nil {
		return nil, err
	}

	file, err := archive.backend.OpenFile(ctx, path, mode)
	m.observe(archive.idCode.String(), "open_file", start, err)
	if err != nil {
		return nil, err
	}

	m.logger.Debug("File opened",
		zap.Uint64("handle", uint64(handle)),
		log.Path("path", path),
		zap.Uint32("mode", uint32(mode)))

	return file, nil
}

// DeleteFileFromArchive deletes a file inside the archive behind handle
func (m *ArchiveManager) DeleteFileFromArchive(ctx context.Context, handle ArchiveHandle, path backends.Path) error {
	start := time.Now()

	archive, err := m.getArchive(handle)
	if err != nil {
		return err
	}

	err = archive.backend.DeleteFile(ctx, path)
	m.observe(archive.idCode.String(), "delete_file", start, err)
	if err != nil {
		return err
	}

	m.logger.Debug("File deleted",
		zap.Uint64("handle", uint64(handle)),
		log.Path("path", path))

	return nil
}

// CreateFileInArchive creates a zero-filled file of size bytes inside the archive behind handle
func (m *ArchiveManager) CreateFileInArchive(ctx context.Context, handle ArchiveHandle, path backends.Path, size int64) error {
	start := time.Now()

	archive, err := m.getArchive(handle)
	if err != nil {
		return err
	}

	err = archive.backend.CreateFile(ctx, path, size)
	m.observe(archive.idCode.String(), "create_file", start, err)
	if err != nil {
		return err
	}

	m.logger.Debug("File created",
		zap.Uint64("handle", uint64(handle)),
		log.Path("path", path),
		zap.Int64("size", log.SanitizeSize(size)))

	return nil
}

// GetFreeBytesInArchive reports the space still writable in the archive behind handle
func (m *ArchiveManager) GetFreeBytesInArchive(ctx context.Context, handle ArchiveHandle) (uint64, error) {
	start := time.Now()

	archive, err := m.getArchive(handle)
	if err != nil {
		return 0, err
	}

	free, err := archive.backend.FreeBytes(ctx)
	m.observe(archive.idCode.String(), "free_bytes", start, err)
	return free, err
}
