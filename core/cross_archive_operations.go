package core

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ebogdum/archivefs/backends"
	"github.com/ebogdum/archivefs/core/log"
	"github.com/ebogdum/archivefs/locks"
	"github.com/ebogdum/archivefs/metadata"
	"github.com/ebogdum/archivefs/metrics"
)

// directoryReadChunk is the number of entries pulled per Read while copying a directory tree.
const directoryReadChunk = 64

// RenameFileBetweenArchives moves a file from one open archive to another. When both handles
// share a backend instance the backend renames natively. Otherwise the file is copied and the
// source deleted; the source survives any failure before the copy is complete.
func (m *ArchiveManager) RenameFileBetweenArchives(ctx context.Context, srcHandle ArchiveHandle, srcPath backends.Path, dstHandle ArchiveHandle, dstPath backends.Path) error {
	start := time.Now()

	src, err := m.getArchive(srcHandle)
	if err != nil {
		return err
	}
	dst, err := m.getArchive(dstHandle)
	if err != nil {
		return err
	}

	release, err := m.lockArchives(ctx, src, dst)
	if err != nil {
		return err
	}
	defer release()

	if src.backend == dst.backend {
		err = src.backend.RenameFile(ctx, srcPath, dstPath)
		m.observe(src.idCode.String(), "rename_file", start, err)
		return err
	}

	err = m.moveFile(ctx, src.backend, srcPath, dst.backend, dstPath)
	metrics.CrossArchiveCopiesTotal.WithLabelValues("file", metrics.Status(err)).Inc()
	m.observe(src.idCode.String(), "rename_file", start, err)
	if err != nil {
		m.logger.Warn("Cross-archive file move failed",
			zap.Uint64("src_handle", uint64(srcHandle)),
			zap.Uint64("dst_handle", uint64(dstHandle)),
			log.Path("src_path", srcPath),
			zap.Error(err))
		return err
	}

	m.logger.Debug("File moved between archives",
		zap.Uint64("src_handle", uint64(srcHandle)),
		zap.Uint64("dst_handle", uint64(dstHandle)),
		log.Path("src_path", srcPath),
		log.Path("dst_path", dstPath))

	return nil
}

// RenameDirectoryBetweenArchives moves a directory tree from one open archive to another, with the
// same native-or-copy rule as RenameFileBetweenArchives.
func (m *ArchiveManager) RenameDirectoryBetweenArchives(ctx context.Context, srcHandle ArchiveHandle, srcPath backends.Path, dstHandle ArchiveHandle, dstPath backends.Path) error {
	start := time.Now()

	src, err := m.getArchive(srcHandle)
	if err != nil {
		return err
	}
	dst, err := m.getArchive(dstHandle)
	if err != nil {
		return err
	}

	release, err := m.lockArchives(ctx, src, dst)
	if err != nil {
		return err
	}
	defer release()

	if src.backend == dst.backend {
		err = src.backend.RenameDirectory(ctx, srcPath, dstPath)
		m.observe(src.idCode.String(), "rename_directory", start, err)
		return err
	}

	inside, err := containsPath(src.backend, srcPath, dst.backend, dstPath)
	if err != nil {
		return err
	}
	if inside {
		err = fmt.Errorf("%w: destination lies inside the source directory", metadata.ErrInvalidPath)
		m.observe(src.idCode.String(), "rename_directory", start, err)
		return err
	}

	err = m.moveDirectory(ctx, src.backend, srcPath, dst.backend, dstPath)
	metrics.CrossArchiveCopiesTotal.WithLabelValues("directory", metrics.Status(err)).Inc()
	m.observe(src.idCode.String(), "rename_directory", start, err)
	if err != nil {
		m.logger.Warn("Cross-archive directory move failed",
			zap.Uint64("src_handle", uint64(srcHandle)),
			zap.Uint64("dst_handle", uint64(dstHandle)),
			log.Path("src_path", srcPath),
			zap.Error(err))
	}
	return err
}

// lockArchives serializes moves touching the same storage. Backends implementing
// backends.Locator are keyed by their root location, so holders in other processes sharing the
// lock manager contend on the same key; other backends are keyed by handle, which only orders
// moves within this process.
func (m *ArchiveManager) lockArchives(ctx context.Context, targets ...*openArchive) (func(), error) {
	keys := make([]string, 0, len(targets))
	for _, archive := range targets {
		keys = append(keys, lockKey(archive))
	}
	release, err := locks.AcquireAll(ctx, m.lockManager, keys, locks.DefaultRetryInterval)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire archive locks: %w", err)
	}
	return release, nil
}

func lockKey(archive *openArchive) string {
	if locator, ok := archive.backend.(backends.Locator); ok {
		if location, err := locator.Locate(backends.CharPath("/")); err == nil {
			return "archive:" + location
		}
	}
	return fmt.Sprintf("archive:handle:%d", archive.handle)
}

// containsPath reports whether dstPath names srcPath itself or a place below it in the same
// storage. Backends without a Locator are assumed not to share storage.
func containsPath(src backends.ArchiveBackend, srcPath backends.Path, dst backends.ArchiveBackend, dstPath backends.Path) (bool, error) {
	srcLocator, ok := src.(backends.Locator)
	if !ok {
		return false, nil
	}
	dstLocator, ok := dst.(backends.Locator)
	if !ok {
		return false, nil
	}

	srcLocation, err := srcLocator.Locate(srcPath)
	if err != nil {
		return false, err
	}
	dstLocation, err := dstLocator.Locate(dstPath)
	if err != nil {
		return false, err
	}
	return dstLocation == srcLocation || strings.HasPrefix(dstLocation, srcLocation+"/"), nil
}

func (m *ArchiveManager) moveFile(ctx context.Context, src backends.ArchiveBackend, srcPath backends.Path, dst backends.ArchiveBackend, dstPath backends.Path) error {
	if err := m.copyFile(ctx, src, srcPath, dst, dstPath); err != nil {
		return err
	}

	if err := src.DeleteFile(ctx, srcPath); err != nil {
		// Keep exactly one copy visible
		m.discard(dst.DeleteFile(ctx, dstPath), "file", dstPath)
		return fmt.Errorf("failed to remove source after copy: %w", err)
	}
	return nil
}

func (m *ArchiveManager) moveDirectory(ctx context.Context, src backends.ArchiveBackend, srcPath backends.Path, dst backends.ArchiveBackend, dstPath backends.Path) error {
	if err := dst.CreateDirectory(ctx, dstPath); err != nil {
		return err
	}

	if err := m.copyTree(ctx, src, srcPath, dst, dstPath); err != nil {
		m.discard(dst.DeleteDirectoryRecursively(ctx, dstPath), "directory", dstPath)
		return err
	}

	if err := src.DeleteDirectoryRecursively(ctx, srcPath); err != nil {
		m.discard(dst.DeleteDirectoryRecursively(ctx, dstPath), "directory", dstPath)
		return fmt.Errorf("failed to remove source after copy: %w", err)
	}
	return nil
}

// copyTree copies the children of srcPath into the existing directory dstPath
func (m *ArchiveManager) copyTree(ctx context.Context, src backends.ArchiveBackend, srcPath backends.Path, dst backends.ArchiveBackend, dstPath backends.Path) error {
	entries, err := readAll(ctx, src, srcPath)
	if err != nil {
		return err
	}

	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}

		srcChild, err := childPath(srcPath, entry.Name)
		if err != nil {
			return err
		}
		dstChild, err := childPath(dstPath, entry.Name)
		if err != nil {
			return err
		}

		if entry.IsDirectory {
			if err := dst.CreateDirectory(ctx, dstChild); err != nil {
				return err
			}
			if err := m.copyTree(ctx, src, srcChild, dst, dstChild); err != nil {
				return err
			}
			continue
		}

		if err := m.copyFile(ctx, src, srcChild, dst, dstChild); err != nil {
			return err
		}
	}
	return nil
}

// copyFile creates dstPath and fills it with the content of srcPath. A partial destination is
// removed before returning an error.
func (m *ArchiveManager) copyFile(ctx context.Context, src backends.ArchiveBackend, srcPath backends.Path, dst backends.ArchiveBackend, dstPath backends.Path) error {
	in, err := src.OpenFile(ctx, srcPath, backends.ModeRead)
	if err != nil {
		return err
	}
	defer in.Close()

	size, err := in.Size()
	if err != nil {
		return err
	}

	if err := dst.CreateFile(ctx, dstPath, size); err != nil {
		return err
	}

	if err := writeContent(ctx, in, size, dst, dstPath); err != nil {
		m.discard(dst.DeleteFile(ctx, dstPath), "file", dstPath)
		return err
	}
	return nil
}

func writeContent(ctx context.Context, in backends.File, size int64, dst backends.ArchiveBackend, dstPath backends.Path) error {
	if size == 0 {
		return nil
	}

	out, err := dst.OpenFile(ctx, dstPath, backends.ModeWrite)
	if err != nil {
		return err
	}

	if _, err := io.Copy(io.NewOffsetWriter(out, 0), io.NewSectionReader(in, 0, size)); err != nil {
		out.Close()
		return fmt.Errorf("failed to copy file content: %w", err)
	}
	if err := out.Sync(); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func readAll(ctx context.Context, backend backends.ArchiveBackend, path backends.Path) ([]backends.Entry, error) {
	dir, err := backend.OpenDirectory(ctx, path)
	if err != nil {
		return nil, err
	}
	defer dir.Close()

	var entries []backends.Entry
	for {
		chunk, err := dir.Read(directoryReadChunk)
		if err != nil {
			return nil, err
		}
		if len(chunk) == 0 {
			return entries, nil
		}
		entries = append(entries, chunk...)
	}
}

// childPath appends name to a text path, keeping its encoding
func childPath(parent backends.Path, name string) (backends.Path, error) {
	text, err := parent.AsString()
	if err != nil || !parent.IsText() {
		return backends.Path{}, fmt.Errorf("%w: cannot descend into %s path", metadata.ErrInvalidPath, parent.Type())
	}
	joined := strings.TrimSuffix(text, "/") + "/" + name
	if parent.Type() == backends.PathWchar {
		return backends.WcharPath(joined), nil
	}
	return backends.CharPath(joined), nil
}

// discard logs a failed rollback step
func (m *ArchiveManager) discard(err error, kind string, path backends.Path) {
	if err != nil {
		m.logger.Error("Failed to remove partial copy",
			zap.String("kind", kind),
			log.Path("path", path),
			zap.Error(err))
	}
}
