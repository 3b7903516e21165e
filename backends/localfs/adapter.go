package localfs

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/ebogdum/archivefs/backends"
	"github.com/ebogdum/archivefs/internal/pathutil"
	"github.com/ebogdum/archivefs/metadata"
)

// DefaultFreeBytes is reported by archives without a size quota.
const DefaultFreeBytes uint64 = 1024 * 1024 * 1024

// Options tunes one host-directory archive.
type Options struct {
	Name      string // reported by Name(); defaults to "localfs"
	ReadOnly  bool   // reject every mutation
	WriteOnly bool   // reject reads and directory listing
	MaxBytes  uint64 // quota on the total size of all files; 0 disables it
	FreeBytes uint64 // reported when MaxBytes is 0; defaults to DefaultFreeBytes
}

// LocalFSAdapter implements backends.ArchiveBackend over a host directory
type LocalFSAdapter struct {
	rootPath string
	opts     Options
	logger   *zap.Logger
}

// NewLocalFSAdapter creates a new host-directory archive rooted at rootPath
func NewLocalFSAdapter(rootPath string, opts Options, logger *zap.Logger) (*LocalFSAdapter, error) {
	// Ensure root path exists
	if err := os.MkdirAll(rootPath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create root path %s: %w", rootPath, err)
	}

	// Verify path is accessible
	if _, err := os.Stat(rootPath); err != nil {
		return nil, fmt.Errorf("root path %s is not accessible: %w", rootPath, err)
	}

	if opts.Name == "" {
		opts.Name = "localfs"
	}
	if opts.FreeBytes == 0 {
		opts.FreeBytes = DefaultFreeBytes
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &LocalFSAdapter{
		rootPath: rootPath,
		opts:     opts,
		logger:   logger,
	}, nil
}

// Name returns the archive kind
func (a *LocalFSAdapter) Name() string {
	return a.opts.Name
}

// Root returns the host directory backing the archive
func (a *LocalFSAdapter) Root() string {
	return a.rootPath
}

// Locate returns the file URI of the host path behind path
func (a *LocalFSAdapter) Locate(path backends.Path) (string, error) {
	fullPath, _, err := a.resolve(path)
	if err != nil {
		return "", err
	}
	abs, err := filepath.Abs(fullPath)
	if err != nil {
		return "", fmt.Errorf("failed to locate %s: %w", fullPath, err)
	}
	return "file://" + strings.TrimSuffix(filepath.ToSlash(abs), "/"), nil
}

// resolve maps an archive path onto the host, returning the host path and the cleaned archive path
func (a *LocalFSAdapter) resolve(path backends.Path) (string, string, error) {
	if !path.IsText() {
		return "", "", metadata.ErrInvalidPath
	}
	text, err := path.AsString()
	if err != nil {
		return "", "", err
	}
	cleaned, err := pathutil.Clean(text)
	if err != nil {
		return "", "", err
	}
	fullPath, err := pathutil.SafeJoin(a.rootPath, cleaned)
	if err != nil {
		return "", "", err
	}
	return fullPath, cleaned, nil
}

// requireParent fails with ErrNotFound unless the parent of fullPath is an existing directory
func requireParent(fullPath string) error {
	info, err := os.Stat(filepath.Dir(fullPath))
	if err != nil {
		if os.IsNotExist(err) {
			return metadata.ErrNotFound
		}
		return fmt.Errorf("failed to stat parent directory: %w", err)
	}
	if !info.IsDir() {
		return metadata.ErrNotFound
	}
	return nil
}

func (a *LocalFSAdapter) checkWritable() error {
	if a.opts.ReadOnly {
		return metadata.ErrReadOnly
	}
	return nil
}

// OpenFile opens a file with the given capability set
func (a *LocalFSAdapter) OpenFile(ctx context.Context, path backends.Path, mode backends.Mode) (backends.File, error) {
	if err := mode.Validate(); err != nil {
		return nil, err
	}
	if mode.Writable() {
		if err := a.checkWritable(); err != nil {
			return nil, err
		}
	}
	if a.opts.WriteOnly && mode.Readable() {
		return nil, metadata.ErrForbidden
	}

	fullPath, cleaned, err := a.resolve(path)
	if err != nil {
		return nil, err
	}
	if pathutil.IsRoot(cleaned) {
		return nil, metadata.ErrNotAFile
	}
	if err := requireParent(fullPath); err != nil {
		return nil, err
	}

	info, err := os.Stat(fullPath)
	switch {
	case err == nil && info.IsDir():
		return nil, metadata.ErrNotAFile
	case err != nil && !os.IsNotExist(err):
		return nil, fmt.Errorf("failed to stat %s: %w", cleaned, err)
	case err != nil && !mode.Creates():
		return nil, metadata.ErrNotFound
	}

	flags := os.O_RDONLY
	switch {
	case mode.Readable() && mode.Writable():
		flags = os.O_RDWR
	case mode.Writable():
		flags = os.O_WRONLY
	}
	if mode.Creates() {
		flags |= os.O_CREATE
	}

	file, err := os.OpenFile(fullPath, flags, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open file %s: %w", cleaned, err)
	}

	return &localFile{file: file, mode: mode, archive: a}, nil
}

// CreateFile creates a zero-filled file of the requested size
func (a *LocalFSAdapter) CreateFile(ctx context.Context, path backends.Path, size int64) error {
	if err := a.checkWritable(); err != nil {
		return err
	}
	if size < 0 {
		return fmt.Errorf("negative file size %d: %w", size, metadata.ErrInvalidPath)
	}

	fullPath, cleaned, err := a.resolve(path)
	if err != nil {
		return err
	}
	if pathutil.IsRoot(cleaned) {
		return metadata.ErrAlreadyExists
	}
	if err := requireParent(fullPath); err != nil {
		return err
	}

	if uint64(size) > 0 && a.opts.MaxBytes > 0 {
		free, err := a.FreeBytes(ctx)
		if err != nil {
			return err
		}
		if uint64(size) > free {
			return metadata.ErrNotEnoughSpace
		}
	}

	// Create file with exclusive flag
	file, err := os.OpenFile(fullPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		if os.IsExist(err) {
			return metadata.ErrAlreadyExists
		}
		return fmt.Errorf("failed to create file %s: %w", cleaned, err)
	}
	defer file.Close()

	if err := file.Truncate(size); err != nil {
		// Clean up partially created file
		os.Remove(fullPath)
		return fmt.Errorf("failed to size file %s: %w", cleaned, err)
	}

	a.logger.Debug("File created",
		zap.String("archive", a.opts.Name),
		zap.String("path", cleaned),
		zap.Int64("size", size))

	return nil
}

// DeleteFile removes a file
func (a *LocalFSAdapter) DeleteFile(ctx context.Context, path backends.Path) error {
	if err := a.checkWritable(); err != nil {
		return err
	}

	fullPath, cleaned, err := a.resolve(path)
	if err != nil {
		return err
	}

	info, err := os.Stat(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			return metadata.ErrNotFound
		}
		return fmt.Errorf("failed to stat %s: %w", cleaned, err)
	}
	if info.IsDir() {
		return metadata.ErrNotAFile
	}

	if err := os.Remove(fullPath); err != nil {
		return fmt.Errorf("failed to delete %s: %w", cleaned, err)
	}
	return nil
}

// RenameFile moves a file within the archive
func (a *LocalFSAdapter) RenameFile(ctx context.Context, src, dst backends.Path) error {
	return a.rename(src, dst, false)
}

// RenameDirectory moves a directory within the archive
func (a *LocalFSAdapter) RenameDirectory(ctx context.Context, src, dst backends.Path) error {
	return a.rename(src, dst, true)
}

func (a *LocalFSAdapter) rename(src, dst backends.Path, directory bool) error {
	if err := a.checkWritable(); err != nil {
		return err
	}

	srcFull, srcClean, err := a.resolve(src)
	if err != nil {
		return err
	}
	dstFull, dstClean, err := a.resolve(dst)
	if err != nil {
		return err
	}
	if pathutil.IsRoot(srcClean) || pathutil.IsRoot(dstClean) {
		return metadata.ErrInvalidPath
	}

	info, err := os.Stat(srcFull)
	if err != nil {
		if os.IsNotExist(err) {
			return metadata.ErrNotFound
		}
		return fmt.Errorf("failed to stat %s: %w", srcClean, err)
	}
	if directory && !info.IsDir() {
		return metadata.ErrNotADirectory
	}
	if !directory && info.IsDir() {
		return metadata.ErrNotAFile
	}
	if directory && strings.HasPrefix(dstClean+"/", srcClean+"/") {
		return metadata.ErrInvalidPath
	}

	if _, err := os.Lstat(dstFull); err == nil {
		return metadata.ErrAlreadyExists
	}
	if err := requireParent(dstFull); err != nil {
		return err
	}

	if err := os.Rename(srcFull, dstFull); err != nil {
		return fmt.Errorf("failed to rename %s to %s: %w", srcClean, dstClean, err)
	}
	return nil
}

// CreateDirectory creates a single directory whose parent must exist
func (a *LocalFSAdapter) CreateDirectory(ctx context.Context, path backends.Path) error {
	if err := a.checkWritable(); err != nil {
		return err
	}

	fullPath, cleaned, err := a.resolve(path)
	if err != nil {
		return err
	}
	if pathutil.IsRoot(cleaned) {
		return metadata.ErrAlreadyExists
	}
	if _, err := os.Lstat(fullPath); err == nil {
		return metadata.ErrAlreadyExists
	}
	if err := requireParent(fullPath); err != nil {
		return err
	}

	if err := os.Mkdir(fullPath, 0755); err != nil {
		if os.IsExist(err) {
			return metadata.ErrAlreadyExists
		}
		return fmt.Errorf("failed to create directory %s: %w", cleaned, err)
	}
	return nil
}

// DeleteDirectory removes an empty directory
func (a *LocalFSAdapter) DeleteDirectory(ctx context.Context, path backends.Path) error {
	fullPath, cleaned, err := a.directoryForDeletion(path)
	if err != nil {
		return err
	}

	entries, err := os.ReadDir(fullPath)
	if err != nil {
		return fmt.Errorf("failed to read directory %s: %w", cleaned, err)
	}
	if len(entries) > 0 {
		return metadata.ErrDirectoryNotEmpty
	}

	if err := os.Remove(fullPath); err != nil {
		return fmt.Errorf("failed to delete directory %s: %w", cleaned, err)
	}
	return nil
}

// DeleteDirectoryRecursively removes a directory and everything below it
func (a *LocalFSAdapter) DeleteDirectoryRecursively(ctx context.Context, path backends.Path) error {
	fullPath, cleaned, err := a.directoryForDeletion(path)
	if err != nil {
		return err
	}

	if err := os.RemoveAll(fullPath); err != nil {
		return fmt.Errorf("failed to delete directory %s: %w", cleaned, err)
	}
	return nil
}

func (a *LocalFSAdapter) directoryForDeletion(path backends.Path) (string, string, error) {
	if err := a.checkWritable(); err != nil {
		return "", "", err
	}

	fullPath, cleaned, err := a.resolve(path)
	if err != nil {
		return "", "", err
	}
	if pathutil.IsRoot(cleaned) {
		return "", "", metadata.ErrInvalidPath
	}

	info, err := os.Stat(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			return "", "", metadata.ErrNotFound
		}
		return "", "", fmt.Errorf("failed to stat %s: %w", cleaned, err)
	}
	if !info.IsDir() {
		return "", "", metadata.ErrNotADirectory
	}
	return fullPath, cleaned, nil
}

// OpenDirectory snapshots the children of a directory
func (a *LocalFSAdapter) OpenDirectory(ctx context.Context, path backends.Path) (backends.Directory, error) {
	if a.opts.WriteOnly {
		return nil, metadata.ErrForbidden
	}

	fullPath, cleaned, err := a.resolve(path)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, metadata.ErrNotFound
		}
		return nil, fmt.Errorf("failed to stat %s: %w", cleaned, err)
	}
	if !info.IsDir() {
		return nil, metadata.ErrNotADirectory
	}

	dirEntries, err := os.ReadDir(fullPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory %s: %w", cleaned, err)
	}

	entries := make([]backends.Entry, 0, len(dirEntries))
	for _, de := range dirEntries {
		childInfo, err := de.Info()
		if err != nil {
			// Entry vanished between listing and stat
			continue
		}
		entry := backends.Entry{
			Name:        de.Name(),
			IsDirectory: de.IsDir(),
			IsHidden:    strings.HasPrefix(de.Name(), "."),
			IsReadOnly:  a.opts.ReadOnly || childInfo.Mode().Perm()&0200 == 0,
			IsArchive:   false,
		}
		if !de.IsDir() {
			entry.Size = uint64(childInfo.Size())
		}
		entries = append(entries, entry)
	}

	return &listing{entries: entries}, nil
}

// FreeBytes reports the remaining quota, or the configured constant when no quota is set
func (a *LocalFSAdapter) FreeBytes(ctx context.Context) (uint64, error) {
	if a.opts.MaxBytes == 0 {
		return a.opts.FreeBytes, nil
	}

	used, err := a.usedBytes()
	if err != nil {
		return 0, err
	}
	if used >= a.opts.MaxBytes {
		return 0, nil
	}
	return a.opts.MaxBytes - used, nil
}

func (a *LocalFSAdapter) usedBytes() (uint64, error) {
	var used uint64
	err := filepath.WalkDir(a.rootPath, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() {
			info, err := d.Info()
			if err != nil {
				return err
			}
			used += uint64(info.Size())
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to measure archive usage: %w", err)
	}
	return used, nil
}

// Close closes any resources used by the archive
func (a *LocalFSAdapter) Close() error {
	// No resources to close for local filesystem
	return nil
}

var (
	_ backends.ArchiveBackend = (*LocalFSAdapter)(nil)
	_ backends.Locator        = (*LocalFSAdapter)(nil)
)
