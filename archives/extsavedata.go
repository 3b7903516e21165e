package archives

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/ebogdum/archivefs/backends"
	"github.com/ebogdum/archivefs/metadata"
)

// ExtSaveDataFactory serves ext save data containers below one mount point. The shared variant
// lives on the NAND and is shared by every program.
type ExtSaveDataFactory struct {
	mountPoint string
	shared     bool
	records    records
	freeBytes  uint64
	logger     *zap.Logger
}

// NewExtSaveDataFactory creates an ext save data factory rooted at mountPoint
func NewExtSaveDataFactory(mountPoint string, shared bool, store metadata.Store, freeBytes uint64, logger *zap.Logger) *ExtSaveDataFactory {
	if logger == nil {
		logger = zap.NewNop()
	}
	f := &ExtSaveDataFactory{
		mountPoint: mountPoint,
		shared:     shared,
		freeBytes:  freeBytes,
		logger:     logger,
	}
	f.records = records{archiveType: f.Name(), store: store}
	return f
}

func (f *ExtSaveDataFactory) Name() string {
	if f.shared {
		return "SharedExtSaveData"
	}
	return "ExtSaveData"
}

// MountPoint returns the host folder holding the containers
func (f *ExtSaveDataFactory) MountPoint() string {
	return f.mountPoint
}

func (f *ExtSaveDataFactory) media() MediaType {
	if f.shared {
		return MediaNAND
	}
	return MediaSDMC
}

func (f *ExtSaveDataFactory) locate(path backends.Path) (dir, key string, err error) {
	_, high, low, err := DecodeExtSaveDataArchivePath(path)
	if err != nil {
		return "", "", err
	}
	key = fmt.Sprintf("extdata/%s/%08x/%08x", f.media(), high, low)
	return ExtSaveDataPath(f.mountPoint, high, low), key, nil
}

func (f *ExtSaveDataFactory) Open(ctx context.Context, path backends.Path, _ uint64) (backends.ArchiveBackend, error) {
	dir, key, err := f.locate(path)
	if err != nil {
		return nil, err
	}
	ok, err := isDirectory(dir)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, metadata.ErrNotFound
	}
	return hostArchive(ctx, f.records, key, filepath.Join(dir, "user"), f.freeBytes, f.logger)
}

// Format recreates the container empty and records info
func (f *ExtSaveDataFactory) Format(ctx context.Context, path backends.Path, info metadata.FormatInfo, _ uint64) error {
	dir, key, err := f.locate(path)
	if err != nil {
		return err
	}
	if err := resetDirectory(filepath.Join(dir, "user")); err != nil {
		return err
	}
	if err := f.records.setFormatInfo(ctx, key, info); err != nil {
		return err
	}

	f.logger.Info("Ext save data formatted",
		zap.String("archive", f.Name()),
		zap.String("key", key),
		zap.Uint32("total_size", info.TotalSize))

	return nil
}

func (f *ExtSaveDataFactory) FormatInfo(ctx context.Context, path backends.Path, _ uint64) (metadata.FormatInfo, error) {
	_, key, err := f.locate(path)
	if err != nil {
		return metadata.FormatInfo{}, err
	}
	return f.records.formatInfo(ctx, key)
}

// WriteIcon stores the icon blob next to the container and in its record
func (f *ExtSaveDataFactory) WriteIcon(ctx context.Context, path backends.Path, icon []byte) error {
	dir, key, err := f.locate(path)
	if err != nil {
		return err
	}
	ok, err := isDirectory(dir)
	if err != nil {
		return err
	}
	if !ok {
		return metadata.ErrNotFound
	}
	if err := os.WriteFile(filepath.Join(dir, "icon"), icon, 0644); err != nil {
		return fmt.Errorf("failed to write icon: %w", err)
	}
	return f.records.update(ctx, key, func(rec *metadata.ArchiveRecord) {
		rec.Icon = append([]byte(nil), icon...)
	})
}

// DeleteContainer removes the container and its record. A missing container is not an error.
func (f *ExtSaveDataFactory) DeleteContainer(ctx context.Context, path backends.Path) error {
	dir, key, err := f.locate(path)
	if err != nil {
		return err
	}
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("failed to delete ext save data %s: %w", key, err)
	}
	if err := f.records.remove(ctx, key); err != nil {
		return err
	}

	f.logger.Info("Ext save data deleted",
		zap.String("archive", f.Name()),
		zap.String("key", key))

	return nil
}

var (
	_ backends.ArchiveFactory   = (*ExtSaveDataFactory)(nil)
	_ backends.IconWriter       = (*ExtSaveDataFactory)(nil)
	_ backends.ContainerDeleter = (*ExtSaveDataFactory)(nil)
)
