package archives

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/ebogdum/archivefs/backends"
	"github.com/ebogdum/archivefs/metadata"
)

// SystemSaveDataFactory serves system save data containers on the NAND.
type SystemSaveDataFactory struct {
	nandDataDirectory string
	records           records
	freeBytes         uint64
	logger            *zap.Logger
}

// NewSystemSaveDataFactory creates the system save data factory below the NAND data folder
func NewSystemSaveDataFactory(nandDataDirectory string, store metadata.Store, freeBytes uint64, logger *zap.Logger) *SystemSaveDataFactory {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SystemSaveDataFactory{
		nandDataDirectory: nandDataDirectory,
		records:           records{archiveType: "SystemSaveData", store: store},
		freeBytes:         freeBytes,
		logger:            logger,
	}
}

func (f *SystemSaveDataFactory) Name() string {
	return "SystemSaveData"
}

func (f *SystemSaveDataFactory) locate(path backends.Path) (dir, key string, err error) {
	high, low, err := DecodeSystemSaveDataArchivePath(path)
	if err != nil {
		return "", "", err
	}
	return SystemSaveDataPath(f.nandDataDirectory, high, low), fmt.Sprintf("sysdata/%08x/%08x", high, low), nil
}

func (f *SystemSaveDataFactory) Open(ctx context.Context, path backends.Path, _ uint64) (backends.ArchiveBackend, error) {
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
	return hostArchive(ctx, f.records, key, dir, f.freeBytes, f.logger)
}

func (f *SystemSaveDataFactory) Format(ctx context.Context, path backends.Path, info metadata.FormatInfo, _ uint64) error {
	dir, key, err := f.locate(path)
	if err != nil {
		return err
	}
	if err := resetDirectory(dir); err != nil {
		return err
	}
	return f.records.setFormatInfo(ctx, key, info)
}

func (f *SystemSaveDataFactory) FormatInfo(ctx context.Context, path backends.Path, _ uint64) (metadata.FormatInfo, error) {
	_, key, err := f.locate(path)
	if err != nil {
		return metadata.FormatInfo{}, err
	}
	return f.records.formatInfo(ctx, key)
}

// CreateContainer creates the container folder, keeping any existing content
func (f *SystemSaveDataFactory) CreateContainer(ctx context.Context, path backends.Path) error {
	dir, key, err := f.locate(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create system save data %s: %w", key, err)
	}

	f.logger.Info("System save data created", zap.String("key", key))
	return nil
}

// DeleteContainer removes the container and its record. A missing container is not an error.
func (f *SystemSaveDataFactory) DeleteContainer(ctx context.Context, path backends.Path) error {
	dir, key, err := f.locate(path)
	if err != nil {
		return err
	}
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("failed to delete system save data %s: %w", key, err)
	}
	if err := f.records.remove(ctx, key); err != nil {
		return err
	}

	f.logger.Info("System save data deleted", zap.String("key", key))
	return nil
}

var (
	_ backends.ArchiveFactory   = (*SystemSaveDataFactory)(nil)
	_ backends.ContainerCreator = (*SystemSaveDataFactory)(nil)
	_ backends.ContainerDeleter = (*SystemSaveDataFactory)(nil)
)
