package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ebogdum/archivefs/archives"
	"github.com/ebogdum/archivefs/backends"
	"github.com/ebogdum/archivefs/core/log"
	"github.com/ebogdum/archivefs/loader"
	"github.com/ebogdum/archivefs/metadata"
)

// FormatArchive erases and re-creates the archive identified by idCode and path with the given
// format info. Open handles onto the same archive are not touched.
func (m *ArchiveManager) FormatArchive(ctx context.Context, idCode ArchiveIDCode, info metadata.FormatInfo, path backends.Path) error {
	start := time.Now()

	factory, err := m.factory(idCode)
	if err != nil {
		return err
	}

	err = factory.Format(ctx, path, info, m.ProgramID())
	m.invalidateFormatInfo()
	m.observe(idCode.String(), "format", start, err)
	if err != nil {
		return err
	}

	m.logger.Info("Archive formatted",
		zap.Stringer("id_code", idCode),
		log.Path("path", path),
		zap.Uint32("total_size", info.TotalSize),
		zap.Uint32("number_files", info.NumberFiles),
		zap.Uint32("number_directories", info.NumberDirectories))

	return nil
}

// GetArchiveFormatInfo returns the format info recorded for an archive. Archives never formatted
// report metadata.ErrNotFormatted.
func (m *ArchiveManager) GetArchiveFormatInfo(ctx context.Context, idCode ArchiveIDCode, path backends.Path) (metadata.FormatInfo, error) {
	start := time.Now()

	factory, err := m.factory(idCode)
	if err != nil {
		return metadata.FormatInfo{}, err
	}

	programID := m.ProgramID()
	key := formatInfoCacheKey(idCode, programID, path)
	if m.formatInfoCache != nil {
		if info, ok := m.formatInfoCache.Get(key); ok {
			return info, nil
		}
	}

	info, err := factory.FormatInfo(ctx, path, programID)
	m.observe(idCode.String(), "format_info", start, err)
	if err != nil {
		return metadata.FormatInfo{}, err
	}

	if m.formatInfoCache != nil {
		m.formatInfoCache.Set(key, info)
	}
	return info, nil
}

// CreateExtSaveData creates and formats an ext save data container and stores its icon. NAND media
// selects shared ext save data. If the icon cannot be written the container is removed again.
func (m *ArchiveManager) CreateExtSaveData(ctx context.Context, media MediaType, high, low uint32, icon []byte, info metadata.FormatInfo) error {
	start := time.Now()

	idCode, factory, err := m.extSaveDataFactory(media)
	if err != nil {
		return err
	}
	path := archives.ExtSaveDataArchivePath(media, high, low)

	err = m.createExtSaveData(ctx, factory, path, icon, info)
	m.invalidateFormatInfo()
	m.observe(idCode.String(), "create_ext_save_data", start, err)
	if err != nil {
		return err
	}

	m.logger.Debug("Ext save data created",
		zap.Stringer("media", media),
		zap.Uint32("high", high),
		zap.Uint32("low", low),
		zap.Int("icon_size", len(icon)))

	return nil
}

func (m *ArchiveManager) createExtSaveData(ctx context.Context, factory backends.ArchiveFactory, path backends.Path, icon []byte, info metadata.FormatInfo) error {
	if err := factory.Format(ctx, path, info, m.ProgramID()); err != nil {
		return err
	}

	writer, ok := factory.(backends.IconWriter)
	if !ok {
		return nil
	}
	if err := writer.WriteIcon(ctx, path, icon); err != nil {
		if deleter, ok := factory.(backends.ContainerDeleter); ok {
			if cleanupErr := deleter.DeleteContainer(ctx, path); cleanupErr != nil {
				m.logger.Error("Failed to remove ext save data after icon write failure", zap.Error(cleanupErr))
			}
		}
		return fmt.Errorf("failed to write ext save data icon: %w", err)
	}
	return nil
}

// DeleteExtSaveData removes an ext save data container. Removing a missing container succeeds.
func (m *ArchiveManager) DeleteExtSaveData(ctx context.Context, media MediaType, high, low uint32) error {
	start := time.Now()

	idCode, factory, err := m.extSaveDataFactory(media)
	if err != nil {
		return err
	}

	err = deleteContainer(ctx, factory, archives.ExtSaveDataArchivePath(media, high, low))
	m.invalidateFormatInfo()
	m.observe(idCode.String(), "delete_ext_save_data", start, err)
	if err != nil {
		return err
	}

	m.logger.Debug("Ext save data deleted",
		zap.Stringer("media", media),
		zap.Uint32("high", high),
		zap.Uint32("low", low))

	return nil
}

// CreateSystemSaveData creates an empty system save data container
func (m *ArchiveManager) CreateSystemSaveData(ctx context.Context, high, low uint32) error {
	start := time.Now()

	factory, err := m.factory(SystemSaveData)
	if err != nil {
		return err
	}
	creator, ok := factory.(backends.ContainerCreator)
	if !ok {
		return fmt.Errorf("%s cannot create containers: %w", factory.Name(), metadata.ErrUnsupported)
	}

	err = creator.CreateContainer(ctx, archives.SystemSaveDataArchivePath(high, low))
	m.invalidateFormatInfo()
	m.observe(SystemSaveData.String(), "create_system_save_data", start, err)
	if err != nil {
		return err
	}

	m.logger.Debug("System save data created", zap.Uint32("high", high), zap.Uint32("low", low))
	return nil
}

// DeleteSystemSaveData removes a system save data container. Removing a missing container succeeds.
func (m *ArchiveManager) DeleteSystemSaveData(ctx context.Context, high, low uint32) error {
	start := time.Now()

	factory, err := m.factory(SystemSaveData)
	if err != nil {
		return err
	}

	err = deleteContainer(ctx, factory, archives.SystemSaveDataArchivePath(high, low))
	m.invalidateFormatInfo()
	m.observe(SystemSaveData.String(), "delete_system_save_data", start, err)
	if err != nil {
		return err
	}

	m.logger.Debug("System save data deleted", zap.Uint32("high", high), zap.Uint32("low", low))
	return nil
}

// RegisterSelfNCCH makes app the content behind the SelfNCCH and NCCH archives and records its
// program id for per-program archives.
func (m *ArchiveManager) RegisterSelfNCCH(app loader.AppLoader) error {
	programID, err := app.ProgramID()
	if err != nil {
		return fmt.Errorf("failed to read program id: %w", err)
	}

	factory, err := m.factory(SelfNCCH)
	if err != nil {
		return err
	}
	registrar, ok := factory.(archives.ContentRegistrar)
	if !ok {
		return fmt.Errorf("%s cannot take program content: %w", factory.Name(), metadata.ErrUnsupported)
	}
	if err := registrar.Register(app); err != nil {
		return err
	}

	// NCCH is optional: the program is also reachable by id when the type is present
	if ncch, err := m.factory(NCCH); err == nil {
		if registrar, ok := ncch.(archives.ContentRegistrar); ok {
			if err := registrar.Register(app); err != nil {
				return err
			}
		}
	}

	m.programID.Store(programID)
	m.invalidateFormatInfo()

	m.logger.Info("Program registered", zap.String("program_id", loader.FormatProgramID(programID)))
	return nil
}

// extSaveDataFactory picks the ext save data flavour for a media type
func (m *ArchiveManager) extSaveDataFactory(media MediaType) (ArchiveIDCode, backends.ArchiveFactory, error) {
	var idCode ArchiveIDCode
	switch media {
	case MediaNAND:
		idCode = SharedExtSaveData
	case MediaSDMC:
		idCode = ExtSaveData
	default:
		return 0, nil, fmt.Errorf("ext save data on %s: %w", media, metadata.ErrUnsupported)
	}

	factory, err := m.factory(idCode)
	if err != nil {
		return 0, nil, err
	}
	return idCode, factory, nil
}

func deleteContainer(ctx context.Context, factory backends.ArchiveFactory, path backends.Path) error {
	deleter, ok := factory.(backends.ContainerDeleter)
	if !ok {
		return fmt.Errorf("%s cannot delete containers: %w", factory.Name(), metadata.ErrUnsupported)
	}
	err := deleter.DeleteContainer(ctx, path)
	if errors.Is(err, metadata.ErrNotFound) {
		return nil
	}
	return err
}

// invalidateFormatInfo drops every cached format info. Several archive types can share one
// record, so a change through any type clears them all.
func (m *ArchiveManager) invalidateFormatInfo() {
	if m.formatInfoCache != nil {
		m.formatInfoCache.Clear()
	}
}

func formatInfoCacheKey(idCode ArchiveIDCode, programID uint64, path backends.Path) string {
	return fmt.Sprintf("%08x:%016x:%d:%s", uint32(idCode), programID, path.Type(), path)
}
