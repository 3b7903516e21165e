package archives

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/ebogdum/archivefs/backends"
	"github.com/ebogdum/archivefs/metadata"
)

// saveDataSource manages per-program save data folders on the SD card.
type saveDataSource struct {
	sdmcDirectory string
	records       records
	freeBytes     uint64
	logger        *zap.Logger
}

func saveDataKey(programID uint64) string {
	return fmt.Sprintf("savedata/%016x", programID)
}

func (s *saveDataSource) open(ctx context.Context, programID uint64) (backends.ArchiveBackend, error) {
	dir := SaveDataPath(s.sdmcDirectory, programID)
	ok, err := isDirectory(dir)
	if err != nil {
		return nil, err
	}
	if !ok {
		// Save data must be formatted before it can be opened
		return nil, metadata.ErrNotFormatted
	}
	return hostArchive(ctx, s.records, saveDataKey(programID), dir, s.freeBytes, s.logger)
}

func (s *saveDataSource) format(ctx context.Context, programID uint64, info metadata.FormatInfo) error {
	if err := resetDirectory(SaveDataPath(s.sdmcDirectory, programID)); err != nil {
		return err
	}
	if err := s.records.setFormatInfo(ctx, saveDataKey(programID), info); err != nil {
		return err
	}
	s.logger.Info("Save data formatted",
		zap.String("program_id", fmt.Sprintf("%016x", programID)),
		zap.Uint32("total_size", info.TotalSize))
	return nil
}

func (s *saveDataSource) formatInfo(ctx context.Context, programID uint64) (metadata.FormatInfo, error) {
	return s.records.formatInfo(ctx, saveDataKey(programID))
}

// SaveDataFactory serves the save data of the running program.
type SaveDataFactory struct {
	source *saveDataSource
}

// NewSaveDataFactory creates the factory for the running program's save data
func NewSaveDataFactory(sdmcDirectory string, store metadata.Store, freeBytes uint64, logger *zap.Logger) *SaveDataFactory {
	return &SaveDataFactory{source: newSaveDataSource(sdmcDirectory, store, freeBytes, logger)}
}

func newSaveDataSource(sdmcDirectory string, store metadata.Store, freeBytes uint64, logger *zap.Logger) *saveDataSource {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &saveDataSource{
		sdmcDirectory: sdmcDirectory,
		records:       records{archiveType: "SaveData", store: store},
		freeBytes:     freeBytes,
		logger:        logger,
	}
}

func (f *SaveDataFactory) Name() string {
	return "SaveData"
}

func (f *SaveDataFactory) Open(ctx context.Context, path backends.Path, programID uint64) (backends.ArchiveBackend, error) {
	return f.source.open(ctx, programID)
}

func (f *SaveDataFactory) Format(ctx context.Context, path backends.Path, info metadata.FormatInfo, programID uint64) error {
	return f.source.format(ctx, programID, info)
}

func (f *SaveDataFactory) FormatInfo(ctx context.Context, path backends.Path, programID uint64) (metadata.FormatInfo, error) {
	return f.source.formatInfo(ctx, programID)
}

// OtherSaveDataFactory serves the save data of a program named in the archive path. The
// permitted variant cannot format.
type OtherSaveDataFactory struct {
	source  *saveDataSource
	general bool
}

// NewOtherSaveDataFactory creates a factory sharing the save data folders of source
func NewOtherSaveDataFactory(saveData *SaveDataFactory, general bool) *OtherSaveDataFactory {
	return &OtherSaveDataFactory{source: saveData.source, general: general}
}

func (f *OtherSaveDataFactory) Name() string {
	if f.general {
		return "OtherSaveDataGeneral"
	}
	return "OtherSaveDataPermitted"
}

func (f *OtherSaveDataFactory) programID(path backends.Path) (uint64, error) {
	media, programID, err := DecodeOtherSaveDataArchivePath(path, f.general)
	if err != nil {
		return 0, err
	}
	switch media {
	case MediaSDMC:
		return programID, nil
	case MediaNAND:
		return 0, metadata.ErrNotFound
	case MediaGameCard:
		return 0, metadata.ErrUnsupported
	default:
		return 0, fmt.Errorf("unknown media type %d: %w", media, metadata.ErrInvalidPath)
	}
}

func (f *OtherSaveDataFactory) Open(ctx context.Context, path backends.Path, _ uint64) (backends.ArchiveBackend, error) {
	programID, err := f.programID(path)
	if err != nil {
		return nil, err
	}
	return f.source.open(ctx, programID)
}

func (f *OtherSaveDataFactory) Format(ctx context.Context, path backends.Path, info metadata.FormatInfo, _ uint64) error {
	if !f.general {
		return metadata.ErrUnsupported
	}
	programID, err := f.programID(path)
	if err != nil {
		return err
	}
	return f.source.format(ctx, programID, info)
}

func (f *OtherSaveDataFactory) FormatInfo(ctx context.Context, path backends.Path, _ uint64) (metadata.FormatInfo, error) {
	programID, err := f.programID(path)
	if err != nil {
		return metadata.FormatInfo{}, err
	}
	return f.source.formatInfo(ctx, programID)
}

var (
	_ backends.ArchiveFactory = (*SaveDataFactory)(nil)
	_ backends.ArchiveFactory = (*OtherSaveDataFactory)(nil)
)
