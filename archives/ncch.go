package archives

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/ebogdum/archivefs/backends"
	"github.com/ebogdum/archivefs/backends/romfs"
	"github.com/ebogdum/archivefs/loader"
	"github.com/ebogdum/archivefs/metadata"
)

// ContentRegistrar is implemented by factories that serve content from loaded program images.
type ContentRegistrar interface {
	Register(app loader.AppLoader) error
}

// contentResolver maps program content file paths onto the sections of a loaded image
func contentResolver(app loader.AppLoader) romfs.Resolver {
	return func(ctx context.Context, path backends.Path) ([]byte, error) {
		fileType, section, err := DecodeNCCHFilePath(path)
		if err != nil {
			return nil, err
		}
		switch fileType {
		case NCCHFileRomFS:
			return app.ReadRomFS()
		case NCCHFileCode:
			return app.ReadExeFSSection(loader.CodeSection)
		case NCCHFileExeFS:
			return app.ReadExeFSSection(section)
		case NCCHFileUpdateRomFS:
			return app.ReadUpdateRomFS()
		default:
			return nil, fmt.Errorf("unknown content file type %d: %w", fileType, metadata.ErrInvalidPath)
		}
	}
}

// SelfNCCHFactory serves the content of the running program.
type SelfNCCHFactory struct {
	mu     sync.RWMutex
	app    loader.AppLoader
	logger *zap.Logger
}

// NewSelfNCCHFactory creates the factory; it serves nothing until Register is called
func NewSelfNCCHFactory(logger *zap.Logger) *SelfNCCHFactory {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SelfNCCHFactory{logger: logger}
}

func (f *SelfNCCHFactory) Name() string {
	return "SelfNCCH"
}

// Register binds the running program. A later call replaces the earlier program.
func (f *SelfNCCHFactory) Register(app loader.AppLoader) error {
	programID, err := app.ProgramID()
	if err != nil {
		return fmt.Errorf("failed to read program id: %w", err)
	}

	f.mu.Lock()
	f.app = app
	f.mu.Unlock()

	f.logger.Info("Program content registered",
		zap.String("program_id", fmt.Sprintf("%016x", programID)))
	return nil
}

func (f *SelfNCCHFactory) Open(ctx context.Context, path backends.Path, _ uint64) (backends.ArchiveBackend, error) {
	f.mu.RLock()
	app := f.app
	f.mu.RUnlock()

	if app == nil {
		return nil, metadata.ErrNotFound
	}
	return romfs.New(f.Name(), contentResolver(app)), nil
}

func (f *SelfNCCHFactory) Format(ctx context.Context, path backends.Path, info metadata.FormatInfo, _ uint64) error {
	return metadata.ErrUnsupported
}

func (f *SelfNCCHFactory) FormatInfo(ctx context.Context, path backends.Path, _ uint64) (metadata.FormatInfo, error) {
	return metadata.FormatInfo{}, metadata.ErrUnsupported
}

// NCCHFactory serves the content of any registered program, addressed by program id.
type NCCHFactory struct {
	mu       sync.RWMutex
	contents map[uint64]loader.AppLoader
}

// NewNCCHFactory creates an empty game content factory
func NewNCCHFactory() *NCCHFactory {
	return &NCCHFactory{contents: make(map[uint64]loader.AppLoader)}
}

func (f *NCCHFactory) Name() string {
	return "NCCH"
}

// Register makes a program's content reachable by its program id
func (f *NCCHFactory) Register(app loader.AppLoader) error {
	programID, err := app.ProgramID()
	if err != nil {
		return fmt.Errorf("failed to read program id: %w", err)
	}
	f.mu.Lock()
	f.contents[programID] = app
	f.mu.Unlock()
	return nil
}

func (f *NCCHFactory) Open(ctx context.Context, path backends.Path, _ uint64) (backends.ArchiveBackend, error) {
	programID, _, err := DecodeNCCHArchivePath(path)
	if err != nil {
		return nil, err
	}

	f.mu.RLock()
	app, ok := f.contents[programID]
	f.mu.RUnlock()

	if !ok {
		return nil, metadata.ErrNotFound
	}
	return romfs.New(f.Name(), contentResolver(app)), nil
}

func (f *NCCHFactory) Format(ctx context.Context, path backends.Path, info metadata.FormatInfo, _ uint64) error {
	return metadata.ErrUnsupported
}

func (f *NCCHFactory) FormatInfo(ctx context.Context, path backends.Path, _ uint64) (metadata.FormatInfo, error) {
	return metadata.FormatInfo{}, metadata.ErrUnsupported
}

var (
	_ backends.ArchiveFactory = (*SelfNCCHFactory)(nil)
	_ backends.ArchiveFactory = (*NCCHFactory)(nil)
	_ ContentRegistrar        = (*SelfNCCHFactory)(nil)
	_ ContentRegistrar        = (*NCCHFactory)(nil)
)
