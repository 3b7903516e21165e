package archives

import (
	"context"

	"go.uber.org/zap"

	"github.com/ebogdum/archivefs/backends"
	"github.com/ebogdum/archivefs/backends/localfs"
	"github.com/ebogdum/archivefs/metadata"
)

// SDMCFactory serves the whole SD card. The write-only variant hides existing content.
type SDMCFactory struct {
	writeOnly bool
	open      func() (backends.ArchiveBackend, error)
}

// NewSDMCFactory serves the SD card from a host folder
func NewSDMCFactory(sdmcRoot string, writeOnly bool, freeBytes uint64, logger *zap.Logger) *SDMCFactory {
	f := &SDMCFactory{writeOnly: writeOnly}
	f.open = func() (backends.ArchiveBackend, error) {
		return localfs.NewLocalFSAdapter(sdmcRoot, localfs.Options{
			Name:      f.Name(),
			WriteOnly: writeOnly,
			FreeBytes: freeBytes,
		}, logger)
	}
	return f
}

// NewSDMCFactoryWithBackend serves the SD card from an existing backend, such as an S3 bucket.
// The backend is shared by every open instance and must tolerate Close being called per handle.
// The write-only variant needs a backend implementing backends.WriteOnlyViewer.
func NewSDMCFactoryWithBackend(backend backends.ArchiveBackend, writeOnly bool) *SDMCFactory {
	if writeOnly {
		viewer, ok := backend.(backends.WriteOnlyViewer)
		if !ok {
			return &SDMCFactory{
				writeOnly: true,
				open: func() (backends.ArchiveBackend, error) {
					return nil, metadata.ErrUnsupported
				},
			}
		}
		backend = viewer.WriteOnlyView()
	}
	return &SDMCFactory{
		writeOnly: writeOnly,
		open: func() (backends.ArchiveBackend, error) {
			return backend, nil
		},
	}
}

func (f *SDMCFactory) Name() string {
	if f.writeOnly {
		return "SDMCWriteOnly"
	}
	return "SDMC"
}

func (f *SDMCFactory) Open(ctx context.Context, path backends.Path, _ uint64) (backends.ArchiveBackend, error) {
	return f.open()
}

func (f *SDMCFactory) Format(ctx context.Context, path backends.Path, info metadata.FormatInfo, _ uint64) error {
	return metadata.ErrUnsupported
}

func (f *SDMCFactory) FormatInfo(ctx context.Context, path backends.Path, _ uint64) (metadata.FormatInfo, error) {
	return metadata.FormatInfo{}, metadata.ErrUnsupported
}

var _ backends.ArchiveFactory = (*SDMCFactory)(nil)
