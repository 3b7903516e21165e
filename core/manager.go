// Package core implements the archive manager: the registry of archive factories, the table of
// open archive handles, and the dispatch of every file, directory and lifecycle operation onto the
// factory or backend responsible for it.
package core

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/ebogdum/archivefs/backends"
	"github.com/ebogdum/archivefs/core/log"
	"github.com/ebogdum/archivefs/locks"
	"github.com/ebogdum/archivefs/metrics"
)

// Manager errors. Factory and backend errors are returned unchanged.
var (
	ErrInvalidHandle         = errors.New("invalid archive handle")
	ErrArchiveNotRegistered  = errors.New("archive type not registered")
	ErrDuplicateRegistration = errors.New("archive type already registered")
)

// openArchive is one entry of the handle table.
type openArchive struct {
	handle  ArchiveHandle
	idCode  ArchiveIDCode
	backend backends.ArchiveBackend
}

// ArchiveManager owns the factory registry and the handle table
type ArchiveManager struct {
	registryMu sync.RWMutex
	registry   map[ArchiveIDCode]backends.ArchiveFactory
	builtins   bool // RegisterArchiveTypes has run

	mu         sync.Mutex // guards handles and nextHandle
	handles    map[ArchiveHandle]*openArchive
	nextHandle ArchiveHandle

	programID       atomic.Uint64
	lockManager     locks.Manager
	formatInfoCache *FormatInfoCache // nil unless enabled
	logger          *zap.Logger
}

// Option configures an ArchiveManager
type Option func(*ArchiveManager)

// WithFormatInfoCache keeps format info reads for ttl, at most maxSize entries. Records written
// by another process sharing the store are not seen until the entry expires, so only enable it
// when this manager is the sole writer. A ttl of zero or less leaves caching off.
func WithFormatInfoCache(ttl time.Duration, maxSize int) Option {
	return func(m *ArchiveManager) {
		if ttl <= 0 || maxSize <= 0 {
			return
		}
		m.formatInfoCache = NewFormatInfoCache(ttl, maxSize)
	}
}

// NewArchiveManager creates a manager with an empty registry
func NewArchiveManager(lockManager locks.Manager, logger *zap.Logger, opts ...Option) *ArchiveManager {
	if lockManager == nil {
		lockManager = locks.NewLocalManager()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &ArchiveManager{
		registry:    make(map[ArchiveIDCode]backends.ArchiveFactory),
		handles:     make(map[ArchiveHandle]*openArchive),
		nextHandle:  1,
		lockManager: lockManager,
		logger:      logger,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// RegisterArchiveType binds idCode to factory. Binding an id twice fails.
func (m *ArchiveManager) RegisterArchiveType(factory backends.ArchiveFactory, idCode ArchiveIDCode) error {
	m.registryMu.Lock()
	defer m.registryMu.Unlock()

	if _, exists := m.registry[idCode]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateRegistration, idCode)
	}
	m.registry[idCode] = factory

	m.logger.Debug("Archive type registered",
		zap.Stringer("id_code", idCode),
		zap.String("factory", factory.Name()))

	return nil
}

func (m *ArchiveManager) factory(idCode ArchiveIDCode) (backends.ArchiveFactory, error) {
	m.registryMu.RLock()
	defer m.registryMu.RUnlock()

	factory, ok := m.registry[idCode]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrArchiveNotRegistered, idCode)
	}
	return factory, nil
}

// ProgramID returns the id of the running program, 0 before RegisterSelfNCCH
func (m *ArchiveManager) ProgramID() uint64 {
	return m.programID.Load()
}

// OpenArchive opens an archive of type idCode and returns a fresh handle for it
func (m *ArchiveManager) OpenArchive(ctx context.Context, idCode ArchiveIDCode, path backends.Path) (ArchiveHandle, error) {
	start := time.Now()

	factory, err := m.factory(idCode)
	if err != nil {
		return 0, err
	}

	backend, err := factory.Open(ctx, path, m.ProgramID())
	m.observe(idCode.String(), "open_archive", start, err)
	if err != nil {
		m.logger.Debug("Failed to open archive",
			zap.Stringer("id_code", idCode),
			log.Path("path", path),
			zap.Error(err))
		return 0, err
	}

	m.mu.Lock()
	handle := m.nextHandle
	m.nextHandle++
	m.handles[handle] = &openArchive{handle: handle, idCode: idCode, backend: backend}
	m.mu.Unlock()

	metrics.OpenArchives.Inc()

	m.logger.Info("Archive opened",
		zap.Stringer("id_code", idCode),
		zap.Uint64("handle", uint64(handle)),
		log.Path("path", path))

	return handle, nil
}

// CloseArchive releases the backend behind handle. The handle is invalid afterwards even if the
// backend fails to close.
func (m *ArchiveManager) CloseArchive(ctx context.Context, handle ArchiveHandle) error {
	m.mu.Lock()
	archive, ok := m.handles[handle]
	if ok {
		delete(m.handles, handle)
	}
	m.mu.Unlock()

	if !ok {
		return ErrInvalidHandle
	}
	metrics.OpenArchives.Dec()

	if err := archive.backend.Close(); err != nil {
		m.logger.Error("Failed to close archive backend",
			zap.Uint64("handle", uint64(handle)),
			zap.Error(err))
		return err
	}

	m.logger.Info("Archive closed",
		zap.Stringer("id_code", archive.idCode),
		zap.Uint64("handle", uint64(handle)))

	return nil
}

// getArchive resolves a handle. Every handle-taking operation goes through here.
func (m *ArchiveManager) getArchive(handle ArchiveHandle) (*openArchive, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	archive, ok := m.handles[handle]
	if !ok {
		return nil, ErrInvalidHandle
	}
	return archive, nil
}

// OpenHandles returns the open handles in ascending order
func (m *ArchiveManager) OpenHandles() []HandleInfo {
	m.mu.Lock()
	infos := make([]HandleInfo, 0, len(m.handles))
	for _, archive := range m.handles {
		infos = append(infos, HandleInfo{
			Handle:  archive.handle,
			IDCode:  archive.idCode,
			Type:    archive.idCode.String(),
			Backend: archive.backend.Name(),
		})
	}
	m.mu.Unlock()

	sort.Slice(infos, func(i, j int) bool { return infos[i].Handle < infos[j].Handle })
	return infos
}

// Close closes every open archive and stops background work
func (m *ArchiveManager) Close() error {
	m.mu.Lock()
	open := m.handles
	m.handles = make(map[ArchiveHandle]*openArchive)
	m.mu.Unlock()

	var errs []error
	for handle, archive := range open {
		metrics.OpenArchives.Dec()
		if err := archive.backend.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close archive %d: %w", handle, err))
		}
	}
	if m.formatInfoCache != nil {
		m.formatInfoCache.Stop()
	}

	if len(open) > 0 {
		m.logger.Info("Closed open archives", zap.Int("count", len(open)))
	}
	return errors.Join(errs...)
}

// observe records the outcome of one operation
func (m *ArchiveManager) observe(archiveType, operation string, start time.Time, err error) {
	metrics.ArchiveOpsTotal.WithLabelValues(archiveType, operation, metrics.Status(err)).Inc()
	metrics.ArchiveOpDuration.WithLabelValues(archiveType, operation).Observe(time.Since(start).Seconds())
}
