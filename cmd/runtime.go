package main

import (
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/ebogdum/archivefs/archives"
	"github.com/ebogdum/archivefs/backends/s3"
	"github.com/ebogdum/archivefs/config"
	"github.com/ebogdum/archivefs/core"
	"github.com/ebogdum/archivefs/core/log"
	"github.com/ebogdum/archivefs/locks"
	"github.com/ebogdum/archivefs/metadata"
	"github.com/ebogdum/archivefs/metadata/memory"
	"github.com/ebogdum/archivefs/metadata/postgres"
	"github.com/ebogdum/archivefs/metadata/redis"
	"github.com/ebogdum/archivefs/metadata/schema"
	"github.com/ebogdum/archivefs/metadata/sqlite"
)

const formatInfoCacheSize = 1000

// runtime holds everything built from the configuration
type runtime struct {
	cfg         config.AppConfig
	logger      *zap.Logger
	store       metadata.Store
	lockManager locks.Manager
	manager     *core.ArchiveManager
}

// newRuntime loads the configuration and builds the record store, lock manager and archive manager
func newRuntime() (_ *runtime, err error) {
	cfg, err := config.LoadConfigFromFile(configFilePath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := log.NewLogger(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	rt := &runtime{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			rt.Close()
		}
	}()

	logger.Info("Initializing archive record store", zap.String("type", cfg.MetadataStore.Type))
	store, err := newStore(cfg.MetadataStore, logger)
	if err != nil {
		return nil, err
	}
	rt.store = store

	logger.Info("Initializing lock manager", zap.String("type", cfg.DLM.Type))
	lockManager, err := newLockManager(cfg.DLM, logger)
	if err != nil {
		return nil, err
	}
	rt.lockManager = lockManager

	rt.manager = core.NewArchiveManager(rt.lockManager, logger,
		core.WithFormatInfoCache(cfg.MetadataStore.FormatInfoCacheTTL, formatInfoCacheSize))

	env := core.Environment{
		NANDRoot:  cfg.Storage.NANDRoot,
		SDMCRoot:  cfg.Storage.SDMCRoot,
		Identity:  archives.Identity{SystemID: cfg.Identity.SystemID, SDCardID: cfg.Identity.SDCardID},
		Store:     rt.store,
		FreeBytes: cfg.Storage.DefaultFreeBytes,
	}
	if cfg.Storage.SDMCBackend == "s3" {
		logger.Info("Initializing S3 SD card backend", zap.String("bucket", cfg.Storage.S3BucketName))
		backend, err := s3.NewS3Adapter(cfg.Storage, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize S3 backend: %w", err)
		}
		env.SDMC = backend
	}

	if err = rt.manager.RegisterArchiveTypes(env); err != nil {
		return nil, fmt.Errorf("failed to register archive types: %w", err)
	}
	if err = registerProgram(rt); err != nil {
		return nil, err
	}

	return rt, nil
}

func newStore(cfg config.MetadataStoreConfig, logger *zap.Logger) (metadata.Store, error) {
	switch cfg.Type {
	case "memory":
		return memory.NewMemoryStore(), nil
	case "sqlite":
		return sqlite.NewSQLiteStore(cfg.SQLitePath, logger)
	case "redis":
		return redis.NewRedisStore(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.RedisKeyPrefix, logger)
	case "postgres":
		logger.Info("Running database migrations")
		if err := schema.RunMigrations(cfg.DSN); err != nil {
			return nil, fmt.Errorf("failed to run database migrations: %w", err)
		}
		return postgres.NewPostgresStore(cfg.DSN, logger)
	default:
		return nil, fmt.Errorf("unknown metadata store type %q", cfg.Type)
	}
}

func newLockManager(cfg config.DLMConfig, logger *zap.Logger) (locks.Manager, error) {
	switch cfg.Type {
	case "local":
		return locks.NewLocalManager(), nil
	case "redis":
		return locks.NewRedisManager(cfg.RedisAddr, cfg.RedisPassword, cfg.LockTTL, logger)
	default:
		return nil, fmt.Errorf("unknown lock manager type %q", cfg.Type)
	}
}

// Close releases everything in reverse order of construction
func (rt *runtime) Close() {
	if rt.manager != nil {
		if err := rt.manager.Close(); err != nil {
			rt.logger.Error("Failed to close archive manager", zap.Error(err))
		}
	}
	if rt.lockManager != nil {
		rt.lockManager.Close()
	}
	if rt.store != nil {
		rt.store.Close()
	}
	if err := rt.logger.Sync(); err != nil {
		// Log to stderr since logger may not be working
		fmt.Fprintf(os.Stderr, "Failed to sync logger: %v\n", err)
	}
}
