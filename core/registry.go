package core

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/ebogdum/archivefs/archives"
	"github.com/ebogdum/archivefs/backends"
	"github.com/ebogdum/archivefs/backends/localfs"
	"github.com/ebogdum/archivefs/backends/noop"
	"github.com/ebogdum/archivefs/metadata"
)

// Environment is the host storage the built-in archive types are served from
type Environment struct {
	NANDRoot string
	SDMCRoot string
	Identity archives.Identity

	// Store persists format info and icons
	Store metadata.Store

	// SDMC, when set, serves the SD card archives instead of SDMCRoot
	SDMC backends.ArchiveBackend

	// FreeBytes is reported by archives without a quota
	FreeBytes uint64
}

// ErrStoreRequired is returned by RegisterArchiveTypes when the environment has no record store.
var ErrStoreRequired = errors.New("archive record store is required")

// RegisterArchiveTypes binds every built-in archive type. It must run once per manager; a second
// call fails with ErrDuplicateRegistration.
func (m *ArchiveManager) RegisterArchiveTypes(env Environment) error {
	if env.Store == nil {
		return ErrStoreRequired
	}

	m.registryMu.Lock()
	if m.builtins {
		m.registryMu.Unlock()
		return fmt.Errorf("%w: built-in archive types", ErrDuplicateRegistration)
	}
	m.builtins = true
	m.registryMu.Unlock()
	freeBytes := env.FreeBytes
	if freeBytes == 0 {
		freeBytes = localfs.DefaultFreeBytes
	}

	factories := make(map[ArchiveIDCode]backends.ArchiveFactory)

	if env.SDMCRoot != "" {
		sdmcDir := archives.SDMCDirectory(env.SDMCRoot, env.Identity)
		saveData := archives.NewSaveDataFactory(sdmcDir, env.Store, freeBytes, m.logger)
		factories[SaveData] = saveData
		factories[OtherSaveDataGeneral] = archives.NewOtherSaveDataFactory(saveData, true)
		factories[OtherSaveDataPermitted] = archives.NewOtherSaveDataFactory(saveData, false)
		factories[ExtSaveData] = archives.NewExtSaveDataFactory(sdmcDir, false, env.Store, freeBytes, m.logger)
	} else {
		m.logger.Warn("No SD card directory configured, SD card save data is unavailable")
		for _, id := range []ArchiveIDCode{SaveData, OtherSaveDataGeneral, OtherSaveDataPermitted, ExtSaveData} {
			factories[id] = noop.NewNoopFactory(id.String())
		}
	}

	switch {
	case env.SDMC != nil:
		factories[SDMC] = archives.NewSDMCFactoryWithBackend(env.SDMC, false)
		factories[SDMCWriteOnly] = archives.NewSDMCFactoryWithBackend(env.SDMC, true)
	case env.SDMCRoot != "":
		factories[SDMC] = archives.NewSDMCFactory(env.SDMCRoot, false, freeBytes, m.logger)
		factories[SDMCWriteOnly] = archives.NewSDMCFactory(env.SDMCRoot, true, freeBytes, m.logger)
	default:
		factories[SDMC] = noop.NewNoopFactory(SDMC.String())
		factories[SDMCWriteOnly] = noop.NewNoopFactory(SDMCWriteOnly.String())
	}

	if env.NANDRoot != "" {
		nandDir := archives.NANDDataDirectory(env.NANDRoot, env.Identity)
		factories[SharedExtSaveData] = archives.NewExtSaveDataFactory(nandDir, true, env.Store, freeBytes, m.logger)
		factories[SystemSaveData] = archives.NewSystemSaveDataFactory(nandDir, env.Store, freeBytes, m.logger)
	} else {
		m.logger.Warn("No NAND directory configured, system save data is unavailable")
		factories[SharedExtSaveData] = noop.NewNoopFactory(SharedExtSaveData.String())
		factories[SystemSaveData] = noop.NewNoopFactory(SystemSaveData.String())
	}

	factories[SelfNCCH] = archives.NewSelfNCCHFactory(m.logger)
	factories[NCCH] = archives.NewNCCHFactory()

	for _, id := range builtinArchiveTypes {
		if err := m.RegisterArchiveType(factories[id], id); err != nil {
			return err
		}
	}

	m.logger.Info("Archive types registered",
		zap.Int("count", len(builtinArchiveTypes)),
		zap.Bool("sdmc", env.SDMC != nil || env.SDMCRoot != ""),
		zap.Bool("nand", env.NANDRoot != ""))

	return nil
}

// builtinArchiveTypes is the registration order
var builtinArchiveTypes = []ArchiveIDCode{
	SelfNCCH,
	SaveData,
	ExtSaveData,
	SharedExtSaveData,
	SystemSaveData,
	SDMC,
	SDMCWriteOnly,
	NCCH,
	OtherSaveDataGeneral,
	OtherSaveDataPermitted,
}
