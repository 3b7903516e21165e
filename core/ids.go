package core

import (
	"fmt"
	"strconv"

	"github.com/ebogdum/archivefs/archives"
)

// ArchiveIDCode identifies an archive type. The values are a fixed contract with callers.
type ArchiveIDCode uint32

const (
	SelfNCCH               ArchiveIDCode = 0x00000003
	SaveData               ArchiveIDCode = 0x00000004
	ExtSaveData            ArchiveIDCode = 0x00000006
	SharedExtSaveData      ArchiveIDCode = 0x00000007
	SystemSaveData         ArchiveIDCode = 0x00000008
	SDMC                   ArchiveIDCode = 0x00000009
	SDMCWriteOnly          ArchiveIDCode = 0x0000000A
	NCCH                   ArchiveIDCode = 0x2345678A
	OtherSaveDataGeneral   ArchiveIDCode = 0x567890B2
	OtherSaveDataPermitted ArchiveIDCode = 0x567890B4
)

var archiveIDNames = map[ArchiveIDCode]string{
	SelfNCCH:               "SelfNCCH",
	SaveData:               "SaveData",
	ExtSaveData:            "ExtSaveData",
	SharedExtSaveData:      "SharedExtSaveData",
	SystemSaveData:         "SystemSaveData",
	SDMC:                   "SDMC",
	SDMCWriteOnly:          "SDMCWriteOnly",
	NCCH:                   "NCCH",
	OtherSaveDataGeneral:   "OtherSaveDataGeneral",
	OtherSaveDataPermitted: "OtherSaveDataPermitted",
}

func (id ArchiveIDCode) String() string {
	if name, ok := archiveIDNames[id]; ok {
		return name
	}
	return fmt.Sprintf("ArchiveIDCode(0x%08x)", uint32(id))
}

// ParseArchiveIDCode accepts either a type name or a numeric value
func ParseArchiveIDCode(s string) (ArchiveIDCode, error) {
	for id, name := range archiveIDNames {
		if name == s {
			return id, nil
		}
	}
	v, err := strconv.ParseUint(s, 0, 32)
	if err != nil {
		return 0, fmt.Errorf("unknown archive type %q", s)
	}
	return ArchiveIDCode(v), nil
}

// MediaType is the coarse physical location of a container.
type MediaType = archives.MediaType

const (
	MediaNAND     = archives.MediaNAND
	MediaSDMC     = archives.MediaSDMC
	MediaGameCard = archives.MediaGameCard
)

// ArchiveHandle refers to one open archive. 0 is never issued.
type ArchiveHandle uint64

// HandleInfo describes one open archive.
type HandleInfo struct {
	Handle  ArchiveHandle `json:"handle"`
	IDCode  ArchiveIDCode `json:"id_code"`
	Type    string        `json:"type"`
	Backend string        `json:"backend"`
}
