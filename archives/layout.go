// Package archives implements the factory for every built-in archive type. Each factory maps the
// archive path it is opened with onto host storage and hands out backends from the backends
// subpackages.
package archives

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
)

// MediaType is the coarse physical location of a container.
type MediaType uint32

const (
	MediaNAND     MediaType = 0
	MediaSDMC     MediaType = 1
	MediaGameCard MediaType = 2
)

func (m MediaType) String() string {
	switch m {
	case MediaNAND:
		return "nand"
	case MediaSDMC:
		return "sdmc"
	case MediaGameCard:
		return "gamecard"
	default:
		return fmt.Sprintf("media(%d)", uint32(m))
	}
}

// ParseMediaType accepts a media name (nand, sdmc, gamecard) or its number
func ParseMediaType(s string) (MediaType, error) {
	switch strings.ToLower(s) {
	case "nand":
		return MediaNAND, nil
	case "sdmc", "sd":
		return MediaSDMC, nil
	case "gamecard":
		return MediaGameCard, nil
	}
	v, err := strconv.ParseUint(s, 0, 32)
	if err != nil {
		return 0, fmt.Errorf("unknown media type %q", s)
	}
	return MediaType(v), nil
}

// Identity holds the identity folder names: ID0 names the system, ID1 the SD card.
type Identity struct {
	SystemID string
	SDCardID string
}

// SDMCDirectory returns the per-console folder on the SD card that holds save and ext save data
func SDMCDirectory(sdmcRoot string, id Identity) string {
	return filepath.Join(sdmcRoot, "Nintendo 3DS", id.SystemID, id.SDCardID)
}

// NANDDataDirectory returns the per-console data folder on the NAND
func NANDDataDirectory(nandRoot string, id Identity) string {
	return filepath.Join(nandRoot, "data", id.SystemID)
}

// SaveDataPath returns the host folder of a program's save data below an SD card folder
func SaveDataPath(sdmcDirectory string, programID uint64) string {
	high, low := splitID(programID)
	return filepath.Join(sdmcDirectory, "title", fmt.Sprintf("%08x", high), fmt.Sprintf("%08x", low), "data")
}

// ExtSaveDataPath returns the host folder of an ext save data container below a mount point
func ExtSaveDataPath(mountPoint string, high, low uint32) string {
	return filepath.Join(mountPoint, "extdata", fmt.Sprintf("%08x", high), fmt.Sprintf("%08x", low))
}

// SystemSaveDataPath returns the host folder of a system save data container
func SystemSaveDataPath(nandDataDirectory string, high, low uint32) string {
	return filepath.Join(nandDataDirectory, "sysdata", fmt.Sprintf("%08x", low), fmt.Sprintf("%08x", high))
}

func splitID(id uint64) (high, low uint32) {
	return uint32(id >> 32), uint32(id)
}

func joinID(high, low uint32) uint64 {
	return uint64(high)<<32 | uint64(low)
}
