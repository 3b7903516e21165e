package archives

import (
	"encoding/binary"
	"fmt"

	"github.com/ebogdum/archivefs/backends"
	"github.com/ebogdum/archivefs/metadata"
)

// SelfNCCH file types
const (
	NCCHFileRomFS       uint32 = 0
	NCCHFileCode        uint32 = 1
	NCCHFileExeFS       uint32 = 2
	NCCHFileUpdateRomFS uint32 = 5
)

func words(path backends.Path, n int) ([]uint32, error) {
	if path.Type() != backends.PathBinary {
		return nil, fmt.Errorf("expected binary path, got %s: %w", path.Type(), metadata.ErrInvalidPath)
	}
	data := path.AsBinary()
	if len(data) != 4*n {
		return nil, fmt.Errorf("binary path is %d bytes, want %d: %w", len(data), 4*n, metadata.ErrInvalidPath)
	}
	out := make([]uint32, n)
	for i := range out {
		out[i] = binary.LittleEndian.Uint32(data[4*i:])
	}
	return out, nil
}

func fromWords(values ...uint32) backends.Path {
	data := make([]byte, 4*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint32(data[4*i:], v)
	}
	return backends.BinaryPath(data)
}

// ExtSaveDataArchivePath builds the archive path {media, low, high} of an ext save data container
func ExtSaveDataArchivePath(media MediaType, high, low uint32) backends.Path {
	return fromWords(uint32(media), low, high)
}

// DecodeExtSaveDataArchivePath splits an ext save data archive path
func DecodeExtSaveDataArchivePath(path backends.Path) (media MediaType, high, low uint32, err error) {
	w, err := words(path, 3)
	if err != nil {
		return 0, 0, 0, err
	}
	return MediaType(w[0]), w[2], w[1], nil
}

// SystemSaveDataArchivePath builds the archive path {low, high} of a system save data container
func SystemSaveDataArchivePath(high, low uint32) backends.Path {
	return fromWords(low, high)
}

// DecodeSystemSaveDataArchivePath splits a system save data archive path
func DecodeSystemSaveDataArchivePath(path backends.Path) (high, low uint32, err error) {
	w, err := words(path, 2)
	if err != nil {
		return 0, 0, err
	}
	return w[1], w[0], nil
}

// OtherSaveDataArchivePath builds the archive path of another program's save data. The general
// variant carries a trailing reserved word.
func OtherSaveDataArchivePath(media MediaType, programID uint64, general bool) backends.Path {
	high, low := splitID(programID)
	if general {
		return fromWords(uint32(media), low, high, 0)
	}
	return fromWords(uint32(media), low, high)
}

// DecodeOtherSaveDataArchivePath splits another program's save data archive path
func DecodeOtherSaveDataArchivePath(path backends.Path, general bool) (MediaType, uint64, error) {
	n := 3
	if general {
		n = 4
	}
	w, err := words(path, n)
	if err != nil {
		return 0, 0, err
	}
	return MediaType(w[0]), joinID(w[2], w[1]), nil
}

// NCCHArchivePath builds the archive path {low, high, media, reserved} of a game content archive
func NCCHArchivePath(programID uint64, media MediaType) backends.Path {
	high, low := splitID(programID)
	return fromWords(low, high, uint32(media), 0)
}

// DecodeNCCHArchivePath splits a game content archive path
func DecodeNCCHArchivePath(path backends.Path) (uint64, MediaType, error) {
	w, err := words(path, 4)
	if err != nil {
		return 0, 0, err
	}
	return joinID(w[1], w[0]), MediaType(w[2]), nil
}

// NCCHFilePath builds the 12-byte file path {type, exefs section name} used inside
// program content archives
func NCCHFilePath(fileType uint32, section string) backends.Path {
	data := make([]byte, 12)
	binary.LittleEndian.PutUint32(data, fileType)
	copy(data[4:], section)
	return backends.BinaryPath(data)
}

// DecodeNCCHFilePath splits a program content file path
func DecodeNCCHFilePath(path backends.Path) (uint32, string, error) {
	if path.Type() != backends.PathBinary {
		return 0, "", fmt.Errorf("expected binary file path, got %s: %w", path.Type(), metadata.ErrInvalidPath)
	}
	data := path.AsBinary()
	if len(data) != 12 {
		return 0, "", fmt.Errorf("file path is %d bytes, want 12: %w", len(data), metadata.ErrInvalidPath)
	}
	name := data[4:]
	for i, b := range name {
		if b == 0 {
			name = name[:i]
			break
		}
	}
	return binary.LittleEndian.Uint32(data), string(name), nil
}
