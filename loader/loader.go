// Package loader describes the loaded program image that the self-image and game-content archives
// expose. Parsing of real image containers happens elsewhere; this package only defines the view
// the archives need and two simple implementations.
package loader

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/ebogdum/archivefs/metadata"
)

// CodeSection is the ExeFS section holding the program code.
const CodeSection = ".code"

// AppLoader provides the content of a loaded program image.
type AppLoader interface {
	ProgramID() (uint64, error)
	ReadRomFS() ([]byte, error)
	ReadUpdateRomFS() ([]byte, error)
	ReadExeFSSection(name string) ([]byte, error)
	// ReadIcon returns the SMDH icon blob
	ReadIcon() ([]byte, error)
}

// StaticLoader serves a program image held in memory. Missing parts report metadata.ErrNotFound.
type StaticLoader struct {
	ID          uint64
	RomFS       []byte
	UpdateRomFS []byte
	ExeFS       map[string][]byte
	Icon        []byte
}

func (l *StaticLoader) ProgramID() (uint64, error) {
	return l.ID, nil
}

func (l *StaticLoader) ReadRomFS() ([]byte, error) {
	return present(l.RomFS)
}

func (l *StaticLoader) ReadUpdateRomFS() ([]byte, error) {
	return present(l.UpdateRomFS)
}

func (l *StaticLoader) ReadExeFSSection(name string) ([]byte, error) {
	data, ok := l.ExeFS[name]
	if !ok {
		return nil, metadata.ErrNotFound
	}
	return data, nil
}

func (l *StaticLoader) ReadIcon() ([]byte, error) {
	return present(l.Icon)
}

func present(data []byte) ([]byte, error) {
	if data == nil {
		return nil, metadata.ErrNotFound
	}
	return data, nil
}

// DirectoryLoader reads an unpacked program image from a host directory:
//
//	program_id        hexadecimal program id
//	romfs.bin         RomFS image
//	update_romfs.bin  update RomFS image (optional)
//	icon.bin          SMDH icon (optional)
//	exefs/<section>   ExeFS sections, e.g. exefs/.code
type DirectoryLoader struct {
	root string
}

// NewDirectoryLoader checks that root holds a program_id file and returns a loader over it
func NewDirectoryLoader(root string) (*DirectoryLoader, error) {
	l := &DirectoryLoader{root: root}
	if _, err := l.ProgramID(); err != nil {
		return nil, fmt.Errorf("invalid program directory %s: %w", root, err)
	}
	return l, nil
}

func (l *DirectoryLoader) ProgramID() (uint64, error) {
	data, err := l.read("program_id")
	if err != nil {
		return 0, err
	}
	text := strings.TrimPrefix(strings.TrimSpace(string(data)), "0x")
	id, err := strconv.ParseUint(text, 16, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse program id %q: %w", text, err)
	}
	return id, nil
}

func (l *DirectoryLoader) ReadRomFS() ([]byte, error) {
	return l.read("romfs.bin")
}

func (l *DirectoryLoader) ReadUpdateRomFS() ([]byte, error) {
	return l.read("update_romfs.bin")
}

func (l *DirectoryLoader) ReadExeFSSection(name string) ([]byte, error) {
	if name == "" || strings.ContainsAny(name, `/\`) || name == ".." {
		return nil, metadata.ErrInvalidPath
	}
	return l.read(filepath.Join("exefs", name))
}

func (l *DirectoryLoader) ReadIcon() ([]byte, error) {
	return l.read("icon.bin")
}

func (l *DirectoryLoader) read(name string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(l.root, name))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, metadata.ErrNotFound
		}
		return nil, fmt.Errorf("failed to read %s: %w", name, err)
	}
	return data, nil
}

// FormatProgramID renders a program id the way DirectoryLoader expects it
func FormatProgramID(id uint64) string {
	return fmt.Sprintf("%016x", id)
}

var (
	_ AppLoader = (*StaticLoader)(nil)
	_ AppLoader = (*DirectoryLoader)(nil)
)
