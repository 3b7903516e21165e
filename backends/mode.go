package backends

import (
	"strings"

	"github.com/ebogdum/archivefs/metadata"
)

// Mode is the capability set a file is opened with.
type Mode uint32

const (
	ModeRead Mode = 1 << iota
	ModeWrite
	ModeCreate
)

const modeMask = ModeRead | ModeWrite | ModeCreate

// Validate rejects the empty mode, unknown bits, and Create without Write.
func (m Mode) Validate() error {
	if m == 0 || m&^modeMask != 0 {
		return metadata.ErrInvalidMode
	}
	if m.Creates() && !m.Writable() {
		return metadata.ErrInvalidMode
	}
	return nil
}

func (m Mode) Readable() bool { return m&ModeRead != 0 }
func (m Mode) Writable() bool { return m&ModeWrite != 0 }
func (m Mode) Creates() bool  { return m&ModeCreate != 0 }

func (m Mode) String() string {
	var parts []string
	if m.Readable() {
		parts = append(parts, "read")
	}
	if m.Writable() {
		parts = append(parts, "write")
	}
	if m.Creates() {
		parts = append(parts, "create")
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, "|")
}
