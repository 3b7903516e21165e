package backends

import (
	"bytes"
	"encoding/hex"
	"fmt"

	"golang.org/x/text/encoding/unicode"

	"github.com/ebogdum/archivefs/metadata"
)

// LowPathType tags how the bytes of a Path are encoded.
type LowPathType uint32

const (
	PathInvalid LowPathType = 0
	PathEmpty   LowPathType = 1
	PathBinary  LowPathType = 2
	PathChar    LowPathType = 3
	PathWchar   LowPathType = 4
)

func (t LowPathType) String() string {
	switch t {
	case PathEmpty:
		return "empty"
	case PathBinary:
		return "binary"
	case PathChar:
		return "char"
	case PathWchar:
		return "wchar"
	default:
		return "invalid"
	}
}

var utf16le = unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)

// Path addresses either a location inside an archive or the archive itself. Text paths are
// held decoded; binary paths keep their raw bytes.
type Path struct {
	typ    LowPathType
	text   string
	binary []byte
}

// EmptyPath returns the empty path.
func EmptyPath() Path {
	return Path{typ: PathEmpty}
}

// BinaryPath returns a binary path over a copy of data.
func BinaryPath(data []byte) Path {
	return Path{typ: PathBinary, binary: append([]byte(nil), data...)}
}

// CharPath returns a narrow text path.
func CharPath(s string) Path {
	return Path{typ: PathChar, text: s}
}

// WcharPath returns a wide text path.
func WcharPath(s string) Path {
	return Path{typ: PathWchar, text: s}
}

// NewPath decodes a path as it arrives from a service call: typ tags the encoding and data holds
// the raw bytes. Char data is NUL-terminated ASCII, Wchar data NUL-terminated UTF-16LE.
func NewPath(typ LowPathType, data []byte) (Path, error) {
	switch typ {
	case PathEmpty:
		return EmptyPath(), nil
	case PathBinary:
		return BinaryPath(data), nil
	case PathChar:
		if i := bytes.IndexByte(data, 0); i >= 0 {
			data = data[:i]
		}
		return CharPath(string(data)), nil
	case PathWchar:
		for i := 0; i+1 < len(data); i += 2 {
			if data[i] == 0 && data[i+1] == 0 {
				data = data[:i]
				break
			}
		}
		if len(data)%2 != 0 {
			return Path{}, fmt.Errorf("odd-length wide path: %w", metadata.ErrInvalidPath)
		}
		decoded, err := utf16le.NewDecoder().Bytes(data)
		if err != nil {
			return Path{}, fmt.Errorf("failed to decode wide path: %w", metadata.ErrInvalidPath)
		}
		return WcharPath(string(decoded)), nil
	default:
		return Path{typ: PathInvalid}, nil
	}
}

// Type returns the encoding tag.
func (p Path) Type() LowPathType {
	return p.typ
}

// IsValid reports whether the path carries a known encoding.
func (p Path) IsValid() bool {
	return p.typ >= PathEmpty && p.typ <= PathWchar
}

// IsText reports whether the path is a char or wchar path.
func (p Path) IsText() bool {
	return p.typ == PathChar || p.typ == PathWchar
}

// AsString returns the text form of a text or empty path.
func (p Path) AsString() (string, error) {
	switch p.typ {
	case PathEmpty:
		return "", nil
	case PathChar, PathWchar:
		return p.text, nil
	default:
		return "", fmt.Errorf("%s path has no text form: %w", p.typ, metadata.ErrInvalidPath)
	}
}

// AsBinary returns the bytes of the path. Text paths are re-encoded without a terminator.
func (p Path) AsBinary() []byte {
	switch p.typ {
	case PathBinary:
		return append([]byte(nil), p.binary...)
	case PathChar:
		return []byte(p.text)
	case PathWchar:
		encoded, err := utf16le.NewEncoder().Bytes([]byte(p.text))
		if err != nil {
			return nil
		}
		return encoded
	default:
		return nil
	}
}

// Equal reports whether two paths have the same type and content.
func (p Path) Equal(o Path) bool {
	if p.typ != o.typ {
		return false
	}
	if p.typ == PathBinary {
		return bytes.Equal(p.binary, o.binary)
	}
	return p.text == o.text
}

func (p Path) String() string {
	switch p.typ {
	case PathEmpty:
		return "[Empty]"
	case PathBinary:
		return "[Binary: " + hex.EncodeToString(p.binary) + "]"
	case PathChar, PathWchar:
		return p.text
	default:
		return "[Invalid]"
	}
}
