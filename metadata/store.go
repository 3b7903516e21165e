// Package metadata holds the archive-level records persisted outside of the archives themselves:
// the format info supplied when an archive is created or formatted, and the opaque icon blob
// stored alongside external save data.
package metadata

import (
	"context"
	"errors"
	"time"
)

// Common archive errors. Backends and factories return these so callers can use errors.Is.
var (
	ErrNotFound          = errors.New("path not found")
	ErrAlreadyExists     = errors.New("path already exists")
	ErrForbidden         = errors.New("access forbidden")
	ErrNotFormatted      = errors.New("archive not formatted")
	ErrUnsupported       = errors.New("operation not supported by archive")
	ErrInvalidPath       = errors.New("invalid path")
	ErrInvalidMode       = errors.New("invalid open mode")
	ErrNotEnoughSpace    = errors.New("not enough space in archive")
	ErrNotAFile          = errors.New("path is not a file")
	ErrNotADirectory     = errors.New("path is not a directory")
	ErrDirectoryNotEmpty = errors.New("directory not empty")
	ErrReadOnly          = errors.New("archive is read-only")
)

// FormatInfo is the capacity contract of an archive. It is copied by value.
type FormatInfo struct {
	TotalSize         uint32 `json:"total_size"`
	NumberDirectories uint32 `json:"number_directories"`
	NumberFiles       uint32 `json:"number_files"`
	DuplicateData     bool   `json:"duplicate_data"`
}

// ArchiveRecord is the persisted state of one formatted archive.
type ArchiveRecord struct {
	Key         string     `json:"key"`          // factory-defined, e.g. "extdata/sdmc/00000000/0000008f"
	ArchiveType string     `json:"archive_type"` // factory name, e.g. "ExtSaveData"
	FormatInfo  FormatInfo `json:"format_info"`
	Icon        []byte     `json:"icon,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Store defines the interface for archive record storage
type Store interface {
	// Get retrieves the record stored under key
	Get(ctx context.Context, key string) (*ArchiveRecord, error)

	// Put creates or replaces the record stored under rec.Key
	Put(ctx context.Context, rec *ArchiveRecord) error

	// Delete removes the record stored under key
	Delete(ctx context.Context, key string) error

	// List returns all records whose key starts with prefix, ordered by key
	List(ctx context.Context, prefix string) ([]*ArchiveRecord, error)

	// Close closes the store connection
	Close() error
}
