package localfs

import (
	"context"
	"os"

	"github.com/ebogdum/archivefs/backends"
	"github.com/ebogdum/archivefs/metadata"
)

// localFile enforces the open mode on top of an *os.File.
type localFile struct {
	file    *os.File
	mode    backends.Mode
	archive *LocalFSAdapter
}

func (f *localFile) ReadAt(p []byte, off int64) (int, error) {
	if !f.mode.Readable() {
		return 0, metadata.ErrForbidden
	}
	return f.file.ReadAt(p, off)
}

func (f *localFile) WriteAt(p []byte, off int64) (int, error) {
	if !f.mode.Writable() {
		return 0, metadata.ErrForbidden
	}
	if err := f.reserve(off + int64(len(p))); err != nil {
		return 0, err
	}
	return f.file.WriteAt(p, off)
}

func (f *localFile) Size() (int64, error) {
	info, err := f.file.Stat()
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

func (f *localFile) Truncate(size int64) error {
	if !f.mode.Writable() {
		return metadata.ErrForbidden
	}
	if err := f.reserve(size); err != nil {
		return err
	}
	return f.file.Truncate(size)
}

func (f *localFile) Sync() error {
	return f.file.Sync()
}

func (f *localFile) Close() error {
	return f.file.Close()
}

// reserve checks that growing the file to end bytes fits in the archive quota
func (f *localFile) reserve(end int64) error {
	if f.archive.opts.MaxBytes == 0 {
		return nil
	}
	size, err := f.Size()
	if err != nil {
		return err
	}
	if end <= size {
		return nil
	}
	free, err := f.archive.FreeBytes(context.Background())
	if err != nil {
		return err
	}
	if uint64(end-size) > free {
		return metadata.ErrNotEnoughSpace
	}
	return nil
}

// listing serves a directory snapshot in chunks.
type listing struct {
	entries []backends.Entry
	pos     int
}

func (l *listing) Read(max int) ([]backends.Entry, error) {
	if max <= 0 || l.pos >= len(l.entries) {
		return []backends.Entry{}, nil
	}
	end := l.pos + max
	if end > len(l.entries) {
		end = len(l.entries)
	}
	out := append([]backends.Entry(nil), l.entries[l.pos:end]...)
	l.pos = end
	return out, nil
}

func (l *listing) Close() error {
	return nil
}
