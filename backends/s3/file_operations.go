package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/s3"
	"go.uber.org/zap"

	"github.com/ebogdum/archivefs/backends"
	"github.com/ebogdum/archivefs/internal/pathutil"
	"github.com/ebogdum/archivefs/metadata"
)

// OpenFile fetches the object into memory; writes are uploaded on Sync or Close
func (a *S3Adapter) OpenFile(ctx context.Context, path backends.Path, mode backends.Mode) (backends.File, error) {
	if err := mode.Validate(); err != nil {
		return nil, err
	}
	if a.writeOnly && mode.Readable() {
		return nil, metadata.ErrForbidden
	}

	cleaned, err := a.clean(path)
	if err != nil {
		return nil, err
	}
	if pathutil.IsRoot(cleaned) {
		return nil, metadata.ErrNotAFile
	}
	if err := a.requireParent(ctx, cleaned); err != nil {
		return nil, err
	}

	key := a.pathToKey(cleaned)
	data, err := a.get(ctx, key)
	switch {
	case err == nil:
	case errors.Is(err, metadata.ErrNotFound):
		if isDir, derr := a.dirExists(ctx, cleaned); derr != nil {
			return nil, derr
		} else if isDir {
			return nil, metadata.ErrNotAFile
		}
		if !mode.Creates() {
			return nil, metadata.ErrNotFound
		}
		if err := a.put(ctx, key, nil); err != nil {
			return nil, err
		}
		data = []byte{}
	default:
		return nil, err
	}

	a.logger.Debug("File opened from S3",
		zap.String("bucket", a.bucketName),
		zap.String("key", key),
		zap.Stringer("mode", mode))

	return &s3File{adapter: a, key: key, mode: mode, data: data}, nil
}

func (a *S3Adapter) get(ctx context.Context, key string) ([]byte, error) {
	result, err := a.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(a.bucketName),
		Key:    aws.String(key),
	})
	if err != nil {
		if isS3NotFound(err) {
			return nil, metadata.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get object from S3: %w", err)
	}
	defer result.Body.Close()

	data, err := io.ReadAll(result.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read object from S3: %w", err)
	}
	return data, nil
}

// CreateFile uploads a zero-filled object of the requested size
func (a *S3Adapter) CreateFile(ctx context.Context, path backends.Path, size int64) error {
	if size < 0 {
		return fmt.Errorf("negative file size %d: %w", size, metadata.ErrInvalidPath)
	}
	cleaned, err := a.clean(path)
	if err != nil {
		return err
	}
	isFile, isDir, err := a.kind(ctx, cleaned)
	if err != nil {
		return err
	}
	if isFile || isDir {
		return metadata.ErrAlreadyExists
	}
	if err := a.requireParent(ctx, cleaned); err != nil {
		return err
	}

	key := a.pathToKey(cleaned)
	if err := a.put(ctx, key, make([]byte, size)); err != nil {
		return err
	}

	a.logger.Debug("File created in S3",
		zap.String("bucket", a.bucketName),
		zap.String("key", key),
		zap.Int64("size", size))

	return nil
}

// DeleteFile removes a file object
func (a *S3Adapter) DeleteFile(ctx context.Context, path backends.Path) error {
	cleaned, err := a.clean(path)
	if err != nil {
		return err
	}
	isFile, isDir, err := a.kind(ctx, cleaned)
	if err != nil {
		return err
	}
	if isDir {
		return metadata.ErrNotAFile
	}
	if !isFile {
		return metadata.ErrNotFound
	}

	key := a.pathToKey(cleaned)
	if err := a.deleteKey(ctx, key); err != nil {
		return err
	}

	a.logger.Debug("File deleted from S3",
		zap.String("bucket", a.bucketName),
		zap.String("key", key))

	return nil
}

// RenameFile copies the object to its new key and removes the old one
func (a *S3Adapter) RenameFile(ctx context.Context, src, dst backends.Path) error {
	srcClean, err := a.clean(src)
	if err != nil {
		return err
	}
	dstClean, err := a.clean(dst)
	if err != nil {
		return err
	}
	if pathutil.IsRoot(srcClean) || pathutil.IsRoot(dstClean) {
		return metadata.ErrInvalidPath
	}

	isFile, isDir, err := a.kind(ctx, srcClean)
	if err != nil {
		return err
	}
	if isDir {
		return metadata.ErrNotAFile
	}
	if !isFile {
		return metadata.ErrNotFound
	}
	if err := a.requireAbsent(ctx, dstClean); err != nil {
		return err
	}

	if err := a.copyKey(ctx, a.pathToKey(srcClean), a.pathToKey(dstClean)); err != nil {
		return err
	}
	return a.deleteKey(ctx, a.pathToKey(srcClean))
}

// requireAbsent fails unless nothing exists at cleaned and its parent is a directory
func (a *S3Adapter) requireAbsent(ctx context.Context, cleaned string) error {
	isFile, isDir, err := a.kind(ctx, cleaned)
	if err != nil {
		return err
	}
	if isFile || isDir {
		return metadata.ErrAlreadyExists
	}
	return a.requireParent(ctx, cleaned)
}

// s3File buffers an object in memory.
type s3File struct {
	mu      sync.Mutex
	adapter *S3Adapter
	key     string
	mode    backends.Mode
	data    []byte
	dirty   bool
	closed  bool
}

func (f *s3File) ReadAt(p []byte, off int64) (int, error) {
	if !f.mode.Readable() {
		return 0, metadata.ErrForbidden
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	if off < 0 {
		return 0, fmt.Errorf("negative offset %d", off)
	}
	if off >= int64(len(f.data)) {
		return 0, io.EOF
	}
	n := copy(p, f.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (f *s3File) WriteAt(p []byte, off int64) (int, error) {
	if !f.mode.Writable() {
		return 0, metadata.ErrForbidden
	}
	if off < 0 {
		return 0, fmt.Errorf("negative offset %d", off)
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	end := off + int64(len(p))
	if end > int64(len(f.data)) {
		f.grow(end)
	}
	copy(f.data[off:], p)
	f.dirty = true
	return len(p), nil
}

func (f *s3File) grow(size int64) {
	grown := make([]byte, size)
	copy(grown, f.data)
	f.data = grown
}

func (f *s3File) Size() (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return int64(len(f.data)), nil
}

func (f *s3File) Truncate(size int64) error {
	if !f.mode.Writable() {
		return metadata.ErrForbidden
	}
	if size < 0 {
		return fmt.Errorf("negative size %d", size)
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	if size > int64(len(f.data)) {
		f.grow(size)
	} else {
		f.data = f.data[:size]
	}
	f.dirty = true
	return nil
}

func (f *s3File) Sync() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.flush()
}

func (f *s3File) flush() error {
	if !f.dirty {
		return nil
	}
	if err := f.adapter.put(context.Background(), f.key, f.data); err != nil {
		return err
	}
	f.dirty = false
	return nil
}

func (f *s3File) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil
	}
	f.closed = true
	return f.flush()
}
