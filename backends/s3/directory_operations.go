package s3

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/s3"
	"go.uber.org/zap"

	"github.com/ebogdum/archivefs/backends"
	"github.com/ebogdum/archivefs/internal/pathutil"
	"github.com/ebogdum/archivefs/metadata"
)

// OpenDirectory lists the immediate children of a directory
func (a *S3Adapter) OpenDirectory(ctx context.Context, path backends.Path) (backends.Directory, error) {
	if a.writeOnly {
		return nil, metadata.ErrForbidden
	}
	cleaned, err := a.clean(path)
	if err != nil {
		return nil, err
	}
	isFile, isDir, err := a.kind(ctx, cleaned)
	if err != nil {
		return nil, err
	}
	if isFile {
		return nil, metadata.ErrNotADirectory
	}
	if !isDir {
		return nil, metadata.ErrNotFound
	}

	// Normalize the path to be a prefix
	prefix := a.dirPrefix(cleaned)

	input := &s3.ListObjectsV2Input{
		Bucket:    aws.String(a.bucketName),
		Prefix:    aws.String(prefix),
		Delimiter: aws.String("/"),
	}

	var entries []backends.Entry

	for {
		result, err := a.client.ListObjectsV2WithContext(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("failed to list objects in S3: %w", err)
		}

		// Process directory objects (common prefixes)
		for _, commonPrefix := range result.CommonPrefixes {
			if commonPrefix.Prefix == nil {
				continue
			}

			// Remove prefix and trailing slash to get directory name
			dirName := strings.TrimSuffix(strings.TrimPrefix(*commonPrefix.Prefix, prefix), "/")
			if dirName == "" {
				continue
			}

			entries = append(entries, backends.Entry{
				Name:        dirName,
				IsDirectory: true,
				IsHidden:    strings.HasPrefix(dirName, "."),
			})
		}

		// Process file objects
		for _, object := range result.Contents {
			if object.Key == nil {
				continue
			}

			// Skip if this is the directory marker itself
			if strings.HasSuffix(*object.Key, "/") {
				continue
			}

			// Get just the filename (remove prefix)
			fileName := strings.TrimPrefix(*object.Key, prefix)
			if fileName == "" || strings.Contains(fileName, "/") {
				continue // Skip if it's in a subdirectory
			}

			entry := backends.Entry{
				Name:     fileName,
				IsHidden: strings.HasPrefix(fileName, "."),
			}
			if object.Size != nil {
				entry.Size = uint64(*object.Size)
			}
			entries = append(entries, entry)
		}

		// Check if there are more results
		if result.NextContinuationToken == nil {
			break
		}
		input.ContinuationToken = result.NextContinuationToken
	}

	return &listing{entries: entries}, nil
}

// CreateDirectory creates a marker object for the directory
func (a *S3Adapter) CreateDirectory(ctx context.Context, path backends.Path) error {
	cleaned, err := a.clean(path)
	if err != nil {
		return err
	}
	if err := a.requireAbsent(ctx, cleaned); err != nil {
		return err
	}

	key := a.dirPrefix(cleaned)
	if err := a.put(ctx, key, nil); err != nil {
		return fmt.Errorf("failed to create directory marker in S3: %w", err)
	}

	a.logger.Debug("Directory created in S3",
		zap.String("bucket", a.bucketName),
		zap.String("key", key))

	return nil
}

// DeleteDirectory removes an empty directory
func (a *S3Adapter) DeleteDirectory(ctx context.Context, path backends.Path) error {
	prefix, err := a.directoryForDeletion(ctx, path)
	if err != nil {
		return err
	}
	keys, err := a.listKeys(ctx, prefix)
	if err != nil {
		return err
	}
	for _, key := range keys {
		if key != prefix {
			return metadata.ErrDirectoryNotEmpty
		}
	}
	return a.deleteKey(ctx, prefix)
}

// DeleteDirectoryRecursively removes every object below the directory, then its marker
func (a *S3Adapter) DeleteDirectoryRecursively(ctx context.Context, path backends.Path) error {
	prefix, err := a.directoryForDeletion(ctx, path)
	if err != nil {
		return err
	}
	keys, err := a.listKeys(ctx, prefix)
	if err != nil {
		return err
	}
	for _, key := range keys {
		if key == prefix {
			continue
		}
		if err := a.deleteKey(ctx, key); err != nil {
			return err
		}
	}
	return a.deleteKey(ctx, prefix)
}

func (a *S3Adapter) directoryForDeletion(ctx context.Context, path backends.Path) (string, error) {
	cleaned, err := a.clean(path)
	if err != nil {
		return "", err
	}
	if pathutil.IsRoot(cleaned) {
		return "", metadata.ErrInvalidPath
	}
	isFile, isDir, err := a.kind(ctx, cleaned)
	if err != nil {
		return "", err
	}
	if isFile {
		return "", metadata.ErrNotADirectory
	}
	if !isDir {
		return "", metadata.ErrNotFound
	}
	return a.dirPrefix(cleaned), nil
}

// RenameDirectory copies every object below src to dst, then removes the originals.
// If any copy fails the partial destination is removed and src is left untouched.
func (a *S3Adapter) RenameDirectory(ctx context.Context, src, dst backends.Path) error {
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
	if strings.HasPrefix(dstClean+"/", srcClean+"/") {
		return metadata.ErrInvalidPath
	}

	isFile, isDir, err := a.kind(ctx, srcClean)
	if err != nil {
		return err
	}
	if isFile {
		return metadata.ErrNotADirectory
	}
	if !isDir {
		return metadata.ErrNotFound
	}
	if err := a.requireAbsent(ctx, dstClean); err != nil {
		return err
	}

	srcPrefix := a.dirPrefix(srcClean)
	dstPrefix := a.dirPrefix(dstClean)
	keys, err := a.listKeys(ctx, srcPrefix)
	if err != nil {
		return err
	}

	copied := make([]string, 0, len(keys))
	for _, key := range keys {
		target := dstPrefix + strings.TrimPrefix(key, srcPrefix)
		if err := a.copyKey(ctx, key, target); err != nil {
			for _, done := range copied {
				if derr := a.deleteKey(ctx, done); derr != nil {
					a.logger.Warn("Failed to remove partial rename target",
						zap.String("key", done), zap.Error(derr))
				}
			}
			return err
		}
		copied = append(copied, target)
	}

	for _, key := range keys {
		if err := a.deleteKey(ctx, key); err != nil {
			return err
		}
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
