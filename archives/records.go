package archives

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/ebogdum/archivefs/backends/localfs"
	"github.com/ebogdum/archivefs/metadata"
	"github.com/ebogdum/archivefs/metrics"
)

// records persists the format info and icon of the containers one factory manages.
type records struct {
	archiveType string
	store       metadata.Store
}

// observe counts one store query. A missing record is an expected answer, not a failure.
func observe(operation string, err error) {
	status := metrics.Status(err)
	if errors.Is(err, metadata.ErrNotFound) {
		status = "not_found"
	}
	metrics.RecordStoreQueriesTotal.WithLabelValues(operation, status).Inc()
}

func (r records) formatInfo(ctx context.Context, key string) (metadata.FormatInfo, error) {
	rec, err := r.store.Get(ctx, key)
	observe("get", err)
	if err != nil {
		if errors.Is(err, metadata.ErrNotFound) {
			return metadata.FormatInfo{}, metadata.ErrNotFormatted
		}
		return metadata.FormatInfo{}, fmt.Errorf("failed to read format info %s: %w", key, err)
	}
	return rec.FormatInfo, nil
}

// quota returns the byte limit recorded for a container, 0 when none was recorded
func (r records) quota(ctx context.Context, key string) (uint64, error) {
	info, err := r.formatInfo(ctx, key)
	if err != nil {
		if errors.Is(err, metadata.ErrNotFormatted) {
			return 0, nil
		}
		return 0, err
	}
	return uint64(info.TotalSize), nil
}

// update applies fn to the record under key, creating the record when absent
func (r records) update(ctx context.Context, key string, fn func(rec *metadata.ArchiveRecord)) error {
	rec, err := r.store.Get(ctx, key)
	observe("get", err)
	switch {
	case err == nil:
	case errors.Is(err, metadata.ErrNotFound):
		rec = &metadata.ArchiveRecord{Key: key, ArchiveType: r.archiveType, CreatedAt: time.Now().UTC()}
	default:
		return fmt.Errorf("failed to read archive record %s: %w", key, err)
	}
	fn(rec)
	rec.UpdatedAt = time.Now().UTC()
	err = r.store.Put(ctx, rec)
	observe("put", err)
	if err != nil {
		return fmt.Errorf("failed to store archive record %s: %w", key, err)
	}
	return nil
}

func (r records) setFormatInfo(ctx context.Context, key string, info metadata.FormatInfo) error {
	return r.update(ctx, key, func(rec *metadata.ArchiveRecord) {
		rec.FormatInfo = info
	})
}

func (r records) remove(ctx context.Context, key string) error {
	err := r.store.Delete(ctx, key)
	observe("delete", err)
	if err != nil && !errors.Is(err, metadata.ErrNotFound) {
		return fmt.Errorf("failed to delete archive record %s: %w", key, err)
	}
	return nil
}

// resetDirectory removes dir with everything below it and recreates it empty
func resetDirectory(dir string) error {
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("failed to clear %s: %w", dir, err)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}
	return nil
}

func isDirectory(dir string) (bool, error) {
	info, err := os.Stat(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to stat %s: %w", dir, err)
	}
	return info.IsDir(), nil
}

// hostArchive opens a host folder as an archive limited to the recorded quota
func hostArchive(ctx context.Context, r records, key, dir string, freeBytes uint64, logger *zap.Logger) (*localfs.LocalFSAdapter, error) {
	quota, err := r.quota(ctx, key)
	if err != nil {
		return nil, err
	}
	return localfs.NewLocalFSAdapter(dir, localfs.Options{
		Name:      r.archiveType,
		MaxBytes:  quota,
		FreeBytes: freeBytes,
	}, logger)
}
