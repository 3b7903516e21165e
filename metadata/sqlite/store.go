package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"go.uber.org/zap"

	"github.com/ebogdum/archivefs/metadata"
)

type SQLiteStore struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewSQLiteStore(dbPath string, logger *zap.Logger) (*SQLiteStore, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping sqlite database: %w", err)
	}

	store := &SQLiteStore{db: db, logger: logger}
	if err := store.initSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	schema := `
CREATE TABLE IF NOT EXISTS archive_records (
    key TEXT PRIMARY KEY,
    archive_type TEXT NOT NULL,
    total_size INTEGER NOT NULL DEFAULT 0,
    number_directories INTEGER NOT NULL DEFAULT 0,
    number_files INTEGER NOT NULL DEFAULT 0,
    duplicate_data INTEGER NOT NULL DEFAULT 0,
    icon BLOB,
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_archive_records_type ON archive_records(archive_type);
`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to initialize sqlite schema: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, key string) (*metadata.ArchiveRecord, error) {
	query := `
		SELECT key, archive_type, total_size, number_directories, number_files,
		       duplicate_data, icon, created_at, updated_at
		FROM archive_records
		WHERE key = ?`

	rec, err := scanRecord(s.db.QueryRowContext(ctx, query, key))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, metadata.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get archive record: %w", err)
	}
	return rec, nil
}

func (s *SQLiteStore) Put(ctx context.Context, rec *metadata.ArchiveRecord) error {
	now := time.Now().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now

	icon, err := metadata.EncodeIcon(rec.Icon)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO archive_records (
			key, archive_type, total_size, number_directories, number_files,
			duplicate_data, icon, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			archive_type = excluded.archive_type,
			total_size = excluded.total_size,
			number_directories = excluded.number_directories,
			number_files = excluded.number_files,
			duplicate_data = excluded.duplicate_data,
			icon = excluded.icon,
			updated_at = excluded.updated_at`

	_, err = s.db.ExecContext(
		ctx,
		query,
		rec.Key,
		rec.ArchiveType,
		rec.FormatInfo.TotalSize,
		rec.FormatInfo.NumberDirectories,
		rec.FormatInfo.NumberFiles,
		rec.FormatInfo.DuplicateData,
		icon,
		rec.CreatedAt.UTC().Format(time.RFC3339Nano),
		rec.UpdatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to store archive record: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Delete(ctx context.Context, key string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM archive_records WHERE key = ?`, key)
	if err != nil {
		return fmt.Errorf("failed to delete archive record: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return metadata.ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) List(ctx context.Context, prefix string) ([]*metadata.ArchiveRecord, error) {
	query := `
		SELECT key, archive_type, total_size, number_directories, number_files,
		       duplicate_data, icon, created_at, updated_at
		FROM archive_records
		WHERE substr(key, 1, ?) = ?
		ORDER BY key ASC`

	rows, err := s.db.QueryContext(ctx, query, len(prefix), prefix)
	if err != nil {
		return nil, fmt.Errorf("failed to list archive records: %w", err)
	}
	defer rows.Close()

	records := make([]*metadata.ArchiveRecord, 0)
	for rows.Next() {
		rec, scanErr := scanRecord(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("failed to scan row: %w", scanErr)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate rows: %w", err)
	}

	s.logger.Debug("Listed archive records",
		zap.String("prefix", prefix),
		zap.Int("count", len(records)))

	return records, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*metadata.ArchiveRecord, error) {
	var rec metadata.ArchiveRecord
	var icon []byte
	var createdAt, updatedAt string

	err := row.Scan(
		&rec.Key,
		&rec.ArchiveType,
		&rec.FormatInfo.TotalSize,
		&rec.FormatInfo.NumberDirectories,
		&rec.FormatInfo.NumberFiles,
		&rec.FormatInfo.DuplicateData,
		&icon,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	rec.Icon, err = metadata.DecodeIcon(icon)
	if err != nil {
		return nil, err
	}
	rec.CreatedAt = parseTimestamp(createdAt)
	rec.UpdatedAt = parseTimestamp(updatedAt)
	return &rec, nil
}

func parseTimestamp(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	parsed, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		parsed, err = time.Parse(time.RFC3339, value)
		if err != nil {
			return time.Time{}
		}
	}
	return parsed
}

var _ metadata.Store = (*SQLiteStore)(nil)
