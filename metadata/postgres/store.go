package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/ebogdum/archivefs/metadata"
)

// PostgresStore implements the metadata.Store interface using PostgreSQL
type PostgresStore struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewPostgresStore creates a new PostgreSQL metadata store. The schema is expected to be
// in place already (see schema.RunMigrations).
func NewPostgresStore(dsn string, logger *zap.Logger) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	// Test connection
	if err := db.PingContext(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresStore{
		db:     db,
		logger: logger,
	}, nil
}

// Get retrieves the archive record stored under key
func (s *PostgresStore) Get(ctx context.Context, key string) (*metadata.ArchiveRecord, error) {
	query := `
		SELECT key, archive_type, total_size, number_directories, number_files,
		       duplicate_data, icon, created_at, updated_at
		FROM archive_records
		WHERE key = $1`

	rec, err := scanRecord(s.db.QueryRowContext(ctx, query, key))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, metadata.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get archive record: %w", err)
	}
	return rec, nil
}

// Put creates or replaces an archive record
func (s *PostgresStore) Put(ctx context.Context, rec *metadata.ArchiveRecord) error {
	icon, err := metadata.EncodeIcon(rec.Icon)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO archive_records (
			key, archive_type, total_size, number_directories, number_files, duplicate_data, icon
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (key) DO UPDATE SET
			archive_type = EXCLUDED.archive_type,
			total_size = EXCLUDED.total_size,
			number_directories = EXCLUDED.number_directories,
			number_files = EXCLUDED.number_files,
			duplicate_data = EXCLUDED.duplicate_data,
			icon = EXCLUDED.icon,
			updated_at = NOW()
		RETURNING created_at, updated_at`

	err = s.db.QueryRowContext(
		ctx,
		query,
		rec.Key,
		rec.ArchiveType,
		int64(rec.FormatInfo.TotalSize),
		int64(rec.FormatInfo.NumberDirectories),
		int64(rec.FormatInfo.NumberFiles),
		rec.FormatInfo.DuplicateData,
		icon,
	).Scan(&rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to store archive record: %w", err)
	}

	s.logger.Debug("Archive record stored", zap.String("key", rec.Key))
	return nil
}

// Delete removes the archive record stored under key
func (s *PostgresStore) Delete(ctx context.Context, key string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM archive_records WHERE key = $1`, key)
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

// List returns all records whose key starts with prefix
func (s *PostgresStore) List(ctx context.Context, prefix string) ([]*metadata.ArchiveRecord, error) {
	query := `
		SELECT key, archive_type, total_size, number_directories, number_files,
		       duplicate_data, icon, created_at, updated_at
		FROM archive_records
		WHERE left(key, $1) = $2
		ORDER BY key ASC`

	rows, err := s.db.QueryContext(ctx, query, len(prefix), prefix)
	if err != nil {
		return nil, fmt.Errorf("failed to list archive records: %w", err)
	}
	defer rows.Close()

	var records []*metadata.ArchiveRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan archive record: %w", err)
		}
		records = append(records, rec)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating archive records: %w", err)
	}

	return records, nil
}

// Close closes the database connection
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*metadata.ArchiveRecord, error) {
	var rec metadata.ArchiveRecord
	var totalSize, numDirs, numFiles int64
	var icon []byte

	if err := row.Scan(
		&rec.Key,
		&rec.ArchiveType,
		&totalSize,
		&numDirs,
		&numFiles,
		&rec.FormatInfo.DuplicateData,
		&icon,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	); err != nil {
		return nil, err
	}

	rec.FormatInfo.TotalSize = uint32(totalSize)
	rec.FormatInfo.NumberDirectories = uint32(numDirs)
	rec.FormatInfo.NumberFiles = uint32(numFiles)

	var err error
	rec.Icon, err = metadata.DecodeIcon(icon)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

var _ metadata.Store = (*PostgresStore)(nil)
