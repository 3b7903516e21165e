package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/ebogdum/archivefs/metadata"
)

type RedisStore struct {
	client *redis.Client
	prefix string
	logger *zap.Logger
}

// storedRecord is the JSON document kept under each record key. The icon is stored zstd-compressed.
type storedRecord struct {
	metadata.ArchiveRecord
	EncodedIcon []byte `json:"encoded_icon,omitempty"`
}

func NewRedisStore(addr, password string, db int, prefix string, logger *zap.Logger) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis metadata store: %w", err)
	}

	return NewRedisStoreWithClient(client, prefix, logger), nil
}

// NewRedisStoreWithClient wraps an existing client.
func NewRedisStoreWithClient(client *redis.Client, prefix string, logger *zap.Logger) *RedisStore {
	if prefix == "" {
		prefix = "archivefs:"
	}
	return &RedisStore{client: client, prefix: prefix, logger: logger}
}

func (s *RedisStore) Get(ctx context.Context, key string) (*metadata.ArchiveRecord, error) {
	raw, err := s.client.Get(ctx, s.recordKey(key)).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, metadata.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get archive record: %w", err)
	}

	var stored storedRecord
	if err := json.Unmarshal([]byte(raw), &stored); err != nil {
		return nil, fmt.Errorf("failed to decode archive record: %w", err)
	}
	rec := stored.ArchiveRecord
	rec.Icon, err = metadata.DecodeIcon(stored.EncodedIcon)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *RedisStore) Put(ctx context.Context, rec *metadata.ArchiveRecord) error {
	now := time.Now().UTC()
	if existing, err := s.Get(ctx, rec.Key); err == nil {
		rec.CreatedAt = existing.CreatedAt
	} else if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now

	icon, err := metadata.EncodeIcon(rec.Icon)
	if err != nil {
		return err
	}
	stored := storedRecord{ArchiveRecord: *rec, EncodedIcon: icon}
	stored.Icon = nil

	raw, err := json.Marshal(stored)
	if err != nil {
		return fmt.Errorf("failed to encode archive record: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.recordKey(rec.Key), raw, 0)
	pipe.SAdd(ctx, s.indexKey(), rec.Key)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to store archive record: %w", err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	removed, err := s.client.Del(ctx, s.recordKey(key)).Result()
	if err != nil {
		return fmt.Errorf("failed to delete archive record: %w", err)
	}
	if removed == 0 {
		return metadata.ErrNotFound
	}
	if err := s.client.SRem(ctx, s.indexKey(), key).Err(); err != nil {
		s.logger.Warn("Failed to unindex archive record", zap.String("key", key), zap.Error(err))
	}
	return nil
}

func (s *RedisStore) List(ctx context.Context, prefix string) ([]*metadata.ArchiveRecord, error) {
	keys, err := s.client.SMembers(ctx, s.indexKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list archive records: %w", err)
	}
	sort.Strings(keys)

	records := make([]*metadata.ArchiveRecord, 0)
	for _, key := range keys {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		rec, err := s.Get(ctx, key)
		if err != nil {
			if err == metadata.ErrNotFound {
				continue
			}
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) recordKey(key string) string {
	return s.prefix + "archive:" + key
}

func (s *RedisStore) indexKey() string {
	return s.prefix + "archives"
}

var _ metadata.Store = (*RedisStore)(nil)
