package locks

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// RedisManager implements locking using Redis, for deployments where several processes share
// the same archive storage
type RedisManager struct {
	client  *redis.Client
	logger  *zap.Logger
	ttl     time.Duration
	ownerID string // Unique identifier for this lock manager instance
}

// NewRedisManager creates a new Redis-based lock manager
func NewRedisManager(redisAddr, redisPassword string, ttl time.Duration, logger *zap.Logger) (*RedisManager, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         redisAddr,
		Password:     redisPassword,
		DB:           0, // Default DB
		PoolSize:     10,
		MinIdleConns: 5,
	})

	// Test connection
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return NewRedisManagerWithClient(client, ttl, logger), nil
}

// NewRedisManagerWithClient creates a lock manager around an existing client
func NewRedisManagerWithClient(client *redis.Client, ttl time.Duration, logger *zap.Logger) *RedisManager {
	if ttl <= 0 {
		ttl = 30 * time.Second // Lock TTL to prevent deadlocks
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisManager{
		client:  client,
		logger:  logger,
		ttl:     ttl,
		ownerID: uuid.NewString(),
	}
}

func lockKey(key string) string {
	return fmt.Sprintf("archivefs:lock:%s", key)
}

// Acquire attempts to acquire a lock for the given key
func (m *RedisManager) Acquire(ctx context.Context, key string) (bool, error) {
	// Use SET with NX (only if not exists) and EX (expiration) with unique owner value
	result := m.client.SetNX(ctx, lockKey(key), m.ownerID, m.ttl)
	if err := result.Err(); err != nil {
		return false, fmt.Errorf("failed to acquire lock for key %s: %w", key, err)
	}

	acquired := result.Val()

	if acquired {
		m.logger.Debug("Lock acquired",
			zap.String("key", key),
			zap.String("owner", m.ownerID),
			zap.Duration("ttl", m.ttl))
	} else {
		m.logger.Debug("Lock already held", zap.String("key", key))
	}

	return acquired, nil
}

// releaseScript deletes the lock only if we own it
var releaseScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	else
		return 0
	end
`)

// Release releases a previously acquired lock for the given key
func (m *RedisManager) Release(ctx context.Context, key string) error {
	deleted, err := releaseScript.Run(ctx, m.client, []string{lockKey(key)}, m.ownerID).Int64()
	if err != nil {
		return fmt.Errorf("failed to release lock for key %s: %w", key, err)
	}

	if deleted == 1 {
		m.logger.Debug("Lock released",
			zap.String("key", key),
			zap.String("owner", m.ownerID))
	} else {
		m.logger.Debug("Lock not owned or already released",
			zap.String("key", key),
			zap.String("owner", m.ownerID))
	}

	return nil
}

// Close closes the Redis client connection
func (m *RedisManager) Close() error {
	return m.client.Close()
}
