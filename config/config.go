// Package config provides configuration management for archivefs.
// It handles loading and validating configuration from YAML/JSON files and environment variables.
package config

import "time"

// AppConfig represents the complete application configuration
type AppConfig struct {
	Server        ServerConfig        `koanf:"server"`
	Auth          AuthConfig          `koanf:"auth"`
	Log           LogConfig           `koanf:"log"`
	Storage       StorageConfig       `koanf:"storage"`
	Identity      IdentityConfig      `koanf:"identity"`
	MetadataStore MetadataStoreConfig `koanf:"metadata_store"`
	DLM           DLMConfig           `koanf:"dlm"`
}

// ServerConfig holds admin HTTP server configuration
type ServerConfig struct {
	ListenAddr   string        `koanf:"listen_addr"`
	ReadTimeout  time.Duration `koanf:"read_timeout"`
	WriteTimeout time.Duration `koanf:"write_timeout"`
	RateLimit    float64       `koanf:"rate_limit"` // requests per second per client on /v1; 0 disables
	RateBurst    int           `koanf:"rate_burst"`
}

// AuthConfig holds authentication configuration
type AuthConfig struct {
	APIKeys []string `koanf:"api_keys"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// StorageConfig holds the host locations backing the archives
type StorageConfig struct {
	NANDRoot         string `koanf:"nand_root"`
	SDMCRoot         string `koanf:"sdmc_root"`
	SDMCBackend      string `koanf:"sdmc_backend"` // "localfs" or "s3"
	DefaultFreeBytes uint64 `koanf:"default_free_bytes"`
	S3AccessKey      string `koanf:"s3_access_key"`
	S3SecretKey      string `koanf:"s3_secret_key"`
	S3Region         string `koanf:"s3_region"`
	S3BucketName     string `koanf:"s3_bucket_name"`
	S3Prefix         string `koanf:"s3_prefix"`
	S3Endpoint       string `koanf:"s3_endpoint"` // Custom S3 endpoint (e.g., for MinIO)
	S3ACL            string `koanf:"s3_acl"`
	S3SSE            string `koanf:"s3_server_side_encryption"`
}

// IdentityConfig holds the identity folder names (ID0 and ID1) used in host paths
type IdentityConfig struct {
	SystemID string `koanf:"system_id"`
	SDCardID string `koanf:"sdcard_id"`
}

// MetadataStoreConfig holds archive record store configuration
type MetadataStoreConfig struct {
	Type           string `koanf:"type"` // "memory", "sqlite", "redis" or "postgres"
	SQLitePath     string `koanf:"sqlite_path"`
	DSN            string `koanf:"dsn"`
	RedisAddr      string `koanf:"redis_addr"`
	RedisPassword  string `koanf:"redis_password"`
	RedisDB        int    `koanf:"redis_db"`
	RedisKeyPrefix string `koanf:"redis_key_prefix"`

	// FormatInfoCacheTTL caches format info reads; 0 disables. Leave it off when other processes
	// write to the same store.
	FormatInfoCacheTTL time.Duration `koanf:"format_info_cache_ttl"`
}

// DLMConfig holds lock manager configuration
type DLMConfig struct {
	Type          string        `koanf:"type"` // "local" or "redis"
	RedisAddr     string        `koanf:"redis_addr"`
	RedisPassword string        `koanf:"redis_password"`
	LockTTL       time.Duration `koanf:"lock_ttl"`
}
