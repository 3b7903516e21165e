package config

import "time"

// ZeroID is the default identity folder name for both ID0 and ID1
const ZeroID = "00000000000000000000000000000000"

// DefaultAppConfig returns an AppConfig struct with sensible default values
func DefaultAppConfig() AppConfig {
	return AppConfig{
		Server: ServerConfig{
			ListenAddr:   "127.0.0.1:8480",
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			RateLimit:    200,
			RateBurst:    50,
		},
		Auth: AuthConfig{
			APIKeys: []string{},
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Storage: StorageConfig{
			NANDRoot:         "./data/nand",
			SDMCRoot:         "./data/sdmc",
			SDMCBackend:      "localfs",
			DefaultFreeBytes: 1024 * 1024 * 1024,
			S3Region:         "us-east-1",
			S3Prefix:         "sdmc/",
			S3ACL:            "private",
			S3SSE:            "AES256",
		},
		Identity: IdentityConfig{
			SystemID: ZeroID,
			SDCardID: ZeroID,
		},
		MetadataStore: MetadataStoreConfig{
			Type:           "sqlite",
			SQLitePath:     "./data/archives.sqlite3",
			DSN:            "",
			RedisAddr:      "localhost:6379",
			RedisPassword:  "",
			RedisDB:        0,
			RedisKeyPrefix: "archivefs:",

			FormatInfoCacheTTL: 0,
		},
		DLM: DLMConfig{
			Type:          "local",
			RedisAddr:     "localhost:6379",
			RedisPassword: "",
			LockTTL:       30 * time.Second,
		},
	}
}
