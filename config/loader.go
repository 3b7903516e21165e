package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix prefixes every environment override, e.g. ARCHIVEFS_LOG_LEVEL=debug
const EnvPrefix = "ARCHIVEFS_"

// LoadConfig loads configuration from multiple sources with strict priority:
// 1. Environment variables (highest priority)
// 2. Config file (config.yaml, config.yml or config.json in the working directory)
// 3. Defaults (lowest priority)
func LoadConfig() (AppConfig, error) {
	return LoadConfigFromFile("")
}

// LoadConfigFromFile loads configuration from multiple sources with a specific config file:
// 1. Environment variables (highest priority)
// 2. Specified config file or default config files
// 3. Defaults (lowest priority)
func LoadConfigFromFile(configFilePath string) (AppConfig, error) {
	k := koanf.New(".")

	// Load default configuration first
	defaultCfg := DefaultAppConfig()
	if err := k.Load(structs.Provider(defaultCfg, "koanf"), nil); err != nil {
		return AppConfig{}, fmt.Errorf("failed to load default config: %w", err)
	}

	if configFilePath != "" {
		if _, err := os.Stat(configFilePath); err != nil {
			return AppConfig{}, fmt.Errorf("specified config file %s not found: %w", configFilePath, err)
		}
		if err := k.Load(file.Provider(configFilePath), parserFor(configFilePath)); err != nil {
			return AppConfig{}, fmt.Errorf("failed to load config file %s: %w", configFilePath, err)
		}
	} else {
		// Load from default config files if they exist
		configFiles := []string{"config.yaml", "config.yml", "config.json"}
		for _, configFile := range configFiles {
			if _, err := os.Stat(configFile); err == nil {
				if err := k.Load(file.Provider(configFile), parserFor(configFile)); err != nil {
					return AppConfig{}, fmt.Errorf("failed to load config file %s: %w", configFile, err)
				}
				break
			}
		}
	}

	// Environment keys map onto the section of their first segment, e.g.
	// ARCHIVEFS_METADATA_STORE_TYPE -> metadata_store.type
	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return AppConfig{}, fmt.Errorf("failed to load environment variables: %w", err)
	}

	// Unmarshal into config struct
	var cfg AppConfig
	if err := k.Unmarshal("", &cfg); err != nil {
		return AppConfig{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Validate required fields
	if err := validateConfig(&cfg); err != nil {
		return AppConfig{}, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

func parserFor(path string) koanf.Parser {
	switch {
	case strings.HasSuffix(path, ".yaml"), strings.HasSuffix(path, ".yml"):
		return yaml.Parser()
	case strings.HasSuffix(path, ".json"):
		return json.Parser()
	default:
		return yaml.Parser()
	}
}

var sections = []string{"metadata_store", "server", "auth", "log", "storage", "identity", "dlm"}

func envKey(s string) string {
	key := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	for _, section := range sections {
		if strings.HasPrefix(key, section+"_") {
			return section + "." + strings.TrimPrefix(key, section+"_")
		}
	}
	return strings.Replace(key, "_", ".", 1)
}

// validateConfig validates that required configuration fields are set
func validateConfig(cfg *AppConfig) error {
	if cfg.Storage.NANDRoot == "" {
		return fmt.Errorf("storage.nand_root is required")
	}

	switch cfg.Storage.SDMCBackend {
	case "localfs":
		if cfg.Storage.SDMCRoot == "" {
			return fmt.Errorf("storage.sdmc_root is required for the localfs sdmc backend")
		}
	case "s3":
		if cfg.Storage.S3BucketName == "" {
			return fmt.Errorf("storage.s3_bucket_name is required for the s3 sdmc backend")
		}
	default:
		return fmt.Errorf("storage.sdmc_backend must be localfs or s3, got %q", cfg.Storage.SDMCBackend)
	}

	if err := validateID("identity.system_id", cfg.Identity.SystemID); err != nil {
		return err
	}
	if err := validateID("identity.sdcard_id", cfg.Identity.SDCardID); err != nil {
		return err
	}

	switch cfg.MetadataStore.Type {
	case "memory":
	case "sqlite":
		if cfg.MetadataStore.SQLitePath == "" {
			return fmt.Errorf("metadata_store.sqlite_path is required for the sqlite store")
		}
	case "redis":
		if cfg.MetadataStore.RedisAddr == "" {
			return fmt.Errorf("metadata_store.redis_addr is required for the redis store")
		}
	case "postgres":
		if cfg.MetadataStore.DSN == "" {
			return fmt.Errorf("metadata_store.dsn is required for the postgres store")
		}
	default:
		return fmt.Errorf("metadata_store.type must be memory, sqlite, redis or postgres, got %q", cfg.MetadataStore.Type)
	}

	switch cfg.DLM.Type {
	case "local":
	case "redis":
		if cfg.DLM.RedisAddr == "" {
			return fmt.Errorf("dlm.redis_addr is required for the redis lock manager")
		}
	default:
		return fmt.Errorf("dlm.type must be local or redis, got %q", cfg.DLM.Type)
	}

	return nil
}

func validateID(field, id string) error {
	if len(id) != 32 {
		return fmt.Errorf("%s must be 32 characters, got %d", field, len(id))
	}
	if _, err := hex.DecodeString(id); err != nil {
		return fmt.Errorf("%s must be hexadecimal: %w", field, err)
	}
	return nil
}
