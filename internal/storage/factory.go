package storage

import (
	"fmt"

	"cache-service/internal/common/errors"
	"cache-service/internal/config"
)

// GenericConfig carries adapter settings by name so the factory does not have
// to import every adapter package.
type GenericConfig map[string]interface{}

func (g GenericConfig) Validate() error {
	if _, ok := g["type"].(string); !ok {
		return fmt.Errorf("storage type is required")
	}
	return nil
}

func (g GenericConfig) GetType() string {
	t, _ := g["type"].(string)
	return t
}

func (g GenericConfig) GetConnectionString() string {
	return ""
}

// String returns the named setting or def when missing.
func (g GenericConfig) String(key, def string) string {
	if v, ok := g[key].(string); ok && v != "" {
		return v
	}
	return def
}

// Int returns the named setting or def when missing.
func (g GenericConfig) Int(key string, def int) int {
	if v, ok := g[key].(int); ok && v != 0 {
		return v
	}
	return def
}

// New creates the repository selected by DATABASE_TYPE. The adapter package
// must have been linked in (see internal/app) so it can register itself.
func New(cfg *config.Config) (Repository, error) {
	var storageConfig GenericConfig

	switch cfg.DatabaseType {
	case "sqlite":
		storageConfig = GenericConfig{
			"type": "sqlite",
			"path": cfg.DatabasePath,
		}

	case "postgres":
		storageConfig = GenericConfig{
			"type":     "postgres",
			"host":     cfg.PostgresHost,
			"port":     cfg.PostgresPortNumber(),
			"database": cfg.PostgresDB,
			"username": cfg.PostgresUser,
			"password": cfg.PostgresPassword,
			"sslmode":  cfg.PostgresSSLMode,
		}

	default:
		return nil, errors.ConfigError(fmt.Sprintf("unsupported database type: %s", cfg.DatabaseType))
	}

	repo, err := Create(cfg.DatabaseType, storageConfig)
	if err != nil {
		return nil, errors.StorageError("failed to open "+cfg.DatabaseType+" storage", err)
	}
	return repo, nil
}
