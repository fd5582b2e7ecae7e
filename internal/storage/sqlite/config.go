package sqlite

import (
	"fmt"
	"strings"

	"cache-service/internal/storage"
)

type Config struct {
	DatabasePath string
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.DatabasePath) == "" {
		return fmt.Errorf("database path is required")
	}
	return nil
}

func (c *Config) GetType() string {
	return "sqlite"
}

func (c *Config) GetConnectionString() string {
	return c.DatabasePath
}

// InMemory reports whether the database lives only for the connection.
func (c *Config) InMemory() bool {
	return c.DatabasePath == ":memory:" || strings.Contains(c.DatabasePath, "mode=memory")
}

func DefaultConfig() *Config {
	return &Config{
		DatabasePath: "./cache_service.db",
	}
}

func configFrom(cfg storage.StorageConfig) (*Config, error) {
	switch c := cfg.(type) {
	case *Config:
		return c, nil
	case storage.GenericConfig:
		return &Config{DatabasePath: c.String("path", DefaultConfig().DatabasePath)}, nil
	default:
		return nil, fmt.Errorf("invalid config type for SQLite storage")
	}
}
