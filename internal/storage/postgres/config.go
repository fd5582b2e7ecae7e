package postgres

import (
	"fmt"
	"net/url"

	"cache-service/internal/storage"
)

type Config struct {
	Host     string
	Port     int
	Database string
	Username string
	Password string
	SSLMode  string
}

func (c *Config) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("PostgreSQL host is required")
	}

	if c.Port <= 0 {
		c.Port = 5432
	}

	if c.Database == "" {
		return fmt.Errorf("PostgreSQL database name is required")
	}

	if c.Username == "" {
		return fmt.Errorf("PostgreSQL username is required")
	}

	if c.SSLMode == "" {
		c.SSLMode = "prefer"
	}

	return nil
}

func (c *Config) GetType() string {
	return "postgres"
}

// GetConnectionString returns a URL understood by pgx.
func (c *Config) GetConnectionString() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.Username, c.Password),
		Host:     fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:     "/" + c.Database,
		RawQuery: url.Values{"sslmode": []string{c.SSLMode}}.Encode(),
	}
	return u.String()
}

func NewConfigFromURL(connStr string) (*Config, error) {
	u, err := url.Parse(connStr)
	if err != nil {
		return nil, fmt.Errorf("invalid PostgreSQL URL: %w", err)
	}
	if len(u.Path) < 2 {
		return nil, fmt.Errorf("PostgreSQL URL must name a database")
	}

	config := &Config{
		Host:     u.Hostname(),
		Port:     5432,
		Database: u.Path[1:],
		Username: u.User.Username(),
		SSLMode:  "prefer",
	}

	if u.Port() != "" {
		port := 5432
		if _, err := fmt.Sscanf(u.Port(), "%d", &port); err == nil {
			config.Port = port
		}
	}

	if password, ok := u.User.Password(); ok {
		config.Password = password
	}

	if sslMode := u.Query().Get("sslmode"); sslMode != "" {
		config.SSLMode = sslMode
	}

	return config, nil
}

func DefaultConfig() *Config {
	return &Config{
		Host:     "localhost",
		Port:     5432,
		Database: "cache_service",
		Username: "postgres",
		SSLMode:  "prefer",
	}
}

func configFrom(cfg storage.StorageConfig) (*Config, error) {
	switch c := cfg.(type) {
	case *Config:
		return c, nil
	case storage.GenericConfig:
		d := DefaultConfig()
		return &Config{
			Host:     c.String("host", d.Host),
			Port:     c.Int("port", d.Port),
			Database: c.String("database", d.Database),
			Username: c.String("username", d.Username),
			Password: c.String("password", ""),
			SSLMode:  c.String("sslmode", d.SSLMode),
		}, nil
	default:
		return nil, fmt.Errorf("invalid config type for PostgreSQL storage")
	}
}
