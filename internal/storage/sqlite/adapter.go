// Package sqlite provides the SQLite cache entry repository.
package sqlite

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"cache-service/internal/storage"
)

type Adapter struct {
	*storage.SQLRepository
	config *Config
}

func NewAdapter(config *Config) (*Adapter, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid SQLite config: %w", err)
	}

	db, err := sql.Open("sqlite3", config.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// An in-memory database exists per connection, so the pool must not
	// hand out a second one.
	if config.InMemory() {
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	repo, err := storage.NewSQLRepository(db, storage.SQLiteDialect)
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Adapter{SQLRepository: repo, config: config}, nil
}

type Factory struct{}

func (f *Factory) Create(config storage.StorageConfig) (storage.Repository, error) {
	sqliteConfig, err := configFrom(config)
	if err != nil {
		return nil, err
	}
	return NewAdapter(sqliteConfig)
}

func (f *Factory) GetType() string {
	return "sqlite"
}

func init() {
	storage.Register("sqlite", &Factory{})
}
