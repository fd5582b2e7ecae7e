// Package postgres provides the PostgreSQL cache entry repository, using the
// pgx driver through database/sql.
package postgres

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"cache-service/internal/storage"
)

type Adapter struct {
	*storage.SQLRepository
	config *Config
}

func NewAdapter(config *Config) (*Adapter, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid PostgreSQL config: %w", err)
	}

	db, err := sql.Open("pgx", config.GetConnectionString())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	repo, err := storage.NewSQLRepository(db, storage.PostgresDialect)
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Adapter{SQLRepository: repo, config: config}, nil
}
