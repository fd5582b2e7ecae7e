package postgres

import (
	"cache-service/internal/storage"
)

type Factory struct{}

func (f *Factory) Create(config storage.StorageConfig) (storage.Repository, error) {
	pgConfig, err := configFrom(config)
	if err != nil {
		return nil, err
	}
	return NewAdapter(pgConfig)
}

func (f *Factory) GetType() string {
	return "postgres"
}

func init() {
	storage.Register("postgres", &Factory{})
}
