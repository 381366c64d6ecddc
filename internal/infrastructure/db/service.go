package db

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/dlc-network/dlcd/internal/core/domain"
	"github.com/dlc-network/dlcd/internal/core/ports"
	badgerdb "github.com/dlc-network/dlcd/internal/infrastructure/db/badger"
	sqlitedb "github.com/dlc-network/dlcd/internal/infrastructure/db/sqlite"
	"github.com/golang-migrate/migrate/v4"
	sqlitemigrate "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

var (
	contractStoreTypes = map[string]func(...interface{}) (domain.ContractRepository, error){
		"badger": badgerdb.NewContractRepository,
		"sqlite": sqlitedb.NewContractRepository,
	}
)

const (
	SqliteDbFile = "sqlite.db"
)

type ServiceConfig struct {
	DataStoreType   string
	DataStoreConfig []interface{}
}

type service struct {
	contractStore domain.ContractRepository
}

func NewService(config ServiceConfig) (ports.RepoManager, error) {
	contractStoreFactory, ok := contractStoreTypes[config.DataStoreType]
	if !ok {
		return nil, fmt.Errorf("invalid data store type: %s", config.DataStoreType)
	}

	if config.DataStoreType == "sqlite" {
		if err := migrateSqlite(config.DataStoreConfig); err != nil {
			return nil, fmt.Errorf("failed to migrate sqlite: %w", err)
		}
	}

	contractStore, err := contractStoreFactory(config.DataStoreConfig...)
	if err != nil {
		return nil, fmt.Errorf("failed to create contract store: %w", err)
	}

	return &service{contractStore}, nil
}

func (s *service) Contracts() domain.ContractRepository {
	return s.contractStore
}

func (s *service) Close() {
	s.contractStore.Close()
}

func migrateSqlite(config []interface{}) error {
	if len(config) != 1 {
		return errors.New("invalid config")
	}
	db, ok := config[0].(*sql.DB)
	if !ok {
		return errors.New("invalid config, expected db at 0")
	}

	source, err := iofs.New(sqlitedb.Migrations, "migration")
	if err != nil {
		return fmt.Errorf("failed to load migrations: %w", err)
	}
	driver, err := sqlitemigrate.WithInstance(db, &sqlitemigrate.Config{})
	if err != nil {
		return fmt.Errorf("failed to create sqlite driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to migrate up: %w", err)
	}

	return nil
}
