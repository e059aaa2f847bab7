package core

import (
	"context"
	"fmt"

	badgerdb "github.com/dgraph-io/badger/v3"

	"tracefood/internal/infra/persistence/badger"
	"tracefood/internal/infra/persistence/memory"
	"tracefood/internal/infra/persistence/postgres"
	"tracefood/internal/infra/persistence/sqlite"
	"tracefood/pkg/domain"
)

// StorageDriver identifies a concrete persistent storage implementation.
type StorageDriver string

const (
	StorageMemory   StorageDriver = "memory"   // in-memory only (tests / ephemeral)
	StorageSQLite   StorageDriver = "sqlite"   // embedded sqlite file
	StoragePostgres StorageDriver = "postgres" // PostgreSQL server
	StorageBadger   StorageDriver = "badger"   // embedded badger key space
)

type (
	Transaction     = domain.Transaction
	TransactionView = domain.TransactionView
	PersistentStore = domain.PersistentStore
)

// StorageConfig selects and configures a backend.
type StorageConfig struct {
	Driver      StorageDriver
	SQLitePath  string
	PostgresDSN string
	BadgerDir   string
	// BadgerLogger receives Badger's internal log output; nil silences it.
	BadgerLogger badgerdb.Logger
}

// OpenPersistentStore opens the backend named by cfg.Driver.
func OpenPersistentStore(ctx context.Context, cfg StorageConfig, engine *RulesEngine) (PersistentStore, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = StorageSQLite
	}
	switch driver {
	case StorageMemory:
		return memory.NewStore(engine), nil
	case StorageSQLite:
		return sqlite.NewStore(cfg.SQLitePath, engine)
	case StoragePostgres:
		return postgres.NewStore(ctx, cfg.PostgresDSN, engine)
	case StorageBadger:
		return badger.NewStore(cfg.BadgerDir, engine, cfg.BadgerLogger)
	default:
		return nil, fmt.Errorf("unknown storage driver %s", driver)
	}
}
