package core

import (
	"calendarcore/internal/blob"
	"calendarcore/internal/config"
	"calendarcore/internal/infra/persistence/memory"
	"calendarcore/internal/infra/persistence/objectstore"
	"calendarcore/internal/infra/persistence/postgres"
	"calendarcore/internal/infra/persistence/sqlite"
	"calendarcore/pkg/domain"
	"context"
	"fmt"
)

// PersistentStore is a record store able to allocate identifiers atomically.
type PersistentStore interface {
	domain.Store
	domain.IDAllocator
}

// OpenPersistentStore selects a backend from cfg.Storage.Driver:
//
//	memory   in-process only (tests / ephemeral)
//	sqlite   embedded file at cfg.Storage.SQLitePath
//	postgres server at cfg.Storage.PostgresDSN
//	object   JSON snapshot at cfg.Storage.SnapshotKey in the cfg.Blob store
func OpenPersistentStore(ctx context.Context, cfg config.Config, registry domain.Registry) (PersistentStore, error) {
	if registry == nil {
		registry = domain.DefaultRegistry()
	}
	var (
		store PersistentStore
		err   error
	)
	switch cfg.Storage.Driver {
	case "", config.StorageMemory:
		return memory.NewStore(memory.WithRegistry(registry)), nil
	case config.StorageSQLite:
		store, err = openSQLite(ctx, cfg.Storage.SQLitePath, registry)
	case config.StoragePostgres:
		store, err = openPostgres(ctx, cfg.Storage.PostgresDSN, registry)
	case config.StorageObject:
		store, err = openObject(ctx, cfg, registry)
	default:
		return nil, fmt.Errorf("unknown storage driver %s", cfg.Storage.Driver)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.Storage.Driver, err)
	}
	return store, nil
}

func openSQLite(ctx context.Context, path string, registry domain.Registry) (PersistentStore, error) {
	s, err := sqlite.NewStore(ctx, path, registry)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func openPostgres(ctx context.Context, dsn string, registry domain.Registry) (PersistentStore, error) {
	s, err := postgres.NewStore(ctx, dsn, registry)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func openObject(ctx context.Context, cfg config.Config, registry domain.Registry) (PersistentStore, error) {
	blobs, err := blob.Open(ctx, cfg.Blob)
	if err != nil {
		return nil, fmt.Errorf("blob store: %w", err)
	}
	s, err := objectstore.NewStore(ctx, blobs, cfg.Storage.SnapshotKey, registry)
	if err != nil {
		return nil, err
	}
	return s, nil
}
