package storage

import (
	"context"
	"fmt"

	"github.com/KevinKickass/OpenRigCore/internal/config"
	"github.com/KevinKickass/OpenRigCore/internal/counter"
)

// Store is a counter backend that holds a connection.
type Store interface {
	counter.Backend
	Close() error
}

// Open connects the store selected by cfg.Driver.
func Open(ctx context.Context, cfg config.StorageConfig) (Store, error) {
	switch cfg.Driver {
	case "postgres":
		db, err := NewPostgresClient(ctx, cfg.Database)
		if err != nil {
			return nil, err
		}
		return db, nil
	case "sqlite":
		db, err := OpenSQLite(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		return db, nil
	case "memory":
		return memoryStore{counter.NewMemoryBackend()}, nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}

type memoryStore struct {
	*counter.MemoryBackend
}

func (memoryStore) Close() error { return nil }
