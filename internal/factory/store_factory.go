package factory

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/mikey/mailgraph/internal/adapters/store"
	"github.com/mikey/mailgraph/internal/config"
)

// StoreFactory creates snapshot repositories based on configuration
type StoreFactory struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewStoreFactory creates a new store factory
func NewStoreFactory(cfg *config.Config, logger *zap.Logger) *StoreFactory {
	return &StoreFactory{
		cfg:    cfg,
		logger: logger,
	}
}

// CreateRepository creates a snapshot repository based on the configuration
func (f *StoreFactory) CreateRepository() (store.Repository, error) {
	sc, err := f.cfg.GetStore()
	if err != nil {
		return nil, err
	}

	switch sc.Type {
	case "memory":
		return store.NewMemoryStore(f.logger), nil
	case "sqlite":
		if err := os.MkdirAll(filepath.Dir(sc.SQLitePath), 0755); err != nil {
			return nil, fmt.Errorf("failed to create SQLite directory: %w", err)
		}
		repo, err := store.NewSQLiteStore(sc.SQLitePath, f.logger)
		if err != nil {
			return nil, err
		}
		return repo, nil
	case "mysql":
		repo, err := store.NewMySQLStore(sc.MySQLDSN, f.logger)
		if err != nil {
			return nil, err
		}
		return repo, nil
	default:
		return nil, fmt.Errorf("unsupported store type: %s", sc.Type)
	}
}
