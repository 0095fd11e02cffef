package factory

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mikey/inbox-triage/internal/adapters/store"
	"github.com/mikey/inbox-triage/internal/config"
	"github.com/mikey/inbox-triage/internal/core"
	"github.com/mikey/inbox-triage/internal/secrets"
	"go.uber.org/zap"
)

// StoreFactory creates record stores based on configuration
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

// CreateStore opens the configured store backend
func (f *StoreFactory) CreateStore(ctx context.Context) (core.Store, error) {
	storeCfg := f.cfg.GetStore()

	var sqlStore *store.SQLStore
	var err error
	switch storeCfg.Type {
	case "memory":
		if storeCfg.TokenKey != "" {
			f.logger.Warn("Token encryption has no effect on the memory store")
		}
		return store.NewMemoryStore(f.logger), nil
	case "sqlite":
		if err := os.MkdirAll(filepath.Dir(storeCfg.SQLitePath), 0755); err != nil {
			return nil, fmt.Errorf("failed to create SQLite directory: %w", err)
		}
		sqlStore, err = store.NewSQLiteStore(ctx, storeCfg.SQLitePath, f.logger)
	case "mysql":
		sqlStore, err = store.NewMySQLStore(ctx, storeCfg.MySQLDSN, f.logger)
	default:
		return nil, fmt.Errorf("unsupported store type: %s", storeCfg.Type)
	}
	if err != nil {
		return nil, err
	}

	if storeCfg.TokenKey == "" {
		f.logger.Warn("Stored OAuth tokens are not encrypted; set credentials.encryption_key")
		return sqlStore, nil
	}
	sealer, err := secrets.NewSealer(storeCfg.TokenKey)
	if err != nil {
		sqlStore.Close()
		return nil, fmt.Errorf("invalid credentials.encryption_key: %w", err)
	}
	sqlStore.EncryptTokens(sealer)
	return sqlStore, nil
}
