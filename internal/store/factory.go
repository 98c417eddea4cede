package store

import (
	"context"
	"fmt"

	"chainflow/config"
)

// New builds the backend selected by cfg.Backend.
func New(ctx context.Context, cfg config.StorageConfig) (Store, error) {
	switch cfg.Backend {
	case config.BackendSheets:
		return NewSheetsStore(ctx, cfg.Sheets)
	case config.BackendCSV:
		return NewCSVStore(cfg.CSV.Dir)
	case config.BackendS3:
		return NewS3Store(ctx, cfg.S3)
	case config.BackendRedis:
		return NewRedisStore(cfg.Redis), nil
	case config.BackendMemory:
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}
