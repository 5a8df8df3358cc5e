package app

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"lens/api/internal/config"
	"lens/api/internal/store"
)

// OpenKV opens the configured collection backend. db is non-nil only for
// PostgreSQL, which also serves full-text search.
func OpenKV(ctx context.Context, cfg config.Config) (store.KV, *sql.DB, error) {
	switch cfg.Store {
	case config.StoreMemory:
		log.Printf("WARNING: annotations are kept in memory only")
		return store.NewMemoryKV(), nil, nil
	case config.StoreSQLite:
		if err := os.MkdirAll(filepath.Dir(cfg.SQLitePath), 0o755); err != nil {
			return nil, nil, fmt.Errorf("create sqlite dir: %w", err)
		}
		db, err := store.OpenSQLite(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		kv, err := store.NewSQLiteKV(ctx, db)
		if err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		return kv, nil, nil
	case config.StorePostgres:
		db, err := store.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		if err := store.ApplyMigrations(ctx, db, os.DirFS(cfg.MigrationsDir)); err != nil {
			_ = db.Close()
			return nil, nil, fmt.Errorf("migrations: %w", err)
		}
		return store.NewPostgresKV(db), db, nil
	case config.StoreRedis:
		kv, err := store.NewRedisKV(cfg.RedisURL)
		if err != nil {
			return nil, nil, err
		}
		return kv, nil, nil
	}
	return nil, nil, fmt.Errorf("unknown store %q", cfg.Store)
}
