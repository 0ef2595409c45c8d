package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	// Registers the "sqlite" driver with database/sql.
	_ "modernc.org/sqlite"

	"github.com/target/transcode-dispatch/config"
	"github.com/target/transcode-dispatch/internal/core"
	"github.com/target/transcode-dispatch/internal/data"
)

// StoreSetup contains configuration for state store construction.
type StoreSetup struct {
	Config config.StoreConfig
	Logger *slog.Logger
}

// StoreContainer groups the state store with its persistence collaborators.
type StoreContainer struct {
	// DB is the open database handle. Nil for the in-memory backend.
	DB *sql.DB

	// Store is the job and engine state store.
	Store core.Store

	// StateFile is the JSON snapshot path the in-memory backend writes to.
	// Empty for the SQLite backend, where every commit is already durable.
	StateFile string
}

// Close releases the store's underlying resources.
func (c *StoreContainer) Close() error {
	if c == nil || c.DB == nil {
		return nil
	}
	return c.DB.Close()
}

// Backend reports which persistence backend the container runs on.
func (c *StoreContainer) Backend() config.StoreBackend {
	if c != nil && c.DB != nil {
		return config.StoreBackendSQLite
	}
	return config.StoreBackendSnapshot
}

// BuildStore constructs the state store selected by configuration.
//
// With a database path configured it opens SQLite, runs migrations, and
// returns the durable store. Otherwise it returns the in-memory store,
// preloaded from the state file when one exists.
func BuildStore(ctx context.Context, cfg StoreSetup) (*StoreContainer, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	switch backend := cfg.Config.Backend(); backend {
	case config.StoreBackendSQLite:
		return buildSQLiteStore(ctx, cfg.Config, logger)
	case config.StoreBackendSnapshot:
		return buildSnapshotStore(ctx, cfg.Config, logger), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", backend)
	}
}

func buildSQLiteStore(ctx context.Context, cfg config.StoreConfig, logger *slog.Logger) (*StoreContainer, error) {
	db, err := OpenDatabase(StoreSetup{Config: cfg, Logger: logger})
	if err != nil {
		return nil, err
	}

	if err := RunMigrations(ctx, db, logger); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			err = errors.Join(err, fmt.Errorf("close database: %w", closeErr))
		}
		return nil, err
	}

	return &StoreContainer{
		DB:    db,
		Store: data.NewSQLiteStore(db, data.SQLiteStoreConfig{Logger: logger}),
	}, nil
}

func buildSnapshotStore(ctx context.Context, cfg config.StoreConfig, logger *slog.Logger) *StoreContainer {
	store := data.NewMemoryStore(data.MemoryStoreConfig{})

	snap := data.ReadSnapshotFile(cfg.StateFile, logger)
	if err := store.Restore(ctx, snap); err != nil {
		logger.ErrorContext(ctx, "restore state file failed, starting with empty state",
			"path", cfg.StateFile, "error", err)
	} else if len(snap.Jobs) > 0 || len(snap.Engines) > 0 {
		logger.InfoContext(ctx, "state restored from file",
			"path", cfg.StateFile,
			"jobs", len(snap.Jobs),
			"engines", len(snap.Engines),
		)
	}

	return &StoreContainer{
		Store:     store,
		StateFile: cfg.StateFile,
	}
}

// OpenDatabase opens the SQLite database file and verifies the connection.
func OpenDatabase(cfg StoreSetup) (*sql.DB, error) {
	db, err := sql.Open("sqlite", cfg.Config.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// The driver serializes writes; a single connection avoids lock errors.
	db.SetMaxOpenConns(1)

	// Verify connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if pingErr := db.PingContext(ctx); pingErr != nil {
		if closeErr := db.Close(); closeErr != nil {
			pingErr = errors.Join(pingErr, fmt.Errorf("close database connection: %w", closeErr))
		}
		return nil, fmt.Errorf("ping database: %w", pingErr)
	}

	if cfg.Logger != nil {
		cfg.Logger.Info("database connected", "path", cfg.Config.DatabasePath)
	}

	return db, nil
}

// RunMigrations runs database migrations.
func RunMigrations(ctx context.Context, db *sql.DB, logger *slog.Logger) error {
	if err := data.RunMigrations(db); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	if logger != nil {
		logger.InfoContext(ctx, "database migrations completed")
	}

	return nil
}
