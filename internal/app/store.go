// Package app wires the storage stack shared by the binaries.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mohammed-shakir/osm-geometry-store/internal/core/config"
	"github.com/mohammed-shakir/osm-geometry-store/internal/storage/geometrystore"
	"github.com/mohammed-shakir/osm-geometry-store/internal/storage/references"
	"github.com/mohammed-shakir/osm-geometry-store/internal/storage/sqldb"
)

// NoReferenceTables is the ReferenceTables value that explicitly declares no
// reference tables. Cleanup then deletes every stored geometry.
const NoReferenceTables = "none"

// OpenStore connects to the configured engine, makes sure the tables exist
// and builds the geometry store with the configured reference tables. A list
// that names no table is rejected unless it is NoReferenceTables.
func OpenStore(ctx context.Context, cfg config.DatabaseCfg, logger *slog.Logger) (*sqldb.DB, *geometrystore.SQLStore, error) {
	dsn := cfg.DSN
	if dsn == "" && cfg.Driver == sqldb.Postgres.Name {
		dsn = sqldb.BuildPostgresDSNFromEnv()
	}

	db, err := sqldb.Open(ctx, cfg.Driver, dsn,
		sqldb.WithMaxOpenConns(cfg.MaxOpenConns),
		sqldb.WithMaxIdleConns(cfg.MaxIdleConns),
		sqldb.WithConnMaxLifetime(cfg.ConnMaxLifetime),
		sqldb.WithStatementTimeout(cfg.StatementTimeout),
	)
	if err != nil {
		return nil, nil, err
	}
	if err := db.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, nil, err
	}

	sources, err := referenceSources(cfg.ReferenceTables)
	if err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	if len(sources) == 0 {
		logger.Warn("no reference tables configured, cleanup deletes every geometry")
	}
	logger.Info("geometry store ready",
		"driver", cfg.Driver, "reference_tables", cfg.ReferenceTables, "batch_size", cfg.BatchSize)

	store := geometrystore.New(db, references.Union(sources...),
		geometrystore.WithLogger(logger),
		geometrystore.WithBatchSize(cfg.BatchSize),
	)
	return db, store, nil
}

func referenceSources(csv string) ([]references.Source, error) {
	if strings.EqualFold(strings.TrimSpace(csv), NoReferenceTables) {
		return nil, nil
	}
	sources, err := references.ParseTables(csv)
	if err != nil {
		return nil, fmt.Errorf("reference tables: %w", err)
	}
	if len(sources) == 0 {
		return nil, fmt.Errorf("reference tables %q name no table; use %q to run without any", csv, NoReferenceTables)
	}
	return sources, nil
}
