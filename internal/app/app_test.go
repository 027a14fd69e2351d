package app

import (
	"context"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/paulmach/osm"

	"github.com/mohammed-shakir/osm-geometry-store/internal/core/config"
	"github.com/mohammed-shakir/osm-geometry-store/internal/geometry"
	"github.com/mohammed-shakir/osm-geometry-store/internal/logger"
)

func TestOpenStore_SQLite(t *testing.T) {
	ctx := t.Context()
	cfg := config.DatabaseCfg{
		Driver:          "sqlite",
		DSN:             filepath.Join(t.TempDir(), "geometry.db"),
		MaxOpenConns:    4,
		MaxIdleConns:    2,
		BatchSize:       50,
		ReferenceTables: "osm_quests",
	}
	db, store, err := OpenStore(ctx, cfg, logger.Discard())
	if err != nil {
		t.Fatalf("OpenStore: %v", err)
	}
	defer func() { _ = db.Close() }()

	k := geometry.NewElementKey(osm.TypeNode, 1)
	if err := store.Put(ctx, k, geometry.NewPoint(1, 1)); err != nil {
		t.Fatalf("put: %v", err)
	}
	if _, err := db.SQL().ExecContext(ctx,
		`INSERT INTO osm_quests (quest_type, element_type, element_id) VALUES ('q', 'NODE', 1)`); err != nil {
		t.Fatalf("quest: %v", err)
	}
	if n, err := store.DeleteUnreferenced(ctx); err != nil || n != 0 {
		t.Fatalf("referenced row removed: n=%d err=%v", n, err)
	}
}

func TestOpenStore_BadReferenceTable(t *testing.T) {
	cfg := config.DatabaseCfg{
		Driver:          "sqlite",
		DSN:             filepath.Join(t.TempDir(), "geometry.db"),
		ReferenceTables: "osm_quests; DROP TABLE x",
	}
	if _, _, err := OpenStore(t.Context(), cfg, logger.Discard()); err == nil {
		t.Fatalf("expected error for bad table name")
	}
}

func TestOpenStore_EmptyReferenceListRejected(t *testing.T) {
	for _, tables := range []string{"", ",", " , "} {
		cfg := config.DatabaseCfg{
			Driver:          "sqlite",
			DSN:             filepath.Join(t.TempDir(), "geometry.db"),
			ReferenceTables: tables,
		}
		if _, _, err := OpenStore(t.Context(), cfg, logger.Discard()); err == nil {
			t.Fatalf("expected error for reference tables %q", tables)
		}
	}
}

func TestOpenStore_ExplicitNoReferenceTables(t *testing.T) {
	ctx := t.Context()
	cfg := config.DatabaseCfg{
		Driver:          "sqlite",
		DSN:             filepath.Join(t.TempDir(), "geometry.db"),
		ReferenceTables: "NONE",
	}
	db, store, err := OpenStore(ctx, cfg, logger.Discard())
	if err != nil {
		t.Fatalf("OpenStore: %v", err)
	}
	defer func() { _ = db.Close() }()

	if err := store.Put(ctx, geometry.NewElementKey(osm.TypeNode, 1), geometry.NewPoint(1, 1)); err != nil {
		t.Fatalf("put: %v", err)
	}
	if n, err := store.DeleteUnreferenced(ctx); err != nil || n != 1 {
		t.Fatalf("n=%d err=%v want every row removed", n, err)
	}
}

type countingCleaner struct{ calls atomic.Int32 }

func (c *countingCleaner) DeleteUnreferenced(context.Context) (int64, error) {
	c.calls.Add(1)
	return 0, nil
}

func TestRunCleanup_TicksUntilCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	c := &countingCleaner{}
	done := make(chan struct{})
	go func() {
		RunCleanup(ctx, c, 10*time.Millisecond, logger.Discard())
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for c.calls.Load() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	<-done
	if c.calls.Load() < 2 {
		t.Fatalf("calls=%d want >=2", c.calls.Load())
	}
}

func TestRunCleanup_DisabledReturnsImmediately(t *testing.T) {
	c := &countingCleaner{}
	RunCleanup(context.Background(), c, 0, logger.Discard())
	if c.calls.Load() != 0 {
		t.Fatalf("disabled cleanup ran")
	}
}
