// Package geometrystore persists element geometries in the elements_geometry
// table. The representative point lives in plain latitude/longitude columns
// for bounding box queries; the shape itself is an opaque codec blob.
package geometrystore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/mohammed-shakir/osm-geometry-store/internal/core/observability"
	"github.com/mohammed-shakir/osm-geometry-store/internal/geometry"
	"github.com/mohammed-shakir/osm-geometry-store/internal/geometry/codec"
	mylog "github.com/mohammed-shakir/osm-geometry-store/internal/logger"
	"github.com/mohammed-shakir/osm-geometry-store/internal/storage/references"
	"github.com/mohammed-shakir/osm-geometry-store/internal/storage/sqldb"
)

type Entry struct {
	Key      geometry.ElementKey
	Geometry geometry.Geometry
}

type Store interface {
	// Get returns ok=false without error when no row exists for key.
	Get(ctx context.Context, key geometry.ElementKey) (g geometry.Geometry, ok bool, err error)

	// Put inserts or overwrites the geometry for key.
	Put(ctx context.Context, key geometry.ElementKey, g geometry.Geometry) error

	// PutAll upserts all entries in one transaction. For repeated keys the
	// last entry wins.
	PutAll(ctx context.Context, entries []Entry) error

	// GetAllKeys returns the keys whose representative point lies in bbox.
	// Order is unspecified.
	GetAllKeys(ctx context.Context, bbox geometry.BoundingBox) ([]geometry.ElementKey, error)

	// Delete reports whether a row was removed.
	Delete(ctx context.Context, key geometry.ElementKey) (bool, error)

	// DeleteUnreferenced removes every row no reference source points to and
	// returns how many were removed.
	DeleteUnreferenced(ctx context.Context) (int64, error)
}

const (
	defaultBatchSize = 200
	maxBatchSize     = 1000
	columnsPerRow    = 6
)

type Option func(*SQLStore)

func WithLogger(l *slog.Logger) Option {
	return func(s *SQLStore) {
		if l != nil {
			s.log = l
		}
	}
}

// WithBatchSize bounds the rows per INSERT statement in PutAll.
func WithBatchSize(n int) Option {
	return func(s *SQLStore) {
		switch {
		case n <= 0:
			s.batchSize = defaultBatchSize
		case n > maxBatchSize:
			s.batchSize = maxBatchSize
		default:
			s.batchSize = n
		}
	}
}

// SQLStore is the relational implementation of Store.
type SQLStore struct {
	db        *sqldb.DB
	refs      references.Source
	log       *slog.Logger
	batchSize int

	getQuery    string
	deleteQuery string
	boxQuery    string
	wrapQuery   string
	orphanQuery string
	countQuery  string
}


// New builds a store on db. refs decides which rows DeleteUnreferenced keeps;
// nil keeps nothing.
func New(db *sqldb.DB, refs references.Source, opts ...Option) *SQLStore {
	if refs == nil {
		refs = references.Static()
	}
	s := &SQLStore{
		db:        db,
		refs:      refs,
		log:       slog.Default(),
		batchSize: defaultBatchSize,
	}
	for _, o := range opts {
		o(s)
	}

	t := sqldb.GeometryTable
	s.getQuery = db.Rebind(`SELECT polylines_blob, polygons_blob, latitude, longitude FROM ` + t +
		` WHERE element_type = ? AND element_id = ?`)
	s.deleteQuery = db.Rebind(`DELETE FROM ` + t + ` WHERE element_type = ? AND element_id = ?`)
	s.boxQuery = db.Rebind(`SELECT element_type, element_id FROM ` + t +
		` WHERE latitude >= ? AND latitude <= ? AND longitude >= ? AND longitude <= ?`)
	s.wrapQuery = db.Rebind(`SELECT element_type, element_id FROM ` + t +
		` WHERE latitude >= ? AND latitude <= ? AND (longitude >= ? OR longitude <= ?)`)
	s.orphanQuery = `DELETE FROM ` + t + ` WHERE NOT EXISTS (SELECT 1 FROM (` + refs.ReferencedKeysSQL() + `) r` +
		` WHERE r.element_type = ` + t + `.element_type AND r.element_id = ` + t + `.element_id)`
	s.countQuery = `SELECT COUNT(*) FROM ` + t
	return s
}

func observe(op string, start time.Time, err error) {
	observability.ObserveStoreOp(op, err, time.Since(start).Seconds())
}

func (s *SQLStore) Get(ctx context.Context, key geometry.ElementKey) (g geometry.Geometry, ok bool, err error) {
	start := time.Now()
	defer func() { observe("get", start, err) }()

	if err := key.Validate(); err != nil {
		return nil, false, err
	}

	var enc codec.Encoded
	row := s.db.SQL().QueryRowContext(ctx, s.getQuery, key.ColumnValue(), key.ID)
	if err := row.Scan(&enc.Polylines, &enc.Polygons, &enc.Lat, &enc.Lon); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, storageErr("get", err)
	}

	g, err = codec.Decode(enc)
	if err != nil {
		observability.IncCorruptGeometry()
		s.log.ErrorContext(mylog.WithElement(ctx, key.String()), "stored geometry is corrupt",
			"element_type", key.ColumnValue(), "element_id", key.ID, "err", err)
		return nil, false, fmt.Errorf("geometry %s: %w", key, err)
	}
	return g, true, nil
}

func (s *SQLStore) Put(ctx context.Context, key geometry.ElementKey, g geometry.Geometry) (err error) {
	start := time.Now()
	defer func() { observe("put", start, err) }()

	args, err := rowArgs(Entry{Key: key, Geometry: g})
	if err != nil {
		return err
	}
	query := s.db.Rebind(upsertSQL(1))
	if _, err := s.db.SQL().ExecContext(ctx, query, args...); err != nil {
		return storageErr("put", err)
	}
	return nil
}

func (s *SQLStore) PutAll(ctx context.Context, entries []Entry) (err error) {
	start := time.Now()
	defer func() { observe("put_all", start, err) }()

	entries = lastWins(entries)
	if len(entries) == 0 {
		return nil
	}

	// encode everything up front so a bad geometry never opens a transaction
	args := make([][]any, len(entries))
	for i, e := range entries {
		if args[i], err = rowArgs(e); err != nil {
			return err
		}
	}

	fullBatch := s.db.Rebind(upsertSQL(s.batchSize))
	err = s.db.InTx(ctx, func(tx *sql.Tx) error {
		for lo := 0; lo < len(args); lo += s.batchSize {
			hi := min(lo+s.batchSize, len(args))
			query := fullBatch
			if hi-lo != s.batchSize {
				query = s.db.Rebind(upsertSQL(hi - lo))
			}
			flat := make([]any, 0, (hi-lo)*columnsPerRow)
			for _, a := range args[lo:hi] {
				flat = append(flat, a...)
			}
			if _, err := tx.ExecContext(ctx, query, flat...); err != nil {
				return fmt.Errorf("rows %d-%d: %w", lo, hi-1, err)
			}
		}
		return nil
	})
	if err != nil {
		return storageErr("put_all", err)
	}
	s.log.DebugContext(ctx, "geometries stored", "rows", len(entries))
	return nil
}

func (s *SQLStore) GetAllKeys(ctx context.Context, bbox geometry.BoundingBox) (keys []geometry.ElementKey, err error) {
	start := time.Now()
	defer func() { observe("get_all_keys", start, err) }()

	if err := bbox.Validate(); err != nil {
		return nil, fmt.Errorf("bounding box %s: %w", bbox, err)
	}

	query := s.boxQuery
	if bbox.CrossesAntimeridian() {
		query = s.wrapQuery
	}
	rows, err := s.db.SQL().QueryContext(ctx, query, bbox.South, bbox.North, bbox.West, bbox.East)
	if err != nil {
		return nil, storageErr("get_all_keys", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			typ string
			id  int64
		)
		if err := rows.Scan(&typ, &id); err != nil {
			return nil, storageErr("get_all_keys", err)
		}
		t, err := geometry.ParseElementType(typ)
		if err != nil {
			return nil, storageErr("get_all_keys", fmt.Errorf("row %d: %w", id, err))
		}
		keys = append(keys, geometry.NewElementKey(t, id))
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("get_all_keys", err)
	}
	return keys, nil
}

func (s *SQLStore) Delete(ctx context.Context, key geometry.ElementKey) (deleted bool, err error) {
	start := time.Now()
	defer func() { observe("delete", start, err) }()

	if err := key.Validate(); err != nil {
		return false, err
	}
	res, err := s.db.SQL().ExecContext(ctx, s.deleteQuery, key.ColumnValue(), key.ID)
	if err != nil {
		return false, storageErr("delete", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, storageErr("delete", err)
	}
	return n > 0, nil
}

func (s *SQLStore) DeleteUnreferenced(ctx context.Context) (deleted int64, err error) {
	start := time.Now()
	defer func() { observe("delete_unreferenced", start, err) }()

	err = s.db.InTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, s.orphanQuery)
		if err != nil {
			return err
		}
		deleted, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return 0, storageErr("delete_unreferenced", err)
	}

	observability.AddCleanupDeleted(deleted)
	s.log.InfoContext(ctx, "unreferenced geometries deleted", "rows", deleted)
	return deleted, nil
}

// Count returns the number of stored geometries.
func (s *SQLStore) Count(ctx context.Context) (n int64, err error) {
	start := time.Now()
	defer func() { observe("count", start, err) }()

	if err := s.db.SQL().QueryRowContext(ctx, s.countQuery).Scan(&n); err != nil {
		return 0, storageErr("count", err)
	}
	observability.SetStoredGeometries(n)
	return n, nil
}

func upsertSQL(rows int) string {
	var b strings.Builder
	b.WriteString(`INSERT INTO `)
	b.WriteString(sqldb.GeometryTable)
	b.WriteString(` (element_type, element_id, polylines_blob, polygons_blob, latitude, longitude) VALUES `)
	for i := 0; i < rows; i++ {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(`(?, ?, ?, ?, ?, ?)`)
	}
	b.WriteString(` ON CONFLICT (element_type, element_id) DO UPDATE SET` +
		` polylines_blob = excluded.polylines_blob,` +
		` polygons_blob = excluded.polygons_blob,` +
		` latitude = excluded.latitude,` +
		` longitude = excluded.longitude`)
	return b.String()
}

func rowArgs(e Entry) ([]any, error) {
	if err := e.Key.Validate(); err != nil {
		return nil, err
	}
	enc, err := codec.Encode(e.Geometry)
	if err != nil {
		return nil, fmt.Errorf("geometry %s: %w", e.Key, err)
	}
	return []any{e.Key.ColumnValue(), e.Key.ID, blobArg(enc.Polylines), blobArg(enc.Polygons), enc.Lat, enc.Lon}, nil
}

// blobArg turns a nil blob into an untyped nil so drivers bind SQL NULL.
func blobArg(b []byte) any {
	if b == nil {
		return nil
	}
	return b
}

// lastWins drops earlier duplicates of a key; a single upsert statement may
// not touch the same row twice.
func lastWins(entries []Entry) []Entry {
	last := make(map[geometry.ElementKey]int, len(entries))
	for i, e := range entries {
		last[e.Key] = i
	}
	if len(last) == len(entries) {
		return entries
	}
	out := make([]Entry, 0, len(last))
	for i, e := range entries {
		if last[e.Key] == i {
			out = append(out, e)
		}
	}
	return out
}
