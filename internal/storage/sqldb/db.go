// Package sqldb owns the relational engine handle shared by the storage packages.
package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

type Option func(*options)

type options struct {
	maxOpenConns     int
	maxIdleConns     int
	connMaxLifetime  time.Duration
	statementTimeout time.Duration
}

func WithMaxOpenConns(n int) Option {
	return func(o *options) { o.maxOpenConns = n }
}

func WithMaxIdleConns(n int) Option {
	return func(o *options) { o.maxIdleConns = n }
}

func WithConnMaxLifetime(d time.Duration) Option {
	return func(o *options) { o.connMaxLifetime = d }
}

// WithStatementTimeout configures the engine side timeout. The store itself
// never cancels or retries.
func WithStatementTimeout(d time.Duration) Option {
	return func(o *options) { o.statementTimeout = d }
}

type DB struct {
	db      *sql.DB
	dialect Dialect
}

// Open connects using driver "postgres" or "sqlite" and pings before returning.
func Open(ctx context.Context, driver, dsn string, opts ...Option) (*DB, error) {
	if dsn == "" {
		return nil, errors.New("database dsn is required")
	}
	d, err := DialectFor(driver)
	if err != nil {
		return nil, err
	}

	o := &options{
		maxOpenConns:    50,
		maxIdleConns:    25,
		connMaxLifetime: 30 * time.Minute,
	}
	for _, f := range opts {
		f(o)
	}

	db, err := sql.Open(d.Driver, d.withStatementTimeout(dsn, o.statementTimeout))
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", d.Name, err)
	}
	db.SetMaxOpenConns(o.maxOpenConns)
	db.SetMaxIdleConns(o.maxIdleConns)
	db.SetConnMaxLifetime(o.connMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%s ping: %w", d.Name, err)
	}
	return &DB{db: db, dialect: d}, nil
}

// Attach wraps an already opened handle.
func Attach(db *sql.DB, d Dialect) *DB { return &DB{db: db, dialect: d} }

func (d *DB) SQL() *sql.DB { return d.db }

func (d *DB) Dialect() Dialect { return d.dialect }

func (d *DB) Rebind(query string) string { return d.dialect.Rebind(query) }

func (d *DB) Ping(ctx context.Context) error {
	if err := d.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%s ping: %w", d.dialect.Name, err)
	}
	return nil
}

func (d *DB) Close() error {
	if err := d.db.Close(); err != nil {
		return fmt.Errorf("%s close: %w", d.dialect.Name, err)
	}
	return nil
}

// InTx runs fn in a transaction, committing when fn returns nil and rolling
// back otherwise.
func (d *DB) InTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			return errors.Join(err, fmt.Errorf("rollback: %w", rbErr))
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}
