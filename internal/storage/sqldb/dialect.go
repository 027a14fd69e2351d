package sqldb

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Dialect carries the few differences between the engines the store runs on.
type Dialect struct {
	Name       string
	Driver     string
	BlobType   string
	FloatType  string
	BigIntType string
	SerialKey  string
	dollarArgs bool
}

var (
	Postgres = Dialect{
		Name:       "postgres",
		Driver:     "postgres",
		BlobType:   "BYTEA",
		FloatType:  "DOUBLE PRECISION",
		BigIntType: "BIGINT",
		SerialKey:  "BIGSERIAL PRIMARY KEY",
		dollarArgs: true,
	}
	SQLite = Dialect{
		Name:       "sqlite",
		Driver:     "sqlite",
		BlobType:   "BLOB",
		FloatType:  "REAL",
		BigIntType: "INTEGER",
		SerialKey:  "INTEGER PRIMARY KEY",
	}
)

func DialectFor(name string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "postgres", "postgresql", "pq":
		return Postgres, nil
	case "sqlite", "sqlite3":
		return SQLite, nil
	default:
		return Dialect{}, fmt.Errorf("unsupported database driver %q", name)
	}
}

// Rebind rewrites ? placeholders into the dialect's positional form.
func (d Dialect) Rebind(query string) string {
	if !d.dollarArgs {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

// withStatementTimeout hands the timeout to the engine itself: Postgres
// aborts statements after statement_timeout, SQLite waits busy_timeout for locks.
func (d Dialect) withStatementTimeout(dsn string, timeout time.Duration) string {
	if timeout <= 0 {
		return dsn
	}
	ms := strconv.FormatInt(timeout.Milliseconds(), 10)
	switch d.Name {
	case Postgres.Name:
		if strings.Contains(dsn, "://") {
			return appendQuery(dsn, "statement_timeout="+ms)
		}
		return strings.TrimSpace(dsn + " statement_timeout=" + ms)
	case SQLite.Name:
		return appendQuery(dsn, "_pragma=busy_timeout("+ms+")")
	}
	return dsn
}

func appendQuery(dsn, kv string) string {
	if strings.Contains(dsn, "?") {
		return dsn + "&" + kv
	}
	return dsn + "?" + kv
}
