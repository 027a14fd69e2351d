package sqldb

import (
	"net"
	"net/url"
	"os"
)

// BuildPostgresDSNFromEnv assembles a postgres:// DSN from PG_* variables.
// Credentials and the database name are escaped.
func BuildPostgresDSNFromEnv() string {
	user := getenv("PG_USER", "postgres")
	u := url.URL{
		Scheme:   "postgres",
		User:     url.User(user),
		Host:     net.JoinHostPort(getenv("PG_HOST", "localhost"), getenv("PG_PORT", "5432")),
		Path:     "/" + getenv("PG_DB", "geometry"),
		RawQuery: url.Values{"sslmode": {getenv("PG_SSLMODE", "disable")}}.Encode(),
	}
	if pass := os.Getenv("PG_PASSWORD"); pass != "" {
		u.User = url.UserPassword(user, pass)
	}
	return u.String()
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
