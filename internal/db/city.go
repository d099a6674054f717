package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// MetaDatabase is the cluster database that records finished GTFS imports.
const MetaDatabase = "postgres"

// ErrNoImport is returned when no finished import matches a city.
var ErrNoImport = errors.New("no gtfs import found")

// WithDBName returns dsn pointing at another database on the same server.
// A DSN without a scheme is taken as postgres://.
func WithDBName(dsn, database string) (string, error) {
	if strings.TrimSpace(dsn) == "" {
		return "", errors.New("empty DSN")
	}
	if !strings.Contains(dsn, "://") {
		dsn = "postgres://" + dsn
	}
	u, err := url.Parse(dsn)
	if err != nil {
		return "", fmt.Errorf("parse DSN: %w", err)
	}
	u.Path = "/" + strings.TrimPrefix(database, "/")
	return u.String(), nil
}

// latestImportQuery picks the newest import whose database name mentions
// the city. It runs against MetaDatabase.
const latestImportQuery = `
SELECT db_name
FROM public.latest_successful_imports
WHERE db_name ILIKE '%' || $1 || '%'
ORDER BY imported_at DESC
LIMIT 1`

// ResolveLatestImportDBName returns the database holding the most recent
// import for city.
func ResolveLatestImportDBName(ctx context.Context, meta *sql.DB, city string) (string, error) {
	city = strings.TrimSpace(city)
	if city == "" {
		return "", errors.New("city is required")
	}

	var name sql.NullString
	err := meta.QueryRowContext(ctx, latestImportQuery, city).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && strings.TrimSpace(name.String) == "") {
		return "", fmt.Errorf("%w for city like %q", ErrNoImport, city)
	}
	if err != nil {
		return "", err
	}
	return name.String, nil
}

// cityDSN resolves the city's current import through the meta database and
// returns the DSN and database name to connect to.
func cityDSN(ctx context.Context, dsn, city string) (string, string, error) {
	rootDSN, err := WithDBName(dsn, MetaDatabase)
	if err != nil {
		return "", "", fmt.Errorf("invalid base DSN: %w", err)
	}
	meta, err := Open(rootDSN)
	if err != nil {
		return "", "", fmt.Errorf("db open (meta): %w", err)
	}
	defer meta.Close()
	if err := Ping(ctx, meta); err != nil {
		return "", "", fmt.Errorf("db ping (meta): %w", err)
	}

	name, err := ResolveLatestImportDBName(ctx, meta, city)
	if err != nil {
		return "", "", err
	}
	final, err := WithDBName(dsn, name)
	if err != nil {
		return "", "", fmt.Errorf("compose DSN: %w", err)
	}
	return final, name, nil
}
