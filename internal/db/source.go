package db

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"arrival-predictor/internal/gtfs"
	"arrival-predictor/internal/logging"
)

// Source serves GTFS schedules out of a Postgres import.
type Source struct {
	db     *sql.DB
	dbName string
}

// Connect opens the GTFS database. When city is set, the most recent import
// for that city is resolved through the cluster's 'postgres' database.
func Connect(ctx context.Context, dsn, city string, logger *slog.Logger) (*Source, error) {
	finalDSN := dsn
	var dbName string
	if city != "" {
		var err error
		finalDSN, dbName, err = cityDSN(ctx, dsn, city)
		if err != nil {
			return nil, err
		}
		logging.OrDiscard(logger).Info("using city database", slog.String("db_name", dbName), slog.String("city", city))
	}

	sqlDB, err := Open(finalDSN)
	if err != nil {
		return nil, fmt.Errorf("db open: %w", err)
	}
	if err := Ping(ctx, sqlDB); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return &Source{db: sqlDB, dbName: dbName}, nil
}

// RouteSchedules implements the import source used by the API.
func (s *Source) RouteSchedules(ctx context.Context, day time.Time, routeIDs []string) ([]gtfs.TripSchedule, error) {
	return FetchRouteSchedules(ctx, s.db, day, routeIDs)
}

// DBName is the resolved city database, empty when no city was given.
func (s *Source) DBName() string { return s.dbName }

func (s *Source) Close() error { return s.db.Close() }
