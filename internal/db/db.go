package db

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"arrival-predictor/internal/gtfs"

	_ "github.com/jackc/pgx/v5/stdlib"
)

func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)
	return db, nil
}

func Ping(ctx context.Context, db *sql.DB) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return db.PingContext(ctx)
}

// FetchRouteSchedules returns, for every route running on day, its first
// trip of the service day with stop times. An empty routeIDs means all
// routes.
func FetchRouteSchedules(ctx context.Context, db *sql.DB, day time.Time, routeIDs []string) ([]gtfs.TripSchedule, error) {
	serviceIDs, err := fetchActiveServiceIDs(ctx, db, day)
	if err != nil {
		return nil, err
	}
	if len(serviceIDs) == 0 {
		return nil, nil
	}

	starts, err := fetchTripStarts(ctx, db, serviceIDs, routeIDs)
	if err != nil {
		return nil, err
	}

	chosen := earliestTrips(starts)
	for i := range chosen {
		sts, err := FetchStopTimes(ctx, db, chosen[i].TripID)
		if err != nil {
			return nil, err
		}
		chosen[i].StopTimes = sts
	}
	return chosen, nil
}

// tripStart is a trip with the raw text of its first departure.
type tripStart struct {
	gtfs.Trip
	Start string
}

// tripStartsQuery lists every trip of the given services with its first
// departure (arrival when no departure is recorded). $2 narrows the
// routes; NULL or empty means all of them.
const tripStartsQuery = `
SELECT t.trip_id, t.route_id, t.service_id,
       COALESCE(MIN(st.departure_time)::text, MIN(st.arrival_time)::text)
FROM trips t
JOIN stop_times st ON st.trip_id = t.trip_id
WHERE t.service_id = ANY($1)
  AND ($2::text[] IS NULL OR cardinality($2::text[]) = 0 OR t.route_id = ANY($2::text[]))
GROUP BY t.trip_id, t.route_id, t.service_id`

func fetchTripStarts(ctx context.Context, db *sql.DB, serviceIDs, routeIDs []string) ([]tripStart, error) {
	rows, err := db.QueryContext(ctx, tripStartsQuery, pqArray(serviceIDs), pqArray(routeIDs))
	if err != nil {
		return nil, fmt.Errorf("query trip starts: %w", err)
	}
	defer rows.Close()

	var out []tripStart
	for rows.Next() {
		var ts tripStart
		var start sql.NullString
		if err := rows.Scan(&ts.TripID, &ts.RouteID, &ts.ServiceID, &start); err != nil {
			return nil, err
		}
		ts.Start = start.String
		out = append(out, ts)
	}
	return out, rows.Err()
}

// earliestTrips picks the first trip of every route. Trips with no usable
// start time are skipped. Only the first stop time of the result is set.
func earliestTrips(starts []tripStart) []gtfs.TripSchedule {
	candidates := make([]gtfs.TripSchedule, 0, len(starts))
	for _, ts := range starts {
		if strings.TrimSpace(ts.Start) == "" {
			continue
		}
		candidates = append(candidates, gtfs.TripSchedule{
			Trip:      ts.Trip,
			StopTimes: []gtfs.StopTime{{DepartureSec: parseDaySeconds(ts.Start)}},
		})
	}
	return gtfs.EarliestPerRoute(candidates)
}

func fetchActiveServiceIDs(ctx context.Context, db *sql.DB, now time.Time) ([]string, error) {
	date := now.Format("2006-01-02")
	dow := int(now.Weekday()) // 0=Sunday

	// calendar has booleans (0/1). calendar_dates has exception_type (1 add, 2 remove)
	q := `
WITH base AS (
  SELECT service_id
  FROM calendar
  WHERE start_date <= $1::date AND end_date >= $1::date
    AND (
      ($2 = 0 AND (sunday::text IN ('1','t','true','available'))) OR
      ($2 = 1 AND (monday::text IN ('1','t','true','available'))) OR
      ($2 = 2 AND (tuesday::text IN ('1','t','true','available'))) OR
      ($2 = 3 AND (wednesday::text IN ('1','t','true','available'))) OR
      ($2 = 4 AND (thursday::text IN ('1','t','true','available'))) OR
      ($2 = 5 AND (friday::text IN ('1','t','true','available'))) OR
      ($2 = 6 AND (saturday::text IN ('1','t','true','available')))
    )
), add_exc AS (
  SELECT service_id FROM calendar_dates WHERE date = $1::date AND (exception_type::text IN ('1','added'))
), rm_exc AS (
  SELECT service_id FROM calendar_dates WHERE date = $1::date AND (exception_type::text IN ('2','removed'))
), merged AS (
  SELECT service_id FROM base
  UNION
  SELECT service_id FROM add_exc
)
SELECT DISTINCT service_id FROM merged
WHERE service_id NOT IN (SELECT service_id FROM rm_exc)
`

	rows, err := db.QueryContext(ctx, q, date, dow)
	if err != nil {
		return nil, fmt.Errorf("query active services: %w", err)
	}
	defer rows.Close()
	var svc []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		svc = append(svc, s)
	}
	return svc, rows.Err()
}

func FetchStopTimes(ctx context.Context, db *sql.DB, tripID string) ([]gtfs.StopTime, error) {
	// Prefer stop_lat/stop_lon, but support PostGIS stop_loc geography as fallback
	latlonExists, err := hasColumns(ctx, db, "public", "stops", "stop_lat", "stop_lon")
	if err != nil {
		return nil, fmt.Errorf("introspect stops columns: %w", err)
	}
	var q string
	if latlonExists["stop_lat"] && latlonExists["stop_lon"] {
		q = `SELECT st.stop_sequence,
                    COALESCE(st.arrival_time::text,''),
                    COALESCE(st.departure_time::text,''),
                    st.stop_id,
                    COALESCE(s.stop_name, ''),
                    COALESCE(s.stop_lat, 0),
                    COALESCE(s.stop_lon, 0)
             FROM stop_times st
             JOIN stops s ON s.stop_id = st.stop_id
             WHERE st.trip_id = $1
             ORDER BY st.stop_sequence`
	} else {
		locExists, err := hasColumns(ctx, db, "public", "stops", "stop_loc")
		if err != nil {
			return nil, fmt.Errorf("introspect stops stop_loc: %w", err)
		}
		if !locExists["stop_loc"] {
			return nil, fmt.Errorf("stops table missing expected columns (stop_lat/lon or stop_loc)")
		}
		q = `SELECT st.stop_sequence,
                    COALESCE(st.arrival_time::text,''),
                    COALESCE(st.departure_time::text,''),
                    st.stop_id,
                    COALESCE(s.stop_name, ''),
                    COALESCE(ST_Y(s.stop_loc::geometry), 0),
                    COALESCE(ST_X(s.stop_loc::geometry), 0)
             FROM stop_times st
             JOIN stops s ON s.stop_id = st.stop_id
             WHERE st.trip_id = $1
             ORDER BY st.stop_sequence`
	}
	rows, err := db.QueryContext(ctx, q, tripID)
	if err != nil {
		return nil, fmt.Errorf("query stop_times: %w", err)
	}
	defer rows.Close()

	var sts []gtfs.StopTime
	for rows.Next() {
		var st gtfs.StopTime
		var arr, dep string
		if err := rows.Scan(&st.StopSequence, &arr, &dep, &st.StopID, &st.StopName, &st.StopLat, &st.StopLon); err != nil {
			return nil, err
		}
		st.ArrivalSec = parseDaySeconds(arr)
		st.DepartureSec = parseDaySeconds(dep)
		sts = append(sts, st)
	}
	return sts, rows.Err()
}

// parseDaySeconds parses HH:MM:SS possibly with hours >= 24. Interval text
// such as "1 day 02:00:00" is also understood.
func parseDaySeconds(s string) int {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	days := 0
	if fields := strings.Fields(s); len(fields) == 3 && strings.HasPrefix(fields[1], "day") {
		days, _ = strconv.Atoi(fields[0])
		s = fields[2]
	}
	parts := strings.Split(s, ":")
	if len(parts) < 2 {
		return 0
	}
	h, _ := strconv.Atoi(parts[0])
	m, _ := strconv.Atoi(parts[1])
	sec := 0
	if len(parts) > 2 {
		sec, _ = strconv.Atoi(parts[2])
	}
	total := days*86400 + h*3600 + m*60 + sec
	if total < 0 {
		total = 0
	}
	return total
}

func pqArray(a []string) any { return a }

// hasColumns returns a map of requested column names to existence for the given table.
func hasColumns(ctx context.Context, db *sql.DB, schema, table string, cols ...string) (map[string]bool, error) {
	res := make(map[string]bool, len(cols))
	if len(cols) == 0 {
		return res, nil
	}
	for _, c := range cols {
		res[c] = false
	}
	q := `SELECT column_name FROM information_schema.columns
          WHERE table_schema = $1 AND table_name = $2 AND column_name = ANY($3)`
	rows, err := db.QueryContext(ctx, q, schema, table, cols)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		res[name] = true
	}
	return res, rows.Err()
}
