package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"arrival-predictor/internal/logging"
)

type Config struct {
	ListenAddr          string
	ModelPath           string
	EstimatorURL        string
	EstimatorTimeout    time.Duration
	EstimatorCacheSize  int
	DefaultDwellSeconds float64
	ReferenceDate       time.Time // zero means "today"
	Location            *time.Location
	MaxUploadBytes      int64
	PlaceholderRoute    bool
	LogLevel            slog.Level
	MetricsAddr         string
	NATSURL             string
	NATSSubjectPrefix   string
	LogNATSSubjects     bool
	DatabaseURL         string // empty disables the database import
	City                string
}

func Load() (*Config, error) {
	// Load .env into environment (ignore if missing)
	_ = godotenv.Load()

	cfg := &Config{}

	cfg.ListenAddr = getenvDefault("LISTEN_ADDR", ":8000")
	cfg.ModelPath = getenvDefault("MODEL_PATH", "data/bus_travel_time_model.json")
	cfg.EstimatorURL = strings.TrimSpace(os.Getenv("ESTIMATOR_URL"))

	// Remote estimator timeout
	if v := os.Getenv("ESTIMATOR_TIMEOUT_MS"); v != "" {
		ms, err := strconv.Atoi(v)
		if err != nil || ms <= 0 {
			return nil, fmt.Errorf("invalid ESTIMATOR_TIMEOUT_MS: %q", v)
		}
		cfg.EstimatorTimeout = time.Duration(ms) * time.Millisecond
	} else {
		cfg.EstimatorTimeout = 2 * time.Second
	}

	// Prediction cache entries, 0 disables
	if v := os.Getenv("ESTIMATOR_CACHE_SIZE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("invalid ESTIMATOR_CACHE_SIZE: %q", v)
		}
		cfg.EstimatorCacheSize = n
	} else {
		cfg.EstimatorCacheSize = 4096
	}

	if v := os.Getenv("DEFAULT_DWELL_SECONDS"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f <= 0 {
			return nil, fmt.Errorf("invalid DEFAULT_DWELL_SECONDS: %q", v)
		}
		cfg.DefaultDwellSeconds = f
	} else {
		cfg.DefaultDwellSeconds = 30
	}

	if v := os.Getenv("MAX_UPLOAD_MB"); v != "" {
		mb, err := strconv.Atoi(v)
		if err != nil || mb <= 0 {
			return nil, fmt.Errorf("invalid MAX_UPLOAD_MB: %q", v)
		}
		cfg.MaxUploadBytes = int64(mb) << 20
	} else {
		cfg.MaxUploadBytes = 32 << 20
	}

	cfg.PlaceholderRoute = true
	if v := os.Getenv("PLACEHOLDER_ROUTE"); v != "" {
		cfg.PlaceholderRoute = parseBool(v)
	}

	cfg.LogLevel = logging.ParseLevel(os.Getenv("LOG_LEVEL"))

	// Time zone
	tzName := getenvDefault("TZ", "")
	if tzName == "" {
		cfg.Location = time.Local
	} else {
		loc, err := time.LoadLocation(tzName)
		if err != nil {
			return nil, fmt.Errorf("invalid TZ: %v", err)
		}
		cfg.Location = loc
	}

	if v := strings.TrimSpace(os.Getenv("REFERENCE_DATE")); v != "" {
		d, err := time.ParseInLocation(time.DateOnly, v, cfg.Location)
		if err != nil {
			return nil, fmt.Errorf("invalid REFERENCE_DATE: %q", v)
		}
		cfg.ReferenceDate = d
	}

	// Metrics listen address (e.g., ":9102"). Empty disables the metrics server.
	cfg.MetricsAddr = os.Getenv("METRICS_ADDR")

	// Empty disables publishing
	cfg.NATSURL = strings.TrimSpace(os.Getenv("NATS_URL"))
	cfg.NATSSubjectPrefix = getenvDefault("NATS_SUBJECT_PREFIX", "predictions")
	if v := os.Getenv("LOG_NATS_SUBJECTS"); v != "" {
		cfg.LogNATSSubjects = parseBool(v)
	}

	// City name for dynamic DB resolution
	cfg.City = firstNonEmpty(os.Getenv("CITY"), os.Getenv("CITY_NAME"))
	cfg.DatabaseURL = databaseURL(cfg.City)

	return cfg, nil
}

// Clock returns the reference clock for the simulator: the pinned
// REFERENCE_DATE when set, otherwise the current time in Location.
func (c *Config) Clock() func() time.Time {
	loc := c.Location
	if loc == nil {
		loc = time.Local
	}
	if !c.ReferenceDate.IsZero() {
		ref := c.ReferenceDate
		return func() time.Time { return ref }
	}
	return func() time.Time { return time.Now().In(loc) }
}

// databaseURL prefers DATABASE_URL / PG_DSN, else builds a DSN from PG*
// vars. Without PGDATABASE or a city there is no database.
func databaseURL(city string) string {
	if dsn := firstNonEmpty(os.Getenv("DATABASE_URL"), os.Getenv("PG_DSN")); dsn != "" {
		return dsn
	}

	db := os.Getenv("PGDATABASE")
	// If CITY is provided, default base DB to 'postgres' when PGDATABASE is not set.
	if db == "" && city != "" {
		db = "postgres"
	}
	if db == "" {
		return ""
	}

	host := getenvDefault("PGHOST", "127.0.0.1")
	port := getenvDefault("PGPORT", "5432")
	user := getenvDefault("PGUSER", "postgres")
	pass := os.Getenv("PGPASSWORD")
	sslmode := getenvDefault("PGSSLMODE", "disable")
	if pass != "" {
		return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", urlEscape(user), urlEscape(pass), host, port, db, sslmode)
	}
	return fmt.Sprintf("postgres://%s@%s:%s/%s?sslmode=%s", urlEscape(user), host, port, db, sslmode)
}

func parseBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "t", "yes", "y", "on":
		return true
	default:
		return false
	}
}

func getenvDefault(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func urlEscape(s string) string {
	// Minimal escape for DSN user/pass with special chars
	r := strings.NewReplacer("@", "%40", ":", "%3A", "/", "%2F", "?", "%3F", "#", "%23")
	return r.Replace(s)
}
