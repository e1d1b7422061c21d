package cfg

import (
	"errors"
	"flag"
	"fmt"
)

// Config adds daemon-specific configuration fields to the
// common cfg.Registerable and cfg.Validatable interfaces
type Config struct {
	DrainSeconds          int
	ShutdownBudgetSeconds int
	APIPort               int
	APIToken              string
	CollectorEndpoint     string
	CollectorToken        string
	StateBackend          string
	DataDir               string
	DatabaseURL           string
	RedisURL              string
	SessionTTLHours       int
	SaveDebounceMs        int
	BatchSize             int
	BatchIntervalSeconds  int
	BatchMaxPending       int
	SpoolMaxRetries       int
	ProbeIntervalSeconds  int
}

// RegisterFlags binds Config fields to the given FlagSet with defaults inline
func (c *Config) RegisterFlags(fs *flag.FlagSet) {
	fs.IntVar(&c.DrainSeconds, "drain-seconds", 60, "seconds to wait for in-flight requests to drain before shutdown (1..300)")
	fs.IntVar(&c.ShutdownBudgetSeconds, "shutdown-budget-seconds", 90, "total seconds for component shutdown after drain (1..300)")
	fs.IntVar(&c.APIPort, "http-port", 8080, "API listen TCP port (1..65535)")
	fs.StringVar(&c.APIToken, "api-token", "", "bearer token required on /api/v1 requests (empty = no auth)")
	fs.StringVar(&c.CollectorEndpoint, "collector-endpoint", "", "audit collector URL that batches are forwarded to")
	fs.StringVar(&c.CollectorToken, "collector-token", "", "bearer token sent with forwarded audit batches")
	fs.StringVar(&c.StateBackend, "state-backend", "file", "state storage backend: memory, file, sqlite, postgres or redis")
	fs.StringVar(&c.DataDir, "data-dir", "./data", "directory for the file and sqlite backends")
	fs.StringVar(&c.DatabaseURL, "database-url", "", "PostgreSQL connection URL (required for the postgres backend)")
	fs.StringVar(&c.RedisURL, "redis-url", "", "Redis connection URL (required for the redis backend)")
	fs.IntVar(&c.SessionTTLHours, "session-ttl-hours", 24, "hours before an idle session expires (1..168)")
	fs.IntVar(&c.SaveDebounceMs, "save-debounce-ms", 500, "milliseconds to coalesce session saves before writing (50..10000)")
	fs.IntVar(&c.BatchSize, "batch-size", 10, "audit entries that trigger an immediate batch flush (1..100)")
	fs.IntVar(&c.BatchIntervalSeconds, "batch-interval-seconds", 5, "seconds of quiet before a partial audit batch flushes (1..300)")
	fs.IntVar(&c.BatchMaxPending, "batch-max-pending", 1000, "audit entries held in memory before new ones are dropped")
	fs.IntVar(&c.SpoolMaxRetries, "spool-max-retries", 3, "delivery attempts per spooled audit entry before it is dropped (1..10)")
	fs.IntVar(&c.ProbeIntervalSeconds, "probe-interval-seconds", 15, "seconds between collector reachability probes (1..300)")
}

// Validate checks all configuration fields for correctness.
// It returns an error if any field is invalid, or nil if all fields are valid.
func (c *Config) Validate() error {
	var errs []error

	// Drain and shutdown budgets
	if c.DrainSeconds <= 0 || c.DrainSeconds > 300 {
		errs = append(errs, fmt.Errorf("invalid DRAIN_SECONDS %d (must be 1..300)", c.DrainSeconds))
	}
	if c.ShutdownBudgetSeconds <= 0 || c.ShutdownBudgetSeconds > 300 {
		errs = append(errs, fmt.Errorf("invalid SHUTDOWN_BUDGET_SECONDS %d (must be 1..300)", c.ShutdownBudgetSeconds))
	}

	// Shutdown budget must be greater than drain time
	if c.ShutdownBudgetSeconds <= c.DrainSeconds {
		errs = append(errs, fmt.Errorf("SHUTDOWN_BUDGET_SECONDS %d must be greater than DRAIN_SECONDS %d", c.ShutdownBudgetSeconds, c.DrainSeconds))
	}

	// API port must be valid TCP port number
	if c.APIPort <= 0 || c.APIPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid HTTP_PORT %d (must be 1..65535)", c.APIPort))
	}

	// Collector endpoint is required for audit forwarding
	if c.CollectorEndpoint == "" {
		errs = append(errs, errors.New("COLLECTOR_ENDPOINT is required"))
	}

	// Backend must be one of the supported stores, and the stores that
	// need connection details must have them
	switch c.StateBackend {
	case "memory", "file", "sqlite", "postgres", "redis":
	default:
		errs = append(errs, fmt.Errorf("invalid STATE_BACKEND %q (must be memory, file, sqlite, postgres or redis)", c.StateBackend))
	}
	if (c.StateBackend == "file" || c.StateBackend == "sqlite") && c.DataDir == "" {
		errs = append(errs, fmt.Errorf("DATA_DIR is required when STATE_BACKEND is %s", c.StateBackend))
	}
	if c.StateBackend == "postgres" && c.DatabaseURL == "" {
		errs = append(errs, errors.New("DATABASE_URL is required when STATE_BACKEND is postgres"))
	}
	if c.StateBackend == "redis" && c.RedisURL == "" {
		errs = append(errs, errors.New("REDIS_URL is required when STATE_BACKEND is redis"))
	}

	// Session persistence knobs
	if c.SessionTTLHours <= 0 || c.SessionTTLHours > 168 {
		errs = append(errs, fmt.Errorf("invalid SESSION_TTL_HOURS %d (must be 1..168)", c.SessionTTLHours))
	}
	if c.SaveDebounceMs < 50 || c.SaveDebounceMs > 10000 {
		errs = append(errs, fmt.Errorf("invalid SAVE_DEBOUNCE_MS %d (must be 50..10000)", c.SaveDebounceMs))
	}

	// Audit batching and spooling knobs
	if c.BatchSize <= 0 || c.BatchSize > 100 {
		errs = append(errs, fmt.Errorf("invalid BATCH_SIZE %d (must be 1..100)", c.BatchSize))
	}
	if c.BatchIntervalSeconds <= 0 || c.BatchIntervalSeconds > 300 {
		errs = append(errs, fmt.Errorf("invalid BATCH_INTERVAL_SECONDS %d (must be 1..300)", c.BatchIntervalSeconds))
	}
	if c.BatchMaxPending > 1000000 {
		errs = append(errs, fmt.Errorf("invalid BATCH_MAX_PENDING %d (must be at most 1000000)", c.BatchMaxPending))
	}
	if c.BatchMaxPending < c.BatchSize {
		errs = append(errs, fmt.Errorf("BATCH_MAX_PENDING %d must be at least BATCH_SIZE %d", c.BatchMaxPending, c.BatchSize))
	}
	if c.SpoolMaxRetries <= 0 || c.SpoolMaxRetries > 10 {
		errs = append(errs, fmt.Errorf("invalid SPOOL_MAX_RETRIES %d (must be 1..10)", c.SpoolMaxRetries))
	}
	if c.ProbeIntervalSeconds <= 0 || c.ProbeIntervalSeconds > 300 {
		errs = append(errs, fmt.Errorf("invalid PROBE_INTERVAL_SECONDS %d (must be 1..300)", c.ProbeIntervalSeconds))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}
