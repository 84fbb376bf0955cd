package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"

	"github.com/ekaya-inc/ekaya-pivot/pkg/apperrors"
)

// DefaultConfigPath is read when no explicit path is given. It is optional.
const DefaultConfigPath = "config.yaml"

// Supported store drivers.
const (
	DriverPostgres  = "postgres"
	DriverSQLite    = "sqlite"
	DriverSQLServer = "sqlserver"
)

// Config holds all configuration for ekaya-pivot.
// Configuration can come from YAML file (config.yaml) or environment variables.
// Environment variables always override YAML values for fields that support both.
// Secrets (passwords) must only come from environment variables.
type Config struct {
	Env     string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	Version string `yaml:"-"` // Set at load time, not from config

	// Database holds the store the pipeline reads and writes.
	Database DatabaseConfig `yaml:"database"`

	// Pipeline tunes the transformation steps.
	Pipeline PipelineConfig `yaml:"pipeline"`

	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// DatabaseConfig holds connection settings for the relational store.
// Host/Port/User/Database apply to both postgres and sqlserver drivers.
type DatabaseConfig struct {
	Driver         string `yaml:"driver" env:"PIVOT_DB_DRIVER" env-default:"postgres"`
	URL            string `yaml:"-" env:"DATABASE_URL"` // Secret - overrides discrete fields when set
	Host           string `yaml:"host" env:"PGHOST" env-default:"localhost"`
	Port           int    `yaml:"port" env:"PGPORT" env-default:"5432"`
	User           string `yaml:"user" env:"PGUSER" env-default:"ekaya"`
	Password       string `yaml:"-" env:"PGPASSWORD"` // Secret - not in YAML
	Database       string `yaml:"database" env:"PGDATABASE" env-default:"etl_db"`
	SSLMode        string `yaml:"ssl_mode" env:"PGSSLMODE" env-default:"disable"`
	MaxConnections int32  `yaml:"max_connections" env:"PGMAX_CONNECTIONS" env-default:"4"`
	SQLitePath     string `yaml:"sqlite_path" env:"PIVOT_SQLITE_PATH" env-default:"ekaya-pivot.db"`
}

// PipelineConfig holds settings for the pivot and ancestor steps.
type PipelineConfig struct {
	// MaxClosurePasses bounds the ancestor closure loop. It must exceed the
	// deepest sample tree; a stalled pass is detected regardless of this bound.
	MaxClosurePasses int `yaml:"max_closure_passes" env:"PIVOT_MAX_CLOSURE_PASSES" env-default:"1000"`

	// RecordRuns stores run and step outcomes in the pivot_runs ledger tables.
	RecordRuns bool `yaml:"record_runs" env:"PIVOT_RECORD_RUNS" env-default:"true"`

	// NumericPrecision and NumericScale define the type of new measurement columns.
	NumericPrecision int `yaml:"numeric_precision" env:"PIVOT_NUMERIC_PRECISION" env-default:"16"`
	NumericScale     int `yaml:"numeric_scale" env:"PIVOT_NUMERIC_SCALE" env-default:"6"`

	Retry RetryConfig `yaml:"retry"`
}

// RetryConfig controls retries of steps that failed on transient store errors.
type RetryConfig struct {
	MaxRetries   int           `yaml:"max_retries" env:"PIVOT_RETRY_MAX" env-default:"3"`
	InitialDelay time.Duration `yaml:"initial_delay" env:"PIVOT_RETRY_INITIAL_DELAY" env-default:"200ms"`
	MaxDelay     time.Duration `yaml:"max_delay" env:"PIVOT_RETRY_MAX_DELAY" env-default:"5s"`
}

// LoggingConfig selects the zap logger flavour.
type LoggingConfig struct {
	Level  string `yaml:"level" env:"LOG_LEVEL" env-default:"info"`
	Format string `yaml:"format" env:"LOG_FORMAT" env-default:"json"` // "json" or "console"
}

// MetricsConfig holds Prometheus Pushgateway settings. Metrics are only pushed
// when PushgatewayURL is set.
type MetricsConfig struct {
	PushgatewayURL string `yaml:"pushgateway_url" env:"PUSHGATEWAY_URL" env-default:""`
	Job            string `yaml:"job" env:"METRICS_JOB" env-default:"ekaya_pivot"`
}

// Load reads configuration from a YAML file with environment variable overrides.
// If path is empty, config.yaml is read when present and skipped otherwise, so
// the pipeline can run with environment variables alone.
func Load(path, version string) (*Config, error) {
	cfg := &Config{
		Version: version,
	}

	explicit := path != ""
	if !explicit {
		path = DefaultConfigPath
	}

	_, statErr := os.Stat(path)
	switch {
	case statErr == nil:
		if err := cleanenv.ReadConfig(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
	case explicit || !errors.Is(statErr, os.ErrNotExist):
		return nil, fmt.Errorf("failed to read %s: %w", path, statErr)
	default:
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, fmt.Errorf("failed to read environment: %w", err)
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// validate rejects settings the pipeline cannot run with.
func (c *Config) validate() error {
	switch c.Database.Driver {
	case DriverPostgres, DriverSQLite, DriverSQLServer:
	default:
		return fmt.Errorf("%w: %q", apperrors.ErrUnknownDriver, c.Database.Driver)
	}

	if c.Pipeline.MaxClosurePasses < 0 {
		return fmt.Errorf("max_closure_passes must not be negative")
	}

	p, s := c.Pipeline.NumericPrecision, c.Pipeline.NumericScale
	if p < 1 || p > 38 {
		return fmt.Errorf("numeric_precision must be between 1 and 38, got %d", p)
	}
	if s < 0 || s > p {
		return fmt.Errorf("numeric_scale must be between 0 and numeric_precision, got %d", s)
	}

	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("logging format must be json or console, got %q", c.Logging.Format)
	}

	return nil
}

// ConnectionString returns the DSN for the configured driver.
// IMPORTANT: user-provided fields are URL-escaped so passwords containing
// @, /, # or ? do not break URL parsing.
func (c *DatabaseConfig) ConnectionString() string {
	if c.URL != "" {
		return c.URL
	}

	switch c.Driver {
	case DriverSQLite:
		return c.SQLitePath + "?_pragma=busy_timeout(5000)"
	case DriverSQLServer:
		u := &url.URL{
			Scheme:   "sqlserver",
			User:     url.UserPassword(c.User, c.Password),
			Host:     fmt.Sprintf("%s:%d", ResolveHostForDocker(c.Host), c.Port),
			RawQuery: url.Values{"database": {c.Database}}.Encode(),
		}
		return u.String()
	default:
		sslMode := c.SSLMode
		if sslMode == "" {
			sslMode = "disable"
		}
		return fmt.Sprintf(
			"postgresql://%s:%s@%s:%d/%s?sslmode=%s",
			url.QueryEscape(c.User),
			url.QueryEscape(c.Password),
			ResolveHostForDocker(c.Host),
			c.Port,
			url.QueryEscape(c.Database),
			sslMode,
		)
	}
}

// Describe returns a credential-free summary of the target store for logs.
func (c *DatabaseConfig) Describe() string {
	switch c.Driver {
	case DriverSQLite:
		return "sqlite:" + c.SQLitePath
	default:
		if c.URL != "" {
			u, err := url.Parse(c.URL)
			if err != nil {
				return c.Driver + ":<unparseable url>"
			}
			if u.User != nil {
				u.User = url.User(u.User.Username())
			}
			u.RawQuery = ""
			return c.Driver + ":" + u.String()
		}
		return fmt.Sprintf("%s:%s@%s:%d/%s", c.Driver, c.User, c.Host, c.Port, c.Database)
	}
}
