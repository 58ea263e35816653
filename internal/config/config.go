package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Dataset sources.
const (
	SourceCSV      = "csv"
	SourcePostgres = "postgres"
	SourceSQLite   = "sqlite"
)

type Config struct {
	Port              string        `mapstructure:"PORT"`
	Env               string        `mapstructure:"ENV"`
	DatasetSource     string        `mapstructure:"DATASET_SOURCE"`
	DatasetDir        string        `mapstructure:"DATASET_DIR"`
	SQLitePath        string        `mapstructure:"SQLITE_PATH"`
	DatabaseURL       string        `mapstructure:"DATABASE_URL"`
	DBSchema          string        `mapstructure:"DB_SCHEMA"`
	DBMaxConns        int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns        int32         `mapstructure:"DB_MIN_CONNS"`
	CORSOrigins       []string      `mapstructure:"CORS_ORIGINS"`
	MaxFilteredEdges  int           `mapstructure:"MAX_FILTERED_EDGES"`
	MaxTraversalDepth int           `mapstructure:"MAX_TRAVERSAL_DEPTH"`
	MaxHierarchyRows  int           `mapstructure:"MAX_HIERARCHY_ROWS"`
	RequestTimeout    time.Duration `mapstructure:"REQUEST_TIMEOUT"`
	RateLimitRPS      float64       `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst    int           `mapstructure:"RATE_LIMIT_BURST"`
	MetricsEnabled    bool          `mapstructure:"METRICS_ENABLED"`
}

var keys = []string{
	"PORT", "ENV", "DATASET_SOURCE", "DATASET_DIR", "SQLITE_PATH",
	"DATABASE_URL", "DB_SCHEMA", "DB_MAX_CONNS", "DB_MIN_CONNS", "CORS_ORIGINS",
	"MAX_FILTERED_EDGES", "MAX_TRAVERSAL_DEPTH", "MAX_HIERARCHY_ROWS",
	"REQUEST_TIMEOUT", "RATE_LIMIT_RPS", "RATE_LIMIT_BURST",
	"METRICS_ENABLED",
}

// Load reads configuration from .env (if present) and the environment.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DATASET_SOURCE", SourceCSV)
	v.SetDefault("DATASET_DIR", "./termhub-csets/datasets")
	v.SetDefault("DB_SCHEMA", "n3c")
	v.SetDefault("DB_MAX_CONNS", 10)
	v.SetDefault("DB_MIN_CONNS", 2)
	v.SetDefault("CORS_ORIGINS", "*")
	v.SetDefault("MAX_FILTERED_EDGES", 250000)
	v.SetDefault("MAX_TRAVERSAL_DEPTH", 64)
	v.SetDefault("MAX_HIERARCHY_ROWS", 200000)
	v.SetDefault("REQUEST_TIMEOUT", "30s")
	v.SetDefault("RATE_LIMIT_RPS", 20)
	v.SetDefault("RATE_LIMIT_BURST", 40)
	v.SetDefault("METRICS_ENABLED", true)

	// Bind env vars explicitly so Unmarshal picks them up
	for _, k := range keys {
		v.BindEnv(k)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.CORSOrigins = splitList(strings.Join(cfg.CORSOrigins, ","))
	cfg.DatasetSource = strings.ToLower(strings.TrimSpace(cfg.DatasetSource))

	return cfg, nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Validate checks cross-field rules: the chosen dataset source must have its
// location configured, and the engine ceilings must not be negative.
func (c *Config) Validate() error {
	switch c.DatasetSource {
	case SourceCSV:
		if c.DatasetDir == "" {
			return fmt.Errorf("DATASET_DIR is required when DATASET_SOURCE is %q", SourceCSV)
		}
	case SourcePostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when DATASET_SOURCE is %q", SourcePostgres)
		}
	case SourceSQLite:
		if c.SQLitePath == "" {
			return fmt.Errorf("SQLITE_PATH is required when DATASET_SOURCE is %q", SourceSQLite)
		}
	default:
		return fmt.Errorf("DATASET_SOURCE must be %q, %q, or %q, got %q",
			SourceCSV, SourcePostgres, SourceSQLite, c.DatasetSource)
	}

	if c.MaxFilteredEdges < 0 || c.MaxTraversalDepth < 0 || c.MaxHierarchyRows < 0 {
		return fmt.Errorf("MAX_FILTERED_EDGES, MAX_TRAVERSAL_DEPTH and MAX_HIERARCHY_ROWS must not be negative")
	}
	if c.RequestTimeout < 0 {
		return fmt.Errorf("REQUEST_TIMEOUT must not be negative, got %s", c.RequestTimeout)
	}
	if c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("DB_MIN_CONNS (%d) must not exceed DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
	}
	return nil
}

// RequireDatabase reports an error when no DATABASE_URL is configured. The
// migrate and schema commands need it regardless of the dataset source.
func (c *Config) RequireDatabase() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	return nil
}
