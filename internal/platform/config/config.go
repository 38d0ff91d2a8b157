// Package config loads process configuration from defaults, an optional YAML
// file, and EXPLORER_* environment variables, in increasing priority.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	pkgstrings "explorer/pkg/platform/strings"
)

// EnvPrefix namespaces every environment override (EXPLORER_DATABASE_DSN, ...).
const EnvPrefix = "EXPLORER"

// Config is the full process configuration.
type Config struct {
	Server   Server
	Database Database
	Query    Query
	Policy   Policy
	Log      Log
	Cache    Cache
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr             string
	AdminToken       string
	ShutdownTimeout  time.Duration
	ExportsPerMinute int
	ExportBurst      int
}

// Database selects the relational store. Driver is "sqlite" or "postgres".
type Database struct {
	Driver       string
	DSN          string
	MaxOpenConns int
	TxTimeout    time.Duration
}

// Query bounds the query engine.
type Query struct {
	DefaultLimit  int
	MaxLimit      int
	MaxExportRows int
}

// Policy configures the contradiction recommendation policy.
type Policy struct {
	UntrustedTiers []string
	TieBreak       string
}

// Log configures the slog handler.
type Log struct {
	Level  string
	Format string
}

// Cache configures the source lookup cache used while badging rows.
type Cache struct {
	SourceTTL time.Duration
}

// SetDefaults registers every default on v. Exposed so the CLI can bind its
// flags to the same keys.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.admin_token", "")
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("server.exports_per_minute", 30)
	v.SetDefault("server.export_burst", 5)

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "explorer.db")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.tx_timeout", 5*time.Second)

	v.SetDefault("query.default_limit", 100)
	v.SetDefault("query.max_limit", 1000)
	v.SetDefault("query.max_export_rows", 100000)

	v.SetDefault("policy.untrusted_tiers", []string{"low", "contested"})
	v.SetDefault("policy.tie_break", "government")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("cache.source_ttl", 5*time.Minute)
}

// New returns a viper instance with defaults and environment binding applied.
func New() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads configuration. An empty path skips the config file.
func Load(path string) (*Config, error) {
	v := New()
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	return FromViper(v)
}

// FromViper materialises and validates a Config from v.
func FromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		Server: Server{
			Addr:             v.GetString("server.addr"),
			AdminToken:       v.GetString("server.admin_token"),
			ShutdownTimeout:  v.GetDuration("server.shutdown_timeout"),
			ExportsPerMinute: v.GetInt("server.exports_per_minute"),
			ExportBurst:      v.GetInt("server.export_burst"),
		},
		Database: Database{
			Driver:       strings.ToLower(v.GetString("database.driver")),
			DSN:          v.GetString("database.dsn"),
			MaxOpenConns: v.GetInt("database.max_open_conns"),
			TxTimeout:    v.GetDuration("database.tx_timeout"),
		},
		Query: Query{
			DefaultLimit:  v.GetInt("query.default_limit"),
			MaxLimit:      v.GetInt("query.max_limit"),
			MaxExportRows: v.GetInt("query.max_export_rows"),
		},
		Policy: Policy{
			UntrustedTiers: pkgstrings.DedupeAndTrimLower(v.GetStringSlice("policy.untrusted_tiers")),
			TieBreak:       strings.ToLower(v.GetString("policy.tie_break")),
		},
		Log: Log{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
		},
		Cache: Cache{
			SourceTTL: v.GetDuration("cache.source_ttl"),
		},
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the service cannot run with.
func (c *Config) Validate() error {
	var errs []error
	switch c.Database.Driver {
	case "sqlite", "postgres":
	default:
		errs = append(errs, fmt.Errorf("database.driver must be sqlite or postgres, got %q", c.Database.Driver))
	}
	if c.Database.DSN == "" {
		errs = append(errs, errors.New("database.dsn is required"))
	}
	if c.Query.MaxLimit <= 0 {
		errs = append(errs, errors.New("query.max_limit must be positive"))
	}
	if c.Query.DefaultLimit <= 0 || c.Query.DefaultLimit > c.Query.MaxLimit {
		errs = append(errs, errors.New("query.default_limit must be in (0, max_limit]"))
	}
	if c.Query.MaxExportRows <= 0 {
		errs = append(errs, errors.New("query.max_export_rows must be positive"))
	}
	switch c.Policy.TieBreak {
	case "government", "independent":
	default:
		errs = append(errs, fmt.Errorf("policy.tie_break must be government or independent, got %q", c.Policy.TieBreak))
	}
	return errors.Join(errs...)
}
