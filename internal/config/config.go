package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/Veraticus/draftflow/internal/cache"
	"github.com/Veraticus/draftflow/internal/common"
	"github.com/Veraticus/draftflow/internal/engine"
	"github.com/Veraticus/draftflow/internal/flow"
)

// EnvPrefix prefixes every environment variable read through viper.
const EnvPrefix = "DRAFTFLOW"

// Store drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverREST     = "rest"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Config is the complete application configuration.
type Config struct {
	Store   StoreConfig   `mapstructure:"store"`
	Engine  EngineConfig  `mapstructure:"engine"`
	Logging LoggingConfig `mapstructure:"logging"`
	Server  ServerConfig  `mapstructure:"server"`
	Cache   CacheConfig   `mapstructure:"cache"`
}

// StoreConfig selects and configures the query port adapter.
type StoreConfig struct {
	Driver            string        `mapstructure:"driver" validate:"oneof=sqlite postgres rest"`
	DSN               string        `mapstructure:"dsn" validate:"required_unless=Driver rest"`
	URL               string        `mapstructure:"url" validate:"required_if=Driver rest"`
	APIKey            string        `mapstructure:"api_key"`
	Token             string        `mapstructure:"token"`
	Timeout           time.Duration `mapstructure:"timeout" validate:"gte=0"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second" validate:"gte=0"`
	Burst             int           `mapstructure:"burst" validate:"gte=0"`
	MaxRetries        int           `mapstructure:"max_retries" validate:"gte=1,lte=10"`
	MaxConns          int32         `mapstructure:"max_conns" validate:"gte=0"`
	KeepSnapshots     int           `mapstructure:"keep_snapshots" validate:"gte=0"`
}

// EngineConfig tunes fetching and aggregation.
type EngineConfig struct {
	Timezone        string        `mapstructure:"timezone" validate:"omitempty,timezone"`
	FlowAttribution string        `mapstructure:"flow_attribution" validate:"oneof=even exact"`
	PageSize        int           `mapstructure:"page_size" validate:"gte=1,lte=1000"`
	MaxConcurrency  int           `mapstructure:"max_concurrency" validate:"gte=1,lte=32"`
	WaveDelay       time.Duration `mapstructure:"wave_delay" validate:"gte=0"`
	PushDown        bool          `mapstructure:"push_down"`
	FailOnPartial   bool          `mapstructure:"fail_on_partial"`
}

// CacheConfig bounds the per-session page cache.
type CacheConfig struct {
	MaxPages int           `mapstructure:"max_pages" validate:"gte=1"`
	MaxRows  int           `mapstructure:"max_rows" validate:"gte=0"`
	TTL      time.Duration `mapstructure:"ttl" validate:"gte=0"`
}

// ServerConfig configures the JSON API.
type ServerConfig struct {
	Addr            string        `mapstructure:"addr" validate:"required,hostname_port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout" validate:"gte=0"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout" validate:"gte=0"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"gte=0"`
	MaxSessions     int           `mapstructure:"max_sessions" validate:"gte=1"`
	TLS             bool          `mapstructure:"tls"`
	CertDir         string        `mapstructure:"cert_dir" validate:"required_if=TLS true"`
}

// LoggingConfig configures slog.
type LoggingConfig struct {
	Level  string `mapstructure:"level" validate:"oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"oneof=console json"`
}

// Default returns the built-in configuration.
func Default() Config {
	ec := engine.DefaultConfig()
	cc := cache.DefaultOptions()
	return Config{
		Store: StoreConfig{
			Driver:        DriverSQLite,
			DSN:           "~/.local/share/draftflow/draftflow.db",
			Timeout:       30 * time.Second,
			Burst:         1,
			MaxRetries:    3,
			MaxConns:      4,
			KeepSnapshots: 5,
		},
		Engine: EngineConfig{
			FlowAttribution: string(ec.FlowAttribution),
			PageSize:        ec.PageSize,
			MaxConcurrency:  ec.MaxConcurrency,
			WaveDelay:       ec.WaveDelay,
			PushDown:        ec.PushDown,
		},
		Cache: CacheConfig{
			MaxPages: cc.MaxPages,
			MaxRows:  cc.MaxRows,
			TTL:      cc.TTL,
		},
		Server: ServerConfig{
			Addr:            "127.0.0.1:8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    2 * time.Minute,
			ShutdownTimeout: 10 * time.Second,
			MaxSessions:     256,
			CertDir:         "~/.config/draftflow/certs",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// SetDefaults registers every key with its default so that environment
// variables such as DRAFTFLOW_STORE_DSN are seen by Unmarshal.
func SetDefaults(v *viper.Viper) {
	d := Default()
	for key, value := range map[string]any{
		"store.driver":              d.Store.Driver,
		"store.dsn":                 d.Store.DSN,
		"store.url":                 d.Store.URL,
		"store.api_key":             d.Store.APIKey,
		"store.token":               d.Store.Token,
		"store.timeout":             d.Store.Timeout,
		"store.requests_per_second": d.Store.RequestsPerSecond,
		"store.burst":               d.Store.Burst,
		"store.max_retries":         d.Store.MaxRetries,
		"store.max_conns":           d.Store.MaxConns,
		"store.keep_snapshots":      d.Store.KeepSnapshots,
		"engine.timezone":           d.Engine.Timezone,
		"engine.flow_attribution":   d.Engine.FlowAttribution,
		"engine.page_size":          d.Engine.PageSize,
		"engine.max_concurrency":    d.Engine.MaxConcurrency,
		"engine.wave_delay":         d.Engine.WaveDelay,
		"engine.push_down":          d.Engine.PushDown,
		"engine.fail_on_partial":    d.Engine.FailOnPartial,
		"cache.max_pages":           d.Cache.MaxPages,
		"cache.max_rows":            d.Cache.MaxRows,
		"cache.ttl":                 d.Cache.TTL,
		"server.addr":               d.Server.Addr,
		"server.read_timeout":       d.Server.ReadTimeout,
		"server.write_timeout":      d.Server.WriteTimeout,
		"server.shutdown_timeout":   d.Server.ShutdownTimeout,
		"server.max_sessions":       d.Server.MaxSessions,
		"server.tls":                d.Server.TLS,
		"server.cert_dir":           d.Server.CertDir,
		"logging.level":             d.Logging.Level,
		"logging.format":            d.Logging.Format,
	} {
		v.SetDefault(key, value)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// Load reads the configuration from v. It follows this precedence:
// 1. Viper configuration (flags, config file or DRAFTFLOW_ env vars)
// 2. Conventional environment variables (DATABASE_URL, STORE_API_KEY)
// 3. Default values
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	// The default DSN is a sqlite path and means nothing to postgres.
	if cfg.Store.Driver == DriverPostgres && (cfg.Store.DSN == "" || cfg.Store.DSN == Default().Store.DSN) {
		if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
			cfg.Store.DSN = dsn
		}
	}
	if cfg.Store.APIKey == "" {
		cfg.Store.APIKey = os.Getenv("STORE_API_KEY")
	}
	if cfg.Store.Driver == DriverSQLite {
		cfg.Store.DSN = ExpandPath(cfg.Store.DSN)
	}
	cfg.Server.CertDir = ExpandPath(cfg.Server.CertDir)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks every section against its constraints.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %w", common.ErrInvalidConfig, err)
	}
	return nil
}

// Location resolves the configured time zone. Empty means the local zone.
func (c Config) Location() (*time.Location, error) {
	if c.Engine.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Engine.Timezone)
	if err != nil {
		return nil, fmt.Errorf("%w: timezone %q: %w", common.ErrInvalidConfig, c.Engine.Timezone, err)
	}
	return loc, nil
}

// EngineConfig converts the engine and cache sections to an engine.Config.
func (c Config) EngineConfig() (engine.Config, error) {
	loc, err := c.Location()
	if err != nil {
		return engine.Config{}, err
	}
	return engine.Config{
		Location:        loc,
		FlowAttribution: flow.Attribution(c.Engine.FlowAttribution),
		Cache: cache.Options{
			MaxPages: c.Cache.MaxPages,
			MaxRows:  c.Cache.MaxRows,
			TTL:      c.Cache.TTL,
		},
		PageSize:       c.Engine.PageSize,
		MaxConcurrency: c.Engine.MaxConcurrency,
		WaveDelay:      c.Engine.WaveDelay,
		PushDown:       c.Engine.PushDown,
		FailOnPartial:  c.Engine.FailOnPartial,
	}, nil
}

// RetryOptions returns the adapter retry policy.
func (c Config) RetryOptions() common.RetryOptions {
	return common.RetryOptions{
		MaxAttempts:  c.Store.MaxRetries,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     10 * time.Second,
		Multiplier:   2,
	}
}
