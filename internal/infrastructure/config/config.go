package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of environment variables overriding config keys,
// e.g. LETTRAGE_DATABASE_PASSWORD overrides database.password.
const EnvPrefix = "LETTRAGE"

// Config is the root of the service configuration. Keys are addressed as
// section.field, both in config.toml and (upper-cased) in the environment.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Log       LogConfig       `mapstructure:"log"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	Payment   PaymentConfig   `mapstructure:"payment"`
	Outbox    OutboxConfig    `mapstructure:"outbox"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Sentry    SentryConfig    `mapstructure:"sentry"`
}

type AppConfig struct {
	Name string `mapstructure:"name"`
	Env  string `mapstructure:"env"`
	Port string `mapstructure:"port"`
}

// DatabaseConfig describes the PostgreSQL ledger store and its pool
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"dbname"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	ConnectAttempts int           `mapstructure:"connect_attempts"`
}

// RedisConfig holds Redis connection settings.
// An empty Host disables Redis and the in-memory fallbacks are used.
type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

func (r RedisConfig) Addr() string {
	return r.Host + ":" + strconv.Itoa(r.Port)
}

type LogConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json, console
	Output string `mapstructure:"output"` // stdout, stderr, or a file path
}

type HTTPConfig struct {
	ReadTimeout       time.Duration `mapstructure:"read_timeout"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout"`
	IdleTimeout       time.Duration `mapstructure:"idle_timeout"`
	MaxHeaderBytes    int           `mapstructure:"max_header_bytes"`
	MaxBodySize       int64         `mapstructure:"max_body_size"`
	RateLimitEnabled  bool          `mapstructure:"rate_limit_enabled"`
	RateLimitRequests int           `mapstructure:"rate_limit_requests"`
	RateLimitWindow   time.Duration `mapstructure:"rate_limit_window"`
	CORSAllowOrigins  []string      `mapstructure:"cors_allow_origins"`
	TrustedProxies    []string      `mapstructure:"trusted_proxies"`
}

// PaymentConfig tunes payment application
type PaymentConfig struct {
	ConflictRetries int    `mapstructure:"conflict_retries"` // plan-and-apply rounds before a conflict is returned
	Currency        string `mapstructure:"currency"`         // ISO 4217 code of minor-unit amounts
}

// OutboxConfig drives the relay that delivers ledger events
type OutboxConfig struct {
	ProcessorEnabled bool          `mapstructure:"processor_enabled"`
	BatchSize        int           `mapstructure:"batch_size"`
	PollInterval     time.Duration `mapstructure:"poll_interval"`
	CleanupRetention time.Duration `mapstructure:"cleanup_retention"`
	IdempotencyTTL   time.Duration `mapstructure:"idempotency_ttl"`
}

// TelemetryConfig holds OpenTelemetry export and continuous profiling settings
type TelemetryConfig struct {
	Enabled           bool          `mapstructure:"enabled"`
	CollectorEndpoint string        `mapstructure:"collector_endpoint"`
	SamplingRatio     float64       `mapstructure:"sampling_ratio"`
	ServiceName       string        `mapstructure:"service_name"`
	Insecure          bool          `mapstructure:"insecure"`
	MetricsEnabled    bool          `mapstructure:"metrics_enabled"`
	LogsEnabled       bool          `mapstructure:"logs_enabled"`
	DBTraceEnabled    bool          `mapstructure:"db_trace_enabled"`
	DBSlowQueryThresh time.Duration `mapstructure:"db_slow_query_threshold"`
	ProfilingEnabled  bool          `mapstructure:"profiling_enabled"`
	PyroscopeAddress  string        `mapstructure:"pyroscope_address"`
}

// SentryConfig holds error reporting configuration. An empty DSN disables it.
type SentryConfig struct {
	DSN              string  `mapstructure:"dsn"`
	TracesSampleRate float64 `mapstructure:"traces_sample_rate"`
}

// defaults registers every key. Viper only consults the environment for
// keys it knows about, so keys without a meaningful default are listed
// with their zero value.
var defaults = map[string]any{
	"app.name": "lettrage",
	"app.env":  "development",
	"app.port": "8080",

	"database.host":               "localhost",
	"database.port":               5432,
	"database.user":               "postgres",
	"database.password":           "",
	"database.dbname":             "lettrage",
	"database.sslmode":            "disable",
	"database.max_open_conns":     25,
	"database.max_idle_conns":     5,
	"database.conn_max_lifetime":  time.Hour,
	"database.conn_max_idle_time": 30 * time.Minute,
	"database.connect_attempts":   5,

	"redis.host":     "",
	"redis.port":     6379,
	"redis.password": "",
	"redis.db":       0,

	"log.level":  "info",
	"log.format": "console",
	"log.output": "stdout",

	"http.read_timeout":        15 * time.Second,
	"http.write_timeout":       15 * time.Second,
	"http.idle_timeout":        time.Minute,
	"http.max_header_bytes":    1 << 20,
	"http.max_body_size":       1 << 20,
	"http.rate_limit_enabled":  false,
	"http.rate_limit_requests": 100,
	"http.rate_limit_window":   time.Minute,
	"http.cors_allow_origins":  []string{},
	"http.trusted_proxies":     []string{},

	"payment.conflict_retries": 3,
	"payment.currency":         "EUR",

	"outbox.processor_enabled": false,
	"outbox.batch_size":        100,
	"outbox.poll_interval":     5 * time.Second,
	"outbox.cleanup_retention": 7 * 24 * time.Hour,
	"outbox.idempotency_ttl":   24 * time.Hour,

	"telemetry.enabled":                 false,
	"telemetry.collector_endpoint":      "localhost:4317",
	"telemetry.sampling_ratio":          1.0,
	"telemetry.service_name":            "",
	"telemetry.insecure":                false,
	"telemetry.metrics_enabled":         false,
	"telemetry.logs_enabled":            false,
	"telemetry.db_trace_enabled":        false,
	"telemetry.db_slow_query_threshold": 200 * time.Millisecond,
	"telemetry.profiling_enabled":       false,
	"telemetry.pyroscope_address":       "",

	"sentry.dsn":                "",
	"sentry.traces_sample_rate": 0.2,
}

// Load reads configuration with this precedence, highest first:
// environment (LETTRAGE_*, after a .env file if present), config.toml,
// built-in defaults.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("reading .env: %w", err)
	}

	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	v.SetConfigName("config")
	v.SetConfigType("toml")
	for _, dir := range []string{".", "./config", "/app"} {
		v.AddConfigPath(dir)
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = cfg.App.Name
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	db := c.Database
	check(db.MaxOpenConns > 0, "database.max_open_conns must be positive")
	check(db.MaxIdleConns >= 0, "database.max_idle_conns cannot be negative")
	check(db.MaxIdleConns <= db.MaxOpenConns,
		"database.max_idle_conns (%d) cannot exceed database.max_open_conns (%d)", db.MaxIdleConns, db.MaxOpenConns)
	check(db.ConnectAttempts > 0, "database.connect_attempts must be positive")

	check(c.Payment.ConflictRetries >= 1 && c.Payment.ConflictRetries <= 10,
		"payment.conflict_retries must be between 1 and 10, got %d", c.Payment.ConflictRetries)
	check(len(c.Payment.Currency) == 3,
		"payment.currency must be a three-letter ISO 4217 code, got %q", c.Payment.Currency)

	check(c.Telemetry.SamplingRatio >= 0 && c.Telemetry.SamplingRatio <= 1,
		"telemetry.sampling_ratio must be between 0.0 and 1.0, got %f", c.Telemetry.SamplingRatio)
	check(!c.Telemetry.ProfilingEnabled || c.Telemetry.PyroscopeAddress != "",
		"telemetry.pyroscope_address is required when profiling is enabled")

	if c.IsProduction() {
		check(db.Password != "", "database.password is required in production")
		check(db.SSLMode != "disable", "database.sslmode cannot be 'disable' in production")
		for _, origin := range c.HTTP.CORSAllowOrigins {
			check(origin != "*", "http.cors_allow_origins cannot be '*' in production")
		}
	}
	return errors.Join(errs...)
}

func (c *Config) IsProduction() bool {
	return c.App.Env == "production"
}

// DSN returns the connection URL with user info and database name escaped
func (d *DatabaseConfig) DSN() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(d.User, d.Password),
		Host:     d.Host + ":" + strconv.Itoa(d.Port),
		Path:     d.DBName,
		RawQuery: url.Values{"sslmode": {d.SSLMode}}.Encode(),
	}
	return u.String()
}
