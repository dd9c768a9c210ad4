// Package config defines the top-level configuration for the parimarket
// ledger service and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by PARIMARKET_* environment variables.
type Config struct {
	Ledger    LedgerConfig    `toml:"ledger"`
	Postgres  PostgresConfig  `toml:"postgres"`
	SQLite    SQLiteConfig    `toml:"sqlite"`
	Redis     RedisConfig     `toml:"redis"`
	S3        S3Config        `toml:"s3"`
	Archive   ArchiveConfig   `toml:"archive"`
	Server    ServerConfig    `toml:"server"`
	Identity  IdentityConfig  `toml:"identity"`
	Notify    NotifyConfig    `toml:"notify"`
	Telemetry TelemetryConfig `toml:"telemetry"`
	Mode      string          `toml:"mode"`
	LogLevel  string          `toml:"log_level"`
}

// Ledger storage backends.
const (
	BackendMemory   = "memory"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

// Run modes.
const (
	ModeServer  = "server"
	ModeArchive = "archive"
	ModeFull    = "full"
)

// Identity modes.
const (
	IdentityToken  = "token"
	IdentityHeader = "header"
)

// LedgerConfig selects where ledger state lives.
type LedgerConfig struct {
	Backend string `toml:"backend"`
	// RestoreFromSnapshot seeds the memory backend from the newest S3
	// snapshot at startup.
	RestoreFromSnapshot bool `toml:"restore_from_snapshot"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	DSN             string `toml:"dsn"`
	Host            string `toml:"host"`
	Port            int    `toml:"port"`
	Database        string `toml:"database"`
	User            string `toml:"user"`
	Password        string `toml:"password"`
	SSLMode         string `toml:"ssl_mode"`
	PoolMaxConns    int    `toml:"pool_max_conns"`
	PoolMinConns    int    `toml:"pool_min_conns"`
	ApplicationName string `toml:"application_name"`
	RunMigrations   bool   `toml:"run_migrations"`
}

// SQLiteConfig holds the embedded database location.
type SQLiteConfig struct {
	Path string `toml:"path"`
}

// RedisConfig holds Redis connection parameters. Redis is optional; without
// it events stay in process and rate limiting is off.
type RedisConfig struct {
	Enabled    bool     `toml:"enabled"`
	Addr       string   `toml:"addr"`
	Password   string   `toml:"password"`
	DB         int      `toml:"db"`
	PoolSize   int      `toml:"pool_size"`
	MaxRetries int      `toml:"max_retries"`
	TLSEnabled bool     `toml:"tls_enabled"`
	KeyPrefix  string   `toml:"key_prefix"`
	MarketTTL  duration `toml:"market_ttl"`
	// WriterLock serialises writes across replicas sharing one database.
	WriterLock    bool     `toml:"writer_lock"`
	WriterLockTTL duration `toml:"writer_lock_ttl"`
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
	Prefix         string `toml:"prefix"`
}

// ArchiveConfig controls periodic snapshots.
type ArchiveConfig struct {
	Interval duration `toml:"interval"`
	// Retain keeps the newest N snapshots; 0 keeps all.
	Retain int `toml:"retain"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	// APIKey protects the admin routes. Empty disables them.
	APIKey string `toml:"api_key"`
	// RateLimit is the number of mutating requests a principal may send per
	// RateWindow. Requires Redis; 0 disables.
	RateLimit       int      `toml:"rate_limit"`
	RateWindow      duration `toml:"rate_window"`
	ShutdownTimeout duration `toml:"shutdown_timeout"`
}

// IdentityConfig selects how callers are identified.
type IdentityConfig struct {
	Mode        string   `toml:"mode"`
	TokenSecret string   `toml:"token_secret"`
	TokenIssuer string   `toml:"token_issuer"`
	TokenTTL    duration `toml:"token_ttl"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// TelemetryConfig controls OpenTelemetry tracing.
type TelemetryConfig struct {
	Enabled     bool    `toml:"enabled"`
	Endpoint    string  `toml:"endpoint"`
	ServiceName string  `toml:"service_name"`
	SampleRatio float64 `toml:"sample_ratio"`
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Ledger: LedgerConfig{
			Backend: BackendSQLite,
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "parimarket",
			User:            "postgres",
			SSLMode:         "disable",
			PoolMaxConns:    10,
			PoolMinConns:    2,
			ApplicationName: "parimarket",
			RunMigrations:   true,
		},
		SQLite: SQLiteConfig{
			Path: "data/parimarket.db",
		},
		Redis: RedisConfig{
			Addr:          "localhost:6379",
			PoolSize:      20,
			MaxRetries:    3,
			KeyPrefix:     "parimarket:",
			MarketTTL:     duration{30 * time.Second},
			WriterLockTTL: duration{10 * time.Second},
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "parimarket",
			ForcePathStyle: true,
			Prefix:         "snapshots",
		},
		Archive: ArchiveConfig{
			Interval: duration{time.Hour},
			Retain:   48,
		},
		Server: ServerConfig{
			Port:            8000,
			CORSOrigins:     []string{"http://localhost:3000", "http://localhost:5173"},
			RateLimit:       60,
			RateWindow:      duration{time.Minute},
			ShutdownTimeout: duration{10 * time.Second},
		},
		Identity: IdentityConfig{
			Mode:        IdentityToken,
			TokenIssuer: "parimarket",
			TokenTTL:    duration{24 * time.Hour},
		},
		Notify: NotifyConfig{
			Events: []string{"market_created", "market_resolved", "winnings_claimed"},
		},
		Telemetry: TelemetryConfig{
			ServiceName: "parimarket",
			SampleRatio: 1,
		},
		Mode:     ModeServer,
		LogLevel: "info",
	}
}

var validModes = map[string]bool{
	ModeServer:  true,
	ModeArchive: true,
	ModeFull:    true,
}

var validBackends = map[string]bool{
	BackendMemory:   true,
	BackendSQLite:   true,
	BackendPostgres: true,
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

var validNotifyEvents = map[string]bool{
	"market_created":   true,
	"bet_placed":       true,
	"market_resolved":  true,
	"winnings_claimed": true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	mode := strings.ToLower(c.Mode)
	if !validModes[mode] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: server, archive, full)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Ledger
	backend := strings.ToLower(c.Ledger.Backend)
	if !validBackends[backend] {
		errs = append(errs, fmt.Sprintf("ledger: unknown backend %q (valid: memory, sqlite, postgres)", c.Ledger.Backend))
	}
	if c.Ledger.RestoreFromSnapshot {
		if backend != BackendMemory {
			errs = append(errs, "ledger: restore_from_snapshot requires backend = \"memory\"")
		}
		if !c.S3.Enabled {
			errs = append(errs, "ledger: restore_from_snapshot requires s3.enabled")
		}
	}
	if mode == ModeArchive && backend == BackendMemory {
		errs = append(errs, "ledger: archive mode needs a shared backend (sqlite or postgres)")
	}

	// Postgres
	if backend == BackendPostgres {
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			if c.Postgres.Host == "" {
				errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
			}
			if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
				errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
			}
			if c.Postgres.Database == "" {
				errs = append(errs, "postgres: database must not be empty")
			}
		}
		if c.Postgres.PoolMaxConns < 1 {
			errs = append(errs, "postgres: pool_max_conns must be >= 1")
		}
		if c.Postgres.PoolMinConns < 0 {
			errs = append(errs, "postgres: pool_min_conns must be >= 0")
		}
		if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
		}
	}

	// SQLite
	if backend == BackendSQLite && strings.TrimSpace(c.SQLite.Path) == "" {
		errs = append(errs, "sqlite: path must not be empty")
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
		if c.Redis.WriterLock && c.Redis.WriterLockTTL.Duration <= 0 {
			errs = append(errs, "redis: writer_lock_ttl must be > 0 when writer_lock is set")
		}
	} else if c.Redis.WriterLock {
		errs = append(errs, "redis: writer_lock requires redis.enabled")
	}

	// S3
	if c.S3.Enabled {
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty")
		}
		if c.S3.Region == "" {
			errs = append(errs, "s3: region must not be empty")
		}
	} else if mode == ModeArchive {
		errs = append(errs, "s3: archive mode requires s3.enabled")
	}

	// Archive
	if mode == ModeArchive || (mode == ModeFull && c.S3.Enabled) {
		if c.Archive.Interval.Duration <= 0 {
			errs = append(errs, "archive: interval must be > 0")
		}
	}
	if c.Archive.Retain < 0 {
		errs = append(errs, "archive: retain must be >= 0")
	}

	// Server
	if mode != ModeArchive {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
		if c.Server.RateLimit < 0 {
			errs = append(errs, "server: rate_limit must be >= 0")
		}
		if c.Server.RateLimit > 0 && c.Server.RateWindow.Duration <= 0 {
			errs = append(errs, "server: rate_window must be > 0 when rate_limit is set")
		}
	}

	// Identity
	switch strings.ToLower(c.Identity.Mode) {
	case IdentityToken:
		if c.Identity.TokenSecret == "" {
			errs = append(errs, "identity: token_secret is required in token mode")
		}
	case IdentityHeader:
	default:
		errs = append(errs, fmt.Sprintf("identity: unknown mode %q (valid: token, header)", c.Identity.Mode))
	}

	// Notify
	for _, e := range c.Notify.Events {
		if !validNotifyEvents[e] {
			errs = append(errs, fmt.Sprintf("notify: unknown event %q", e))
		}
	}
	if (c.Notify.TelegramToken == "") != (c.Notify.TelegramChatID == "") {
		errs = append(errs, "notify: telegram_token and telegram_chat_id must be set together")
	}

	// Telemetry
	if c.Telemetry.Enabled && c.Telemetry.Endpoint == "" {
		errs = append(errs, "telemetry: endpoint is required when enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
