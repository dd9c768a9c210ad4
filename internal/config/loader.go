package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies PARIMARKET_* environment variable overrides, and
// returns the final Config. An empty path skips the file. The returned
// Config has NOT been validated; the caller should invoke Config.Validate()
// after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		md, err := toml.DecodeFile(path, &cfg)
		if err != nil {
			return nil, fmt.Errorf("config: decode %s: %w", path, err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			keys := make([]string, len(undecoded))
			for i, k := range undecoded {
				keys[i] = k.String()
			}
			return nil, fmt.Errorf("config: unknown keys in %s: %s", path, strings.Join(keys, ", "))
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known PARIMARKET_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Ledger ──
	setStr(&cfg.Ledger.Backend, "PARIMARKET_LEDGER_BACKEND")
	setBool(&cfg.Ledger.RestoreFromSnapshot, "PARIMARKET_LEDGER_RESTORE_FROM_SNAPSHOT")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "PARIMARKET_POSTGRES_DSN")
	setStr(&cfg.Postgres.DSN, "DATABASE_URL") // platform alias
	setStr(&cfg.Postgres.Host, "PARIMARKET_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "PARIMARKET_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "PARIMARKET_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "PARIMARKET_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "PARIMARKET_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "PARIMARKET_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "PARIMARKET_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "PARIMARKET_POSTGRES_POOL_MIN_CONNS")
	setStr(&cfg.Postgres.ApplicationName, "PARIMARKET_POSTGRES_APPLICATION_NAME")
	setBool(&cfg.Postgres.RunMigrations, "PARIMARKET_POSTGRES_RUN_MIGRATIONS")

	// ── SQLite ──
	setStr(&cfg.SQLite.Path, "PARIMARKET_SQLITE_PATH")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "PARIMARKET_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "PARIMARKET_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "PARIMARKET_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "PARIMARKET_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "PARIMARKET_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "PARIMARKET_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "PARIMARKET_REDIS_TLS_ENABLED")
	setStr(&cfg.Redis.KeyPrefix, "PARIMARKET_REDIS_KEY_PREFIX")
	setDuration(&cfg.Redis.MarketTTL, "PARIMARKET_REDIS_MARKET_TTL")
	setBool(&cfg.Redis.WriterLock, "PARIMARKET_REDIS_WRITER_LOCK")
	setDuration(&cfg.Redis.WriterLockTTL, "PARIMARKET_REDIS_WRITER_LOCK_TTL")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "PARIMARKET_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "PARIMARKET_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "PARIMARKET_S3_REGION")
	setStr(&cfg.S3.Bucket, "PARIMARKET_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "PARIMARKET_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "PARIMARKET_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "PARIMARKET_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "PARIMARKET_S3_FORCE_PATH_STYLE")
	setStr(&cfg.S3.Prefix, "PARIMARKET_S3_PREFIX")

	// ── Archive ──
	setDuration(&cfg.Archive.Interval, "PARIMARKET_ARCHIVE_INTERVAL")
	setInt(&cfg.Archive.Retain, "PARIMARKET_ARCHIVE_RETAIN")

	// ── Server ──
	setInt(&cfg.Server.Port, "PARIMARKET_SERVER_PORT")
	setInt(&cfg.Server.Port, "PORT") // platform alias
	setStringSlice(&cfg.Server.CORSOrigins, "PARIMARKET_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "PARIMARKET_SERVER_API_KEY")
	setInt(&cfg.Server.RateLimit, "PARIMARKET_SERVER_RATE_LIMIT")
	setDuration(&cfg.Server.RateWindow, "PARIMARKET_SERVER_RATE_WINDOW")
	setDuration(&cfg.Server.ShutdownTimeout, "PARIMARKET_SERVER_SHUTDOWN_TIMEOUT")

	// ── Identity ──
	setStr(&cfg.Identity.Mode, "PARIMARKET_IDENTITY_MODE")
	setStr(&cfg.Identity.TokenSecret, "PARIMARKET_IDENTITY_TOKEN_SECRET")
	setStr(&cfg.Identity.TokenIssuer, "PARIMARKET_IDENTITY_TOKEN_ISSUER")
	setDuration(&cfg.Identity.TokenTTL, "PARIMARKET_IDENTITY_TOKEN_TTL")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "PARIMARKET_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "PARIMARKET_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "PARIMARKET_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "PARIMARKET_NOTIFY_EVENTS")

	// ── Telemetry ──
	setBool(&cfg.Telemetry.Enabled, "PARIMARKET_TELEMETRY_ENABLED")
	setStr(&cfg.Telemetry.Endpoint, "PARIMARKET_TELEMETRY_ENDPOINT")
	setStr(&cfg.Telemetry.ServiceName, "PARIMARKET_TELEMETRY_SERVICE_NAME")
	setFloat64(&cfg.Telemetry.SampleRatio, "PARIMARKET_TELEMETRY_SAMPLE_RATIO")

	// ── Top-level ──
	setStr(&cfg.Mode, "PARIMARKET_MODE")
	setStr(&cfg.LogLevel, "PARIMARKET_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
