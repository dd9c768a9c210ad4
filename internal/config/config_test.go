package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func validConfig() Config {
	cfg := Defaults()
	cfg.Identity.TokenSecret = "s3cret"
	return cfg
}

func TestDefaultsNeedOnlyATokenSecret(t *testing.T) {
	cfg := Defaults()
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "token_secret") {
		t.Fatalf("Validate(defaults) = %v, want token_secret error", err)
	}
	cfg = validConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"unknown mode", func(c *Config) { c.Mode = "trade" }, "unknown mode"},
		{"unknown backend", func(c *Config) { c.Ledger.Backend = "mongo" }, "unknown backend"},
		{"restore needs memory", func(c *Config) {
			c.Ledger.RestoreFromSnapshot = true
			c.S3.Enabled = true
		}, "requires backend"},
		{"restore needs s3", func(c *Config) {
			c.Ledger.Backend = BackendMemory
			c.Ledger.RestoreFromSnapshot = true
		}, "requires s3.enabled"},
		{"archive on memory", func(c *Config) {
			c.Mode = ModeArchive
			c.Ledger.Backend = BackendMemory
			c.S3.Enabled = true
		}, "archive mode needs a shared backend"},
		{"archive without s3", func(c *Config) { c.Mode = ModeArchive }, "archive mode requires s3.enabled"},
		{"writer lock without redis", func(c *Config) { c.Redis.WriterLock = true }, "writer_lock requires"},
		{"postgres pool", func(c *Config) {
			c.Ledger.Backend = BackendPostgres
			c.Postgres.PoolMinConns = 20
		}, "pool_min_conns must not exceed"},
		{"sqlite path", func(c *Config) { c.SQLite.Path = " " }, "sqlite: path"},
		{"header identity needs no secret", func(c *Config) {
			c.Identity.Mode = IdentityHeader
			c.Identity.TokenSecret = ""
		}, ""},
		{"bad identity mode", func(c *Config) { c.Identity.Mode = "oauth" }, "identity: unknown mode"},
		{"bad notify event", func(c *Config) { c.Notify.Events = []string{"order_filled"} }, "unknown event"},
		{"telegram half set", func(c *Config) { c.Notify.TelegramToken = "t" }, "set together"},
		{"telemetry endpoint", func(c *Config) { c.Telemetry.Enabled = true }, "telemetry: endpoint"},
		{"bad port", func(c *Config) { c.Server.Port = 70000 }, "server: port"},
		{"archive mode ignores port", func(c *Config) {
			c.Mode = ModeArchive
			c.S3.Enabled = true
			c.Server.Port = 0
		}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Validate = %v, want error containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoadMergesFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	body := `
mode = "full"

[ledger]
backend = "postgres"

[postgres]
host = "db.internal"

[redis]
enabled = true
market_ttl = "45s"

[archive]
interval = "15m"
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Chdir(dir)
	t.Setenv("PARIMARKET_POSTGRES_PASSWORD", "pw")
	t.Setenv("PARIMARKET_SERVER_CORS_ORIGINS", "https://a.example, https://b.example,")
	t.Setenv("PARIMARKET_SERVER_PORT", "not-a-number")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Mode != ModeFull || cfg.Ledger.Backend != BackendPostgres || cfg.Postgres.Host != "db.internal" {
		t.Errorf("file values not applied: %+v", cfg)
	}
	if cfg.Postgres.Port != 5432 {
		t.Errorf("default port lost: %d", cfg.Postgres.Port)
	}
	if cfg.Redis.MarketTTL.Duration != 45*time.Second || cfg.Archive.Interval.Duration != 15*time.Minute {
		t.Errorf("durations = %v, %v", cfg.Redis.MarketTTL, cfg.Archive.Interval)
	}
	if cfg.Postgres.Password != "pw" {
		t.Errorf("env password not applied")
	}
	if len(cfg.Server.CORSOrigins) != 2 || cfg.Server.CORSOrigins[1] != "https://b.example" {
		t.Errorf("CORSOrigins = %v", cfg.Server.CORSOrigins)
	}
	if cfg.Server.Port != 8000 {
		t.Errorf("invalid env int changed port to %d", cfg.Server.Port)
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("[ledger]\nbackedn = \"memory\"\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	_, err := Load(path)
	if err == nil || !strings.Contains(err.Error(), "ledger.backedn") {
		t.Fatalf("Load = %v, want unknown key error", err)
	}
}

func TestLoadWithoutFile(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("PARIMARKET_LEDGER_BACKEND", "memory")
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Ledger.Backend != BackendMemory {
		t.Errorf("backend = %q", cfg.Ledger.Backend)
	}
}

func TestRedactedConfig(t *testing.T) {
	cfg := validConfig()
	cfg.Postgres.Password = "pw"
	cfg.S3.SecretKey = "sk"
	cfg.Server.APIKey = "ak"

	out := RedactedConfig(&cfg)
	for name, got := range map[string]string{
		"postgres password": out.Postgres.Password,
		"s3 secret":         out.S3.SecretKey,
		"api key":           out.Server.APIKey,
		"token secret":      out.Identity.TokenSecret,
	} {
		if got != redacted {
			t.Errorf("%s = %q, want redacted", name, got)
		}
	}
	if out.Redis.Password != "" {
		t.Errorf("empty secret became %q", out.Redis.Password)
	}
	if cfg.Postgres.Password != "pw" {
		t.Error("original modified")
	}
	out.Server.CORSOrigins[0] = "mutated"
	if cfg.Server.CORSOrigins[0] == "mutated" {
		t.Error("slice shared with original")
	}
}
