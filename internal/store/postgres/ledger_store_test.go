package postgres

import (
	"context"
	"os"
	"testing"

	"github.com/alanyoungcy/parimarket/internal/domain"
	"github.com/alanyoungcy/parimarket/internal/store/storetest"
)

// Set PARIMARKET_TEST_POSTGRES_DSN to a disposable database to run these.
func testClient(t *testing.T) *Client {
	t.Helper()
	dsn := os.Getenv("PARIMARKET_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("PARIMARKET_TEST_POSTGRES_DSN not set")
	}
	ctx := context.Background()
	c, err := New(ctx, ClientConfig{DSN: dsn, MaxConns: 4})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(c.Close)
	if err := c.RunMigrations(ctx); err != nil {
		t.Fatalf("RunMigrations: %v", err)
	}
	return c
}

func resetLedger(t *testing.T, c *Client) {
	t.Helper()
	const reset = `
		TRUNCATE ledger_journal, bets, markets;
		UPDATE ledger_state SET next_market_id = 1 WHERE id = 1;`
	if _, err := c.Pool().Exec(context.Background(), reset); err != nil {
		t.Fatalf("reset ledger: %v", err)
	}
}

func TestLedgerStoreConformance(t *testing.T) {
	c := testClient(t)
	storetest.RunLedgerStoreConformance(t, func(t *testing.T) domain.LedgerStore {
		resetLedger(t, c)
		return c.Ledger()
	})
}

func TestRunMigrationsIsIdempotent(t *testing.T) {
	c := testClient(t)
	if err := c.RunMigrations(context.Background()); err != nil {
		t.Fatalf("second RunMigrations: %v", err)
	}
}

func TestDSN(t *testing.T) {
	tests := []struct {
		name string
		cfg  ClientConfig
		want string
	}{
		{
			name: "explicit dsn wins",
			cfg:  ClientConfig{DSN: "postgres://u@h/db", Host: "ignored"},
			want: "postgres://u@h/db",
		},
		{
			name: "defaults port and sslmode",
			cfg:  ClientConfig{Host: "db", Database: "ledger", User: "app", Password: "pw"},
			want: "postgres://app:pw@db:5432/ledger?sslmode=disable",
		},
		{
			name: "application name",
			cfg:  ClientConfig{Host: "db", Port: 6543, Database: "ledger", User: "app", SSLMode: "require", ApplicationName: "parimarket"},
			want: "postgres://app:@db:6543/ledger?sslmode=require&application_name=parimarket",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DSN(tt.cfg); got != tt.want {
				t.Errorf("DSN = %q, want %q", got, tt.want)
			}
		})
	}
}
