package app

import (
	"context"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alanyoungcy/parimarket/internal/config"
	"github.com/alanyoungcy/parimarket/internal/domain"
	"github.com/alanyoungcy/parimarket/internal/events"
	"github.com/alanyoungcy/parimarket/internal/ledger"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestWireMemoryBackend(t *testing.T) {
	cfg := config.Defaults()
	cfg.Ledger.Backend = config.BackendMemory
	cfg.Identity.TokenSecret = "test-secret"

	deps, cleanup, err := Wire(context.Background(), &cfg, discardLogger())
	if err != nil {
		t.Fatalf("Wire: %v", err)
	}
	defer cleanup()

	if _, ok := deps.Bus.(*events.LocalBus); !ok {
		t.Errorf("Bus = %T, want in-process bus without redis", deps.Bus)
	}
	if deps.RateLimiter != nil || deps.Archiver != nil || deps.Notifier != nil {
		t.Error("optional infrastructure wired without configuration")
	}
	if deps.Tokens == nil {
		t.Fatal("Tokens not wired in token mode")
	}

	ctx := context.Background()
	resp, err := deps.Ledger.Execute(ctx, "alice", ledger.CreateMarket{Question: "Q?"})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	view, err := deps.Views.Market(ctx, resp.MarketID)
	if err != nil || view.Creator != "alice" {
		t.Fatalf("Market = %+v, %v", view, err)
	}
}

func TestWireSQLiteBackend(t *testing.T) {
	cfg := config.Defaults()
	cfg.SQLite.Path = t.TempDir() + "/nested/ledger.db"
	cfg.Identity.Mode = config.IdentityHeader

	deps, cleanup, err := Wire(context.Background(), &cfg, discardLogger())
	if err != nil {
		t.Fatalf("Wire: %v", err)
	}
	defer cleanup()

	if deps.Tokens != nil {
		t.Error("Tokens wired in header mode")
	}
	if len(deps.HealthChecks) != 1 || deps.HealthChecks[0].Name != "sqlite" {
		t.Fatalf("HealthChecks = %+v", deps.HealthChecks)
	}
	if err := deps.HealthChecks[0].Check(context.Background()); err != nil {
		t.Fatalf("sqlite health: %v", err)
	}
}

func TestArchiveModeRequiresArchiver(t *testing.T) {
	cfg := config.Defaults()
	a := New(&cfg, discardLogger())
	if err := a.ArchiveMode(context.Background(), &Dependencies{}); err == nil {
		t.Fatal("ArchiveMode without archiver succeeded")
	}
}

type countingArchiver struct{ n atomic.Int32 }

func (c *countingArchiver) Snapshot(context.Context) (domain.SnapshotInfo, error) {
	c.n.Add(1)
	return domain.SnapshotInfo{Path: "p"}, nil
}

func (c *countingArchiver) Latest(context.Context) (domain.Snapshot, error) {
	return domain.Snapshot{}, domain.ErrNotFound
}

func TestRunArchiverTicks(t *testing.T) {
	cfg := config.Defaults()
	cfg.Archive.Interval.Duration = 10 * time.Millisecond
	a := New(&cfg, discardLogger())

	arch := &countingArchiver{}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.runArchiver(ctx, arch) }()

	deadline := time.After(5 * time.Second)
	for arch.n.Load() < 2 {
		select {
		case <-deadline:
			t.Fatal("archiver did not tick")
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("runArchiver: %v", err)
	}
}
