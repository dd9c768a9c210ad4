package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/parimarket/internal/domain"
	"github.com/alanyoungcy/parimarket/internal/events"
	"github.com/alanyoungcy/parimarket/internal/server"
	"github.com/alanyoungcy/parimarket/internal/server/handler"
	"github.com/alanyoungcy/parimarket/internal/server/ws"
)

// ServerMode serves the HTTP and WebSocket API and relays ledger events to
// the configured notification channels.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "entering server mode")

	g, ctx := errgroup.WithContext(ctx)
	a.startHTTPServer(ctx, g, deps)
	a.startNotifier(ctx, g, deps)
	return g.Wait()
}

// ArchiveMode periodically writes ledger snapshots to object storage.
func (a *App) ArchiveMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "entering archive mode")
	if deps.Archiver == nil {
		return errors.New("app: archive mode requires s3")
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.runArchiver(ctx, deps.Archiver)
	})
	return g.Wait()
}

// FullMode runs the server and, when object storage is configured, the
// snapshot loop in one process.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "entering full mode")

	g, ctx := errgroup.WithContext(ctx)
	a.startHTTPServer(ctx, g, deps)
	a.startNotifier(ctx, g, deps)
	if deps.Archiver != nil {
		g.Go(func() error {
			return a.runArchiver(ctx, deps.Archiver)
		})
	} else {
		a.logger.InfoContext(ctx, "s3 not enabled, snapshots disabled")
	}
	return g.Wait()
}

// startHTTPServer adds the HTTP server and its WebSocket hub to g. The
// server is shut down gracefully when ctx is cancelled.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	hub := ws.NewHub(deps.Bus, a.logger, ws.Config{
		Mode:           a.cfg.Mode,
		StartedAt:      a.startedAt,
		AllowedOrigins: a.cfg.Server.CORSOrigins,
	})
	g.Go(func() error {
		if err := hub.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("ws hub: %w", err)
		}
		return nil
	})

	var snapshots handler.Snapshotter
	if deps.Archiver != nil {
		snapshots = deps.Archiver
	}

	handlers := server.Handlers{
		Health:     handler.NewHealthHandler(a.logger, deps.HealthChecks...),
		Status:     handler.NewStatusHandler(a.cfg.Mode, deps.Backend, deps.Views, hub.ClientCount, a.logger),
		Markets:    handler.NewMarketHandler(deps.Ledger, deps.Views, a.logger),
		Operations: handler.NewOperationHandler(deps.Ledger, a.logger),
		Stats:      handler.NewStatsHandler(deps.Views, a.logger),
		Admin:      handler.NewAdminHandler(snapshots, a.logger),
	}

	sec := server.Security{Limiter: deps.RateLimiter}
	if deps.Tokens != nil {
		sec.Tokens = deps.Tokens
	}

	srv := server.NewServer(server.Config{
		Port:         a.cfg.Server.Port,
		CORSOrigins:  a.cfg.Server.CORSOrigins,
		APIKey:       a.cfg.Server.APIKey,
		IdentityMode: strings.ToLower(a.cfg.Identity.Mode),
		RateLimit:    a.cfg.Server.RateLimit,
		RateWindow:   a.cfg.Server.RateWindow.Duration,
	}, handlers, sec, hub, a.logger)

	g.Go(func() error {
		return srv.Start()
	})

	g.Go(func() error {
		<-ctx.Done()
		timeout := a.cfg.Server.ShutdownTimeout.Duration
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		shutCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}

// startNotifier forwards ledger events to the notifier when one is
// configured.
func (a *App) startNotifier(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	if deps.Notifier == nil {
		return
	}
	evs, err := events.Subscribe(ctx, deps.Bus, a.logger)
	if err != nil {
		a.logger.WarnContext(ctx, "notifier disabled: subscribe failed",
			slog.String("error", err.Error()),
		)
		return
	}
	g.Go(func() error {
		if err := deps.Notifier.Run(ctx, evs); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("notifier: %w", err)
		}
		return nil
	})
}

// runArchiver writes a snapshot every archive interval until ctx ends. A
// failed snapshot is logged and retried on the next tick.
func (a *App) runArchiver(ctx context.Context, archiver domain.Archiver) error {
	interval := a.cfg.Archive.Interval.Duration
	if interval <= 0 {
		interval = time.Hour
	}
	a.logger.InfoContext(ctx, "snapshot loop started", slog.Duration("interval", interval))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			info, err := archiver.Snapshot(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				a.logger.ErrorContext(ctx, "snapshot failed", slog.String("error", err.Error()))
				continue
			}
			a.logger.InfoContext(ctx, "snapshot written",
				slog.String("path", info.Path),
				slog.Int64("size", info.Size),
				slog.Int("markets", info.Markets),
				slog.Int("bets", info.Bets),
			)
		}
	}
}
