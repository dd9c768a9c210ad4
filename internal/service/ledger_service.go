// Package service coordinates the ledger engine with the shared
// infrastructure around it: writer serialisation and read-cache upkeep.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alanyoungcy/parimarket/internal/domain"
	"github.com/alanyoungcy/parimarket/internal/ledger"
)

// WriterLockKey names the distributed lock held around every write.
const WriterLockKey = "ledger:writer"

// WriterLock is a distributed mutex shared by replicas writing to the same
// store.
type WriterLock interface {
	AcquireWait(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// ViewInvalidator drops cached read models for a market.
type ViewInvalidator interface {
	Invalidate(ctx context.Context, id uint64) error
}

// LedgerService runs ledger operations one at a time.
type LedgerService struct {
	engine  *ledger.Engine
	views   ViewInvalidator
	lock    WriterLock
	lockTTL time.Duration
	logger  *slog.Logger

	mu sync.Mutex
}

// LedgerServiceOption configures a LedgerService.
type LedgerServiceOption func(*LedgerService)

// WithWriterLock additionally serialises writes across processes.
func WithWriterLock(l WriterLock, ttl time.Duration) LedgerServiceOption {
	return func(s *LedgerService) {
		s.lock = l
		s.lockTTL = ttl
	}
}

// NewLedgerService creates a LedgerService. views may be nil.
func NewLedgerService(
	engine *ledger.Engine,
	views ViewInvalidator,
	logger *slog.Logger,
	opts ...LedgerServiceOption,
) *LedgerService {
	s := &LedgerService{
		engine:  engine,
		views:   views,
		lockTTL: 10 * time.Second,
		logger:  logger.With(slog.String("component", "ledger_service")),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Execute applies op for caller. Calls are serialised in process and, with
// a writer lock, across processes.
func (s *LedgerService) Execute(ctx context.Context, caller domain.Principal, op ledger.Operation) (ledger.Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.lock != nil {
		unlock, err := s.lock.AcquireWait(ctx, WriterLockKey, s.lockTTL)
		if err != nil {
			return ledger.Response{}, fmt.Errorf("ledger_service: acquire writer lock: %w", err)
		}
		defer unlock()
	}

	resp, err := s.engine.Execute(ctx, caller, op)
	if err != nil {
		return ledger.Response{}, err
	}

	if s.views != nil && resp.MarketID != 0 {
		if err := s.views.Invalidate(ctx, resp.MarketID); err != nil {
			// The cache entry expires on its own.
			s.logger.WarnContext(ctx, "view invalidate failed",
				slog.Uint64("market_id", resp.MarketID),
				slog.String("error", err.Error()),
			)
		}
	}
	return resp, nil
}

// Export returns a consistent copy of the ledger.
func (s *LedgerService) Export(ctx context.Context) (domain.Snapshot, error) {
	snap, err := s.engine.Export(ctx)
	if err != nil {
		return domain.Snapshot{}, fmt.Errorf("ledger_service: export: %w", err)
	}
	return snap, nil
}
