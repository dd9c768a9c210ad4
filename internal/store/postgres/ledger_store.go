package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/parimarket/internal/domain"
)

// ledgerLockKey is the advisory lock that serialises ledger writers across
// every process sharing the database.
const ledgerLockKey int64 = 0x7061726d6b74 // "parmkt"

// querier is satisfied by pgx.Tx and *pgxpool.Pool.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// LedgerStore implements domain.LedgerStore using PostgreSQL. Each Update
// is one database transaction holding the ledger advisory lock.
type LedgerStore struct {
	pool *pgxpool.Pool
}

// NewLedgerStore creates a new LedgerStore backed by the given connection pool.
func NewLedgerStore(pool *pgxpool.Pool) *LedgerStore {
	return &LedgerStore{pool: pool}
}

// Update runs fn in a transaction, committing only if fn returns nil.
func (s *LedgerStore) Update(ctx context.Context, fn func(tx domain.LedgerTx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("postgres: begin ledger tx: %w", err)
	}

	if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", ledgerLockKey); err != nil {
		_ = tx.Rollback(ctx)
		return fmt.Errorf("postgres: acquire ledger lock: %w", err)
	}

	if err := fn(&ledgerTx{q: tx}); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			return fmt.Errorf("postgres: rollback failed: %v (original error: %w)", rbErr, err)
		}
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit ledger tx: %w", err)
	}
	return nil
}

// View runs fn in a read-only repeatable-read transaction.
func (s *LedgerStore) View(ctx context.Context, fn func(v domain.LedgerView) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.RepeatableRead,
		AccessMode: pgx.ReadOnly,
	})
	if err != nil {
		return fmt.Errorf("postgres: begin ledger view: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	return fn(&ledgerTx{q: tx})
}

// ledgerTx implements domain.LedgerTx over a pgx transaction. The SQL for
// each entity lives in market_store.go, bet_store.go and journal_store.go.
type ledgerTx struct {
	q querier
}

func (t *ledgerTx) NextMarketID(ctx context.Context) (uint64, error) {
	var next int64
	err := t.q.QueryRow(ctx, `SELECT next_market_id FROM ledger_state WHERE id = 1`).Scan(&next)
	if err != nil {
		return 0, fmt.Errorf("postgres: get next market id: %w", err)
	}
	return uint64(next), nil
}

func (t *ledgerTx) SetNextMarketID(ctx context.Context, id uint64) error {
	_, err := t.q.Exec(ctx, `UPDATE ledger_state SET next_market_id = $1 WHERE id = 1`, int64(id))
	if err != nil {
		return fmt.Errorf("postgres: set next market id: %w", err)
	}
	return nil
}

var (
	_ domain.LedgerStore = (*LedgerStore)(nil)
	_ domain.LedgerTx    = (*ledgerTx)(nil)
)
