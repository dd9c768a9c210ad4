// Package sqlite provides a single-file LedgerStore backed by SQLite.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	"github.com/alanyoungcy/parimarket/internal/domain"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store persists the ledger in SQLite. Writers are serialised in-process;
// readers run against WAL snapshots.
type Store struct {
	sqlDB   *sql.DB
	writeMu sync.Mutex
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Open opens a SQLite ledger and applies embedded migrations.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("sqlite: storage path is required")
	}
	cleanPath := filepath.Clean(path)
	dsn := "file:" + cleanPath +
		"?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("sqlite: ping db: %w", err)
	}
	if err := applyMigrations(sqlDB, migrationsFS, "migrations"); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("sqlite: run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// Update runs fn in a transaction, committing only if fn returns nil.
func (s *Store) Update(ctx context.Context, fn func(tx domain.LedgerTx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin ledger tx: %w", err)
	}
	if err := fn(&ledgerTx{tx: tx}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("sqlite: rollback failed: %v (original error: %w)", rbErr, err)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: commit ledger tx: %w", err)
	}
	return nil
}

// View runs fn in a read transaction.
func (s *Store) View(ctx context.Context, fn func(v domain.LedgerView) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin ledger view: %w", err)
	}
	defer func() { _ = tx.Rollback() }()
	return fn(&ledgerTx{tx: tx, readOnly: true})
}

type ledgerTx struct {
	tx       *sql.Tx
	readOnly bool
}

var errReadOnly = errors.New("sqlite: write in read-only view")

func (t *ledgerTx) NextMarketID(ctx context.Context) (uint64, error) {
	var next int64
	if err := t.tx.QueryRowContext(ctx, `SELECT next_market_id FROM ledger_state WHERE id = 1`).Scan(&next); err != nil {
		return 0, fmt.Errorf("sqlite: get next market id: %w", err)
	}
	return uint64(next), nil
}

func (t *ledgerTx) SetNextMarketID(ctx context.Context, id uint64) error {
	if t.readOnly {
		return errReadOnly
	}
	if _, err := t.tx.ExecContext(ctx, `UPDATE ledger_state SET next_market_id = ? WHERE id = 1`, int64(id)); err != nil {
		return fmt.Errorf("sqlite: set next market id: %w", err)
	}
	return nil
}

func (t *ledgerTx) GetMarket(ctx context.Context, id uint64) (domain.Market, error) {
	const query = `SELECT id, question, creator, yes_pool, no_pool, end_time, resolved, outcome FROM markets WHERE id = ?`
	var (
		m                   domain.Market
		rowID               int64
		creator             string
		yesPool, noPool, et string
		outcome             sql.NullBool
	)
	err := t.tx.QueryRowContext(ctx, query, int64(id)).Scan(&rowID, &m.Question, &creator, &yesPool, &noPool, &et, &m.Resolved, &outcome)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Market{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Market{}, fmt.Errorf("sqlite: get market %d: %w", id, err)
	}
	m.ID = uint64(rowID)
	m.Creator = domain.Principal(creator)
	if outcome.Valid {
		o := outcome.Bool
		m.Outcome = &o
	}
	if m.YesPool, err = domain.ParseAmount(yesPool); err != nil {
		return domain.Market{}, fmt.Errorf("sqlite: market %d yes_pool: %w", id, err)
	}
	if m.NoPool, err = domain.ParseAmount(noPool); err != nil {
		return domain.Market{}, fmt.Errorf("sqlite: market %d no_pool: %w", id, err)
	}
	if m.EndTime, err = strconv.ParseUint(et, 10, 64); err != nil {
		return domain.Market{}, fmt.Errorf("sqlite: market %d end_time: %w", id, err)
	}
	return m, nil
}

func (t *ledgerTx) PutMarket(ctx context.Context, m domain.Market) error {
	if t.readOnly {
		return errReadOnly
	}
	const query = `
		INSERT INTO markets (id, question, creator, yes_pool, no_pool, end_time, resolved, outcome)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			question = excluded.question,
			creator  = excluded.creator,
			yes_pool = excluded.yes_pool,
			no_pool  = excluded.no_pool,
			end_time = excluded.end_time,
			resolved = excluded.resolved,
			outcome  = excluded.outcome`
	_, err := t.tx.ExecContext(ctx, query,
		int64(m.ID), m.Question, string(m.Creator),
		m.YesPool.String(), m.NoPool.String(), strconv.FormatUint(m.EndTime, 10),
		m.Resolved, nullBool(m.Outcome),
	)
	if err != nil {
		return fmt.Errorf("sqlite: put market %d: %w", m.ID, err)
	}
	return nil
}

func (t *ledgerTx) GetBet(ctx context.Context, key domain.BetKey) (domain.Bet, error) {
	const query = `SELECT amount, is_yes, claimed FROM bets WHERE market_id = ? AND principal = ?`
	var (
		b      domain.Bet
		amount string
	)
	err := t.tx.QueryRowContext(ctx, query, int64(key.MarketID), string(key.Principal)).Scan(&amount, &b.IsYes, &b.Claimed)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Bet{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Bet{}, fmt.Errorf("sqlite: get bet %s: %w", key, err)
	}
	if b.Amount, err = domain.ParseAmount(amount); err != nil {
		return domain.Bet{}, fmt.Errorf("sqlite: bet %s amount: %w", key, err)
	}
	return b, nil
}

func (t *ledgerTx) PutBet(ctx context.Context, key domain.BetKey, b domain.Bet) error {
	if t.readOnly {
		return errReadOnly
	}
	const query = `
		INSERT INTO bets (market_id, principal, amount, is_yes, claimed)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (market_id, principal) DO UPDATE SET
			amount  = excluded.amount,
			is_yes  = excluded.is_yes,
			claimed = excluded.claimed`
	_, err := t.tx.ExecContext(ctx, query,
		int64(key.MarketID), string(key.Principal), b.Amount.String(), b.IsYes, b.Claimed,
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return fmt.Errorf("sqlite: put bet %s: market missing: %w", key, domain.ErrNotFound)
		}
		return fmt.Errorf("sqlite: put bet %s: %w", key, err)
	}
	return nil
}

func (t *ledgerTx) ListBets(ctx context.Context, filter domain.BetFilter) ([]domain.BetRecord, error) {
	query := `SELECT market_id, principal, amount, is_yes, claimed FROM bets WHERE 1=1`
	var args []any
	if filter.MarketID != 0 {
		query += " AND market_id = ?"
		args = append(args, int64(filter.MarketID))
	}
	if filter.Principal != "" {
		query += " AND principal = ?"
		args = append(args, string(filter.Principal))
	}
	query += " ORDER BY market_id, principal"

	rows, err := t.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list bets: %w", err)
	}
	defer rows.Close()

	var out []domain.BetRecord
	for rows.Next() {
		var (
			r         domain.BetRecord
			marketID  int64
			principal string
			amount    string
		)
		if err := rows.Scan(&marketID, &principal, &amount, &r.IsYes, &r.Claimed); err != nil {
			return nil, fmt.Errorf("sqlite: scan bet: %w", err)
		}
		r.MarketID = uint64(marketID)
		r.Principal = domain.Principal(principal)
		if r.Amount, err = domain.ParseAmount(amount); err != nil {
			return nil, fmt.Errorf("sqlite: bet %s amount: %w", r.BetKey, err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterate bets: %w", err)
	}
	return out, nil
}

func (t *ledgerTx) AppendJournal(ctx context.Context, e domain.JournalEntry) (domain.JournalEntry, error) {
	if t.readOnly {
		return domain.JournalEntry{}, errReadOnly
	}
	var seq int64
	if err := t.tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) + 1 FROM ledger_journal`).Scan(&seq); err != nil {
		return domain.JournalEntry{}, fmt.Errorf("sqlite: next journal seq: %w", err)
	}
	e.Seq = uint64(seq)

	const query = `
		INSERT INTO ledger_journal (
			seq, op_id, op_type, market_id, principal, is_yes, amount, outcome, winnings, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := t.tx.ExecContext(ctx, query,
		seq, e.OpID, string(e.Type), int64(e.MarketID), string(e.Principal),
		nullBool(e.IsYes), nullAmount(e.Amount), nullBool(e.Outcome), nullAmount(e.Winnings),
		toMillis(e.At),
	)
	if err != nil {
		return domain.JournalEntry{}, fmt.Errorf("sqlite: append journal %s: %w", e.Type, err)
	}
	return e, nil
}

func (t *ledgerTx) ListJournal(ctx context.Context, filter domain.JournalFilter) ([]domain.JournalEntry, error) {
	query := `SELECT seq, op_id, op_type, market_id, principal, is_yes, amount, outcome, winnings, created_at
		FROM ledger_journal WHERE 1=1`
	var args []any
	if filter.MarketID != 0 {
		query += " AND market_id = ?"
		args = append(args, int64(filter.MarketID))
	}
	if filter.Principal != "" {
		query += " AND principal = ?"
		args = append(args, string(filter.Principal))
	}
	query += " ORDER BY seq DESC"
	if filter.Limit > 0 || filter.Offset > 0 {
		limit := filter.Limit
		if limit <= 0 {
			limit = -1
		}
		query += " LIMIT ? OFFSET ?"
		args = append(args, limit, filter.Offset)
	}

	rows, err := t.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list journal: %w", err)
	}
	defer rows.Close()

	var out []domain.JournalEntry
	for rows.Next() {
		var (
			e                 domain.JournalEntry
			seq, marketID, at int64
			opType, principal string
			isYes, outcome    sql.NullBool
			amount, winnings  sql.NullString
		)
		if err := rows.Scan(&seq, &e.OpID, &opType, &marketID, &principal,
			&isYes, &amount, &outcome, &winnings, &at); err != nil {
			return nil, fmt.Errorf("sqlite: scan journal entry: %w", err)
		}
		e.Seq = uint64(seq)
		e.Type = domain.OpType(opType)
		e.MarketID = uint64(marketID)
		e.Principal = domain.Principal(principal)
		e.At = fromMillis(at)
		if isYes.Valid {
			v := isYes.Bool
			e.IsYes = &v
		}
		if outcome.Valid {
			v := outcome.Bool
			e.Outcome = &v
		}
		if e.Amount, err = parseNullAmount(amount); err != nil {
			return nil, fmt.Errorf("sqlite: journal %d amount: %w", seq, err)
		}
		if e.Winnings, err = parseNullAmount(winnings); err != nil {
			return nil, fmt.Errorf("sqlite: journal %d winnings: %w", seq, err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterate journal: %w", err)
	}
	return out, nil
}

func nullBool(b *bool) sql.NullBool {
	if b == nil {
		return sql.NullBool{}
	}
	return sql.NullBool{Bool: *b, Valid: true}
}

func nullAmount(a *domain.Amount) sql.NullString {
	if a == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: a.String(), Valid: true}
}

func parseNullAmount(s sql.NullString) (*domain.Amount, error) {
	if !s.Valid {
		return nil, nil
	}
	a, err := domain.ParseAmount(s.String)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func isForeignKeyViolation(err error) bool {
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code() == sqlite3lib.SQLITE_CONSTRAINT_FOREIGNKEY
	}
	return false
}

var (
	_ domain.LedgerStore = (*Store)(nil)
	_ domain.LedgerTx    = (*ledgerTx)(nil)
)
