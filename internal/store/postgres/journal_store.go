package postgres

import (
	"context"
	"fmt"

	"github.com/alanyoungcy/parimarket/internal/domain"
)

// AppendJournal stores e with the next sequence number. Callers hold the
// ledger advisory lock, so MAX(seq)+1 cannot race.
func (t *ledgerTx) AppendJournal(ctx context.Context, e domain.JournalEntry) (domain.JournalEntry, error) {
	var seq int64
	if err := t.q.QueryRow(ctx, `SELECT COALESCE(MAX(seq), 0) + 1 FROM ledger_journal`).Scan(&seq); err != nil {
		return domain.JournalEntry{}, fmt.Errorf("postgres: next journal seq: %w", err)
	}
	e.Seq = uint64(seq)

	const query = `
		INSERT INTO ledger_journal (
			seq, op_id, op_type, market_id, principal,
			is_yes, amount, outcome, winnings, created_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7::numeric, $8, $9::numeric, $10
		)`
	_, err := t.q.Exec(ctx, query,
		seq, e.OpID, string(e.Type), int64(e.MarketID), string(e.Principal),
		e.IsYes, amountText(e.Amount), e.Outcome, amountText(e.Winnings), e.At,
	)
	if err != nil {
		return domain.JournalEntry{}, fmt.Errorf("postgres: append journal %s: %w", e.Type, err)
	}
	return e, nil
}

// ListJournal returns entries newest first with optional filtering and
// pagination.
func (t *ledgerTx) ListJournal(ctx context.Context, filter domain.JournalFilter) ([]domain.JournalEntry, error) {
	query := `SELECT seq, op_id, op_type, market_id, principal, is_yes, amount::text, outcome, winnings::text, created_at
		FROM ledger_journal WHERE 1=1`
	args := []any{}
	argIdx := 1

	if filter.MarketID != 0 {
		query += fmt.Sprintf(" AND market_id = $%d", argIdx)
		args = append(args, int64(filter.MarketID))
		argIdx++
	}
	if filter.Principal != "" {
		query += fmt.Sprintf(" AND principal = $%d", argIdx)
		args = append(args, string(filter.Principal))
		argIdx++
	}

	query += " ORDER BY seq DESC"

	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, filter.Limit)
		argIdx++
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := t.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list journal: %w", err)
	}
	defer rows.Close()

	var entries []domain.JournalEntry
	for rows.Next() {
		var (
			e                domain.JournalEntry
			seq, marketID    int64
			opType           string
			principal        string
			amount, winnings *string
		)
		if err := rows.Scan(&seq, &e.OpID, &opType, &marketID, &principal,
			&e.IsYes, &amount, &e.Outcome, &winnings, &e.At); err != nil {
			return nil, fmt.Errorf("postgres: scan journal entry: %w", err)
		}
		e.Seq = uint64(seq)
		e.Type = domain.OpType(opType)
		e.MarketID = uint64(marketID)
		e.Principal = domain.Principal(principal)
		if e.Amount, err = parseOptionalAmount(amount); err != nil {
			return nil, fmt.Errorf("postgres: journal %d amount: %w", seq, err)
		}
		if e.Winnings, err = parseOptionalAmount(winnings); err != nil {
			return nil, fmt.Errorf("postgres: journal %d winnings: %w", seq, err)
		}
		e.At = e.At.UTC()
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate journal: %w", err)
	}
	return entries, nil
}

func amountText(a *domain.Amount) *string {
	if a == nil {
		return nil
	}
	s := a.String()
	return &s
}

func parseOptionalAmount(s *string) (*domain.Amount, error) {
	if s == nil {
		return nil, nil
	}
	a, err := domain.ParseAmount(*s)
	if err != nil {
		return nil, err
	}
	return &a, nil
}
