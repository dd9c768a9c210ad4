package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/alanyoungcy/parimarket/internal/domain"
)

// GetBet returns the bet for key.
func (t *ledgerTx) GetBet(ctx context.Context, key domain.BetKey) (domain.Bet, error) {
	const query = `SELECT amount::text, is_yes, claimed FROM bets WHERE market_id = $1 AND principal = $2`

	var (
		b      domain.Bet
		amount string
	)
	err := t.q.QueryRow(ctx, query, int64(key.MarketID), string(key.Principal)).Scan(&amount, &b.IsYes, &b.Claimed)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Bet{}, domain.ErrNotFound
		}
		return domain.Bet{}, fmt.Errorf("postgres: get bet %s: %w", key, err)
	}
	if b.Amount, err = domain.ParseAmount(amount); err != nil {
		return domain.Bet{}, fmt.Errorf("postgres: get bet %s: amount: %w", key, err)
	}
	return b, nil
}

// PutBet inserts or replaces a bet row.
func (t *ledgerTx) PutBet(ctx context.Context, key domain.BetKey, b domain.Bet) error {
	const query = `
		INSERT INTO bets (market_id, principal, amount, is_yes, claimed)
		VALUES ($1, $2, $3::numeric, $4, $5)
		ON CONFLICT (market_id, principal) DO UPDATE SET
			amount  = EXCLUDED.amount,
			is_yes  = EXCLUDED.is_yes,
			claimed = EXCLUDED.claimed`

	_, err := t.q.Exec(ctx, query,
		int64(key.MarketID), string(key.Principal), b.Amount.String(), b.IsYes, b.Claimed,
	)
	if err != nil {
		return fmt.Errorf("postgres: put bet %s: %w", key, err)
	}
	return nil
}

// ListBets returns bets matching filter ordered by market and principal.
func (t *ledgerTx) ListBets(ctx context.Context, filter domain.BetFilter) ([]domain.BetRecord, error) {
	query := `SELECT market_id, principal, amount::text, is_yes, claimed FROM bets WHERE 1=1`
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
	}
	query += " ORDER BY market_id, principal"

	rows, err := t.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list bets: %w", err)
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
			return nil, fmt.Errorf("postgres: scan bet: %w", err)
		}
		r.MarketID = uint64(marketID)
		r.Principal = domain.Principal(principal)
		if r.Amount, err = domain.ParseAmount(amount); err != nil {
			return nil, fmt.Errorf("postgres: scan bet %s: amount: %w", r.BetKey, err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate bets: %w", err)
	}
	return out, nil
}
