package postgres

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5"

	"github.com/alanyoungcy/parimarket/internal/domain"
)

const marketColumns = `id, question, creator, yes_pool::text, no_pool::text, end_time::text, resolved, outcome`

// GetMarket returns the market with the given id.
func (t *ledgerTx) GetMarket(ctx context.Context, id uint64) (domain.Market, error) {
	query := `SELECT ` + marketColumns + ` FROM markets WHERE id = $1`
	m, err := scanMarket(t.q.QueryRow(ctx, query, int64(id)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Market{}, domain.ErrNotFound
		}
		return domain.Market{}, fmt.Errorf("postgres: get market %d: %w", id, err)
	}
	return m, nil
}

// PutMarket inserts or replaces a market row.
func (t *ledgerTx) PutMarket(ctx context.Context, m domain.Market) error {
	const query = `
		INSERT INTO markets (
			id, question, creator, yes_pool, no_pool, end_time, resolved, outcome, updated_at
		) VALUES (
			$1, $2, $3, $4::numeric, $5::numeric, $6::numeric, $7, $8, NOW()
		)
		ON CONFLICT (id) DO UPDATE SET
			question   = EXCLUDED.question,
			creator    = EXCLUDED.creator,
			yes_pool   = EXCLUDED.yes_pool,
			no_pool    = EXCLUDED.no_pool,
			end_time   = EXCLUDED.end_time,
			resolved   = EXCLUDED.resolved,
			outcome    = EXCLUDED.outcome,
			updated_at = NOW()`

	_, err := t.q.Exec(ctx, query,
		int64(m.ID), m.Question, string(m.Creator),
		m.YesPool.String(), m.NoPool.String(),
		strconv.FormatUint(m.EndTime, 10),
		m.Resolved, m.Outcome,
	)
	if err != nil {
		return fmt.Errorf("postgres: put market %d: %w", m.ID, err)
	}
	return nil
}

func scanMarket(row pgx.Row) (domain.Market, error) {
	var (
		m                   domain.Market
		id                  int64
		creator             string
		yesPool, noPool, et string
	)
	if err := row.Scan(&id, &m.Question, &creator, &yesPool, &noPool, &et, &m.Resolved, &m.Outcome); err != nil {
		return domain.Market{}, err
	}
	m.ID = uint64(id)
	m.Creator = domain.Principal(creator)

	var err error
	if m.YesPool, err = domain.ParseAmount(yesPool); err != nil {
		return domain.Market{}, fmt.Errorf("yes_pool: %w", err)
	}
	if m.NoPool, err = domain.ParseAmount(noPool); err != nil {
		return domain.Market{}, fmt.Errorf("no_pool: %w", err)
	}
	if m.EndTime, err = strconv.ParseUint(et, 10, 64); err != nil {
		return domain.Market{}, fmt.Errorf("end_time: %w", err)
	}
	return m, nil
}
