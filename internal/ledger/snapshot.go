package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/alanyoungcy/parimarket/internal/domain"
)

// Export reads the complete ledger state in one consistent view.
func (e *Engine) Export(ctx context.Context) (domain.Snapshot, error) {
	var snap domain.Snapshot
	err := e.store.View(ctx, func(v domain.LedgerView) error {
		next, err := v.NextMarketID(ctx)
		if err != nil {
			return fmt.Errorf("ledger: export: next market id: %w", err)
		}
		snap.NextMarketID = next
		for id := uint64(1); id < next; id++ {
			m, err := v.GetMarket(ctx, id)
			if errors.Is(err, domain.ErrNotFound) {
				continue
			}
			if err != nil {
				return fmt.Errorf("ledger: export: market %d: %w", id, err)
			}
			snap.Markets = append(snap.Markets, m)
		}
		if snap.Bets, err = v.ListBets(ctx, domain.BetFilter{}); err != nil {
			return fmt.Errorf("ledger: export: bets: %w", err)
		}
		if snap.Journal, err = v.ListJournal(ctx, domain.JournalFilter{}); err != nil {
			return fmt.Errorf("ledger: export: journal: %w", err)
		}
		return nil
	})
	if err != nil {
		return domain.Snapshot{}, err
	}
	snap.TakenAt = e.now()
	return snap, nil
}
