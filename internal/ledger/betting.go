package ledger

import "github.com/alanyoungcy/parimarket/internal/domain"

// applyBet validates a wager against m and returns the market with the
// stake added to the chosen pool along with the new bet. hasBet reports
// whether the caller already holds a bet on m.
func applyBet(m domain.Market, hasBet bool, isYes bool, amount domain.Amount) (domain.Market, domain.Bet, error) {
	if m.Resolved {
		return m, domain.Bet{}, domain.NewError(domain.KindAlreadyResolved, m.ID)
	}
	if hasBet {
		return m, domain.Bet{}, domain.NewError(domain.KindDuplicateBet, m.ID)
	}

	updated := m
	if isYes {
		pool, err := m.YesPool.Add(amount)
		if err != nil {
			return m, domain.Bet{}, domain.WrapError(domain.KindInvalidAmount, m.ID, err)
		}
		updated.YesPool = pool
	} else {
		pool, err := m.NoPool.Add(amount)
		if err != nil {
			return m, domain.Bet{}, domain.WrapError(domain.KindInvalidAmount, m.ID, err)
		}
		updated.NoPool = pool
	}
	// The pair must stay representable so payouts can be computed.
	if _, err := updated.TotalPool(); err != nil {
		return m, domain.Bet{}, domain.WrapError(domain.KindInvalidAmount, m.ID, err)
	}

	return updated, domain.Bet{Amount: amount, IsYes: isYes}, nil
}
