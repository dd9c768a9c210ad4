package ledger

import "github.com/alanyoungcy/parimarket/internal/domain"

// ComputeWinnings returns the pari-mutuel payout of bet on market m:
// floor(bet.Amount * total / winningPool), or zero when the winning pool is
// empty. The remainder of the floor division stays in the ledger unclaimed.
func ComputeWinnings(bet domain.Bet, m domain.Market) (domain.Amount, error) {
	if !m.Resolved || m.Outcome == nil {
		return domain.Amount{}, domain.NewError(domain.KindNotResolved, m.ID)
	}
	if !bet.Won(m) {
		return domain.Amount{}, domain.NewError(domain.KindLoss, m.ID)
	}
	winning, _ := m.WinningPool()
	if winning.IsZero() {
		return domain.ZeroAmount, nil
	}
	total, err := m.TotalPool()
	if err != nil {
		return domain.Amount{}, domain.WrapError(domain.KindInvalidAmount, m.ID, err)
	}
	out, ok := bet.Amount.MulDiv(total, winning)
	if !ok {
		return domain.Amount{}, domain.NewError(domain.KindInvalidAmount, m.ID)
	}
	return out, nil
}

// claim marks bet as paid out and returns the winnings. A losing claim leaves
// the bet untouched.
func claim(m domain.Market, bet domain.Bet) (domain.Bet, domain.Amount, error) {
	if bet.Claimed {
		return bet, domain.Amount{}, domain.NewError(domain.KindAlreadyClaimed, m.ID)
	}
	winnings, err := ComputeWinnings(bet, m)
	if err != nil {
		return bet, domain.Amount{}, err
	}
	bet.Claimed = true
	return bet, winnings, nil
}
