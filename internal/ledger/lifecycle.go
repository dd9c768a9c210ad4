package ledger

import "github.com/alanyoungcy/parimarket/internal/domain"

// newMarket builds an open market with empty pools.
func newMarket(id uint64, question string, creator domain.Principal, endTime uint64) domain.Market {
	return domain.Market{
		ID:       id,
		Question: question,
		Creator:  creator,
		YesPool:  domain.ZeroAmount,
		NoPool:   domain.ZeroAmount,
		EndTime:  endTime,
	}
}

// resolve moves an open market to its final state. Only the creator may
// resolve, and only once.
func resolve(m domain.Market, caller domain.Principal, outcome bool) (domain.Market, error) {
	if m.Resolved {
		return m, domain.NewError(domain.KindAlreadyResolved, m.ID)
	}
	if caller != m.Creator {
		return m, domain.NewError(domain.KindUnauthorized, m.ID)
	}
	m.Resolved = true
	m.Outcome = &outcome
	return m, nil
}
