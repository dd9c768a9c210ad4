package domain

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidSnapshot is returned when a snapshot's state is not internally
// consistent.
var ErrInvalidSnapshot = errors.New("invalid snapshot")

// Snapshot is a full copy of ledger state.
type Snapshot struct {
	NextMarketID uint64         `json:"next_market_id"`
	Markets      []Market       `json:"markets"`
	Bets         []BetRecord    `json:"bets"`
	Journal      []JournalEntry `json:"journal"`
	TakenAt      time.Time      `json:"taken_at"`
}

// Validate checks the ledger invariants a restored state must satisfy:
// market ids are unique and below NextMarketID, resolution and outcome
// agree, every bet belongs to a known market, and each market's pools equal
// the sum of its bets per side. A zero NextMarketID is read as 1.
func (s Snapshot) Validate() error {
	next := s.NextMarketID
	if next == 0 {
		next = 1
	}

	type sums struct{ yes, no Amount }
	markets := make(map[uint64]Market, len(s.Markets))
	staked := make(map[uint64]*sums, len(s.Markets))
	for _, m := range s.Markets {
		if m.ID == 0 {
			return fmt.Errorf("%w: market id 0", ErrInvalidSnapshot)
		}
		if _, dup := markets[m.ID]; dup {
			return fmt.Errorf("%w: duplicate market %d", ErrInvalidSnapshot, m.ID)
		}
		if m.ID >= next {
			return fmt.Errorf("%w: market %d not below next_market_id %d", ErrInvalidSnapshot, m.ID, next)
		}
		if m.Resolved != (m.Outcome != nil) {
			return fmt.Errorf("%w: market %d resolved=%t disagrees with outcome", ErrInvalidSnapshot, m.ID, m.Resolved)
		}
		markets[m.ID] = m
		staked[m.ID] = &sums{}
	}

	seen := make(map[BetKey]struct{}, len(s.Bets))
	for _, b := range s.Bets {
		if _, dup := seen[b.BetKey]; dup {
			return fmt.Errorf("%w: duplicate bet %s", ErrInvalidSnapshot, b.BetKey)
		}
		seen[b.BetKey] = struct{}{}

		m, ok := markets[b.MarketID]
		if !ok {
			return fmt.Errorf("%w: bet %s on unknown market", ErrInvalidSnapshot, b.BetKey)
		}
		if b.Claimed && !b.Won(m) {
			return fmt.Errorf("%w: bet %s claimed without winning", ErrInvalidSnapshot, b.BetKey)
		}
		side := &staked[b.MarketID].no
		if b.IsYes {
			side = &staked[b.MarketID].yes
		}
		sum, err := side.Add(b.Amount)
		if err != nil {
			return fmt.Errorf("%w: market %d stake overflow", ErrInvalidSnapshot, b.MarketID)
		}
		*side = sum
	}

	for id, m := range markets {
		st := staked[id]
		if m.YesPool.Cmp(st.yes) != 0 || m.NoPool.Cmp(st.no) != 0 {
			return fmt.Errorf("%w: market %d pools %s/%s, bets sum to %s/%s",
				ErrInvalidSnapshot, id, m.YesPool, m.NoPool, st.yes, st.no)
		}
	}
	return nil
}
