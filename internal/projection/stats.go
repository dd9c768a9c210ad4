package projection

import (
	"context"
	"errors"
	"sort"

	"github.com/alanyoungcy/parimarket/internal/domain"
	"github.com/alanyoungcy/parimarket/internal/ledger"
)

// UserStats summarises one principal's activity.
type UserStats struct {
	Principal      domain.Principal `json:"principal"`
	TotalBets      int              `json:"total_bets"`
	TotalStaked    domain.Amount    `json:"total_staked"`
	MarketsCreated int              `json:"markets_created"`
	Wins           int              `json:"wins"`
	Losses         int              `json:"losses"`
	Pending        int              `json:"pending"`
	WinRate        float64          `json:"win_rate"`
	TotalWinnings  domain.Amount    `json:"total_winnings"`
	Unclaimed      domain.Amount    `json:"unclaimed_winnings"`
}

// Leaderboard orderings.
const (
	SortByWinnings = "winnings"
	SortByBets     = "bets"
	SortByWinRate  = "winrate"
	SortByCreated  = "created"
)

// ValidSort reports whether s names a leaderboard ordering.
func ValidSort(s string) bool {
	switch s {
	case SortByWinnings, SortByBets, SortByWinRate, SortByCreated:
		return true
	}
	return false
}

// UserStats returns the statistics of principal. A principal with no
// activity gets zero values.
func (p *Projector) UserStats(ctx context.Context, principal domain.Principal) (UserStats, error) {
	all, err := p.aggregate(ctx, principal)
	if err != nil {
		return UserStats{}, err
	}
	if s, ok := all[principal]; ok {
		return *s, nil
	}
	return UserStats{Principal: principal}, nil
}

// Leaderboard ranks every principal that has bet or created a market.
func (p *Projector) Leaderboard(ctx context.Context, sortBy string, limit int) ([]UserStats, error) {
	all, err := p.aggregate(ctx, "")
	if err != nil {
		return nil, err
	}
	out := make([]UserStats, 0, len(all))
	for _, s := range all {
		out = append(out, *s)
	}

	compare := func(a, b UserStats) int {
		switch sortBy {
		case SortByBets:
			return b.TotalBets - a.TotalBets
		case SortByWinRate:
			switch {
			case a.WinRate > b.WinRate:
				return -1
			case a.WinRate < b.WinRate:
				return 1
			}
			return 0
		case SortByCreated:
			return b.MarketsCreated - a.MarketsCreated
		default:
			return b.TotalWinnings.Cmp(a.TotalWinnings)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if c := compare(out[i], out[j]); c != 0 {
			return c < 0
		}
		return out[i].Principal < out[j].Principal
	})

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// aggregate scans the ledger in one view. When only is non-empty, bets of
// other principals are ignored.
func (p *Projector) aggregate(ctx context.Context, only domain.Principal) (map[domain.Principal]*UserStats, error) {
	stats := make(map[domain.Principal]*UserStats)
	get := func(pr domain.Principal) *UserStats {
		s, ok := stats[pr]
		if !ok {
			s = &UserStats{Principal: pr}
			stats[pr] = s
		}
		return s
	}

	err := p.store.View(ctx, func(v domain.LedgerView) error {
		next, err := v.NextMarketID(ctx)
		if err != nil {
			return domain.WrapError(domain.KindReadFailure, 0, err)
		}
		markets := make(map[uint64]domain.Market)
		for id := uint64(1); id < next; id++ {
			m, err := v.GetMarket(ctx, id)
			if errors.Is(err, domain.ErrNotFound) {
				continue
			}
			if err != nil {
				return domain.WrapError(domain.KindReadFailure, id, err)
			}
			markets[id] = m
			if only == "" || m.Creator == only {
				get(m.Creator).MarketsCreated++
			}
		}

		bets, err := v.ListBets(ctx, domain.BetFilter{Principal: only})
		if err != nil {
			return domain.WrapError(domain.KindReadFailure, 0, err)
		}
		for _, b := range bets {
			s := get(b.Principal)
			s.TotalBets++
			if staked, err := s.TotalStaked.Add(b.Amount); err == nil {
				s.TotalStaked = staked
			}
			m, ok := markets[b.MarketID]
			if !ok || !m.Resolved {
				s.Pending++
				continue
			}
			if !b.Won(m) {
				s.Losses++
				continue
			}
			s.Wins++
			w, err := ledger.ComputeWinnings(b.Bet, m)
			if err != nil {
				continue
			}
			if b.Claimed {
				s.TotalWinnings, _ = addOr(s.TotalWinnings, w)
			} else {
				s.Unclaimed, _ = addOr(s.Unclaimed, w)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for _, s := range stats {
		if settled := s.Wins + s.Losses; settled > 0 {
			s.WinRate = float64(s.Wins) / float64(settled) * 100
		}
	}
	return stats, nil
}

// addOr returns a+b, or a unchanged if the sum overflows.
func addOr(a, b domain.Amount) (domain.Amount, bool) {
	sum, err := a.Add(b)
	if err != nil {
		return a, false
	}
	return sum, true
}
