package domain

import (
	"errors"
	"testing"
)

func TestSnapshotValidate(t *testing.T) {
	yes := true
	valid := func() Snapshot {
		return Snapshot{
			NextMarketID: 3,
			Markets: []Market{
				{ID: 1, YesPool: NewAmount(100), NoPool: NewAmount(50), Resolved: true, Outcome: &yes},
				{ID: 2},
			},
			Bets: []BetRecord{
				{BetKey: BetKey{MarketID: 1, Principal: "bob"}, Bet: Bet{Amount: NewAmount(100), IsYes: true, Claimed: true}},
				{BetKey: BetKey{MarketID: 1, Principal: "carol"}, Bet: Bet{Amount: NewAmount(50)}},
			},
		}
	}

	if err := valid().Validate(); err != nil {
		t.Fatalf("valid snapshot: %v", err)
	}
	if err := (Snapshot{}).Validate(); err != nil {
		t.Fatalf("empty snapshot: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Snapshot)
	}{
		{"next id unset", func(s *Snapshot) { s.NextMarketID = 0 }},
		{"next id reuses market", func(s *Snapshot) { s.NextMarketID = 2 }},
		{"market id zero", func(s *Snapshot) { s.Markets[1].ID = 0 }},
		{"duplicate market", func(s *Snapshot) { s.Markets[1].ID = 1 }},
		{"resolved without outcome", func(s *Snapshot) { s.Markets[0].Outcome = nil }},
		{"outcome while open", func(s *Snapshot) { s.Markets[1].Outcome = &yes }},
		{"pool exceeds bets", func(s *Snapshot) { s.Markets[0].YesPool = NewAmount(101) }},
		{"bet without pool", func(s *Snapshot) {
			s.Bets = append(s.Bets, BetRecord{BetKey: BetKey{MarketID: 2, Principal: "dave"}, Bet: Bet{Amount: NewAmount(1)}})
		}},
		{"bet on unknown market", func(s *Snapshot) { s.Bets[1].MarketID = 9 }},
		{"duplicate bet", func(s *Snapshot) { s.Bets[1].Principal = "bob"; s.Bets[1].IsYes = true }},
		{"losing bet claimed", func(s *Snapshot) { s.Bets[1].Claimed = true }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := valid()
			tt.mutate(&s)
			if err := s.Validate(); !errors.Is(err, ErrInvalidSnapshot) {
				t.Errorf("Validate = %v, want ErrInvalidSnapshot", err)
			}
		})
	}
}
