// Package storetest provides a conformance suite that every LedgerStore
// backend runs from its own tests. It checks the storage contract and then
// replays the settlement scenarios through the ledger engine.
package storetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alanyoungcy/parimarket/internal/domain"
	"github.com/alanyoungcy/parimarket/internal/ledger"
)

// Factory returns a fresh, empty store for one subtest.
type Factory func(t *testing.T) domain.LedgerStore

// RunLedgerStoreConformance runs the full suite against stores built by
// newStore.
func RunLedgerStoreConformance(t *testing.T, newStore Factory) {
	t.Helper()

	t.Run("fresh store starts ids at one", func(t *testing.T) {
		s := newStore(t)
		err := s.View(context.Background(), func(v domain.LedgerView) error {
			next, err := v.NextMarketID(context.Background())
			if err != nil {
				return err
			}
			if next != 1 {
				t.Errorf("NextMarketID = %d, want 1", next)
			}
			return nil
		})
		if err != nil {
			t.Fatalf("View: %v", err)
		}
	})

	t.Run("missing rows report ErrNotFound", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		_ = s.View(ctx, func(v domain.LedgerView) error {
			if _, err := v.GetMarket(ctx, 1); !errors.Is(err, domain.ErrNotFound) {
				t.Errorf("GetMarket error = %v, want ErrNotFound", err)
			}
			if _, err := v.GetBet(ctx, domain.BetKey{MarketID: 1, Principal: "x"}); !errors.Is(err, domain.ErrNotFound) {
				t.Errorf("GetBet error = %v, want ErrNotFound", err)
			}
			return nil
		})
	})

	t.Run("round trips large amounts", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		outcome := false
		want := domain.Market{
			ID:       1,
			Question: "Big?",
			Creator:  "0xabc",
			YesPool:  domain.MaxAmount(),
			NoPool:   domain.MustParseAmount("18446744073709551616"),
			EndTime:  ^uint64(0),
			Resolved: true,
			Outcome:  &outcome,
		}
		key := domain.BetKey{MarketID: 1, Principal: "0xabc"}
		bet := domain.Bet{Amount: domain.MaxAmount(), IsYes: true, Claimed: true}

		err := s.Update(ctx, func(tx domain.LedgerTx) error {
			if err := tx.PutMarket(ctx, want); err != nil {
				return err
			}
			if err := tx.PutBet(ctx, key, bet); err != nil {
				return err
			}
			return tx.SetNextMarketID(ctx, 2)
		})
		if err != nil {
			t.Fatalf("Update: %v", err)
		}

		_ = s.View(ctx, func(v domain.LedgerView) error {
			got, err := v.GetMarket(ctx, 1)
			if err != nil {
				t.Fatalf("GetMarket: %v", err)
			}
			if got.Question != want.Question || got.Creator != want.Creator ||
				got.YesPool.Cmp(want.YesPool) != 0 || got.NoPool.Cmp(want.NoPool) != 0 ||
				got.EndTime != want.EndTime || !got.Resolved || got.Outcome == nil || *got.Outcome {
				t.Errorf("GetMarket = %+v, want %+v", got, want)
			}
			gotBet, err := v.GetBet(ctx, key)
			if err != nil {
				t.Fatalf("GetBet: %v", err)
			}
			if gotBet != bet {
				t.Errorf("GetBet = %+v, want %+v", gotBet, bet)
			}
			if next, _ := v.NextMarketID(ctx); next != 2 {
				t.Errorf("NextMarketID = %d, want 2", next)
			}
			return nil
		})
	})

	t.Run("failed update leaves no trace", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		boom := errors.New("boom")
		err := s.Update(ctx, func(tx domain.LedgerTx) error {
			if err := tx.PutMarket(ctx, domain.Market{ID: 1, Question: "Q?", Creator: "a"}); err != nil {
				return err
			}
			if err := tx.SetNextMarketID(ctx, 2); err != nil {
				return err
			}
			if _, err := tx.AppendJournal(ctx, domain.JournalEntry{OpID: "x", Type: domain.OpCreateMarket, MarketID: 1, Principal: "a", At: time.Now().UTC()}); err != nil {
				return err
			}
			return boom
		})
		if !errors.Is(err, boom) {
			t.Fatalf("Update error = %v, want boom", err)
		}
		_ = s.View(ctx, func(v domain.LedgerView) error {
			if _, err := v.GetMarket(ctx, 1); !errors.Is(err, domain.ErrNotFound) {
				t.Errorf("market survived rollback: %v", err)
			}
			if next, _ := v.NextMarketID(ctx); next != 1 {
				t.Errorf("NextMarketID = %d after rollback, want 1", next)
			}
			entries, _ := v.ListJournal(ctx, domain.JournalFilter{})
			if len(entries) != 0 {
				t.Errorf("journal has %d entries after rollback", len(entries))
			}
			return nil
		})
	})

	t.Run("settlement scenarios", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		eng := ledger.NewEngine(s, nil)

		id, err := eng.CreateMarket(ctx, "creator", "Will it rain?", 0)
		if err != nil || id != 1 {
			t.Fatalf("CreateMarket = %d, %v", id, err)
		}
		if err := eng.PlaceBet(ctx, "x", id, true, domain.NewAmount(100)); err != nil {
			t.Fatalf("PlaceBet x: %v", err)
		}
		if err := eng.PlaceBet(ctx, "y", id, false, domain.NewAmount(300)); err != nil {
			t.Fatalf("PlaceBet y: %v", err)
		}
		if err := eng.PlaceBet(ctx, "x", id, false, domain.NewAmount(1)); !errors.Is(err, domain.ErrDuplicateBet) {
			t.Fatalf("duplicate PlaceBet error = %v", err)
		}
		if _, err := eng.ClaimWinnings(ctx, "x", id); !errors.Is(err, domain.ErrNotResolved) {
			t.Fatalf("early claim error = %v", err)
		}
		if err := eng.ResolveMarket(ctx, "x", id, true); !errors.Is(err, domain.ErrNotCreator) {
			t.Fatalf("non-creator resolve error = %v", err)
		}
		if err := eng.ResolveMarket(ctx, "creator", id, true); err != nil {
			t.Fatalf("ResolveMarket: %v", err)
		}

		won, err := eng.ClaimWinnings(ctx, "x", id)
		if err != nil || won.String() != "400" {
			t.Fatalf("ClaimWinnings x = %s, %v; want 400", won, err)
		}
		if _, err := eng.ClaimWinnings(ctx, "x", id); !errors.Is(err, domain.ErrAlreadyClaimed) {
			t.Errorf("second claim error = %v", err)
		}
		if _, err := eng.ClaimWinnings(ctx, "y", id); !errors.Is(err, domain.ErrLoss) {
			t.Errorf("losing claim error = %v", err)
		}
		if _, err := eng.ClaimWinnings(ctx, "z", id); !errors.Is(err, domain.ErrNoBet) {
			t.Errorf("no-bet claim error = %v", err)
		}

		_ = s.View(ctx, func(v domain.LedgerView) error {
			bets, err := v.ListBets(ctx, domain.BetFilter{MarketID: id})
			if err != nil {
				t.Fatalf("ListBets: %v", err)
			}
			if len(bets) != 2 || bets[0].Principal != "x" || !bets[0].Claimed || bets[1].Claimed {
				t.Errorf("ListBets = %+v", bets)
			}
			entries, err := v.ListJournal(ctx, domain.JournalFilter{Principal: "x"})
			if err != nil {
				t.Fatalf("ListJournal: %v", err)
			}
			if len(entries) != 2 || entries[0].Type != domain.OpClaimWinnings || entries[1].Type != domain.OpPlaceBet {
				t.Errorf("journal for x = %+v", entries)
			}
			if w := entries[0].Winnings; w == nil || w.String() != "400" {
				t.Errorf("claim journal winnings = %v", w)
			}
			all, _ := v.ListJournal(ctx, domain.JournalFilter{ListOpts: domain.ListOpts{Limit: 2}})
			if len(all) != 2 || all[0].Seq != 5 || all[1].Seq != 4 {
				t.Errorf("journal page = %+v", all)
			}
			return nil
		})
	})
}
