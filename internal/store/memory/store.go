// Package memory provides an in-process LedgerStore. Each Update stages its
// writes in an overlay that is folded into the committed state only when the
// callback succeeds.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/alanyoungcy/parimarket/internal/domain"
)

var errReadOnly = errors.New("memory: write in read-only view")

type state struct {
	nextID  uint64
	markets map[uint64]domain.Market
	bets    map[domain.BetKey]domain.Bet
	journal []domain.JournalEntry
}

// Store is a LedgerStore held in memory.
type Store struct {
	mu    sync.RWMutex
	state state
}

// New returns an empty ledger whose first market id is 1.
func New() *Store {
	return &Store{state: state{
		nextID:  1,
		markets: make(map[uint64]domain.Market),
		bets:    make(map[domain.BetKey]domain.Bet),
	}}
}

// Update runs fn against a staged copy and commits it if fn returns nil.
func (s *Store) Update(ctx context.Context, fn func(tx domain.LedgerTx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	t := &tx{
		base:    &s.state,
		markets: make(map[uint64]domain.Market),
		bets:    make(map[domain.BetKey]domain.Bet),
	}
	if err := fn(t); err != nil {
		return err
	}

	for id, m := range t.markets {
		s.state.markets[id] = m
	}
	for k, b := range t.bets {
		s.state.bets[k] = b
	}
	if t.nextID != nil {
		s.state.nextID = *t.nextID
	}
	s.state.journal = append(s.state.journal, t.journal...)
	return nil
}

// View runs fn against the committed state.
func (s *Store) View(ctx context.Context, fn func(v domain.LedgerView) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(&tx{base: &s.state, readOnly: true})
}

// Restore replaces the ledger with snap. The current state is kept when
// snap fails validation.
func (s *Store) Restore(ctx context.Context, snap domain.Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := snap.Validate(); err != nil {
		return fmt.Errorf("memory: restore: %w", err)
	}
	st := state{
		nextID:  snap.NextMarketID,
		markets: make(map[uint64]domain.Market, len(snap.Markets)),
		bets:    make(map[domain.BetKey]domain.Bet, len(snap.Bets)),
		journal: append([]domain.JournalEntry(nil), snap.Journal...),
	}
	if st.nextID == 0 {
		st.nextID = 1
	}
	for _, m := range snap.Markets {
		st.markets[m.ID] = cloneMarket(m)
	}
	for _, b := range snap.Bets {
		st.bets[b.BetKey] = b.Bet
	}
	sort.SliceStable(st.journal, func(i, j int) bool { return st.journal[i].Seq < st.journal[j].Seq })

	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
	return nil
}

type tx struct {
	base     *state
	readOnly bool
	markets  map[uint64]domain.Market
	bets     map[domain.BetKey]domain.Bet
	nextID   *uint64
	journal  []domain.JournalEntry
}

func (t *tx) NextMarketID(_ context.Context) (uint64, error) {
	if t.nextID != nil {
		return *t.nextID, nil
	}
	return t.base.nextID, nil
}

func (t *tx) GetMarket(_ context.Context, id uint64) (domain.Market, error) {
	if m, ok := t.markets[id]; ok {
		return cloneMarket(m), nil
	}
	if m, ok := t.base.markets[id]; ok {
		return cloneMarket(m), nil
	}
	return domain.Market{}, domain.ErrNotFound
}

func (t *tx) GetBet(_ context.Context, key domain.BetKey) (domain.Bet, error) {
	if b, ok := t.bets[key]; ok {
		return b, nil
	}
	if b, ok := t.base.bets[key]; ok {
		return b, nil
	}
	return domain.Bet{}, domain.ErrNotFound
}

func (t *tx) ListBets(_ context.Context, filter domain.BetFilter) ([]domain.BetRecord, error) {
	merged := make(map[domain.BetKey]domain.Bet, len(t.base.bets)+len(t.bets))
	for k, b := range t.base.bets {
		merged[k] = b
	}
	for k, b := range t.bets {
		merged[k] = b
	}

	var out []domain.BetRecord
	for k, b := range merged {
		if filter.MarketID != 0 && k.MarketID != filter.MarketID {
			continue
		}
		if filter.Principal != "" && k.Principal != filter.Principal {
			continue
		}
		out = append(out, domain.BetRecord{BetKey: k, Bet: b})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].MarketID != out[j].MarketID {
			return out[i].MarketID < out[j].MarketID
		}
		return out[i].Principal < out[j].Principal
	})
	return out, nil
}

func (t *tx) ListJournal(_ context.Context, filter domain.JournalFilter) ([]domain.JournalEntry, error) {
	all := make([]domain.JournalEntry, 0, len(t.base.journal)+len(t.journal))
	all = append(all, t.base.journal...)
	all = append(all, t.journal...)

	var out []domain.JournalEntry
	skipped := 0
	for i := len(all) - 1; i >= 0; i-- {
		e := all[i]
		if filter.MarketID != 0 && e.MarketID != filter.MarketID {
			continue
		}
		if filter.Principal != "" && e.Principal != filter.Principal {
			continue
		}
		if skipped < filter.Offset {
			skipped++
			continue
		}
		out = append(out, e)
		if filter.Limit > 0 && len(out) == filter.Limit {
			break
		}
	}
	return out, nil
}

func (t *tx) PutMarket(_ context.Context, m domain.Market) error {
	if t.readOnly {
		return errReadOnly
	}
	t.markets[m.ID] = cloneMarket(m)
	return nil
}

func (t *tx) PutBet(_ context.Context, key domain.BetKey, b domain.Bet) error {
	if t.readOnly {
		return errReadOnly
	}
	t.bets[key] = b
	return nil
}

func (t *tx) SetNextMarketID(_ context.Context, id uint64) error {
	if t.readOnly {
		return errReadOnly
	}
	t.nextID = &id
	return nil
}

func (t *tx) AppendJournal(_ context.Context, e domain.JournalEntry) (domain.JournalEntry, error) {
	if t.readOnly {
		return domain.JournalEntry{}, errReadOnly
	}
	var last uint64
	if n := len(t.journal); n > 0 {
		last = t.journal[n-1].Seq
	} else if n := len(t.base.journal); n > 0 {
		last = t.base.journal[n-1].Seq
	}
	e.Seq = last + 1
	t.journal = append(t.journal, e)
	return e, nil
}

func cloneMarket(m domain.Market) domain.Market {
	if m.Outcome != nil {
		o := *m.Outcome
		m.Outcome = &o
	}
	return m
}

var (
	_ domain.LedgerStore      = (*Store)(nil)
	_ domain.SnapshotRestorer = (*Store)(nil)
	_ domain.LedgerTx         = (*tx)(nil)
)
