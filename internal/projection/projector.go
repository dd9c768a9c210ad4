// Package projection answers read queries over the ledger: market views with
// pool percentages, individual bets, participant statistics and the journal.
package projection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strconv"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/alanyoungcy/parimarket/internal/domain"
)

// Projector serves read-only views of a ledger store.
type Projector struct {
	store  domain.LedgerStore
	cache  domain.MarketViewCache
	group  singleflight.Group
	logger *slog.Logger

	// genMu guards gens and orders cache fills against invalidations.
	genMu sync.Mutex
	gens  map[uint64]uint64
}

// Option configures a Projector.
type Option func(*Projector)

// WithCache serves Market lookups through c.
func WithCache(c domain.MarketViewCache) Option {
	return func(p *Projector) { p.cache = c }
}

// New creates a Projector over store.
func New(store domain.LedgerStore, logger *slog.Logger, opts ...Option) *Projector {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Projector{
		store:  store,
		logger: logger.With(slog.String("component", "projection")),
		gens:   make(map[uint64]uint64),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Project computes the view of m. Percentages default to 50/50 when both
// pools are empty.
func Project(m domain.Market) domain.MarketView {
	view := domain.MarketView{Market: m, YesPercentage: 50, NoPercentage: 50}
	total, err := m.TotalPool()
	if err != nil {
		return view
	}
	view.TotalPool = total
	if total.IsZero() {
		return view
	}
	view.YesPercentage = percentage(m.YesPool, total)
	view.NoPercentage = percentage(m.NoPool, total)
	return view
}

func percentage(part, total domain.Amount) float64 {
	q := new(big.Float).Quo(new(big.Float).SetInt(part.Big()), new(big.Float).SetInt(total.Big()))
	f, _ := q.Mul(q, big.NewFloat(100)).Float64()
	return f
}

// Markets lists every market with id in [1, next id). A market that cannot
// be read fails the whole listing with KindReadFailure.
func (p *Projector) Markets(ctx context.Context) ([]domain.MarketView, error) {
	var out []domain.MarketView
	err := p.store.View(ctx, func(v domain.LedgerView) error {
		next, err := v.NextMarketID(ctx)
		if err != nil {
			return domain.WrapError(domain.KindReadFailure, 0, err)
		}
		out = []domain.MarketView{}
		for id := uint64(1); id < next; id++ {
			m, err := v.GetMarket(ctx, id)
			if err != nil {
				return domain.WrapError(domain.KindReadFailure, id, err)
			}
			out = append(out, Project(m))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Market returns the view of one market.
func (p *Projector) Market(ctx context.Context, id uint64) (domain.MarketView, error) {
	if p.cache != nil {
		view, err := p.cache.Get(ctx, id)
		if err == nil {
			return view, nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			p.logger.WarnContext(ctx, "market cache get failed",
				slog.Uint64("market_id", id),
				slog.String("error", err.Error()),
			)
		}
	}

	v, err, _ := p.group.Do(strconv.FormatUint(id, 10), func() (any, error) {
		gen := p.generation(id)
		view, err := p.loadMarket(ctx, id)
		if err != nil {
			return domain.MarketView{}, err
		}
		if p.cache != nil {
			p.fill(ctx, view, gen)
		}
		return view, nil
	})
	if err != nil {
		return domain.MarketView{}, err
	}
	return v.(domain.MarketView), nil
}

func (p *Projector) generation(id uint64) uint64 {
	p.genMu.Lock()
	defer p.genMu.Unlock()
	return p.gens[id]
}

// fill caches view unless its market was invalidated after gen was read.
func (p *Projector) fill(ctx context.Context, view domain.MarketView, gen uint64) {
	p.genMu.Lock()
	defer p.genMu.Unlock()
	if p.gens[view.ID] != gen {
		p.logger.DebugContext(ctx, "discarding stale market view",
			slog.Uint64("market_id", view.ID),
		)
		return
	}
	if err := p.cache.Set(ctx, view); err != nil {
		p.logger.WarnContext(ctx, "market cache set failed",
			slog.Uint64("market_id", view.ID),
			slog.String("error", err.Error()),
		)
	}
}

func (p *Projector) loadMarket(ctx context.Context, id uint64) (domain.MarketView, error) {
	var view domain.MarketView
	err := p.store.View(ctx, func(v domain.LedgerView) error {
		m, err := v.GetMarket(ctx, id)
		if errors.Is(err, domain.ErrNotFound) {
			return domain.NewError(domain.KindNotFound, id)
		}
		if err != nil {
			return domain.WrapError(domain.KindReadFailure, id, err)
		}
		view = Project(m)
		return nil
	})
	return view, err
}

// Invalidate drops any cached view of market id. Loads already in flight
// for id are not cached.
func (p *Projector) Invalidate(ctx context.Context, id uint64) error {
	if p.cache == nil {
		return nil
	}
	p.genMu.Lock()
	defer p.genMu.Unlock()
	p.gens[id]++
	p.group.Forget(strconv.FormatUint(id, 10))
	if err := p.cache.Invalidate(ctx, id); err != nil {
		return fmt.Errorf("projection: invalidate market %d: %w", id, err)
	}
	return nil
}

// UserBet returns the principal's bet on a market. ok is false when there is
// none.
func (p *Projector) UserBet(ctx context.Context, marketID uint64, principal domain.Principal) (bet domain.Bet, ok bool, err error) {
	err = p.store.View(ctx, func(v domain.LedgerView) error {
		b, err := v.GetBet(ctx, domain.BetKey{MarketID: marketID, Principal: principal})
		if errors.Is(err, domain.ErrNotFound) {
			return nil
		}
		if err != nil {
			return domain.WrapError(domain.KindReadFailure, marketID, err)
		}
		bet, ok = b, true
		return nil
	})
	return bet, ok, err
}

// Position returns a market and the principal's bet on it, read together
// from the store. ok is false when the principal has no bet.
func (p *Projector) Position(ctx context.Context, marketID uint64, principal domain.Principal) (m domain.Market, bet domain.Bet, ok bool, err error) {
	err = p.store.View(ctx, func(v domain.LedgerView) error {
		var err error
		m, err = v.GetMarket(ctx, marketID)
		if errors.Is(err, domain.ErrNotFound) {
			return domain.NewError(domain.KindNotFound, marketID)
		}
		if err != nil {
			return domain.WrapError(domain.KindReadFailure, marketID, err)
		}
		b, err := v.GetBet(ctx, domain.BetKey{MarketID: marketID, Principal: principal})
		if errors.Is(err, domain.ErrNotFound) {
			return nil
		}
		if err != nil {
			return domain.WrapError(domain.KindReadFailure, marketID, err)
		}
		bet, ok = b, true
		return nil
	})
	return m, bet, ok, err
}

// Journal lists committed operations, newest first.
func (p *Projector) Journal(ctx context.Context, filter domain.JournalFilter) ([]domain.JournalEntry, error) {
	var out []domain.JournalEntry
	err := p.store.View(ctx, func(v domain.LedgerView) error {
		var err error
		out, err = v.ListJournal(ctx, filter)
		if err != nil {
			return domain.WrapError(domain.KindReadFailure, filter.MarketID, err)
		}
		return nil
	})
	return out, err
}

// Counts returns the number of markets and how many are still open.
func (p *Projector) Counts(ctx context.Context) (total, open uint64, err error) {
	views, err := p.Markets(ctx)
	if err != nil {
		return 0, 0, err
	}
	for _, v := range views {
		if !v.Resolved {
			open++
		}
	}
	return uint64(len(views)), open, nil
}
