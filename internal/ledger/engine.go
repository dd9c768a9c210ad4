// Package ledger implements the market lifecycle, betting protocol and
// payout rules on top of a domain.LedgerStore.
//
// Every operation runs inside one LedgerStore.Update: it either commits all
// of its writes together with a journal entry, or none of them. The engine
// does no locking of its own; callers must invoke it sequentially.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/alanyoungcy/parimarket/internal/domain"
)

// ErrNoPrincipal is returned when an operation arrives without a caller.
// It is a host failure, not a ledger rejection.
var ErrNoPrincipal = errors.New("ledger: operation has no caller principal")

// Engine dispatches operations against a ledger store.
type Engine struct {
	store     domain.LedgerStore
	publisher domain.EventPublisher
	logger    *slog.Logger
	tracer    trace.Tracer
	now       func() time.Time
	newID     func() string
}

// Option configures an Engine.
type Option func(*Engine)

// WithPublisher sets the sink for post-commit ledger events.
func WithPublisher(p domain.EventPublisher) Option {
	return func(e *Engine) { e.publisher = p }
}

// WithClock overrides the journal timestamp source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithIDGenerator overrides the journal operation id source.
func WithIDGenerator(fn func() string) Option {
	return func(e *Engine) { e.newID = fn }
}

// NewEngine creates an Engine over store.
func NewEngine(store domain.LedgerStore, logger *slog.Logger, opts ...Option) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	e := &Engine{
		store:  store,
		logger: logger.With(slog.String("component", "ledger")),
		tracer: otel.Tracer("github.com/alanyoungcy/parimarket/internal/ledger"),
		now:    func() time.Time { return time.Now().UTC() },
		newID:  func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute applies op on behalf of caller in a single commit unit.
func (e *Engine) Execute(ctx context.Context, caller domain.Principal, op Operation) (Response, error) {
	if caller == "" {
		return Response{}, ErrNoPrincipal
	}
	if op == nil {
		return Response{}, errors.New("ledger: nil operation")
	}

	ctx, span := e.tracer.Start(ctx, "ledger."+string(op.Type()),
		trace.WithAttributes(
			attribute.String("ledger.op", string(op.Type())),
			attribute.String("ledger.principal", string(caller)),
		))
	defer span.End()

	var (
		resp  Response
		entry domain.JournalEntry
	)
	err := e.store.Update(ctx, func(tx domain.LedgerTx) error {
		var (
			r   Response
			ent domain.JournalEntry
			err error
		)
		switch o := op.(type) {
		case CreateMarket:
			r, ent, err = e.createMarket(ctx, tx, caller, o)
		case PlaceBet:
			r, ent, err = e.placeBet(ctx, tx, caller, o)
		case ResolveMarket:
			r, ent, err = e.resolveMarket(ctx, tx, caller, o)
		case ClaimWinnings:
			r, ent, err = e.claimWinnings(ctx, tx, caller, o)
		default:
			return fmt.Errorf("ledger: unsupported operation %T", op)
		}
		if err != nil {
			return err
		}

		ent.OpID = e.newID()
		ent.Type = op.Type()
		ent.Principal = caller
		ent.At = e.now()
		ent, err = tx.AppendJournal(ctx, ent)
		if err != nil {
			return fmt.Errorf("ledger: append journal: %w", err)
		}
		r.Type = op.Type()
		r.Seq = ent.Seq
		resp, entry = r, ent
		return nil
	})
	if err != nil {
		span.RecordError(err)
		kind, ok := domain.KindOf(err)
		switch {
		case ok && kind == domain.KindReadFailure:
			span.SetAttributes(attribute.String("ledger.rejected", kind.String()))
			span.SetStatus(codes.Error, err.Error())
			e.logger.ErrorContext(ctx, "ledger read failed",
				slog.String("op", string(op.Type())),
				slog.String("principal", string(caller)),
				slog.String("error", err.Error()),
			)
		case ok:
			span.SetAttributes(attribute.String("ledger.rejected", kind.String()))
			e.logger.DebugContext(ctx, "operation rejected",
				slog.String("op", string(op.Type())),
				slog.String("principal", string(caller)),
				slog.String("kind", kind.String()),
			)
		default:
			span.SetStatus(codes.Error, err.Error())
			e.logger.ErrorContext(ctx, "operation aborted",
				slog.String("op", string(op.Type())),
				slog.String("principal", string(caller)),
				slog.String("error", err.Error()),
			)
		}
		return Response{}, err
	}

	span.SetAttributes(
		attribute.Int64("ledger.market_id", int64(resp.MarketID)),
		attribute.Int64("ledger.seq", int64(resp.Seq)),
	)
	e.logger.InfoContext(ctx, "operation committed",
		slog.String("op", string(op.Type())),
		slog.String("principal", string(caller)),
		slog.Uint64("market_id", resp.MarketID),
		slog.Uint64("seq", resp.Seq),
	)
	e.publish(ctx, entry)
	return resp, nil
}

// CreateMarket opens a market owned by caller and returns its id.
func (e *Engine) CreateMarket(ctx context.Context, caller domain.Principal, question string, endTime uint64) (uint64, error) {
	resp, err := e.Execute(ctx, caller, CreateMarket{Question: question, EndTime: endTime})
	if err != nil {
		return 0, err
	}
	return resp.MarketID, nil
}

// PlaceBet stakes amount on one side of marketID.
func (e *Engine) PlaceBet(ctx context.Context, caller domain.Principal, marketID uint64, isYes bool, amount domain.Amount) error {
	_, err := e.Execute(ctx, caller, PlaceBet{MarketID: marketID, IsYes: isYes, Amount: amount})
	return err
}

// ResolveMarket fixes the outcome of marketID.
func (e *Engine) ResolveMarket(ctx context.Context, caller domain.Principal, marketID uint64, outcome bool) error {
	_, err := e.Execute(ctx, caller, ResolveMarket{MarketID: marketID, Outcome: outcome})
	return err
}

// ClaimWinnings settles caller's bet on marketID and returns the payout.
func (e *Engine) ClaimWinnings(ctx context.Context, caller domain.Principal, marketID uint64) (domain.Amount, error) {
	resp, err := e.Execute(ctx, caller, ClaimWinnings{MarketID: marketID})
	if err != nil {
		return domain.Amount{}, err
	}
	if resp.Winnings == nil {
		return domain.ZeroAmount, nil
	}
	return *resp.Winnings, nil
}

func (e *Engine) createMarket(ctx context.Context, tx domain.LedgerTx, caller domain.Principal, op CreateMarket) (Response, domain.JournalEntry, error) {
	id, err := tx.NextMarketID(ctx)
	if err != nil {
		return Response{}, domain.JournalEntry{}, domain.WrapError(domain.KindReadFailure, 0, err)
	}
	switch _, err := tx.GetMarket(ctx, id); {
	case err == nil:
		return Response{}, domain.JournalEntry{}, fmt.Errorf("ledger: market id %d already allocated: %w", id, domain.ErrAlreadyExists)
	case !errors.Is(err, domain.ErrNotFound):
		return Response{}, domain.JournalEntry{}, domain.WrapError(domain.KindReadFailure, id, err)
	}
	if err := tx.PutMarket(ctx, newMarket(id, op.Question, caller, op.EndTime)); err != nil {
		return Response{}, domain.JournalEntry{}, fmt.Errorf("ledger: put market %d: %w", id, err)
	}
	if err := tx.SetNextMarketID(ctx, id+1); err != nil {
		return Response{}, domain.JournalEntry{}, fmt.Errorf("ledger: advance market id: %w", err)
	}
	return Response{MarketID: id}, domain.JournalEntry{MarketID: id}, nil
}

func (e *Engine) placeBet(ctx context.Context, tx domain.LedgerTx, caller domain.Principal, op PlaceBet) (Response, domain.JournalEntry, error) {
	m, err := loadMarket(ctx, tx, op.MarketID)
	if err != nil {
		return Response{}, domain.JournalEntry{}, err
	}
	key := domain.BetKey{MarketID: op.MarketID, Principal: caller}
	_, hasBet, err := loadBet(ctx, tx, key)
	if err != nil {
		return Response{}, domain.JournalEntry{}, err
	}

	updated, bet, err := applyBet(m, hasBet, op.IsYes, op.Amount)
	if err != nil {
		return Response{}, domain.JournalEntry{}, err
	}
	if err := tx.PutMarket(ctx, updated); err != nil {
		return Response{}, domain.JournalEntry{}, fmt.Errorf("ledger: put market %d: %w", m.ID, err)
	}
	if err := tx.PutBet(ctx, key, bet); err != nil {
		return Response{}, domain.JournalEntry{}, fmt.Errorf("ledger: put bet %s: %w", key, err)
	}

	isYes, amount := op.IsYes, op.Amount
	return Response{MarketID: m.ID}, domain.JournalEntry{MarketID: m.ID, IsYes: &isYes, Amount: &amount}, nil
}

func (e *Engine) resolveMarket(ctx context.Context, tx domain.LedgerTx, caller domain.Principal, op ResolveMarket) (Response, domain.JournalEntry, error) {
	m, err := loadMarket(ctx, tx, op.MarketID)
	if err != nil {
		return Response{}, domain.JournalEntry{}, err
	}
	updated, err := resolve(m, caller, op.Outcome)
	if err != nil {
		return Response{}, domain.JournalEntry{}, err
	}
	if err := tx.PutMarket(ctx, updated); err != nil {
		return Response{}, domain.JournalEntry{}, fmt.Errorf("ledger: put market %d: %w", m.ID, err)
	}
	outcome := op.Outcome
	return Response{MarketID: m.ID}, domain.JournalEntry{MarketID: m.ID, Outcome: &outcome}, nil
}

func (e *Engine) claimWinnings(ctx context.Context, tx domain.LedgerTx, caller domain.Principal, op ClaimWinnings) (Response, domain.JournalEntry, error) {
	m, err := loadMarket(ctx, tx, op.MarketID)
	if err != nil {
		return Response{}, domain.JournalEntry{}, err
	}
	if !m.Resolved {
		return Response{}, domain.JournalEntry{}, domain.NewError(domain.KindNotResolved, m.ID)
	}
	key := domain.BetKey{MarketID: op.MarketID, Principal: caller}
	bet, ok, err := loadBet(ctx, tx, key)
	if err != nil {
		return Response{}, domain.JournalEntry{}, err
	}
	if !ok {
		return Response{}, domain.JournalEntry{}, domain.NewError(domain.KindNoBet, m.ID)
	}

	settled, winnings, err := claim(m, bet)
	if err != nil {
		return Response{}, domain.JournalEntry{}, err
	}
	if err := tx.PutBet(ctx, key, settled); err != nil {
		return Response{}, domain.JournalEntry{}, fmt.Errorf("ledger: put bet %s: %w", key, err)
	}
	return Response{MarketID: m.ID, Winnings: &winnings}, domain.JournalEntry{MarketID: m.ID, Winnings: &winnings}, nil
}

func (e *Engine) publish(ctx context.Context, entry domain.JournalEntry) {
	if e.publisher == nil {
		return
	}
	ev := domain.LedgerEvent{Type: entry.Type, Entry: entry}
	if err := e.publisher.PublishEvent(ctx, ev); err != nil {
		e.logger.WarnContext(ctx, "publish ledger event failed",
			slog.Uint64("seq", entry.Seq),
			slog.String("error", err.Error()),
		)
	}
}

func loadMarket(ctx context.Context, v domain.LedgerView, id uint64) (domain.Market, error) {
	m, err := v.GetMarket(ctx, id)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.Market{}, domain.NewError(domain.KindNotFound, id)
	}
	if err != nil {
		return domain.Market{}, domain.WrapError(domain.KindReadFailure, id, err)
	}
	return m, nil
}

func loadBet(ctx context.Context, v domain.LedgerView, key domain.BetKey) (domain.Bet, bool, error) {
	b, err := v.GetBet(ctx, key)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.Bet{}, false, nil
	}
	if err != nil {
		return domain.Bet{}, false, domain.WrapError(domain.KindReadFailure, key.MarketID, err)
	}
	return b, true, nil
}
