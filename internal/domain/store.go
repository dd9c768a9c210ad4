package domain

import "context"

// ListOpts provides pagination for list queries.
type ListOpts struct {
	Limit  int
	Offset int
}

// BetFilter narrows ListBets. Zero fields match everything.
type BetFilter struct {
	MarketID  uint64
	Principal Principal
}

// JournalFilter narrows ListJournal. Zero fields match everything.
type JournalFilter struct {
	MarketID  uint64
	Principal Principal
	ListOpts
}

// LedgerView is a consistent read-only view of ledger state.
type LedgerView interface {
	// NextMarketID returns the id the next created market will receive.
	NextMarketID(ctx context.Context) (uint64, error)
	// GetMarket returns ErrNotFound when no market has the id.
	GetMarket(ctx context.Context, id uint64) (Market, error)
	// GetBet returns ErrNotFound when the principal has no bet on the market.
	GetBet(ctx context.Context, key BetKey) (Bet, error)
	ListBets(ctx context.Context, filter BetFilter) ([]BetRecord, error)
	// ListJournal returns entries newest first.
	ListJournal(ctx context.Context, filter JournalFilter) ([]JournalEntry, error)
}

// LedgerTx is a commit unit. Writes become visible to other readers only
// when the enclosing Update returns nil.
type LedgerTx interface {
	LedgerView
	PutMarket(ctx context.Context, m Market) error
	PutBet(ctx context.Context, key BetKey, b Bet) error
	SetNextMarketID(ctx context.Context, id uint64) error
	// AppendJournal assigns the next sequence number and stores the entry.
	AppendJournal(ctx context.Context, e JournalEntry) (JournalEntry, error)
}

// LedgerStore is the key-value substrate holding markets, bets and the id
// allocator.
type LedgerStore interface {
	// Update runs fn inside a single commit unit. Any error returned by fn,
	// or raised while committing, discards every write made through the tx.
	Update(ctx context.Context, fn func(tx LedgerTx) error) error
	View(ctx context.Context, fn func(v LedgerView) error) error
}

// SnapshotRestorer can replace its entire state with a snapshot.
type SnapshotRestorer interface {
	Restore(ctx context.Context, snap Snapshot) error
}
