package domain

import (
	"fmt"
	"time"
)

// Principal identifies the caller of an operation. It is opaque to the
// ledger; only equality is used.
type Principal string

// Market is a binary-outcome prediction market.
type Market struct {
	ID       uint64    `json:"id"`
	Question string    `json:"question"`
	Creator  Principal `json:"creator"`
	YesPool  Amount    `json:"yes_pool"`
	NoPool   Amount    `json:"no_pool"`
	// EndTime is advisory metadata; nothing closes the market automatically.
	EndTime  uint64 `json:"end_time"`
	Resolved bool   `json:"resolved"`
	Outcome  *bool  `json:"outcome,omitempty"`
}

// TotalPool returns YesPool + NoPool.
func (m Market) TotalPool() (Amount, error) {
	return m.YesPool.Add(m.NoPool)
}

// WinningPool returns the pool of the resolved outcome. ok is false while
// the market is open.
func (m Market) WinningPool() (pool Amount, ok bool) {
	if !m.Resolved || m.Outcome == nil {
		return Amount{}, false
	}
	if *m.Outcome {
		return m.YesPool, true
	}
	return m.NoPool, true
}

// Bet is a principal's single stake on a market.
type Bet struct {
	Amount  Amount `json:"amount"`
	IsYes   bool   `json:"is_yes"`
	Claimed bool   `json:"claimed"`
}

// Won reports whether the bet is on the resolved outcome of m.
func (b Bet) Won(m Market) bool {
	return m.Resolved && m.Outcome != nil && *m.Outcome == b.IsYes
}

// BetKey addresses a bet in the ledger.
type BetKey struct {
	MarketID  uint64    `json:"market_id"`
	Principal Principal `json:"principal"`
}

func (k BetKey) String() string {
	return fmt.Sprintf("%d:%s", k.MarketID, k.Principal)
}

// BetRecord is a bet together with its key, as returned by listings.
type BetRecord struct {
	BetKey
	Bet
}

// OpType names a ledger operation.
type OpType string

const (
	OpCreateMarket  OpType = "create_market"
	OpPlaceBet      OpType = "place_bet"
	OpResolveMarket OpType = "resolve_market"
	OpClaimWinnings OpType = "claim_winnings"
)

// JournalEntry records one committed operation.
type JournalEntry struct {
	Seq       uint64    `json:"seq"`
	OpID      string    `json:"op_id"`
	Type      OpType    `json:"type"`
	MarketID  uint64    `json:"market_id"`
	Principal Principal `json:"principal"`
	IsYes     *bool     `json:"is_yes,omitempty"`
	Amount    *Amount   `json:"amount,omitempty"`
	Outcome   *bool     `json:"outcome,omitempty"`
	Winnings  *Amount   `json:"winnings,omitempty"`
	At        time.Time `json:"at"`
}

// LedgerEvent is published after an operation commits.
type LedgerEvent struct {
	Type  OpType       `json:"type"`
	Entry JournalEntry `json:"entry"`
}
