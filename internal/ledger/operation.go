package ledger

import (
	"encoding/json"
	"fmt"

	"github.com/alanyoungcy/parimarket/internal/domain"
)

// Operation is one of CreateMarket, PlaceBet, ResolveMarket or ClaimWinnings.
type Operation interface {
	Type() domain.OpType
	isOperation()
}

// CreateMarket opens a new market owned by the caller.
type CreateMarket struct {
	Question string `json:"question"`
	EndTime  uint64 `json:"end_time"`
}

// PlaceBet stakes Amount on one side of a market.
type PlaceBet struct {
	MarketID uint64        `json:"market_id"`
	IsYes    bool          `json:"is_yes"`
	Amount   domain.Amount `json:"amount"`
}

// ResolveMarket fixes the outcome of a market.
type ResolveMarket struct {
	MarketID uint64 `json:"market_id"`
	Outcome  bool   `json:"outcome"`
}

// ClaimWinnings settles the caller's bet on a resolved market.
type ClaimWinnings struct {
	MarketID uint64 `json:"market_id"`
}

func (CreateMarket) Type() domain.OpType  { return domain.OpCreateMarket }
func (PlaceBet) Type() domain.OpType      { return domain.OpPlaceBet }
func (ResolveMarket) Type() domain.OpType { return domain.OpResolveMarket }
func (ClaimWinnings) Type() domain.OpType { return domain.OpClaimWinnings }

func (CreateMarket) isOperation()  {}
func (PlaceBet) isOperation()      {}
func (ResolveMarket) isOperation() {}
func (ClaimWinnings) isOperation() {}

// Response is the result of a committed operation.
type Response struct {
	Type     domain.OpType  `json:"type"`
	MarketID uint64         `json:"market_id"`
	Winnings *domain.Amount `json:"winnings,omitempty"`
	Seq      uint64         `json:"seq"`
}

// DecodeOperation parses a JSON envelope of the form
// {"op":"place_bet","market_id":1,"is_yes":true,"amount":"100"}.
func DecodeOperation(data []byte) (Operation, error) {
	var head struct {
		Op domain.OpType `json:"op"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("ledger: decode operation: %w", err)
	}

	var (
		op  Operation
		err error
	)
	switch head.Op {
	case domain.OpCreateMarket:
		var v CreateMarket
		err = json.Unmarshal(data, &v)
		op = v
	case domain.OpPlaceBet:
		var v PlaceBet
		err = json.Unmarshal(data, &v)
		op = v
	case domain.OpResolveMarket:
		var v ResolveMarket
		err = json.Unmarshal(data, &v)
		op = v
	case domain.OpClaimWinnings:
		var v ClaimWinnings
		err = json.Unmarshal(data, &v)
		op = v
	case "":
		return nil, fmt.Errorf("ledger: decode operation: missing op")
	default:
		return nil, fmt.Errorf("ledger: decode operation: unknown op %q", head.Op)
	}
	if err != nil {
		return nil, fmt.Errorf("ledger: decode %s: %w", head.Op, err)
	}
	return op, nil
}
