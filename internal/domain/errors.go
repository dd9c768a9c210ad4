package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrRateLimited   = errors.New("rate limited")
	ErrUnauthorized  = errors.New("unauthorized")
	ErrInvalidAmount = errors.New("invalid amount")
	ErrContextDone   = errors.New("context cancelled")
	ErrLockHeld      = errors.New("lock already held")
)

// ErrorKind is the closed set of reasons a ledger operation is rejected.
type ErrorKind uint8

const (
	KindNotFound ErrorKind = iota + 1
	KindAlreadyResolved
	KindNotResolved
	KindUnauthorized
	KindDuplicateBet
	KindNoBet
	KindAlreadyClaimed
	KindLoss
	KindReadFailure
	KindInvalidAmount
)

var kindNames = map[ErrorKind]string{
	KindNotFound:        "not_found",
	KindAlreadyResolved: "already_resolved",
	KindNotResolved:     "not_resolved",
	KindUnauthorized:    "unauthorized",
	KindDuplicateBet:    "duplicate_bet",
	KindNoBet:           "no_bet",
	KindAlreadyClaimed:  "already_claimed",
	KindLoss:            "loss",
	KindReadFailure:     "read_failure",
	KindInvalidAmount:   "invalid_amount",
}

var kindMessages = map[ErrorKind]string{
	KindNotFound:        "market not found",
	KindAlreadyResolved: "market already resolved",
	KindNotResolved:     "market not yet resolved",
	KindUnauthorized:    "only the creator can resolve the market",
	KindDuplicateBet:    "already placed a bet on this market",
	KindNoBet:           "no bet found",
	KindAlreadyClaimed:  "winnings already claimed",
	KindLoss:            "bet did not win",
	KindReadFailure:     "failed to read ledger state",
	KindInvalidAmount:   "amount out of range",
}

func (k ErrorKind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// LedgerError is a domain-level rejection of an operation. It never implies a
// state change.
type LedgerError struct {
	Kind     ErrorKind
	MarketID uint64
	Err      error
}

// NewError returns a LedgerError of the given kind for marketID.
func NewError(kind ErrorKind, marketID uint64) *LedgerError {
	return &LedgerError{Kind: kind, MarketID: marketID}
}

// WrapError attaches an underlying cause to a LedgerError.
func WrapError(kind ErrorKind, marketID uint64, err error) *LedgerError {
	return &LedgerError{Kind: kind, MarketID: marketID, Err: err}
}

func (e *LedgerError) Error() string {
	msg := kindMessages[e.Kind]
	if msg == "" {
		msg = e.Kind.String()
	}
	if e.MarketID != 0 {
		msg = fmt.Sprintf("%s (market %d)", msg, e.MarketID)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Is matches any LedgerError of the same kind, so callers can compare against
// the Err* sentinels below.
func (e *LedgerError) Is(target error) bool {
	t, ok := target.(*LedgerError)
	return ok && t.Kind == e.Kind
}

func (e *LedgerError) Unwrap() error { return e.Err }

// Sentinels for errors.Is checks.
var (
	ErrMarketNotFound   = &LedgerError{Kind: KindNotFound}
	ErrAlreadyResolved  = &LedgerError{Kind: KindAlreadyResolved}
	ErrNotResolved      = &LedgerError{Kind: KindNotResolved}
	ErrNotCreator       = &LedgerError{Kind: KindUnauthorized}
	ErrDuplicateBet     = &LedgerError{Kind: KindDuplicateBet}
	ErrNoBet            = &LedgerError{Kind: KindNoBet}
	ErrAlreadyClaimed   = &LedgerError{Kind: KindAlreadyClaimed}
	ErrLoss             = &LedgerError{Kind: KindLoss}
	ErrReadFailure      = &LedgerError{Kind: KindReadFailure}
	ErrAmountOutOfRange = &LedgerError{Kind: KindInvalidAmount}
)

// KindOf extracts the ErrorKind from err. ok is false for infrastructure
// errors that are not ledger rejections.
func KindOf(err error) (ErrorKind, bool) {
	var le *LedgerError
	if errors.As(err, &le) {
		return le.Kind, true
	}
	return 0, false
}
