package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/holiman/uint256"
)

// maxAmount is 2^128 - 1, the largest quantity the ledger can hold.
var maxAmount = new(uint256.Int).SubUint64(new(uint256.Int).Lsh(uint256.NewInt(1), 128), 1)

// Amount is an unsigned 128-bit ledger quantity. Arithmetic runs in 256-bit
// space so products of two amounts never overflow.
type Amount struct {
	v uint256.Int
}

// ZeroAmount is the additive identity.
var ZeroAmount = Amount{}

// MaxAmount returns 2^128 - 1.
func MaxAmount() Amount {
	return Amount{v: *maxAmount}
}

// NewAmount builds an Amount from a uint64.
func NewAmount(n uint64) Amount {
	return Amount{v: *uint256.NewInt(n)}
}

// ParseAmount parses a base-10 unsigned integer no larger than 2^128 - 1.
func ParseAmount(s string) (Amount, error) {
	var a Amount
	if err := a.v.SetFromDecimal(s); err != nil {
		return Amount{}, fmt.Errorf("%w: %q: %v", ErrInvalidAmount, s, err)
	}
	if a.v.Gt(maxAmount) {
		return Amount{}, fmt.Errorf("%w: %q exceeds 128 bits", ErrInvalidAmount, s)
	}
	return a, nil
}

// MustParseAmount is ParseAmount that panics on error. Intended for tests and
// constants.
func MustParseAmount(s string) Amount {
	a, err := ParseAmount(s)
	if err != nil {
		panic(err)
	}
	return a
}

// Add returns a+b, failing with ErrInvalidAmount if the sum leaves the
// 128-bit domain.
func (a Amount) Add(b Amount) (Amount, error) {
	var out Amount
	out.v.Add(&a.v, &b.v)
	if out.v.Gt(maxAmount) {
		return Amount{}, fmt.Errorf("%w: %s + %s overflows", ErrInvalidAmount, a, b)
	}
	return out, nil
}

// MulDiv returns floor(a*mul/div). ok is false when div is zero or the
// result does not fit in 128 bits.
func (a Amount) MulDiv(mul, div Amount) (Amount, bool) {
	if div.v.IsZero() {
		return Amount{}, false
	}
	var out Amount
	out.v.Mul(&a.v, &mul.v)
	out.v.Div(&out.v, &div.v)
	if out.v.Gt(maxAmount) {
		return Amount{}, false
	}
	return out, true
}

// IsZero reports whether a == 0.
func (a Amount) IsZero() bool { return a.v.IsZero() }

// Cmp compares a and b and returns -1, 0 or +1.
func (a Amount) Cmp(b Amount) int { return a.v.Cmp(&b.v) }

// Big returns a as a new big.Int.
func (a Amount) Big() *big.Int { return a.v.ToBig() }

func (a Amount) String() string { return a.v.Dec() }

// MarshalJSON encodes the amount as a decimal string so that clients do not
// lose precision above 2^53.
func (a Amount) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.v.Dec())
}

// UnmarshalJSON accepts either a decimal string or a bare JSON integer.
func (a *Amount) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*a = Amount{}
		return nil
	}
	s := string(data)
	if len(data) > 0 && data[0] == '"' {
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
	}
	parsed, err := ParseAmount(s)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (a Amount) MarshalText() ([]byte, error) {
	return []byte(a.v.Dec()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *Amount) UnmarshalText(text []byte) error {
	parsed, err := ParseAmount(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
