// Package identity turns transport credentials into ledger principals.
// It is the host-side identity provider; the ledger trusts whatever
// principal it is given.
package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/parimarket/internal/domain"
)

// maxPrincipalLen bounds opaque principals.
const maxPrincipalLen = 256

// ErrEmptyPrincipal is returned for a blank principal.
var ErrEmptyPrincipal = errors.New("identity: empty principal")

// Canonicalize normalises raw into a principal. Hex addresses are returned
// in EIP-55 checksummed form so that differently cased spellings of one
// address compare equal. Other values are kept verbatim after trimming.
func Canonicalize(raw string) (domain.Principal, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", ErrEmptyPrincipal
	}
	if len(s) > maxPrincipalLen {
		return "", fmt.Errorf("identity: principal longer than %d bytes", maxPrincipalLen)
	}
	if strings.IndexFunc(s, unicode.IsControl) >= 0 {
		return "", errors.New("identity: principal contains control characters")
	}
	if common.IsHexAddress(s) {
		return domain.Principal(common.HexToAddress(s).Hex()), nil
	}
	return domain.Principal(s), nil
}

type ctxKey struct{}

// WithPrincipal returns a copy of ctx carrying p.
func WithPrincipal(ctx context.Context, p domain.Principal) context.Context {
	return context.WithValue(ctx, ctxKey{}, p)
}

// FromContext returns the principal stored in ctx, if any.
func FromContext(ctx context.Context) (domain.Principal, bool) {
	p, ok := ctx.Value(ctxKey{}).(domain.Principal)
	return p, ok && p != ""
}
