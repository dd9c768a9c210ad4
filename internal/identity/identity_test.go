package identity

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/alanyoungcy/parimarket/internal/domain"
)

func TestCanonicalize(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    domain.Principal
		wantErr bool
	}{
		{name: "lower hex address", in: "0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed", want: "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed"},
		{name: "upper hex address", in: "0x5AAEB6053F3E94C9B9A09F33669435E7EF1BEAED", want: "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed"},
		{name: "opaque name trimmed", in: "  alice ", want: "alice"},
		{name: "blank", in: "   ", wantErr: true},
		{name: "control char", in: "al\nice", wantErr: true},
		{name: "too long", in: strings.Repeat("a", maxPrincipalLen+1), wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Canonicalize(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Canonicalize(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("Canonicalize(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestContext(t *testing.T) {
	if _, ok := FromContext(context.Background()); ok {
		t.Fatal("empty context has a principal")
	}
	ctx := WithPrincipal(context.Background(), "bob")
	if p, ok := FromContext(ctx); !ok || p != "bob" {
		t.Errorf("FromContext = %q, %v", p, ok)
	}
}

func newTestTokens(t *testing.T, now func() time.Time) *Tokens {
	t.Helper()
	tok, err := NewTokens(TokenConfig{Key: []byte("0123456789abcdef0123456789abcdef"), TTL: time.Hour, Now: now})
	if err != nil {
		t.Fatalf("NewTokens: %v", err)
	}
	return tok
}

func TestTokensRoundTrip(t *testing.T) {
	tok := newTestTokens(t, time.Now)
	signed, err := tok.Issue("0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	p, err := tok.Verify(signed)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if p != "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed" {
		t.Errorf("principal = %q", p)
	}
}

func TestTokensRejects(t *testing.T) {
	issuedAt := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	old := newTestTokens(t, func() time.Time { return issuedAt })
	expired, err := old.Issue("alice")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	other, _ := NewTokens(TokenConfig{Key: []byte("another key entirely, 32 bytes!!")})
	foreign, _ := other.Issue("alice")

	tok := newTestTokens(t, func() time.Time { return issuedAt.Add(2 * time.Hour) })
	for name, token := range map[string]string{
		"expired":   expired,
		"wrong key": foreign,
		"garbage":   "not.a.token",
		"empty":     "",
	} {
		t.Run(name, func(t *testing.T) {
			if _, err := tok.Verify(token); !errors.Is(err, domain.ErrUnauthorized) {
				t.Errorf("Verify error = %v, want ErrUnauthorized", err)
			}
		})
	}
}

func TestDeriveKey(t *testing.T) {
	if _, err := DeriveKey(""); err == nil {
		t.Fatal("DeriveKey accepted an empty secret")
	}
	a, _ := DeriveKey("s3cret")
	b, _ := DeriveKey("s3cret")
	c, _ := DeriveKey("other")
	if len(a) != keyLen || string(a) != string(b) || string(a) == string(c) {
		t.Errorf("DeriveKey not deterministic per secret")
	}
}
