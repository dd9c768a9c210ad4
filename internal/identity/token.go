package identity

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/pbkdf2"

	"github.com/alanyoungcy/parimarket/internal/domain"
)

const (
	// keyIterations is the PBKDF2-HMAC-SHA256 work factor for the signing key.
	keyIterations = 480_000
	keyLen        = 32
	keySalt       = "parimarket/identity/v1"
)

// DeriveKey stretches a configured secret into an HS256 signing key.
func DeriveKey(secret string) ([]byte, error) {
	if secret == "" {
		return nil, errors.New("identity: token secret must not be empty")
	}
	return pbkdf2.Key([]byte(secret), []byte(keySalt), keyIterations, keyLen, sha256.New), nil
}

// TokenConfig configures a Tokens instance.
type TokenConfig struct {
	Key    []byte
	Issuer string
	TTL    time.Duration
	Now    func() time.Time
}

// Tokens issues and verifies HS256 caller tokens whose subject is the
// principal.
type Tokens struct {
	key    []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// NewTokens creates a Tokens from cfg.
func NewTokens(cfg TokenConfig) (*Tokens, error) {
	if len(cfg.Key) == 0 {
		return nil, errors.New("identity: signing key is required")
	}
	if cfg.Issuer == "" {
		cfg.Issuer = "parimarket"
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 24 * time.Hour
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Tokens{key: cfg.Key, issuer: cfg.Issuer, ttl: cfg.TTL, now: cfg.Now}, nil
}

// Issue returns a signed token for principal.
func (t *Tokens) Issue(principal string) (string, error) {
	p, err := Canonicalize(principal)
	if err != nil {
		return "", err
	}
	now := t.now().UTC()
	claims := jwt.RegisteredClaims{
		Issuer:    t.issuer,
		Subject:   string(p),
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.key)
	if err != nil {
		return "", fmt.Errorf("identity: sign token: %w", err)
	}
	return signed, nil
}

// Verify checks token and returns its principal. Every failure wraps
// domain.ErrUnauthorized.
func (t *Tokens) Verify(token string) (domain.Principal, error) {
	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return t.key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(t.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil {
		return "", fmt.Errorf("identity: %w: %v", domain.ErrUnauthorized, err)
	}
	p, err := Canonicalize(claims.Subject)
	if err != nil {
		return "", fmt.Errorf("identity: %w: %v", domain.ErrUnauthorized, err)
	}
	return p, nil
}
