// Command issuetoken mints a bearer token for a principal using the same
// configuration as the server, for development and operator use.
//
//	issuetoken -config config.toml -principal 0xabc... [-ttl 1h]
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/alanyoungcy/parimarket/internal/config"
	"github.com/alanyoungcy/parimarket/internal/identity"
)

func main() {
	configPath := flag.String("config", "config.toml", "path to configuration file")
	principal := flag.String("principal", "", "principal to issue the token for")
	ttl := flag.Duration("ttl", 0, "token lifetime (defaults to identity.token_ttl)")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	if *principal == "" {
		logger.Error("missing -principal")
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}
	if cfg.Identity.TokenSecret == "" {
		logger.Error("identity.token_secret is not set")
		os.Exit(1)
	}

	key, err := identity.DeriveKey(cfg.Identity.TokenSecret)
	if err != nil {
		logger.Error("derive key", slog.String("error", err.Error()))
		os.Exit(1)
	}
	lifetime := cfg.Identity.TokenTTL.Duration
	if *ttl > 0 {
		lifetime = *ttl
	}
	tokens, err := identity.NewTokens(identity.TokenConfig{
		Key:    key,
		Issuer: cfg.Identity.TokenIssuer,
		TTL:    lifetime,
	})
	if err != nil {
		logger.Error("init tokens", slog.String("error", err.Error()))
		os.Exit(1)
	}

	tok, err := tokens.Issue(*principal)
	if err != nil {
		logger.Error("issue token", slog.String("error", err.Error()))
		os.Exit(1)
	}
	fmt.Println(tok)
	logger.Info("token issued",
		slog.String("principal", *principal),
		slog.Time("expires_at", time.Now().Add(lifetime).UTC()),
	)
}
