// Command tokengen mints signed bearer tokens for test and bootstrap use.
// It reads the same configuration as the gateway, so tokens it produces are
// accepted by a gateway running with the same secret.
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/apigate/apigate/internal/auth"
	"github.com/apigate/apigate/internal/config"
)

type claimFlags map[string]string

func (c claimFlags) String() string { return fmt.Sprint(map[string]string(c)) }

func (c claimFlags) Set(v string) error {
	key, val, ok := strings.Cut(v, "=")
	if !ok || key == "" {
		return fmt.Errorf("claim must be key=value, got %q", v)
	}
	c[key] = val
	return nil
}

func main() {
	_ = godotenv.Load()

	var (
		sub    = flag.String("sub", "testuser", "subject claim for the token")
		ttl    = flag.Duration("ttl", 0, "token validity (default: auth.token_ttl from config)")
		claims = claimFlags{}
	)
	flag.Var(claims, "claim", "additional claim as key=value (repeatable)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	validity := *ttl
	if validity <= 0 {
		validity = cfg.Auth.TokenTTL
	}
	if validity <= 0 {
		validity = time.Hour
	}

	payload := map[string]any{"sub": *sub}
	for k, v := range claims {
		payload[k] = v
	}

	token, err := auth.New(cfg.Auth.Secret).Issue(payload, validity)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to sign token: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("Generated token:")
	fmt.Println(token)
	fmt.Printf("\nExpires in %s. Use it as:\n", validity)
	fmt.Printf("  Authorization: Bearer %s\n", token)
}
